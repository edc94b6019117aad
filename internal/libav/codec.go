package libav

import (
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/media"
)

// libavCodec implements media.Codec.
type libavCodec struct {
	c *astiav.Codec
}

func (c *libavCodec) Name() string               { return c.c.Name() }
func (c *libavCodec) ID() media.CodecID          { return canonicalID(c.c.ID()) }
func (c *libavCodec) MediaType() media.MediaType { return mediaType(c.c.MediaType()) }

func (c *libavCodec) SampleFormats() []string {
	var out []string
	for _, f := range c.c.SampleFormats() {
		out = append(out, f.Name())
	}
	return out
}

func (c *libavCodec) PixelFormats() []string {
	var out []string
	for _, f := range c.c.PixelFormats() {
		out = append(out, f.Name())
	}
	return out
}

// codecs implements media.Codecs.
type codecs struct {
	logger *slog.Logger
}

// libavCodecID resolves a canonical name, falling back to libav's own name
// lookup for codecs outside the registry.
func libavCodecID(id media.CodecID) (astiav.CodecID, bool) {
	if v, ok := codecIDs[media.CodecID(codec.Normalize(string(id)))]; ok {
		return v, true
	}
	if c := astiav.FindDecoderByName(codec.LibavName(string(id))); c != nil {
		return c.ID(), true
	}
	return 0, false
}

func (cs *codecs) FindDecoder(id media.CodecID) (media.Codec, error) {
	if v, ok := libavCodecID(id); ok {
		if c := astiav.FindDecoder(v); c != nil {
			return &libavCodec{c: c}, nil
		}
	}
	return nil, notFound("find decoder", string(id), astiav.ErrDecoderNotFound)
}

func (cs *codecs) FindEncoderByName(name string) (media.Codec, error) {
	if c := astiav.FindEncoderByName(name); c != nil {
		return &libavCodec{c: c}, nil
	}
	return nil, notFound("find encoder", name, astiav.ErrEncoderNotFound)
}

func (cs *codecs) FindEncoder(id media.CodecID) (media.Codec, error) {
	if v, ok := libavCodecID(id); ok {
		if c := astiav.FindEncoder(v); c != nil {
			return &libavCodec{c: c}, nil
		}
	}
	return nil, notFound("find encoder", string(id), astiav.ErrEncoderNotFound)
}

func (cs *codecs) OpenDecoder(c media.Codec, stream media.Stream) (media.Decoder, error) {
	lc, ok := c.(*libavCodec)
	if !ok {
		return nil, notFound("open decoder", c.Name(), astiav.ErrDecoderNotFound)
	}
	return openDecoder(lc.c, stream)
}

func (cs *codecs) OpenEncoder(c media.Codec, cfg media.EncoderConfig) (media.Encoder, error) {
	lc, ok := c.(*libavCodec)
	if !ok {
		return nil, notFound("open encoder", c.Name(), astiav.ErrEncoderNotFound)
	}
	return openEncoder(lc.c, cfg, cs.logger.With(slog.String("encoder", lc.c.Name())))
}

// frame implements media.Frame over a libav frame.
type frame struct {
	f *astiav.Frame
}

func (f *frame) PTS() int64       { return f.f.Pts() }
func (f *frame) SetPTS(pts int64) { f.f.SetPts(pts) }

func (f *frame) Release() {
	if f.f != nil {
		f.f.Free()
		f.f = nil
	}
}

type decoder struct {
	cc *astiav.CodecContext
	tb media.Rational
}

func openDecoder(c *astiav.Codec, stream media.Stream) (*decoder, error) {
	cc := astiav.AllocCodecContext(c)
	if cc == nil {
		return nil, notFound("allocate decoder", c.Name(), astiav.ErrEnomem)
	}

	if cp, ok := stream.Codec.Native.(*astiav.CodecParameters); ok {
		if err := cp.ToCodecContext(cc); err != nil {
			cc.Free()
			return nil, wrapError("decoder parameters", err)
		}
	} else {
		cp := astiav.AllocCodecParameters()
		defer cp.Free()
		if err := fillParameters(cp, stream.Codec); err != nil {
			cc.Free()
			return nil, err
		}
		if err := cp.ToCodecContext(cc); err != nil {
			cc.Free()
			return nil, wrapError("decoder parameters", err)
		}
	}
	cc.SetTimeBase(libavRational(stream.TimeBase))
	if stream.Codec.MediaType == media.MediaTypeVideo && !stream.FrameRate.IsZero() {
		cc.SetFramerate(libavRational(stream.FrameRate))
	}

	if err := cc.Open(c, nil); err != nil {
		cc.Free()
		return nil, wrapError("open decoder", err)
	}
	return &decoder{cc: cc, tb: stream.TimeBase}, nil
}

func (d *decoder) SendPacket(p *media.Packet) error {
	if p == nil {
		return wrapError("decode", d.cc.SendPacket(nil))
	}
	pkt, err := toPacket(p)
	if err != nil {
		return err
	}
	defer pkt.Free()
	return wrapError("decode", d.cc.SendPacket(pkt))
}

func (d *decoder) ReceiveFrame() (media.Frame, error) {
	f := astiav.AllocFrame()
	if err := d.cc.ReceiveFrame(f); err != nil {
		f.Free()
		return nil, wrapError("decode", err)
	}
	return &frame{f: f}, nil
}

func (d *decoder) Parameters() media.CodecParameters { return contextParameters(d.cc) }
func (d *decoder) TimeBase() media.Rational          { return d.tb }

func (d *decoder) Close() error {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	return nil
}
