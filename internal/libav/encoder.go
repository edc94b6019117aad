package libav

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/muxarr/internal/media"
)

var errForeignFrame = errors.New("frame was not produced by libav")

type encoder struct {
	cc     *astiav.CodecContext
	conv   converter
	logger *slog.Logger

	// pending holds converted frames the codec has not accepted yet.
	pending  []*astiav.Frame
	flushing bool
	sentEOF  bool
}

func openEncoder(c *astiav.Codec, cfg media.EncoderConfig, logger *slog.Logger) (*encoder, error) {
	cc := astiav.AllocCodecContext(c)
	if cc == nil {
		return nil, notFound("allocate encoder", c.Name(), astiav.ErrEnomem)
	}
	source, _ := cfg.Source.Native.(*astiav.CodecContext)

	switch cfg.MediaType {
	case media.MediaTypeAudio:
		sf, ok := sampleFormat(cfg.SampleFormat)
		if !ok {
			cc.Free()
			return nil, fmt.Errorf("encoder %s: unknown sample format %q", c.Name(), cfg.SampleFormat)
		}
		layout := channelLayout(cfg.Channels)
		if source != nil && source.ChannelLayout().Valid() {
			layout = source.ChannelLayout()
		}
		cc.SetSampleFormat(sf)
		cc.SetSampleRate(cfg.SampleRate)
		cc.SetChannelLayout(layout)
	case media.MediaTypeVideo:
		pf, ok := pixelFormat(cfg.PixelFormat)
		if !ok {
			cc.Free()
			return nil, fmt.Errorf("encoder %s: unknown pixel format %q", c.Name(), cfg.PixelFormat)
		}
		cc.SetWidth(cfg.Width)
		cc.SetHeight(cfg.Height)
		cc.SetPixelFormat(pf)
		if !cfg.FrameRate.IsZero() {
			cc.SetFramerate(libavRational(cfg.FrameRate))
		}
		cc.SetGopSize(cfg.GOPSize)
		if source != nil {
			cc.SetSampleAspectRatio(source.SampleAspectRatio())
		}
	}
	cc.SetBitRate(cfg.BitRate)
	cc.SetTimeBase(libavRational(cfg.TimeBase))
	if cfg.GlobalHeader {
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	opts := astiav.NewDictionary()
	defer opts.Free()
	if cfg.MediaType == media.MediaTypeVideo {
		if err := opts.Set("bf", strconv.Itoa(cfg.MaxBFrames), astiav.NewDictionaryFlags()); err != nil {
			cc.Free()
			return nil, wrapError("encoder option bf", err)
		}
	}
	if cfg.Preset != "" {
		if err := opts.Set("preset", cfg.Preset, astiav.NewDictionaryFlags()); err != nil {
			cc.Free()
			return nil, wrapError("encoder option preset", err)
		}
	}
	if err := cc.Open(c, opts); err != nil {
		cc.Free()
		return nil, wrapError("open encoder", err)
	}

	e := &encoder{cc: cc, logger: logger}
	if cfg.MediaType == media.MediaTypeAudio {
		e.conv = newAudioConverter(cc)
	} else {
		e.conv = newVideoConverter(cc)
	}
	logger.Debug("encoder opened",
		slog.String("time_base", rational(cc.TimeBase()).String()),
		slog.Int("frame_size", cc.FrameSize()))
	return e, nil
}

func (e *encoder) SendFrame(f media.Frame) error {
	if f == nil {
		if e.flushing {
			return io.EOF
		}
		e.flushing = true
		frames, err := e.conv.convert(nil)
		if err != nil {
			return err
		}
		e.pending = append(e.pending, frames...)
		return e.push()
	}

	lf, ok := f.(*frame)
	if !ok || lf.f == nil {
		return errForeignFrame
	}
	frames, err := e.conv.convert(lf.f)
	if err != nil {
		return err
	}
	e.pending = append(e.pending, frames...)
	return e.push()
}

// push hands pending frames, then end of stream when flushing, to the codec
// until it stops accepting input.
func (e *encoder) push() error {
	for len(e.pending) > 0 {
		err := e.cc.SendFrame(e.pending[0])
		if errors.Is(err, astiav.ErrEagain) {
			return nil
		}
		e.pending[0].Free()
		e.pending = e.pending[1:]
		if err != nil {
			return wrapError("encode", err)
		}
	}
	if e.flushing && !e.sentEOF {
		err := e.cc.SendFrame(nil)
		if errors.Is(err, astiav.ErrEagain) {
			return nil
		}
		e.sentEOF = true
		if err != nil && !errors.Is(err, astiav.ErrEof) {
			return wrapError("encode", err)
		}
	}
	return nil
}

func (e *encoder) ReceivePacket() (*media.Packet, error) {
	for {
		pkt := astiav.AllocPacket()
		err := e.cc.ReceivePacket(pkt)
		if err == nil {
			p := fromPacket(pkt)
			pkt.Free()
			return p, nil
		}
		pkt.Free()

		if errors.Is(err, astiav.ErrEagain) && (len(e.pending) > 0 || (e.flushing && !e.sentEOF)) {
			if err := e.push(); err != nil {
				return nil, err
			}
			continue
		}
		return nil, wrapError("encode", err)
	}
}

func (e *encoder) Parameters() media.CodecParameters { return contextParameters(e.cc) }
func (e *encoder) TimeBase() media.Rational          { return rational(e.cc.TimeBase()) }

func (e *encoder) Close() error {
	for _, f := range e.pending {
		f.Free()
	}
	e.pending = nil
	if e.conv != nil {
		e.conv.close()
		e.conv = nil
	}
	if e.cc != nil {
		e.cc.Free()
		e.cc = nil
	}
	return nil
}
