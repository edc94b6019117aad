package libav

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/muxarr/internal/media"
)

type input struct {
	fc      *astiav.FormatContext
	ii      *astiav.IOInterrupter
	stop    func() bool
	streams []media.Stream
	logger  *slog.Logger
}

// inputDictionary carries the probe options; nil when none are set.
func inputDictionary(opts media.InputOptions) (*astiav.Dictionary, error) {
	if opts.ProbeSize <= 0 && opts.AnalyzeDuration <= 0 {
		return nil, nil
	}
	d := astiav.NewDictionary()
	flags := astiav.NewDictionaryFlags()
	if opts.ProbeSize > 0 {
		if err := d.Set("probesize", strconv.FormatInt(opts.ProbeSize, 10), flags); err != nil {
			d.Free()
			return nil, wrapError("input option probesize", err)
		}
	}
	if opts.AnalyzeDuration > 0 {
		if err := d.Set("analyzeduration", strconv.FormatInt(opts.AnalyzeDuration, 10), flags); err != nil {
			d.Free()
			return nil, wrapError("input option analyzeduration", err)
		}
	}
	return d, nil
}

func openInput(ctx context.Context, url string, opts media.InputOptions, logger *slog.Logger) (*input, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("allocating input format context: %w", astiav.ErrEnomem)
	}

	var format *astiav.InputFormat
	if opts.Format != "" {
		if format = astiav.FindInputFormat(opts.Format); format == nil {
			fc.Free()
			return nil, notFound("find input format", opts.Format, astiav.ErrDemuxerNotFound)
		}
	}

	// Blocking reads are interrupted when the run context ends.
	ii := astiav.NewIOInterrupter()
	fc.SetIOInterrupter(ii)
	stop := context.AfterFunc(ctx, ii.Interrupt)

	in := &input{fc: fc, ii: ii, stop: stop, logger: logger}

	d, err := inputDictionary(opts)
	if err != nil {
		stop()
		ii.Free()
		fc.Free()
		return nil, err
	}
	if d != nil {
		defer d.Free()
	}
	if err := fc.OpenInput(url, format, d); err != nil {
		stop()
		ii.Free()
		fc.Free()
		return nil, wrapError("open input", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		_ = in.Close()
		return nil, wrapError("find stream info", err)
	}

	for _, s := range fc.Streams() {
		stream := media.Stream{
			Index:    s.Index(),
			Codec:    streamParameters(s.CodecParameters()),
			TimeBase: rational(s.TimeBase()),
		}
		if stream.Codec.MediaType == media.MediaTypeVideo {
			stream.FrameRate = rational(fc.GuessFrameRate(s, nil))
		}
		in.streams = append(in.streams, stream)
		logger.Debug("probed stream",
			slog.Int("index", stream.Index),
			slog.String("media_type", stream.Codec.MediaType.String()),
			slog.String("codec", string(stream.Codec.CodecID)),
			slog.String("time_base", stream.TimeBase.String()))
	}
	return in, nil
}

// Streams implements media.Input.
func (in *input) Streams() []media.Stream {
	return in.streams
}

// ReadPacket implements media.Input.
func (in *input) ReadPacket(ctx context.Context) (*media.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pkt := astiav.AllocPacket()
	defer pkt.Free()
	if err := in.fc.ReadFrame(pkt); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrapError("read frame", err)
	}
	return fromPacket(pkt), nil
}

// Close implements media.Input.
func (in *input) Close() error {
	if in.fc == nil {
		return nil
	}
	in.stop()
	in.fc.CloseInput()
	in.fc.Free()
	in.ii.Free()
	in.fc = nil
	return nil
}

// fromPacket copies a libav packet. Packets leave the backend as plain
// data so that a dropped packet holds no libav memory.
func fromPacket(pkt *astiav.Packet) *media.Packet {
	return &media.Packet{
		StreamIndex: pkt.StreamIndex(),
		PTS:         pkt.Pts(),
		DTS:         pkt.Dts(),
		Duration:    pkt.Duration(),
		Pos:         pkt.Pos(),
		Keyframe:    pkt.Flags().Has(astiav.PacketFlagKey),
		Data:        pkt.Data(),
	}
}

// toPacket allocates a libav packet holding p. The caller frees it.
func toPacket(p *media.Packet) (*astiav.Packet, error) {
	pkt := astiav.AllocPacket()
	if err := pkt.FromData(p.Data); err != nil {
		pkt.Free()
		return nil, wrapError("packet from data", err)
	}
	if p.Keyframe {
		pkt.SetFlags(pkt.Flags().Add(astiav.PacketFlagKey))
	}
	pkt.SetStreamIndex(p.StreamIndex)
	pkt.SetPts(p.PTS)
	pkt.SetDts(p.DTS)
	pkt.SetDuration(p.Duration)
	pkt.SetPos(p.Pos)
	return pkt, nil
}
