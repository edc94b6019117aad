package libav

import (
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/muxarr/internal/media"
)

type outputStream struct {
	s *astiav.Stream
}

// Index implements media.OutputStream.
func (o *outputStream) Index() int { return o.s.Index() }

// CopyParameters implements media.OutputStream.
func (o *outputStream) CopyParameters(p media.CodecParameters) error {
	return fillParameters(o.s.CodecParameters(), p)
}

// SetTimeBase implements media.OutputStream.
func (o *outputStream) SetTimeBase(tb media.Rational) { o.s.SetTimeBase(libavRational(tb)) }

// TimeBase implements media.OutputStream.
func (o *outputStream) TimeBase() media.Rational { return rational(o.s.TimeBase()) }

type output struct {
	url    string
	fc     *astiav.FormatContext
	ioc    *astiav.IOContext
	logger *slog.Logger
}

func createOutput(url, format string, logger *slog.Logger) (*output, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, format, url)
	if err != nil {
		return nil, wrapError("allocate output format context", err)
	}
	if fc == nil {
		return nil, notFound("allocate output format context", url, astiav.ErrMuxerNotFound)
	}
	logger.Debug("output allocated", slog.String("format", fc.OutputFormat().Name()))
	return &output{url: url, fc: fc, logger: logger}, nil
}

// NewStream implements media.Output.
func (o *output) NewStream() (media.OutputStream, error) {
	s := o.fc.NewStream(nil)
	if s == nil {
		return nil, fmt.Errorf("new output stream: %w", astiav.ErrEnomem)
	}
	return &outputStream{s: s}, nil
}

// GlobalHeader implements media.Output.
func (o *output) GlobalHeader() bool {
	return o.fc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader)
}

// Open implements media.Output. Formats that write no file skip it.
func (o *output) Open() error {
	if o.fc.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		return nil
	}
	ioc, err := astiav.OpenIOContext(o.url, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
	if err != nil {
		return wrapError("open output", err)
	}
	o.ioc = ioc
	o.fc.SetPb(ioc)
	return nil
}

// WriteHeader implements media.Output.
func (o *output) WriteHeader() error {
	return wrapError("write header", o.fc.WriteHeader(nil))
}

// WriteInterleaved implements media.Output.
func (o *output) WriteInterleaved(p *media.Packet) error {
	pkt, err := toPacket(p)
	if err != nil {
		return err
	}
	defer pkt.Free()
	return wrapError("write packet", o.fc.WriteInterleavedFrame(pkt))
}

// WriteTrailer implements media.Output.
func (o *output) WriteTrailer() error {
	return wrapError("write trailer", o.fc.WriteTrailer())
}

// Close implements media.Output.
func (o *output) Close() error {
	if o.fc == nil {
		return nil
	}
	var err error
	if o.ioc != nil {
		err = wrapError("close output", o.ioc.Close())
		o.ioc = nil
	}
	o.fc.Free()
	o.fc = nil
	return err
}
