package remux

import (
	"errors"
	"log/slog"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/media"
)

// errNoStreams is the setup failure when selection retains nothing.
var errNoStreams = errors.New("no input stream matches the output")

// streamMap is the input to output stream assignment. It is built once before
// any stage starts and is read-only afterwards.
type streamMap struct {
	inputs []media.Stream
	// outIdx and inTB are indexed by input stream index; -1 means unmapped.
	outIdx []int
	inTB   []media.Rational
	// outputs and outTB are indexed by output stream index.
	outputs []media.OutputStream
	outTB   []media.Rational
	// contexts is indexed by input stream index; nil entries are copied.
	contexts []*streamContext
}

func newStreamMap(inputs []media.Stream) *streamMap {
	size := 0
	for _, in := range inputs {
		if in.Index+1 > size {
			size = in.Index + 1
		}
	}
	m := &streamMap{
		inputs:   inputs,
		outIdx:   make([]int, size),
		inTB:     make([]media.Rational, size),
		contexts: make([]*streamContext, size),
	}
	for i := range m.outIdx {
		m.outIdx[i] = -1
	}
	for _, in := range inputs {
		m.inTB[in.Index] = in.TimeBase
	}
	return m
}

// output returns the output index for an input stream.
func (m *streamMap) output(in int) (int, bool) {
	if in < 0 || in >= len(m.outIdx) || m.outIdx[in] < 0 {
		return 0, false
	}
	return m.outIdx[in], true
}

func (m *streamMap) context(in int) *streamContext {
	if in < 0 || in >= len(m.contexts) {
		return nil
	}
	return m.contexts[in]
}

// transcoding reports whether any stream has a decoder/encoder pair.
func (m *streamMap) transcoding() bool {
	for _, sc := range m.contexts {
		if sc != nil {
			return true
		}
	}
	return false
}

// captureTimeBases records the output time bases. Muxers may replace the
// requested time base while writing the header, so this runs after it.
func (m *streamMap) captureTimeBases() {
	m.outTB = make([]media.Rational, len(m.outputs))
	for i, out := range m.outputs {
		m.outTB[i] = out.TimeBase()
	}
}

// Retains reports whether a stream of type mt survives the extraction mode.
func Retains(mode codec.Extraction, mt media.MediaType) bool {
	switch mode {
	case codec.ExtractAudioOnly:
		return mt == media.MediaTypeAudio
	case codec.ExtractVideoOnly:
		return mt == media.MediaTypeVideo
	default:
		return true
	}
}

// encoderFor returns the requested encoder name for a media type.
func (c Config) encoderFor(mt media.MediaType) string {
	switch mt {
	case media.MediaTypeAudio:
		return c.AudioEncoder
	case media.MediaTypeVideo:
		return c.VideoEncoder
	default:
		return ""
	}
}

// mapStreams selects the retained streams in input order, allocates their
// output slots and either copies their parameters or sets up a transcoder.
func (s *Session) mapStreams() (*streamMap, error) {
	inputs := s.input.Streams()
	m := newStreamMap(inputs)
	mode := codec.ExtractionFor(s.cfg.OutputURL)

	for _, in := range inputs {
		mt := in.Codec.MediaType
		if !Retains(mode, mt) {
			s.logger.Debug("stream skipped",
				slog.Int("input_index", in.Index),
				slog.String("media_type", mt.String()),
				slog.String("extraction", mode.String()),
			)
			continue
		}

		out, err := s.output.NewStream()
		if err != nil {
			m.close()
			return nil, newError(KindSetup, "allocate output stream", err)
		}
		outIdx := len(m.outputs)
		m.outputs = append(m.outputs, out)
		m.outIdx[in.Index] = outIdx

		if name := s.cfg.encoderFor(mt); name != "" {
			sc, err := s.setupEncoder(in, out, name)
			if err != nil {
				m.close()
				return nil, err
			}
			m.contexts[in.Index] = sc
			s.logger.Info("stream transcoding",
				slog.Int("input_index", in.Index),
				slog.Int("output_index", outIdx),
				slog.String("media_type", mt.String()),
				slog.String("decoder", string(in.Codec.CodecID)),
				slog.String("encoder", sc.encoderName),
			)
			continue
		}

		params := in.Codec
		// The source container's tag may be invalid in the target container;
		// zero lets the muxer pick one.
		params.CodecTag = 0
		if err := out.CopyParameters(params); err != nil {
			m.close()
			return nil, newError(KindSetup, "copy codec parameters", err)
		}
		out.SetTimeBase(in.TimeBase)
		s.logger.Debug("stream copied",
			slog.Int("input_index", in.Index),
			slog.Int("output_index", outIdx),
			slog.String("media_type", mt.String()),
			slog.String("codec", string(in.Codec.CodecID)),
		)
	}

	if len(m.outputs) == 0 {
		return nil, newError(KindSetup, "select streams", errNoStreams)
	}
	return m, nil
}

// close releases every stream context.
func (m *streamMap) close() {
	for i, sc := range m.contexts {
		if sc != nil {
			sc.close()
			m.contexts[i] = nil
		}
	}
}
