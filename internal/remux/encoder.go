package remux

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/media"
)

// streamContext is the decoder/encoder pair owned by one transcoded stream.
type streamContext struct {
	decoder     media.Decoder
	encoder     media.Encoder
	encoderName string

	// framesIn counts frames handed to the encoder; zero skips the flush.
	framesIn int64
	// flushes counts end-of-stream signals sent to the encoder.
	flushes int
}

func (sc *streamContext) close() {
	if sc.encoder != nil {
		_ = sc.encoder.Close()
		sc.encoder = nil
	}
	if sc.decoder != nil {
		_ = sc.decoder.Close()
		sc.decoder = nil
	}
}

var errCopyOnlyBackend = errors.New("backend cannot decode or encode")

// resolveEncoder finds the encoder by name, falling back to the codec the
// name is registered for when the backend does not know the name.
func resolveEncoder(codecs media.Codecs, name string) (media.Codec, error) {
	enc, err := codecs.FindEncoderByName(name)
	if err == nil {
		return enc, nil
	}
	id, ok := codec.CodecIDForEncoder(name)
	if !ok {
		return nil, fmt.Errorf("encoder %q: %w", name, err)
	}
	enc, idErr := codecs.FindEncoder(media.CodecID(id))
	if idErr != nil {
		return nil, fmt.Errorf("encoder %q (codec %s): %w", name, id, idErr)
	}
	return enc, nil
}

// firstOr returns the first element of values, or def when there is none.
func firstOr(values []string, def string) string {
	if len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return def
}

// encoderConfig derives the encoder configuration from the opened decoder
// and the input stream.
func (s *Session) encoderConfig(in media.Stream, dec media.Decoder, enc media.Codec) media.EncoderConfig {
	p := dec.Parameters()
	defaults := s.cfg.Encoding
	cfg := media.EncoderConfig{
		MediaType:    in.Codec.MediaType,
		GlobalHeader: s.output.GlobalHeader(),
		Source:       p,
	}

	switch in.Codec.MediaType {
	case media.MediaTypeAudio:
		cfg.SampleRate = p.SampleRate
		cfg.Channels = p.Channels
		cfg.ChannelLayout = p.ChannelLayout
		cfg.SampleFormat = firstOr(enc.SampleFormats(), defaults.SampleFormat)
		cfg.BitRate = defaults.AudioBitRate
		cfg.TimeBase = media.NewRational(1, p.SampleRate)
	case media.MediaTypeVideo:
		cfg.Width = p.Width
		cfg.Height = p.Height
		cfg.PixelFormat = firstOr(enc.PixelFormats(), defaults.PixelFormat)
		cfg.BitRate = defaults.VideoBitRate
		cfg.FrameRate = in.FrameRate
		if in.FrameRate.IsZero() {
			cfg.TimeBase = in.TimeBase
		} else {
			cfg.TimeBase = in.FrameRate.Invert()
		}
		cfg.GOPSize = defaults.GOPSize
		cfg.MaxBFrames = defaults.MaxBFrames
		if codec.HasSpeedPreset(enc.Name()) {
			cfg.Preset = defaults.Preset
		}
	}
	return cfg
}

// setupEncoder resolves and opens the decoder/encoder pair for one input
// stream and configures its output stream from the opened encoder.
func (s *Session) setupEncoder(in media.Stream, out media.OutputStream, name string) (*streamContext, error) {
	codecs := s.backend.Codecs()
	if codecs == nil {
		return nil, newError(KindSetup, "resolve encoder", fmt.Errorf("%s: %w", s.backend.Name(), errCopyOnlyBackend))
	}

	decCodec, err := codecs.FindDecoder(in.Codec.CodecID)
	if err != nil {
		return nil, newError(KindSetup, "resolve decoder", fmt.Errorf("codec %s: %w", in.Codec.CodecID, err))
	}
	encCodec, err := resolveEncoder(codecs, name)
	if err != nil {
		return nil, newError(KindSetup, "resolve encoder", err)
	}
	if encCodec.MediaType() != in.Codec.MediaType {
		return nil, newError(KindSetup, "resolve encoder",
			fmt.Errorf("encoder %s produces %s, stream %d is %s", encCodec.Name(), encCodec.MediaType(), in.Index, in.Codec.MediaType))
	}

	dec, err := codecs.OpenDecoder(decCodec, in)
	if err != nil {
		return nil, newError(KindSetup, "open decoder", err)
	}

	enc, err := codecs.OpenEncoder(encCodec, s.encoderConfig(in, dec, encCodec))
	if err != nil {
		_ = dec.Close()
		return nil, newError(KindSetup, "open encoder", fmt.Errorf("%s: %w", encCodec.Name(), err))
	}

	sc := &streamContext{decoder: dec, encoder: enc, encoderName: encCodec.Name()}

	params := enc.Parameters()
	params.CodecTag = 0
	if err := out.CopyParameters(params); err != nil {
		sc.close()
		return nil, newError(KindSetup, "copy encoder parameters", err)
	}
	out.SetTimeBase(enc.TimeBase())

	return sc, nil
}
