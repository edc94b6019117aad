package mpegts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/asticode/go-astits"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/media"
)

// TimeBase is the MPEG-TS clock every track is expressed in.
var TimeBase = media.NewRational(1, 90000)

// Samples per coded audio frame, used to space the timestamps of frames that
// share one PES packet.
const (
	aacFrameSamples  = 1024
	ac3FrameSamples  = 1536
	mp3FrameSamples  = 1152
	opusFrameSamples = 960

	defaultSampleRate = 48000
)

// input adapts mediacommon's callback-driven Reader to the pull-based
// media.Input. Each ReadPacket call feeds TS packets to the reader until its
// callbacks have queued at least one elementary stream packet.
type input struct {
	reader  *mpegts.Reader
	closer  io.Closer
	logger  *slog.Logger
	streams []media.Stream
	queue   []*media.Packet
	err     error
}

func newInput(r io.Reader, closer io.Closer, logger *slog.Logger) *input {
	return &input{
		reader: &mpegts.Reader{R: r},
		closer: closer,
		logger: logger,
	}
}

// initialize reads until the PAT and PMT are known and registers a callback
// for every track the backend can carry.
func (in *input) initialize() error {
	if err := in.reader.Initialize(); err != nil {
		return fmt.Errorf("initializing mpegts reader: %w", err)
	}

	for _, track := range in.reader.Tracks() {
		stream, ok := in.register(len(in.streams), track)
		if !ok {
			in.logger.Debug("skipping unsupported track",
				slog.Uint64("pid", uint64(track.PID)),
				slog.String("type", fmt.Sprintf("%T", track.Codec)))
			continue
		}
		in.streams = append(in.streams, stream)
		in.logger.Debug("found track",
			slog.Int("index", stream.Index),
			slog.Uint64("pid", uint64(track.PID)),
			slog.String("codec", string(stream.Codec.CodecID)))
	}

	in.reader.OnDecodeError(func(err error) {
		in.logger.Debug("mpegts decode error", slog.String("error", err.Error()))
	})

	if len(in.streams) == 0 {
		return fmt.Errorf("no supported tracks: %w", ErrUnsupportedFormat)
	}
	return nil
}

// register describes track as stream idx and installs its data callback.
func (in *input) register(idx int, track *mpegts.Track) (media.Stream, bool) {
	s := media.Stream{
		Index:    idx,
		TimeBase: TimeBase,
		Codec:    media.CodecParameters{Native: track.Codec},
	}

	switch c := track.Codec.(type) {
	case *mpegts.CodecH264:
		s.Codec.MediaType = media.MediaTypeVideo
		s.Codec.CodecID = media.CodecID(codec.VideoH264)
		in.reader.OnDataH264(track, func(pts, dts int64, au [][]byte) error {
			in.pushVideo(idx, pts, dts, au, h264.IsRandomAccess(au))
			return nil
		})

	case *mpegts.CodecH265:
		s.Codec.MediaType = media.MediaTypeVideo
		s.Codec.CodecID = media.CodecID(codec.VideoH265)
		in.reader.OnDataH265(track, func(pts, dts int64, au [][]byte) error {
			in.pushVideo(idx, pts, dts, au, h265.IsRandomAccess(au))
			return nil
		})

	case *mpegts.CodecMPEG4Audio:
		rate := orDefault(c.Config.SampleRate)
		s.Codec.MediaType = media.MediaTypeAudio
		s.Codec.CodecID = media.CodecID(codec.AudioAAC)
		s.Codec.SampleRate = rate
		s.Codec.Channels = c.Config.ChannelCount
		if extradata, err := c.Config.Marshal(); err == nil {
			s.Codec.Extradata = extradata
		}
		in.reader.OnDataMPEG4Audio(track, func(pts int64, aus [][]byte) error {
			in.pushAudio(idx, pts, aus, frameDuration(aacFrameSamples, rate))
			return nil
		})

	case *mpegts.CodecAC3:
		rate := orDefault(c.SampleRate)
		s.Codec.MediaType = media.MediaTypeAudio
		s.Codec.CodecID = media.CodecID(codec.AudioAC3)
		s.Codec.SampleRate = rate
		s.Codec.Channels = c.ChannelCount
		in.reader.OnDataAC3(track, func(pts int64, frame []byte) error {
			in.pushAudio(idx, pts, [][]byte{frame}, frameDuration(ac3FrameSamples, rate))
			return nil
		})

	case *mpegts.CodecEAC3:
		rate := orDefault(c.SampleRate)
		s.Codec.MediaType = media.MediaTypeAudio
		s.Codec.CodecID = media.CodecID(codec.AudioEAC3)
		s.Codec.SampleRate = rate
		s.Codec.Channels = c.ChannelCount
		in.reader.OnDataEAC3(track, func(pts int64, frame []byte) error {
			in.pushAudio(idx, pts, [][]byte{frame}, frameDuration(ac3FrameSamples, rate))
			return nil
		})

	case *mpegts.CodecMPEG1Audio:
		// The track carries no rate; MPEG-TS audio is almost always 48 kHz.
		s.Codec.MediaType = media.MediaTypeAudio
		s.Codec.CodecID = media.CodecID(codec.AudioMP3)
		s.Codec.SampleRate = defaultSampleRate
		in.reader.OnDataMPEG1Audio(track, func(pts int64, frames [][]byte) error {
			in.pushAudio(idx, pts, frames, frameDuration(mp3FrameSamples, defaultSampleRate))
			return nil
		})

	case *mpegts.CodecOpus:
		s.Codec.MediaType = media.MediaTypeAudio
		s.Codec.CodecID = media.CodecID(codec.AudioOpus)
		s.Codec.SampleRate = defaultSampleRate
		s.Codec.Channels = c.ChannelCount
		in.reader.OnDataOpus(track, func(pts int64, packets [][]byte) error {
			in.pushAudio(idx, pts, packets, frameDuration(opusFrameSamples, defaultSampleRate))
			return nil
		})

	default:
		return media.Stream{}, false
	}
	return s, true
}

func orDefault(rate int) int {
	if rate <= 0 {
		return defaultSampleRate
	}
	return rate
}

// frameDuration is the length of one coded frame in 90 kHz ticks.
func frameDuration(samples, rate int) int64 {
	return int64(samples) * 90000 / int64(rate)
}

func (in *input) pushVideo(idx int, pts, dts int64, au [][]byte, keyframe bool) {
	if len(au) == 0 {
		return
	}
	data, err := annexB(au)
	if err != nil || len(data) == 0 {
		return
	}
	in.queue = append(in.queue, &media.Packet{
		StreamIndex: idx,
		PTS:         pts,
		DTS:         dts,
		Pos:         -1,
		Keyframe:    keyframe,
		Data:        data,
	})
}

// pushAudio queues one packet per frame; frames after the first get
// timestamps extrapolated from the PES timestamp.
func (in *input) pushAudio(idx int, pts int64, frames [][]byte, duration int64) {
	for _, frame := range frames {
		if len(frame) == 0 {
			continue
		}
		in.queue = append(in.queue, &media.Packet{
			StreamIndex: idx,
			PTS:         pts,
			DTS:         pts,
			Duration:    duration,
			Pos:         -1,
			Keyframe:    true,
			Data:        frame,
		})
		pts += duration
	}
}

// Streams implements media.Input.
func (in *input) Streams() []media.Stream {
	return in.streams
}

// ReadPacket implements media.Input.
func (in *input) ReadPacket(ctx context.Context) (*media.Packet, error) {
	for len(in.queue) == 0 {
		if in.err != nil {
			return nil, in.err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := in.reader.Read(); err != nil {
			if isEndOfStream(err) {
				in.err = io.EOF
			} else {
				in.err = fmt.Errorf("reading mpegts: %w", err)
			}
		}
	}

	pkt := in.queue[0]
	in.queue[0] = nil
	in.queue = in.queue[1:]
	return pkt, nil
}

func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, astits.ErrNoMorePackets)
}

// Close implements media.Input.
func (in *input) Close() error {
	if in.closer == nil {
		return nil
	}
	err := in.closer.Close()
	in.closer = nil
	return err
}
