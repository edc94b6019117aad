package mpegts

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/media"
)

// firstPID is the elementary stream PID of output stream 0; later streams
// take consecutive PIDs.
const firstPID = 0x0100

var (
	errNotOpened      = errors.New("output not opened")
	errHeaderNotReady = errors.New("header not written")
	errNoTimestamp    = errors.New("packet has no timestamp")
)

type outputStream struct {
	index int
	track *mpegts.Track
}

// Index implements media.OutputStream.
func (s *outputStream) Index() int { return s.index }

// CopyParameters implements media.OutputStream.
func (s *outputStream) CopyParameters(p media.CodecParameters) error {
	c, err := trackCodec(p)
	if err != nil {
		return err
	}
	s.track.Codec = c
	return nil
}

// SetTimeBase implements media.OutputStream. MPEG-TS always uses the 90 kHz
// clock, so the request is ignored.
func (s *outputStream) SetTimeBase(media.Rational) {}

// TimeBase implements media.OutputStream.
func (s *outputStream) TimeBase() media.Rational { return TimeBase }

// trackCodec returns the mediacommon codec for p. Parameters demuxed by this
// backend carry their original track codec and are reused as is.
func trackCodec(p media.CodecParameters) (mpegts.Codec, error) {
	if c, ok := p.Native.(mpegts.Codec); ok && !codec.IsUnsupported(c) {
		return c, nil
	}

	channels := p.Channels
	if channels <= 0 {
		channels = 2
	}
	rate := orDefault(p.SampleRate)

	switch codec.Normalize(string(p.CodecID)) {
	case string(codec.VideoH264):
		return &mpegts.CodecH264{}, nil
	case string(codec.VideoH265):
		return &mpegts.CodecH265{}, nil
	case string(codec.AudioAAC):
		conf := mpeg4audio.AudioSpecificConfig{
			Type:         mpeg4audio.ObjectTypeAACLC,
			SampleRate:   rate,
			ChannelCount: channels,
		}
		if len(p.Extradata) > 0 {
			var parsed mpeg4audio.AudioSpecificConfig
			if err := parsed.Unmarshal(p.Extradata); err == nil {
				conf = parsed
			}
		}
		return &mpegts.CodecMPEG4Audio{Config: conf}, nil
	case string(codec.AudioAC3):
		return &mpegts.CodecAC3{SampleRate: rate, ChannelCount: channels}, nil
	case string(codec.AudioEAC3):
		return &mpegts.CodecEAC3{SampleRate: rate, ChannelCount: channels}, nil
	case string(codec.AudioMP3):
		return &mpegts.CodecMPEG1Audio{}, nil
	case string(codec.AudioOpus):
		return &mpegts.CodecOpus{ChannelCount: channels}, nil
	default:
		return nil, fmt.Errorf("codec %q cannot be carried in MPEG-TS: %w", p.CodecID, ErrUnsupportedFormat)
	}
}

// output writes an MPEG-TS file with mediacommon's Writer.
type output struct {
	path    string
	logger  *slog.Logger
	streams []*outputStream

	file   *os.File
	buf    *bufio.Writer
	writer *mpegts.Writer
}

func newOutput(path string, logger *slog.Logger) *output {
	return &output{path: path, logger: logger}
}

// NewStream implements media.Output.
func (o *output) NewStream() (media.OutputStream, error) {
	if o.writer != nil {
		return nil, errors.New("streams cannot be added after the header")
	}
	s := &outputStream{
		index: len(o.streams),
		track: &mpegts.Track{PID: uint16(firstPID + len(o.streams))},
	}
	o.streams = append(o.streams, s)
	return s, nil
}

// GlobalHeader implements media.Output. Parameter sets travel in-band.
func (o *output) GlobalHeader() bool { return false }

// Open implements media.Output.
func (o *output) Open() error {
	f, err := os.Create(o.path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	o.file = f
	o.buf = bufio.NewWriterSize(f, ioBufferSize)
	return nil
}

// WriteHeader implements media.Output. It writes the PAT and PMT.
func (o *output) WriteHeader() error {
	if o.buf == nil {
		return errNotOpened
	}
	tracks := make([]*mpegts.Track, 0, len(o.streams))
	for _, s := range o.streams {
		if s.track.Codec == nil {
			return fmt.Errorf("stream %d has no codec parameters", s.index)
		}
		tracks = append(tracks, s.track)
	}

	o.writer = &mpegts.Writer{W: o.buf, Tracks: tracks}
	if err := o.writer.Initialize(); err != nil {
		o.writer = nil
		return fmt.Errorf("initializing mpegts writer: %w", err)
	}
	o.logger.Debug("mpegts header written", slog.Int("tracks", len(tracks)))
	return nil
}

// WriteInterleaved implements media.Output. Packets are written in the
// order they arrive.
func (o *output) WriteInterleaved(pkt *media.Packet) error {
	if o.writer == nil {
		return errHeaderNotReady
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(o.streams) {
		return fmt.Errorf("packet for unknown stream %d", pkt.StreamIndex)
	}
	if len(pkt.Data) == 0 {
		return nil
	}

	pts, dts := pkt.PTS, pkt.DTS
	if pts == media.NoPTS {
		pts = dts
	}
	if dts == media.NoPTS {
		dts = pts
	}
	if pts == media.NoPTS {
		return fmt.Errorf("stream %d: %w", pkt.StreamIndex, errNoTimestamp)
	}

	track := o.streams[pkt.StreamIndex].track
	switch track.Codec.(type) {
	case *mpegts.CodecH264:
		return o.writer.WriteH264(track, pts, dts, accessUnit(pkt.Data))
	case *mpegts.CodecH265:
		return o.writer.WriteH265(track, pts, dts, accessUnit(pkt.Data))
	case *mpegts.CodecMPEG4Audio:
		aus := aacFrames(pkt.Data)
		if len(aus) == 0 {
			return nil
		}
		return o.writer.WriteMPEG4Audio(track, pts, aus)
	case *mpegts.CodecAC3:
		return o.writer.WriteAC3(track, pts, pkt.Data)
	case *mpegts.CodecEAC3:
		return o.writer.WriteEAC3(track, pts, pkt.Data)
	case *mpegts.CodecMPEG1Audio:
		return o.writer.WriteMPEG1Audio(track, pts, [][]byte{pkt.Data})
	case *mpegts.CodecOpus:
		return o.writer.WriteOpus(track, pts, [][]byte{pkt.Data})
	default:
		return fmt.Errorf("stream %d: %w", pkt.StreamIndex, ErrUnsupportedFormat)
	}
}

// WriteTrailer implements media.Output. MPEG-TS has no trailer; buffered
// packets are flushed to the file.
func (o *output) WriteTrailer() error {
	if o.buf == nil {
		return errNotOpened
	}
	if err := o.buf.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}
	return nil
}

// Close implements media.Output.
func (o *output) Close() error {
	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	o.buf = nil
	o.writer = nil
	return err
}

// annexB joins NAL units with start codes. The byte stream format is the
// same for H.264 and H.265; mediacommon only exposes it in its h264 package.
func annexB(au [][]byte) ([]byte, error) {
	return h264.AnnexB(au).Marshal()
}

// accessUnit splits H.264 or H.265 Annex B data into NAL units. Data without
// a start code is taken as a single NAL unit.
func accessUnit(data []byte) [][]byte {
	if len(data) >= 4 && data[0] == 0x00 && data[1] == 0x00 &&
		(data[2] == 0x01 || (data[2] == 0x00 && data[3] == 0x01)) {
		var au h264.AnnexB
		if err := au.Unmarshal(data); err == nil {
			return au
		}
	}
	return [][]byte{data}
}

// aacFrames returns the raw AAC frames in data, stripping ADTS headers when
// the data is ADTS framed.
func aacFrames(data []byte) [][]byte {
	if len(data) < 7 || data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return [][]byte{data}
	}

	var frames [][]byte
	for offset := 0; offset+7 <= len(data); {
		if data[offset] != 0xFF || data[offset+1]&0xF0 != 0xF0 {
			offset++
			continue
		}
		headerSize := 7
		if data[offset+1]&0x01 == 0 {
			headerSize = 9 // CRC present
		}
		frameLen := int(data[offset+3]&0x03)<<11 |
			int(data[offset+4])<<3 |
			int(data[offset+5]>>5)
		if frameLen < headerSize || offset+frameLen > len(data) {
			break
		}
		if raw := data[offset+headerSize : offset+frameLen]; len(raw) > 0 {
			frames = append(frames, raw)
		}
		offset += frameLen
	}
	return frames
}
