// Package media defines the contract between the remux core and the
// container/codec library that actually reads, writes, decodes and encodes
// media. Backends (libav, mpegts) implement these interfaces; the core only
// ever talks to them through this package.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// MediaType classifies a stream.
type MediaType int

// Media types.
const (
	MediaTypeUnknown MediaType = iota
	MediaTypeAudio
	MediaTypeVideo
	MediaTypeSubtitle
	MediaTypeData
)

// String returns the lower-case name of the media type.
func (m MediaType) String() string {
	switch m {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	case MediaTypeSubtitle:
		return "subtitle"
	case MediaTypeData:
		return "data"
	default:
		return "unknown"
	}
}

// CodecID identifies a coded format by its canonical name (see internal/codec),
// for example "h264", "h265" or "aac".
type CodecID string

// ErrAgain is returned when an operation cannot make progress right now but
// may succeed later: a decoder or encoder that needs more input, or a writer
// or reader that is temporarily not ready. It is never a failure.
var ErrAgain = errors.New("resource temporarily unavailable")

// ErrNotFound is returned by lookups that resolve nothing.
var ErrNotFound = errors.New("not found")

// IsEOF reports whether err is a clean end-of-stream signal.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// IsAgain reports whether err is a transient "try again" signal.
func IsAgain(err error) bool {
	return errors.Is(err, ErrAgain)
}

// ErrorCode extracts the collaborator error code carried by err, if any.
// Backends expose codes by returning errors implementing Code() int.
func ErrorCode(err error) (int, bool) {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code(), true
	}
	return 0, false
}

// CodeError is a collaborator failure with a numeric code.
type CodeError struct {
	Op   string
	Num  int
	Text string
}

// Error implements error.
func (e *CodeError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s (code %d)", e.Text, e.Num)
	}
	return fmt.Sprintf("%s: %s (code %d)", e.Op, e.Text, e.Num)
}

// Code returns the collaborator error code.
func (e *CodeError) Code() int {
	return e.Num
}

// CodecParameters describes the coded format of a stream.
// Native holds the backend's own representation so that a stream copy
// within the same backend can carry every field verbatim.
type CodecParameters struct {
	MediaType MediaType
	CodecID   CodecID
	CodecTag  uint32
	BitRate   int64

	// Audio
	SampleRate    int
	Channels      int
	ChannelLayout string
	SampleFormat  string

	// Video
	Width       int
	Height      int
	PixelFormat string

	Extradata []byte
	Native    any
}

// Stream is a probed input stream or a configured output stream.
type Stream struct {
	Index     int
	Codec     CodecParameters
	TimeBase  Rational
	FrameRate Rational
}

// InputOptions tunes how a backend probes its input.
type InputOptions struct {
	Format          string
	ProbeSize       int64
	AnalyzeDuration int64  // microseconds
}

// Input is an opened and probed input container.
type Input interface {
	// Streams returns the probed streams in container order.
	Streams() []Stream
	// ReadPacket returns the next packet. It returns io.EOF at clean end of
	// stream and ErrAgain when no packet is ready yet.
	ReadPacket(ctx context.Context) (*Packet, error)
	Close() error
}

// OutputStream is a stream slot allocated in an output container.
type OutputStream interface {
	Index() int
	// CopyParameters sets the stream's codec parameters.
	CopyParameters(params CodecParameters) error
	SetTimeBase(tb Rational)
	// TimeBase is only authoritative after the header has been written;
	// muxers may replace the requested time base.
	TimeBase() Rational
}

// Output is an allocated output container.
type Output interface {
	// NewStream allocates the next output stream slot.
	NewStream() (OutputStream, error)
	// GlobalHeader reports whether encoders feeding this container must
	// place codec headers out of band.
	GlobalHeader() bool
	// Open opens the output's file handle when the format needs one.
	Open() error
	WriteHeader() error
	// WriteInterleaved writes a packet, taking ownership of it. ErrAgain
	// means the writer is not ready and the packet should be retried.
	WriteInterleaved(pkt *Packet) error
	WriteTrailer() error
	// Close releases the file handle (if one was opened) and the context.
	Close() error
}

// Backend is a container/codec library.
type Backend interface {
	Name() string
	OpenInput(ctx context.Context, url string, opts InputOptions) (Input, error)
	// CreateOutput allocates an output context. format overrides the
	// container inferred from the url when non-empty.
	CreateOutput(url, format string) (Output, error)
	// Codecs returns the codec registry, or nil when the backend can only
	// copy streams.
	Codecs() Codecs
}
