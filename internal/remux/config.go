package remux

import (
	"time"

	"github.com/jmylchreest/muxarr/internal/media"
)

// Defaults.
const (
	DefaultQueueSize    = 50
	DefaultPollInterval = 100 * time.Microsecond
)

// PacketObserver inspects a packet. It receives a deep copy and must not
// block for long; it runs on the stage that owns the packet.
type PacketObserver func(pkt *media.Packet)

// Config is the immutable description of one session. It is copied into the
// session when the session is created.
type Config struct {
	InputURL  string
	OutputURL string

	// Format overrides the output container inferred from OutputURL.
	Format string

	// AudioEncoder and VideoEncoder request transcoding of every retained
	// stream of that media type. Empty means stream copy.
	AudioEncoder string
	VideoEncoder string

	OnInputPacket  PacketObserver
	OnOutputPacket PacketObserver

	// QueueSize is the capacity of each pipeline queue. Producers block when
	// a queue is full.
	QueueSize int

	// PollInterval is the backoff between retries of transient read and
	// write conditions.
	PollInterval time.Duration

	Input    media.InputOptions
	Encoding Encoding
}

// Encoding holds the values applied to transcoded streams.
type Encoding struct {
	AudioBitRate int64
	VideoBitRate int64
	GOPSize      int
	MaxBFrames   int
	Preset       string
	// SampleFormat and PixelFormat are used when the encoder advertises no
	// supported format.
	SampleFormat string
	PixelFormat  string
}

// DefaultEncoding returns the stock encoding settings.
func DefaultEncoding() Encoding {
	return Encoding{
		AudioBitRate: 128000,
		VideoBitRate: 2000000,
		GOPSize:      12,
		MaxBFrames:   2,
		Preset:       "veryfast",
		SampleFormat: "fltp",
		PixelFormat:  "yuv420p",
	}
}

// Transcoding reports whether any encoder was requested.
func (c Config) Transcoding() bool {
	return c.AudioEncoder != "" || c.VideoEncoder != ""
}

func (c Config) validate() error {
	if c.InputURL == "" || c.OutputURL == "" {
		return newError(KindUsage, "validate", ErrMissingURL)
	}
	return nil
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.QueueSize < 1 {
		c.QueueSize = DefaultQueueSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	def := DefaultEncoding()
	if c.Encoding == (Encoding{}) {
		c.Encoding = def
		return c
	}
	// MaxBFrames is left alone; zero is a valid setting.
	if c.Encoding.AudioBitRate == 0 {
		c.Encoding.AudioBitRate = def.AudioBitRate
	}
	if c.Encoding.VideoBitRate == 0 {
		c.Encoding.VideoBitRate = def.VideoBitRate
	}
	if c.Encoding.GOPSize == 0 {
		c.Encoding.GOPSize = def.GOPSize
	}
	if c.Encoding.Preset == "" {
		c.Encoding.Preset = def.Preset
	}
	if c.Encoding.SampleFormat == "" {
		c.Encoding.SampleFormat = def.SampleFormat
	}
	if c.Encoding.PixelFormat == "" {
		c.Encoding.PixelFormat = def.PixelFormat
	}
	return c
}
