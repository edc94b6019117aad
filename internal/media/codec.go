package media

// Codec is a resolved decoder or encoder implementation.
type Codec interface {
	Name() string
	ID() CodecID
	MediaType() MediaType
	// SampleFormats lists supported sample formats, preferred first.
	SampleFormats() []string
	// PixelFormats lists supported pixel formats, preferred first.
	PixelFormats() []string
}

// Codecs resolves and opens codecs.
type Codecs interface {
	FindDecoder(id CodecID) (Codec, error)
	FindEncoderByName(name string) (Codec, error)
	FindEncoder(id CodecID) (Codec, error)
	OpenDecoder(c Codec, stream Stream) (Decoder, error)
	OpenEncoder(c Codec, cfg EncoderConfig) (Encoder, error)
}

// EncoderConfig is the configuration record an encoder is opened with.
type EncoderConfig struct {
	MediaType MediaType
	BitRate   int64
	TimeBase  Rational

	// Audio
	SampleRate    int
	Channels      int
	ChannelLayout string
	SampleFormat  string

	// Video
	Width       int
	Height      int
	PixelFormat string
	FrameRate   Rational
	GOPSize     int
	MaxBFrames  int
	Preset      string

	GlobalHeader bool

	// Source carries the decoder's parameters, including its native handle,
	// so a backend can derive anything not expressed above.
	Source CodecParameters
}

// Frame is an opaque decoded unit owned by the backend that produced it.
type Frame interface {
	PTS() int64
	SetPTS(pts int64)
	// Release returns the frame's resources to the backend.
	Release()
}

// Decoder turns packets into frames.
type Decoder interface {
	// SendPacket feeds a packet; a nil packet signals end of stream.
	SendPacket(pkt *Packet) error
	// ReceiveFrame returns ErrAgain when more input is needed and io.EOF once
	// fully flushed.
	ReceiveFrame() (Frame, error)
	// Parameters describes the decoded output (rate, layout, size, format).
	Parameters() CodecParameters
	TimeBase() Rational
	Close() error
}

// Encoder turns frames into packets.
type Encoder interface {
	// SendFrame feeds a frame; a nil frame signals end of stream (flush).
	SendFrame(f Frame) error
	// ReceivePacket returns ErrAgain when more input is needed and io.EOF
	// once fully flushed.
	ReceivePacket() (*Packet, error)
	// Parameters describes the encoded output, used to populate the output
	// stream.
	Parameters() CodecParameters
	TimeBase() Rational
	Close() error
}
