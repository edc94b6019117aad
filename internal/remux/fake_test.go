package remux

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/muxarr/internal/media"
)

// fakeBackend is an in-memory media.Backend. Inputs replay a scripted packet
// list; outputs record everything written to them.
type fakeBackend struct {
	streams []media.Stream
	packets []*media.Packet

	// endless makes the input generate packets on stream 0 forever.
	endless bool
	// blockAtEnd makes the input block until cancelled instead of returning EOF.
	blockAtEnd bool
	// readAgainEvery returns ErrAgain before every n-th packet.
	readAgainEvery int
	// readErrAt fails the n-th read (1-based) with readErr.
	readErrAt int
	readErr   error

	openInputErr    error
	createOutputErr error
	newStreamErr    error

	// writeAgain is how many times each write reports ErrAgain before succeeding.
	writeAgain int
	writeErrAt int
	writeErr   error

	// headerTB replaces output time bases when the header is written.
	headerTB map[int]media.Rational
	// globalHeader is reported by outputs.
	globalHeader bool

	codecs *fakeCodecs

	openInputCalls    atomic.Int32
	createOutputCalls atomic.Int32
	input             *fakeInput
	output            *fakeOutput
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) OpenInput(_ context.Context, _ string, _ media.InputOptions) (media.Input, error) {
	b.openInputCalls.Add(1)
	if b.openInputErr != nil {
		return nil, b.openInputErr
	}
	b.input = &fakeInput{backend: b}
	return b.input, nil
}

func (b *fakeBackend) CreateOutput(_ string, _ string) (media.Output, error) {
	b.createOutputCalls.Add(1)
	if b.createOutputErr != nil {
		return nil, b.createOutputErr
	}
	b.output = &fakeOutput{backend: b}
	return b.output, nil
}

func (b *fakeBackend) Codecs() media.Codecs {
	if b.codecs == nil {
		return nil
	}
	return b.codecs
}

type fakeInput struct {
	backend  *fakeBackend
	next     int
	reads    int
	inflight atomic.Int32
	closed   atomic.Bool
}

func (in *fakeInput) Streams() []media.Stream { return in.backend.streams }

func (in *fakeInput) ReadPacket(ctx context.Context) (*media.Packet, error) {
	in.inflight.Add(1)
	defer in.inflight.Add(-1)

	b := in.backend
	in.reads++
	if b.readErrAt > 0 && in.reads == b.readErrAt {
		return nil, b.readErr
	}
	if b.readAgainEvery > 0 && in.reads%b.readAgainEvery == 0 {
		return nil, media.ErrAgain
	}

	if b.endless {
		pkt := &media.Packet{StreamIndex: 0, PTS: int64(in.next), DTS: int64(in.next), Duration: 1, Pos: int64(in.next)}
		in.next++
		return pkt, nil
	}
	if in.next >= len(b.packets) {
		if b.blockAtEnd {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, io.EOF
	}
	pkt := b.packets[in.next].Clone()
	in.next++
	return pkt, nil
}

func (in *fakeInput) Close() error {
	in.closed.Store(true)
	return nil
}

type fakeOutStream struct {
	index  int
	params media.CodecParameters
	tb     media.Rational
}

func (s *fakeOutStream) Index() int { return s.index }

func (s *fakeOutStream) CopyParameters(p media.CodecParameters) error {
	s.params = p
	return nil
}

func (s *fakeOutStream) SetTimeBase(tb media.Rational) { s.tb = tb }
func (s *fakeOutStream) TimeBase() media.Rational      { return s.tb }

type fakeOutput struct {
	backend *fakeBackend

	mu      sync.Mutex
	streams []*fakeOutStream
	written []*media.Packet
	events  []string
	writes  int
	pending int

	opened  bool
	header  bool
	trailer bool
	closed  bool
}

func (o *fakeOutput) NewStream() (media.OutputStream, error) {
	if o.backend.newStreamErr != nil {
		return nil, o.backend.newStreamErr
	}
	s := &fakeOutStream{index: len(o.streams)}
	o.streams = append(o.streams, s)
	return s, nil
}

func (o *fakeOutput) GlobalHeader() bool { return o.backend.globalHeader }

func (o *fakeOutput) Open() error {
	o.opened = true
	return nil
}

func (o *fakeOutput) WriteHeader() error {
	for i, tb := range o.backend.headerTB {
		if i < len(o.streams) {
			o.streams[i].tb = tb
		}
	}
	o.header = true
	o.event("header")
	return nil
}

func (o *fakeOutput) WriteInterleaved(pkt *media.Packet) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	b := o.backend
	if o.pending < b.writeAgain {
		o.pending++
		return media.ErrAgain
	}
	o.pending = 0
	o.writes++
	if b.writeErrAt > 0 && o.writes == b.writeErrAt {
		return b.writeErr
	}
	o.written = append(o.written, pkt)
	o.events = append(o.events, "packet")
	return nil
}

func (o *fakeOutput) WriteTrailer() error {
	o.trailer = true
	o.event("trailer")
	return nil
}

func (o *fakeOutput) Close() error {
	o.closed = true
	return nil
}

func (o *fakeOutput) event(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

// packets returns the written packets of one output stream.
func (o *fakeOutput) packets(stream int) []*media.Packet {
	var out []*media.Packet
	for _, p := range o.written {
		if p.StreamIndex == stream {
			out = append(out, p)
		}
	}
	return out
}

// fakeCodec is a resolvable decoder or encoder.
type fakeCodec struct {
	name          string
	id            media.CodecID
	mediaType     media.MediaType
	sampleFormats []string
	pixelFormats  []string
}

func (c *fakeCodec) Name() string               { return c.name }
func (c *fakeCodec) ID() media.CodecID          { return c.id }
func (c *fakeCodec) MediaType() media.MediaType { return c.mediaType }
func (c *fakeCodec) SampleFormats() []string    { return c.sampleFormats }
func (c *fakeCodec) PixelFormats() []string     { return c.pixelFormats }

var errFakeNotFound = &media.CodeError{Op: "find codec", Num: -1163346256, Text: "encoder not found"}

type fakeCodecs struct {
	decoders       map[media.CodecID]*fakeCodec
	encodersByName map[string]*fakeCodec
	encodersByID   map[media.CodecID]*fakeCodec

	// decoderDelay and encoderDelay are how many items each holds back
	// until flushed.
	decoderDelay int
	encoderDelay int

	decodeErrAt int
	openEncErr  error

	mu             sync.Mutex
	encoderConfigs []media.EncoderConfig
	openedDecoders []*fakeDecoder
	openedEncoders []*fakeEncoder
}

func (c *fakeCodecs) FindDecoder(id media.CodecID) (media.Codec, error) {
	if d, ok := c.decoders[id]; ok {
		return d, nil
	}
	return nil, media.ErrNotFound
}

func (c *fakeCodecs) FindEncoderByName(name string) (media.Codec, error) {
	if e, ok := c.encodersByName[name]; ok {
		return e, nil
	}
	return nil, errFakeNotFound
}

func (c *fakeCodecs) FindEncoder(id media.CodecID) (media.Codec, error) {
	if e, ok := c.encodersByID[id]; ok {
		return e, nil
	}
	return nil, errFakeNotFound
}

func (c *fakeCodecs) OpenDecoder(_ media.Codec, stream media.Stream) (media.Decoder, error) {
	d := &fakeDecoder{codecs: c, stream: stream}
	c.mu.Lock()
	c.openedDecoders = append(c.openedDecoders, d)
	c.mu.Unlock()
	return d, nil
}

func (c *fakeCodecs) OpenEncoder(codec media.Codec, cfg media.EncoderConfig) (media.Encoder, error) {
	if c.openEncErr != nil {
		return nil, c.openEncErr
	}
	e := &fakeEncoder{codecs: c, codec: codec, cfg: cfg}
	c.mu.Lock()
	c.encoderConfigs = append(c.encoderConfigs, cfg)
	c.openedEncoders = append(c.openedEncoders, e)
	c.mu.Unlock()
	return e, nil
}

type fakeFrame struct {
	pts      int64
	released bool
}

func (f *fakeFrame) PTS() int64       { return f.pts }
func (f *fakeFrame) SetPTS(pts int64) { f.pts = pts }
func (f *fakeFrame) Release()         { f.released = true }

type fakeDecoder struct {
	codecs  *fakeCodecs
	stream  media.Stream
	queue   []*fakeFrame
	sent    int
	eos     bool
	flushes int
	closed  bool
}

func (d *fakeDecoder) SendPacket(pkt *media.Packet) error {
	if pkt == nil {
		if d.eos {
			return io.EOF
		}
		d.eos = true
		d.flushes++
		return nil
	}
	d.sent++
	if d.codecs.decodeErrAt > 0 && d.sent == d.codecs.decodeErrAt {
		return &media.CodeError{Op: "decode", Num: -1094995529, Text: "invalid data found"}
	}
	d.queue = append(d.queue, &fakeFrame{pts: pkt.PTS})
	return nil
}

func (d *fakeDecoder) ReceiveFrame() (media.Frame, error) {
	if len(d.queue) > d.codecs.decoderDelay || (d.eos && len(d.queue) > 0) {
		f := d.queue[0]
		d.queue = d.queue[1:]
		return f, nil
	}
	if d.eos {
		return nil, io.EOF
	}
	return nil, media.ErrAgain
}

func (d *fakeDecoder) Parameters() media.CodecParameters {
	p := d.stream.Codec
	if p.MediaType == media.MediaTypeAudio && p.SampleFormat == "" {
		p.SampleFormat = "s16"
	}
	return p
}

func (d *fakeDecoder) TimeBase() media.Rational { return d.stream.TimeBase }

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

type fakeEncoder struct {
	codecs  *fakeCodecs
	codec   media.Codec
	cfg     media.EncoderConfig
	queue   []int64
	frames  int
	flushes int
	eos     bool
	closed  bool
}

func (e *fakeEncoder) SendFrame(f media.Frame) error {
	if f == nil {
		if e.eos {
			return io.EOF
		}
		e.eos = true
		e.flushes++
		return nil
	}
	e.frames++
	e.queue = append(e.queue, f.PTS())
	return nil
}

func (e *fakeEncoder) ReceivePacket() (*media.Packet, error) {
	if len(e.queue) > e.codecs.encoderDelay || (e.eos && len(e.queue) > 0) {
		pts := e.queue[0]
		e.queue = e.queue[1:]
		return &media.Packet{StreamIndex: -1, PTS: pts, DTS: pts, Duration: 1, Pos: -1, Data: []byte{byte(pts)}}, nil
	}
	if e.eos {
		return nil, io.EOF
	}
	return nil, media.ErrAgain
}

func (e *fakeEncoder) Parameters() media.CodecParameters {
	return media.CodecParameters{
		MediaType:  e.cfg.MediaType,
		CodecID:    e.codec.ID(),
		CodecTag:   0x31637661,
		BitRate:    e.cfg.BitRate,
		SampleRate: e.cfg.SampleRate,
		Width:      e.cfg.Width,
		Height:     e.cfg.Height,
	}
}

func (e *fakeEncoder) TimeBase() media.Rational { return e.cfg.TimeBase }

func (e *fakeEncoder) Close() error {
	e.closed = true
	return nil
}

var errFakeIO = errors.New("fake i/o failure")

// Fixtures.

func videoStream(index int) media.Stream {
	return media.Stream{
		Index: index,
		Codec: media.CodecParameters{
			MediaType: media.MediaTypeVideo, CodecID: "h264", CodecTag: 0x31637661,
			Width: 1280, Height: 720, PixelFormat: "yuv420p",
		},
		TimeBase:  media.NewRational(1, 90000),
		FrameRate: media.NewRational(25, 1),
	}
}

func audioStream(index int) media.Stream {
	return media.Stream{
		Index: index,
		Codec: media.CodecParameters{
			MediaType: media.MediaTypeAudio, CodecID: "aac", CodecTag: 0x6134706d,
			SampleRate: 48000, Channels: 2, ChannelLayout: "stereo",
		},
		TimeBase: media.NewRational(1, 48000),
	}
}

func subtitleStream(index int) media.Stream {
	return media.Stream{
		Index:    index,
		Codec:    media.CodecParameters{MediaType: media.MediaTypeSubtitle, CodecID: "subrip"},
		TimeBase: media.NewRational(1, 1000),
	}
}

// interleaved builds n packets per stream, alternating streams, with
// monotonically increasing timestamps in each stream's time base.
func interleaved(streams []media.Stream, n int) []*media.Packet {
	var out []*media.Packet
	for i := 0; i < n; i++ {
		for _, s := range streams {
			step := int64(s.TimeBase.Den / 25)
			if step == 0 {
				step = 1
			}
			out = append(out, &media.Packet{
				StreamIndex: s.Index,
				PTS:         int64(i) * step,
				DTS:         int64(i) * step,
				Duration:    step,
				Pos:         int64(len(out) * 188),
				Data:        []byte{byte(s.Index), byte(i)},
			})
		}
	}
	return out
}

func newFakeCodecs() *fakeCodecs {
	return &fakeCodecs{
		decoders: map[media.CodecID]*fakeCodec{
			"h264": {name: "h264", id: "h264", mediaType: media.MediaTypeVideo},
			"aac":  {name: "aac", id: "aac", mediaType: media.MediaTypeAudio},
		},
		encodersByName: map[string]*fakeCodec{
			"libx264":    {name: "libx264", id: "h264", mediaType: media.MediaTypeVideo, pixelFormats: []string{"yuv420p10le", "yuv420p"}},
			"h264_nvenc": {name: "h264_nvenc", id: "h264", mediaType: media.MediaTypeVideo},
			"aac":        {name: "aac", id: "aac", mediaType: media.MediaTypeAudio, sampleFormats: []string{"fltp"}},
			"libopus":    {name: "libopus", id: "opus", mediaType: media.MediaTypeAudio, sampleFormats: []string{"s16", "flt"}},
		},
		encodersByID: map[media.CodecID]*fakeCodec{
			"h264": {name: "libx264", id: "h264", mediaType: media.MediaTypeVideo, pixelFormats: []string{"yuv420p"}},
		},
	}
}
