package remux

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/muxarr/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(output string) Config {
	return Config{
		InputURL:     "memory://input",
		OutputURL:    output,
		PollInterval: time.Microsecond,
	}
}

// runWithTimeout runs the session and fails the test if it does not return.
func runWithTimeout(t *testing.T, ctx context.Context, s *Session) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("session did not return")
		return nil
	}
}

func TestRun_MissingURLs(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		output string
	}{
		{"no input", "", "out.mp4"},
		{"no output", "in.mkv", ""},
		{"neither", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{streams: []media.Stream{videoStream(0)}}
			status, err := Execute(context.Background(), b, Config{InputURL: tt.input, OutputURL: tt.output}, testLogger())

			require.Error(t, err)
			assert.Equal(t, StatusUsage, status)
			assert.Equal(t, KindUsage, KindOf(err))
			assert.ErrorIs(t, err, ErrMissingURL)
			assert.Zero(t, b.openInputCalls.Load())
			assert.Zero(t, b.createOutputCalls.Load())
		})
	}
}

func TestRun_StreamCopy(t *testing.T) {
	streams := []media.Stream{videoStream(0), audioStream(1), subtitleStream(2)}
	b := &fakeBackend{streams: streams, packets: interleaved(streams, 20)}

	s := NewSession(b, testConfig("out.mkv"), testLogger())
	err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, Status(err))

	out := b.output
	require.Len(t, out.streams, 3)
	require.Len(t, out.written, 60)
	assert.True(t, out.opened)
	assert.True(t, out.header)
	assert.True(t, out.trailer)
	assert.True(t, out.closed)
	assert.True(t, b.input.closed.Load())

	for _, pkt := range out.written {
		assert.Equal(t, int64(-1), pkt.Pos)
		assert.GreaterOrEqual(t, pkt.StreamIndex, 0)
		assert.Less(t, pkt.StreamIndex, len(out.streams))
	}

	// Per-stream order survives the pipeline
	for i := range streams {
		pkts := out.packets(i)
		require.Len(t, pkts, 20)
		for j := 1; j < len(pkts); j++ {
			assert.Less(t, pkts[j-1].PTS, pkts[j].PTS)
			assert.Equal(t, byte(j), pkts[j].Data[1])
		}
	}

	st := s.Stats()
	assert.Equal(t, ModeRemux, st.Mode)
	assert.Equal(t, 3, st.Streams)
	assert.Equal(t, int64(60), st.PacketsRead)
	assert.Equal(t, int64(60), st.PacketsWritten)
	assert.Zero(t, st.PacketsDropped)
	assert.Empty(t, s.completion.pending())
}

func TestRun_StreamCopyParameters(t *testing.T) {
	streams := []media.Stream{audioStream(0), videoStream(1)}
	b := &fakeBackend{streams: streams, packets: interleaved(streams, 2)}

	require.NoError(t, NewSession(b, testConfig("out.mp4"), testLogger()).Run(context.Background()))

	out := b.output.streams
	require.Len(t, out, 2)
	// Output streams keep the source order
	assert.Equal(t, media.MediaTypeAudio, out[0].params.MediaType)
	assert.Equal(t, media.MediaTypeVideo, out[1].params.MediaType)
	// The container-specific tag is cleared, everything else copied
	assert.Zero(t, out[0].params.CodecTag)
	assert.Zero(t, out[1].params.CodecTag)
	assert.Equal(t, 48000, out[0].params.SampleRate)
	assert.Equal(t, 1280, out[1].params.Width)
	assert.Equal(t, media.NewRational(1, 48000), out[0].tb)
}

func TestRun_ExtractionByExtension(t *testing.T) {
	tests := []struct {
		output   string
		expected []media.MediaType
	}{
		{"out.mp3", []media.MediaType{media.MediaTypeAudio}},
		{"out.AAC", []media.MediaType{media.MediaTypeAudio}},
		{"out.m4a", []media.MediaType{media.MediaTypeAudio}},
		{"out.wav", []media.MediaType{media.MediaTypeAudio}},
		{"out.h264", []media.MediaType{media.MediaTypeVideo}},
		{"out.h265", []media.MediaType{media.MediaTypeVideo}},
		{"out.hevc", []media.MediaType{media.MediaTypeVideo}},
		{"out.264", []media.MediaType{media.MediaTypeVideo}},
		{"out.265", []media.MediaType{media.MediaTypeVideo}},
		{"out.mkv", []media.MediaType{media.MediaTypeVideo, media.MediaTypeAudio, media.MediaTypeSubtitle}},
		{"out.ts", []media.MediaType{media.MediaTypeVideo, media.MediaTypeAudio, media.MediaTypeSubtitle}},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			streams := []media.Stream{videoStream(0), audioStream(1), subtitleStream(2)}
			b := &fakeBackend{streams: streams, packets: interleaved(streams, 5)}

			s := NewSession(b, testConfig(tt.output), testLogger())
			require.NoError(t, s.Run(context.Background()))

			var got []media.MediaType
			for _, out := range b.output.streams {
				got = append(got, out.params.MediaType)
			}
			assert.Equal(t, tt.expected, got)

			st := s.Stats()
			assert.Equal(t, int64(15), st.PacketsRead)
			assert.Equal(t, int64(5*len(tt.expected)), st.PacketsWritten)
			assert.Equal(t, int64(5*(3-len(tt.expected))), st.PacketsDropped)
			for _, pkt := range b.output.written {
				assert.Less(t, pkt.StreamIndex, len(tt.expected))
			}
		})
	}
}

func TestRun_ExtractionNothingRetained(t *testing.T) {
	b := &fakeBackend{streams: []media.Stream{videoStream(0)}}

	status, err := Execute(context.Background(), b, testConfig("out.mp3"), testLogger())
	require.Error(t, err)
	assert.Equal(t, KindSetup, KindOf(err))
	assert.Equal(t, StatusFailed, status)
	assert.True(t, b.input.closed.Load())
	assert.True(t, b.output.closed)
}

func TestRun_RescalesIntoMuxerTimeBase(t *testing.T) {
	streams := []media.Stream{videoStream(0), audioStream(1)}
	b := &fakeBackend{
		streams: streams,
		packets: interleaved(streams, 10),
		// The muxer settles on millisecond time bases when writing the header.
		headerTB: map[int]media.Rational{0: media.NewRational(1, 1000), 1: media.NewRational(1, 1000)},
	}

	require.NoError(t, NewSession(b, testConfig("out.flv"), testLogger()).Run(context.Background()))

	video := b.output.packets(0)
	require.Len(t, video, 10)
	for i, pkt := range video {
		// 3600/90000 s == 40 ms
		assert.Equal(t, int64(i*40), pkt.PTS)
		assert.Equal(t, int64(i*40), pkt.DTS)
		assert.Equal(t, int64(40), pkt.Duration)
	}

	audio := b.output.packets(1)
	require.Len(t, audio, 10)
	for i, pkt := range audio {
		// 1920/48000 s == 40 ms
		assert.Equal(t, int64(i*40), pkt.PTS)
	}
}

func TestRun_NoBacklogLost(t *testing.T) {
	streams := []media.Stream{videoStream(0), audioStream(1)}
	b := &fakeBackend{
		streams:        streams,
		packets:        interleaved(streams, 300),
		writeAgain:     1,
		readAgainEvery: 7,
	}

	cfg := testConfig("out.mp4")
	cfg.QueueSize = 1

	var observedIn, observedOut atomic.Int64
	cfg.OnInputPacket = func(*media.Packet) { observedIn.Add(1) }
	cfg.OnOutputPacket = func(*media.Packet) { observedOut.Add(1) }

	s := NewSession(b, cfg, testLogger())
	require.NoError(t, runWithTimeout(t, context.Background(), s))

	assert.Len(t, b.output.written, 600)
	assert.Equal(t, int64(600), observedIn.Load())
	assert.Equal(t, int64(600), observedOut.Load())
	assert.Equal(t, []string{"header"}, b.output.events[:1])
	assert.Equal(t, "trailer", b.output.events[len(b.output.events)-1])
}

func TestRun_ObserversReceiveCopies(t *testing.T) {
	streams := []media.Stream{videoStream(0)}
	b := &fakeBackend{streams: streams, packets: interleaved(streams, 5)}

	cfg := testConfig("out.mp4")
	var inPos []int64
	cfg.OnInputPacket = func(pkt *media.Packet) {
		inPos = append(inPos, pkt.Pos)
		pkt.Data[0] = 0xff
		pkt.StreamIndex = 7
	}
	cfg.OnOutputPacket = func(pkt *media.Packet) {
		pkt.PTS = -42
	}

	require.NoError(t, NewSession(b, cfg, testLogger()).Run(context.Background()))

	// Input observers see the source position before it is cleared
	assert.Equal(t, []int64{0, 188, 376, 564, 752}, inPos)
	for i, pkt := range b.output.written {
		assert.Equal(t, byte(0), pkt.Data[0])
		assert.Equal(t, 0, pkt.StreamIndex)
		assert.Equal(t, int64(i*3600), pkt.PTS)
	}
}

func TestRun_ReadFailure(t *testing.T) {
	streams := []media.Stream{videoStream(0)}
	b := &fakeBackend{
		streams:   streams,
		packets:   interleaved(streams, 10),
		readErrAt: 4,
		readErr:   &media.CodeError{Op: "read frame", Num: -5, Text: "I/O error"},
	}

	status, err := Execute(context.Background(), b, testConfig("out.mp4"), testLogger())
	require.Error(t, err)
	assert.Equal(t, KindIO, KindOf(err))
	assert.Equal(t, -5, status)
	assert.False(t, b.output.trailer)
	assert.True(t, b.output.closed)
	assert.True(t, b.input.closed.Load())
}

func TestRun_WriteFailure(t *testing.T) {
	streams := []media.Stream{videoStream(0)}
	b := &fakeBackend{
		streams:    streams,
		packets:    interleaved(streams, 10),
		writeErrAt: 3,
		writeErr:   errFakeIO,
	}

	status, err := Execute(context.Background(), b, testConfig("out.mp4"), testLogger())
	require.Error(t, err)
	assert.Equal(t, KindIO, KindOf(err))
	assert.ErrorIs(t, err, errFakeIO)
	assert.Equal(t, StatusFailed, status)
	assert.Len(t, b.output.written, 2)
	assert.False(t, b.output.trailer)
	assert.Equal(t, 0, int(b.input.inflight.Load()))
}

func TestRun_OpenFailures(t *testing.T) {
	t.Run("input", func(t *testing.T) {
		b := &fakeBackend{openInputErr: &media.CodeError{Num: -2, Text: "No such file or directory"}}
		status, err := Execute(context.Background(), b, testConfig("out.mp4"), testLogger())

		assert.Equal(t, KindOpen, KindOf(err))
		assert.Equal(t, -2, status)
		assert.Zero(t, b.createOutputCalls.Load())
	})

	t.Run("output", func(t *testing.T) {
		b := &fakeBackend{streams: []media.Stream{videoStream(0)}, createOutputErr: errFakeIO}
		_, err := Execute(context.Background(), b, testConfig("out.xyz"), testLogger())

		assert.Equal(t, KindOpen, KindOf(err))
		assert.True(t, b.input.closed.Load())
	})

	t.Run("stream allocation", func(t *testing.T) {
		b := &fakeBackend{streams: []media.Stream{videoStream(0)}, newStreamErr: errFakeIO}
		_, err := Execute(context.Background(), b, testConfig("out.mp4"), testLogger())

		assert.Equal(t, KindSetup, KindOf(err))
		assert.True(t, b.output.closed)
		assert.False(t, b.output.header)
	})
}

func TestRun_Stop(t *testing.T) {
	streams := []media.Stream{videoStream(0), audioStream(1)}
	b := &fakeBackend{streams: streams, packets: interleaved(streams, 5), blockAtEnd: true}

	cfg := testConfig("out.mp4")
	var s *Session
	var written atomic.Int64
	cfg.OnOutputPacket = func(*media.Packet) {
		if written.Add(1) == 10 {
			go s.Stop()
		}
	}
	s = NewSession(b, cfg, testLogger())

	err := runWithTimeout(t, context.Background(), s)
	require.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, StatusStopped, Status(err))

	// Every stage has exited and every handle is closed
	assert.Zero(t, b.input.inflight.Load())
	assert.True(t, b.input.closed.Load())
	assert.True(t, b.output.closed)
	assert.False(t, b.output.trailer)
	assert.NotEmpty(t, s.completion.pending())
}

func TestRun_StopBeforeRun(t *testing.T) {
	b := &fakeBackend{streams: []media.Stream{videoStream(0)}}
	s := NewSession(b, testConfig("out.mp4"), testLogger())
	s.Stop()

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, b.openInputCalls.Load())
}

func TestRun_ContextCancelled(t *testing.T) {
	streams := []media.Stream{videoStream(0)}
	b := &fakeBackend{streams: streams, packets: interleaved(streams, 3), blockAtEnd: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig("out.mp4")
	cfg.OnInputPacket = func(pkt *media.Packet) {
		if pkt.Pos == 376 {
			cancel()
		}
	}

	s := NewSession(b, cfg, testLogger())
	err := runWithTimeout(t, ctx, s)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, StatusStopped, Status(err))
}

func TestRun_Drain(t *testing.T) {
	b := &fakeBackend{streams: []media.Stream{videoStream(0)}, endless: true}

	cfg := testConfig("out.ts")
	cfg.QueueSize = 4
	var s *Session
	var read atomic.Int64
	cfg.OnInputPacket = func(*media.Packet) {
		if read.Add(1) == 250 {
			s.Drain()
		}
	}
	s = NewSession(b, cfg, testLogger())

	require.NoError(t, runWithTimeout(t, context.Background(), s))

	st := s.Stats()
	assert.Equal(t, int64(250), st.PacketsRead)
	assert.Equal(t, st.PacketsRead, st.PacketsWritten)
	assert.True(t, b.output.trailer)
	assert.Empty(t, s.completion.pending())
}

func TestRun_SingleUse(t *testing.T) {
	streams := []media.Stream{videoStream(0)}
	b := &fakeBackend{streams: streams, packets: interleaved(streams, 1)}
	s := NewSession(b, testConfig("out.mp4"), testLogger())

	require.NoError(t, s.Run(context.Background()))
	err := s.Run(context.Background())
	assert.Equal(t, KindUsage, KindOf(err))
}

func TestNewSession_Defaults(t *testing.T) {
	s := NewSession(&fakeBackend{}, Config{InputURL: "a", OutputURL: "b"}, nil)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, DefaultQueueSize, s.cfg.QueueSize)
	assert.Equal(t, DefaultPollInterval, s.cfg.PollInterval)
	assert.Equal(t, DefaultEncoding(), s.cfg.Encoding)

	other := NewSession(&fakeBackend{}, Config{}, nil)
	assert.NotEqual(t, s.ID(), other.ID())
}
