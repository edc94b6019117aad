// Package remux orchestrates remuxing and per-stream transcoding of one input
// container into one output container.
//
// A session selects the input streams to retain, copies or transcodes each of
// them, and then runs one of two modes: a three-stage concurrent pipeline
// (reader, forwarder, writer) when every stream is copied, or a synchronous
// decode/encode loop when at least one stream is transcoded.
package remux

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/media"
	"github.com/jmylchreest/muxarr/internal/observability"
)

// Execution modes.
const (
	ModeRemux     = "remux"
	ModeTranscode = "transcode"
)

var errAlreadyRun = errors.New("session already run")

// Stats is a snapshot of a session's counters.
type Stats struct {
	SessionID      string        `json:"session_id" yaml:"session_id"`
	Mode           string        `json:"mode" yaml:"mode"`
	Streams        int           `json:"streams" yaml:"streams"`
	PacketsRead    int64         `json:"packets_read" yaml:"packets_read"`
	PacketsDropped int64         `json:"packets_dropped" yaml:"packets_dropped"`
	PacketsWritten int64         `json:"packets_written" yaml:"packets_written"`
	FramesDecoded  int64         `json:"frames_decoded" yaml:"frames_decoded"`
	PacketsEncoded int64         `json:"packets_encoded" yaml:"packets_encoded"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
}

type counters struct {
	read    atomic.Int64
	dropped atomic.Int64
	written atomic.Int64
	decoded atomic.Int64
	encoded atomic.Int64
}

// Session is a single remux run. A session runs at most once.
type Session struct {
	id      string
	cfg     Config
	backend media.Backend
	logger  *slog.Logger

	input   media.Input
	output  media.Output
	streams *streamMap

	completion *completion
	counters   counters

	started  atomic.Bool
	stopped  atomic.Bool
	draining atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	mode     string
	nstreams int
	duration time.Duration
}

// NewSession creates a session for cfg on backend. A nil logger uses slog.Default.
func NewSession(backend media.Backend, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		cfg:        cfg.withDefaults(),
		backend:    backend,
		logger:     observability.WithSession(observability.WithComponent(logger, "remux"), id),
		completion: newCompletion(),
	}
}

// Execute runs a session to completion and returns its integer status along
// with the error behind it, if any.
func Execute(ctx context.Context, backend media.Backend, cfg Config, logger *slog.Logger) (int, error) {
	err := NewSession(backend, cfg, logger).Run(ctx)
	return Status(err), err
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Stop force-stops the session. Every stage exits at its next iteration and
// packets still queued are discarded; Run returns ErrStopped.
func (s *Session) Stop() {
	s.stopped.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Drain stops reading new packets. Everything already read is carried
// through, codecs are flushed and the output is finalized normally.
func (s *Session) Drain() {
	s.draining.Store(true)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		SessionID:      s.id,
		Mode:           s.mode,
		Streams:        s.nstreams,
		PacketsRead:    s.counters.read.Load(),
		PacketsDropped: s.counters.dropped.Load(),
		PacketsWritten: s.counters.written.Load(),
		FramesDecoded:  s.counters.decoded.Load(),
		PacketsEncoded: s.counters.encoded.Load(),
		Duration:       s.duration,
	}
}

// Run executes the session and blocks until it completes, fails or is
// stopped. Every handle opened by Run is released before it returns.
func (s *Session) Run(ctx context.Context) error {
	if err := s.cfg.validate(); err != nil {
		s.logger.Error("session rejected", slog.String("kind", KindUsage.String()), slog.String("error", err.Error()))
		return err
	}
	if s.backend == nil {
		return newError(KindUsage, "validate", errors.New("no backend"))
	}
	if !s.started.CompareAndSwap(false, true) {
		return newError(KindUsage, "run", errAlreadyRun)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	if s.stopped.Load() {
		return ErrStopped
	}

	start := time.Now()
	err := s.run(ctx)
	s.release()

	s.mu.Lock()
	s.duration = time.Since(start)
	s.mu.Unlock()

	if err != nil && (s.stopped.Load() || ctx.Err() != nil) {
		err = ErrStopped
	}
	s.logSummary(err)
	return err
}

func (s *Session) run(ctx context.Context) error {
	input, err := s.backend.OpenInput(ctx, s.cfg.InputURL, s.cfg.Input)
	if err != nil {
		return newError(KindOpen, "open input", err)
	}
	s.input = input

	output, err := s.backend.CreateOutput(s.cfg.OutputURL, s.cfg.Format)
	if err != nil {
		return newError(KindOpen, "allocate output", err)
	}
	s.output = output

	streams, err := s.mapStreams()
	if err != nil {
		return err
	}
	s.streams = streams

	if err := s.output.Open(); err != nil {
		return newError(KindOpen, "open output", err)
	}
	if err := s.output.WriteHeader(); err != nil {
		return newError(KindIO, "write header", err)
	}
	streams.captureTimeBases()

	mode := ModeRemux
	if streams.transcoding() {
		mode = ModeTranscode
	}
	s.mu.Lock()
	s.mode = mode
	s.nstreams = len(streams.outputs)
	s.mu.Unlock()

	s.logger.Info("session starting",
		slog.String("backend", s.backend.Name()),
		slog.String("input", s.cfg.InputURL),
		slog.String("output", s.cfg.OutputURL),
		slog.String("mode", mode),
		slog.String("extraction", codec.ExtractionFor(s.cfg.OutputURL).String()),
		slog.Int("streams", len(streams.outputs)),
	)

	if mode == ModeTranscode {
		err = s.runTranscode(ctx)
	} else {
		err = s.runPipeline(ctx)
	}
	if err != nil {
		return err
	}

	if err := s.output.WriteTrailer(); err != nil {
		return newError(KindIO, "write trailer", err)
	}
	return nil
}

// release closes codecs, then the input, then the output.
func (s *Session) release() {
	if s.streams != nil {
		s.streams.close()
	}
	if s.input != nil {
		if err := s.input.Close(); err != nil {
			s.logger.Warn("closing input", slog.String("error", err.Error()))
		}
	}
	if s.output != nil {
		if err := s.output.Close(); err != nil {
			s.logger.Warn("closing output", slog.String("error", err.Error()))
		}
	}
}

func (s *Session) logSummary(err error) {
	st := s.Stats()
	attrs := []any{
		slog.String("mode", st.Mode),
		slog.Int64("packets_read", st.PacketsRead),
		slog.Int64("packets_dropped", st.PacketsDropped),
		slog.Int64("packets_written", st.PacketsWritten),
		slog.Duration("duration", st.Duration),
	}
	if st.Mode == ModeTranscode {
		attrs = append(attrs,
			slog.Int64("frames_decoded", st.FramesDecoded),
			slog.Int64("packets_encoded", st.PacketsEncoded),
		)
	}

	switch {
	case err == nil:
		s.logger.Info("session completed", attrs...)
	case errors.Is(err, ErrStopped):
		s.logger.Warn("session stopped", append(attrs, slog.Any("pending_stages", s.completion.pending()))...)
	default:
		s.logger.Error("session failed", append(attrs,
			slog.String("kind", KindOf(err).String()),
			slog.String("error", err.Error()),
		)...)
	}
}

// observe hands a deep copy of pkt to fn.
func observe(fn PacketObserver, pkt *media.Packet) {
	if fn != nil {
		fn(pkt.Clone())
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// nextPacket returns the next retained input packet. It returns io.EOF at
// end of input or once the session is draining; transient read conditions
// are retried after the poll interval.
func (s *Session) nextPacket(ctx context.Context) (*media.Packet, error) {
	for {
		if s.draining.Load() {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pkt, err := s.input.ReadPacket(ctx)
		switch {
		case err == nil:
		case media.IsEOF(err):
			return nil, io.EOF
		case media.IsAgain(err):
			if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
				return nil, err
			}
			continue
		default:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, newError(KindIO, "read packet", err)
		}

		s.counters.read.Add(1)
		if _, ok := s.streams.output(pkt.StreamIndex); !ok {
			s.counters.dropped.Add(1)
			continue
		}
		observe(s.cfg.OnInputPacket, pkt)
		return pkt, nil
	}
}

// forward rewrites pkt for its output stream. It reports false when the
// packet's stream is not mapped.
func (s *Session) forward(pkt *media.Packet) bool {
	out, ok := s.streams.output(pkt.StreamIndex)
	if !ok {
		return false
	}
	pkt.Rescale(s.streams.inTB[pkt.StreamIndex], s.streams.outTB[out])
	pkt.StreamIndex = out
	return true
}

// writePacket writes pkt to the output, retrying while the writer is not ready.
func (s *Session) writePacket(ctx context.Context, pkt *media.Packet) error {
	observe(s.cfg.OnOutputPacket, pkt)
	for {
		err := s.output.WriteInterleaved(pkt)
		if err == nil {
			s.counters.written.Add(1)
			return nil
		}
		if !media.IsAgain(err) {
			return newError(KindIO, "write packet", err)
		}
		if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// stageDone marks a stage complete.
func (s *Session) stageDone(st stage) {
	if s.completion.mark(st) {
		s.logger.Debug("stage complete", slog.String("stage", st.String()))
	}
}
