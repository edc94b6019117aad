package remux

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/muxarr/internal/media"
)

// runPipeline copies packets through three concurrent stages:
//
//	reader -> readQ -> forwarder -> writeQ -> writer
//
// Each stage closes its outgoing queue when it exits, so a downstream stage
// finishes only after its upstream has finished and the queue between them
// is empty. The run returns once every stage has completed, or as soon as
// one fails or the context is cancelled.
func (s *Session) runPipeline(ctx context.Context) error {
	// No codecs in this mode.
	s.stageDone(stageDecode)
	s.stageDone(stageEncode)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	readQ := make(chan *media.Packet, s.cfg.QueueSize)
	writeQ := make(chan *media.Packet, s.cfg.QueueSize)

	g.Go(func() error {
		defer close(readQ)
		if err := s.readStage(gctx, readQ); err != nil {
			return err
		}
		s.stageDone(stageRead)
		return nil
	})
	g.Go(func() error {
		defer close(writeQ)
		if err := s.forwardStage(gctx, readQ, writeQ); err != nil {
			return err
		}
		s.stageDone(stageForward)
		return nil
	})
	g.Go(func() error {
		if err := s.writeStage(gctx, writeQ); err != nil {
			return err
		}
		s.stageDone(stageWrite)
		return nil
	})

	select {
	case <-s.completion.Done():
	case <-gctx.Done():
	}
	cancel()
	return g.Wait()
}

func (s *Session) readStage(ctx context.Context, out chan<- *media.Packet) error {
	for {
		pkt, err := s.nextPacket(ctx)
		if err != nil {
			if media.IsEOF(err) {
				return nil
			}
			return err
		}
		select {
		case out <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) forwardStage(ctx context.Context, in <-chan *media.Packet, out chan<- *media.Packet) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-in:
			if !ok {
				return ctx.Err()
			}
			if !s.forward(pkt) {
				s.counters.dropped.Add(1)
				continue
			}
			select {
			case out <- pkt:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Session) writeStage(ctx context.Context, in <-chan *media.Packet) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-in:
			if !ok {
				return ctx.Err()
			}
			if err := s.writePacket(ctx, pkt); err != nil {
				return err
			}
		}
	}
}
