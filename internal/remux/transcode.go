package remux

import (
	"context"

	"github.com/jmylchreest/muxarr/internal/media"
)

// runTranscode is the synchronous mode: each packet is decoded and re-encoded
// (or copied, for streams without a codec pair) and written before the next
// one is read. At end of input every decoder and then its encoder is flushed.
func (s *Session) runTranscode(ctx context.Context) error {
	for {
		pkt, err := s.nextPacket(ctx)
		if err != nil {
			if media.IsEOF(err) {
				break
			}
			return err
		}

		sc := s.streams.context(pkt.StreamIndex)
		if sc == nil {
			if !s.forward(pkt) {
				s.counters.dropped.Add(1)
				continue
			}
			if err := s.writePacket(ctx, pkt); err != nil {
				return err
			}
			continue
		}
		if err := s.decode(ctx, pkt.StreamIndex, sc, pkt); err != nil {
			return err
		}
	}

	if err := s.flush(ctx); err != nil {
		return err
	}
	s.completion.markAll()
	return nil
}

// flush signals end of stream to every decoder, drains it through its
// encoder, then flushes the encoder. Each encoder that received at least one
// frame is flushed once; an encoder never fed has nothing buffered.
func (s *Session) flush(ctx context.Context) error {
	for in, sc := range s.streams.contexts {
		if sc == nil {
			continue
		}
		if err := s.decode(ctx, in, sc, nil); err != nil {
			return err
		}
		if sc.flushes == 0 && sc.framesIn > 0 {
			if err := s.encode(ctx, in, sc, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// decode feeds pkt (nil for end of stream) to the stream's decoder and
// encodes every frame it yields.
func (s *Session) decode(ctx context.Context, in int, sc *streamContext, pkt *media.Packet) error {
	err := sc.decoder.SendPacket(pkt)
	if media.IsAgain(err) {
		// Decoder output is full; drain it and resubmit once.
		if err := s.drainDecoder(ctx, in, sc); err != nil {
			return err
		}
		err = sc.decoder.SendPacket(pkt)
	}
	if err != nil && !media.IsEOF(err) {
		return newError(KindCodec, "decode", err)
	}
	return s.drainDecoder(ctx, in, sc)
}

func (s *Session) drainDecoder(ctx context.Context, in int, sc *streamContext) error {
	for {
		frame, err := sc.decoder.ReceiveFrame()
		if media.IsAgain(err) || media.IsEOF(err) {
			return nil
		}
		if err != nil {
			return newError(KindCodec, "decode", err)
		}
		s.counters.decoded.Add(1)

		err = s.encode(ctx, in, sc, frame)
		frame.Release()
		if err != nil {
			return err
		}
	}
}

// encode feeds frame (nil to flush) to the stream's encoder and writes every
// packet it yields.
func (s *Session) encode(ctx context.Context, in int, sc *streamContext, frame media.Frame) error {
	if frame == nil {
		sc.flushes++
	} else {
		if pts := frame.PTS(); pts != media.NoPTS {
			frame.SetPTS(media.RescaleQ(pts, sc.decoder.TimeBase(), sc.encoder.TimeBase()))
		}
		sc.framesIn++
	}

	err := sc.encoder.SendFrame(frame)
	if media.IsAgain(err) {
		if err := s.drainEncoder(ctx, in, sc); err != nil {
			return err
		}
		err = sc.encoder.SendFrame(frame)
	}
	if err != nil && !media.IsEOF(err) {
		return newError(KindCodec, "encode", err)
	}
	return s.drainEncoder(ctx, in, sc)
}

func (s *Session) drainEncoder(ctx context.Context, in int, sc *streamContext) error {
	out, _ := s.streams.output(in)
	for {
		pkt, err := sc.encoder.ReceivePacket()
		if media.IsAgain(err) || media.IsEOF(err) {
			return nil
		}
		if err != nil {
			return newError(KindCodec, "encode", err)
		}
		s.counters.encoded.Add(1)

		pkt.Rescale(sc.encoder.TimeBase(), s.streams.outTB[out])
		pkt.StreamIndex = out
		if err := s.writePacket(ctx, pkt); err != nil {
			return err
		}
	}
}
