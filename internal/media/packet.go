package media

import "math"

// NoPTS marks an unset timestamp.
const NoPTS int64 = math.MinInt64

// Packet is a unit of coded data. A packet has exactly one owner at a time;
// passing it to another stage or to a writer hands ownership over.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	// Pos is the byte position in the source container, -1 when unknown.
	Pos      int64
	Keyframe bool
	Data     []byte

	// Native is the backend's packet, when the packet came from a backend
	// that keeps its own representation.
	Native any
}

// NewPacket returns an empty packet with unset timestamps.
func NewPacket() *Packet {
	return &Packet{PTS: NoPTS, DTS: NoPTS, Pos: -1}
}

// Clone returns a deep copy. Observers receive clones so that they can
// inspect a packet without sharing it with the pipeline.
func (p *Packet) Clone() *Packet {
	if p == nil {
		return nil
	}
	c := *p
	if p.Data != nil {
		c.Data = make([]byte, len(p.Data))
		copy(c.Data, p.Data)
	}
	c.Native = nil
	return &c
}

// Rescale converts the packet's timestamps and duration from one time base
// to another and clears the position hint, which is meaningless in a new
// container.
func (p *Packet) Rescale(from, to Rational) {
	const rnd = RoundNearInf | RoundPassMinMax
	p.PTS = RescaleQRnd(p.PTS, from, to, rnd)
	p.DTS = RescaleQRnd(p.DTS, from, to, rnd)
	p.Duration = RescaleQ(p.Duration, from, to)
	p.Pos = -1
}
