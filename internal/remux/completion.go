package remux

import (
	"sync/atomic"
)

// stage identifies one unit of work tracked by the completion coordinator.
type stage int

const (
	stageRead stage = iota
	stageDecode
	stageEncode
	stageForward
	stageWrite
	numStages
)

var stageNames = [numStages]string{"read", "decode", "encode", "forward", "write"}

func (s stage) String() string {
	if s < 0 || s >= numStages {
		return "unknown"
	}
	return stageNames[s]
}

// completion is the per-session set of stage flags. Done is closed once every
// flag is set; each flag is set at most once.
type completion struct {
	flags     [numStages]atomic.Bool
	remaining atomic.Int32
	done      chan struct{}
}

func newCompletion() *completion {
	c := &completion{done: make(chan struct{})}
	c.remaining.Store(int32(numStages))
	return c
}

// mark sets the flag for s. It reports whether this call set it.
func (c *completion) mark(s stage) bool {
	if !c.flags[s].CompareAndSwap(false, true) {
		return false
	}
	if c.remaining.Add(-1) == 0 {
		close(c.done)
	}
	return true
}

// markAll sets every flag, as the transcode loop does when it returns.
func (c *completion) markAll() {
	for s := stage(0); s < numStages; s++ {
		c.mark(s)
	}
}

func (c *completion) isSet(s stage) bool {
	return c.flags[s].Load()
}

// Done is closed when all stages are complete.
func (c *completion) Done() <-chan struct{} {
	return c.done
}

// pending lists the stages not yet complete.
func (c *completion) pending() []string {
	var out []string
	for s := stage(0); s < numStages; s++ {
		if !c.isSet(s) {
			out = append(out, s.String())
		}
	}
	return out
}
