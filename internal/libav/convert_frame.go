package libav

import (
	"github.com/asticode/go-astiav"
)

// converter turns decoded frames into frames the encoder accepts. It takes
// nil at end of stream to release whatever it buffers. Returned frames are
// owned by the caller.
type converter interface {
	convert(src *astiav.Frame) ([]*astiav.Frame, error)
	close()
}

// ref returns a new reference to src.
func ref(src *astiav.Frame) (*astiav.Frame, error) {
	dst := astiav.AllocFrame()
	if err := dst.Ref(src); err != nil {
		dst.Free()
		return nil, wrapError("frame ref", err)
	}
	return dst, nil
}

// audioConverter resamples to the encoder's format, rate and layout and,
// for encoders with a fixed frame size, regroups samples through a FIFO.
type audioConverter struct {
	enc *astiav.CodecContext

	swr      *astiav.SoftwareResampleContext
	resample bool
	checked  bool

	fifo      *astiav.AudioFifo
	frameSize int
	nextPTS   int64
}

func newAudioConverter(enc *astiav.CodecContext) *audioConverter {
	return &audioConverter{enc: enc, frameSize: enc.FrameSize(), nextPTS: astiav.NoPtsValue}
}

func (c *audioConverter) encoderFrame(samples int) *astiav.Frame {
	f := astiav.AllocFrame()
	f.SetSampleFormat(c.enc.SampleFormat())
	f.SetSampleRate(c.enc.SampleRate())
	f.SetChannelLayout(c.enc.ChannelLayout())
	f.SetNbSamples(samples)
	return f
}

func (c *audioConverter) matches(src *astiav.Frame) bool {
	return src.SampleFormat() == c.enc.SampleFormat() &&
		src.SampleRate() == c.enc.SampleRate() &&
		src.ChannelLayout().Equal(c.enc.ChannelLayout())
}

func (c *audioConverter) convert(src *astiav.Frame) ([]*astiav.Frame, error) {
	if src != nil && !c.checked {
		c.checked = true
		if !c.matches(src) {
			c.resample = true
			c.swr = astiav.AllocSoftwareResampleContext()
		}
	}

	var samples *astiav.Frame
	switch {
	case c.resample:
		dst := c.encoderFrame(0)
		if err := c.swr.ConvertFrame(src, dst); err != nil {
			dst.Free()
			return nil, wrapError("resample", err)
		}
		if src != nil {
			dst.SetPts(src.Pts())
		}
		if dst.NbSamples() == 0 {
			dst.Free()
		} else {
			samples = dst
		}
	case src != nil:
		dst, err := ref(src)
		if err != nil {
			return nil, err
		}
		samples = dst
	}

	if c.frameSize <= 0 {
		if samples == nil {
			return nil, nil
		}
		return []*astiav.Frame{samples}, nil
	}
	return c.regroup(samples, src == nil)
}

// regroup queues samples and returns every complete encoder frame; at end
// of stream the remainder is returned as a short last frame.
func (c *audioConverter) regroup(samples *astiav.Frame, flush bool) ([]*astiav.Frame, error) {
	if samples != nil {
		defer samples.Free()
		if c.fifo == nil {
			c.fifo = astiav.AllocAudioFifo(c.enc.SampleFormat(), c.enc.ChannelLayout().Channels(), c.frameSize)
		}
		if c.nextPTS == astiav.NoPtsValue {
			c.nextPTS = samples.Pts()
			if c.nextPTS == astiav.NoPtsValue {
				c.nextPTS = 0
			}
		}
		if _, err := c.fifo.Write(samples); err != nil {
			return nil, wrapError("audio fifo write", err)
		}
	}
	if c.fifo == nil {
		return nil, nil
	}

	var out []*astiav.Frame
	for c.fifo.Size() >= c.frameSize || (flush && c.fifo.Size() > 0) {
		n := min(c.fifo.Size(), c.frameSize)
		f := c.encoderFrame(n)
		if err := f.AllocBuffer(0); err != nil {
			f.Free()
			return out, wrapError("allocate audio frame", err)
		}
		if _, err := c.fifo.Read(f); err != nil {
			f.Free()
			return out, wrapError("audio fifo read", err)
		}
		f.SetPts(c.nextPTS)
		c.nextPTS += int64(n)
		out = append(out, f)
	}
	return out, nil
}

func (c *audioConverter) close() {
	if c.swr != nil {
		c.swr.Free()
		c.swr = nil
	}
	if c.fifo != nil {
		c.fifo.Free()
		c.fifo = nil
	}
}

// videoConverter scales frames whose size or pixel format differs from the
// encoder's.
type videoConverter struct {
	enc *astiav.CodecContext
	sws *astiav.SoftwareScaleContext
}

func newVideoConverter(enc *astiav.CodecContext) *videoConverter {
	return &videoConverter{enc: enc}
}

func (c *videoConverter) convert(src *astiav.Frame) ([]*astiav.Frame, error) {
	if src == nil {
		return nil, nil
	}
	if src.Width() == c.enc.Width() && src.Height() == c.enc.Height() && src.PixelFormat() == c.enc.PixelFormat() {
		dst, err := ref(src)
		if err != nil {
			return nil, err
		}
		return []*astiav.Frame{dst}, nil
	}

	if c.sws == nil {
		sws, err := astiav.CreateSoftwareScaleContext(
			src.Width(), src.Height(), src.PixelFormat(),
			c.enc.Width(), c.enc.Height(), c.enc.PixelFormat(),
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
		)
		if err != nil {
			return nil, wrapError("create scaler", err)
		}
		c.sws = sws
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(c.enc.Width())
	dst.SetHeight(c.enc.Height())
	dst.SetPixelFormat(c.enc.PixelFormat())
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		return nil, wrapError("allocate video frame", err)
	}
	if err := c.sws.ScaleFrame(src, dst); err != nil {
		dst.Free()
		return nil, wrapError("scale", err)
	}
	dst.SetPts(src.Pts())
	return []*astiav.Frame{dst}, nil
}

func (c *videoConverter) close() {
	if c.sws != nil {
		c.sws.Free()
		c.sws = nil
	}
}
