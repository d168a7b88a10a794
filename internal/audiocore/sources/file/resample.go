package file

// resampler converts interleaved blocks between sample rates by linear
// interpolation, carrying the last input frame across block boundaries.
type resampler struct {
	step     float64 // input frames advanced per output frame
	channels int
	pos      float64
	prev     []float32
}

func newResampler(fromRate, toRate, channels int) *resampler {
	return &resampler{
		step:     float64(fromRate) / float64(toRate),
		channels: channels,
	}
}

func (r *resampler) process(in []float32) []float32 {
	src := in
	if r.prev != nil {
		src = make([]float32, 0, len(r.prev)+len(in))
		src = append(src, r.prev...)
		src = append(src, in...)
	}

	frames := len(src) / r.channels
	if frames < 2 {
		r.prev = append(r.prev[:0:0], src...)
		return nil
	}

	out := make([]float32, 0, int(float64(frames)/r.step+1)*r.channels)
	for r.pos <= float64(frames-1) {
		idx := int(r.pos)
		frac := float32(r.pos - float64(idx))
		a := src[idx*r.channels : (idx+1)*r.channels]
		b := a
		if idx+1 < frames {
			b = src[(idx+1)*r.channels : (idx+2)*r.channels]
		}
		for c := range r.channels {
			out = append(out, a[c]*(1-frac)+b[c]*frac)
		}
		r.pos += r.step
	}

	// Re-base so the kept frame is index 0 of the next block
	last := src[(frames-1)*r.channels : frames*r.channels]
	r.prev = append(r.prev[:0:0], last...)
	r.pos -= float64(frames - 1)
	return out
}
