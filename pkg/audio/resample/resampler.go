// ABOUTME: Streaming linear resampler for converting audio sample rates
// ABOUTME: Carries the previous chunk's last frame so boundaries stay continuous
package resample

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64

	// position is the next output point, in input frames, relative to prev
	position float64
	prev     []int32
	havePrev bool
	scratch  []int32
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		prev:       make([]int32, channels),
	}
}

// Resample appends the interleaved input, converted to the output rate, to dst.
// Trailing samples that do not form a whole frame are ignored.
func (r *Resampler) Resample(dst, input []int32) []int32 {
	ch := r.channels
	frames := len(input) / ch
	if frames == 0 {
		return dst
	}
	if r.inputRate == r.outputRate {
		return append(dst, input[:frames*ch]...)
	}

	// Work on prev followed by input so the boundary frame pair is interpolated too
	r.scratch = r.scratch[:0]
	if r.havePrev {
		r.scratch = append(r.scratch, r.prev...)
	}
	r.scratch = append(r.scratch, input[:frames*ch]...)
	src := r.scratch
	total := len(src) / ch

	for {
		idx := int(r.position)
		if idx+1 >= total {
			break
		}
		frac := r.position - float64(idx)
		for c := 0; c < ch; c++ {
			a := float64(src[idx*ch+c])
			b := float64(src[(idx+1)*ch+c])
			dst = append(dst, int32(a+(b-a)*frac))
		}
		r.position += r.ratio
	}

	// The last frame becomes prev, so positions shift by total-1 frames
	r.position -= float64(total - 1)
	copy(r.prev, src[(total-1)*ch:])
	r.havePrev = true
	return dst
}

// Reset forgets the carried frame and position
func (r *Resampler) Reset() {
	r.position = 0
	r.havePrev = false
	clear(r.prev)
}

// InputSamplesNeeded estimates how many input samples produce outputSamples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames)*r.ratio + 0.5)
	return max(1, inputFrames) * r.channels
}
