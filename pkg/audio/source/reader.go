// ABOUTME: Converts any Source into raw PCM bytes of a target format
// ABOUTME: Maps channels, resamples and encodes so producers can read whole frames
package source

import (
	"errors"
	"io"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/audio/encode"
	"github.com/harperreed/emuaudio/pkg/audio/resample"
)

// minReadFrames keeps source reads from shrinking to a handful of samples
const minReadFrames = 256

// Reader renders a Source in a fixed output format
type Reader struct {
	src       Source
	format    audio.Format
	enc       *encode.PCMEncoder
	resampler *resample.Resampler

	in      []int32
	mapped  []int32
	out     []int32
	pending []byte
	err     error
}

// NewReader wraps src so that Read returns PCM in format
func NewReader(src Source, format audio.Format) (*Reader, error) {
	enc, err := encode.NewPCM(format)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:       src,
		format:    format,
		enc:       enc,
		resampler: resample.New(src.SampleRate(), format.SampleRate, format.Channels),
	}, nil
}

// Format returns the output format
func (r *Reader) Format() audio.Format {
	return r.format
}

// Read fills p with PCM. It only returns fewer bytes than requested when the
// source has ended.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) < len(p) && r.err == nil {
		r.fill(len(p) - len(r.pending))
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	if n == 0 && r.err != nil {
		return 0, r.err
	}
	return n, nil
}

// fill decodes at least roughly need more output bytes into pending
func (r *Reader) fill(need int) {
	frameBytes := r.enc.BytesPerSample() * r.format.Channels
	outFrames := max(need/frameBytes+1, 1)
	inSamples := r.resampler.InputSamplesNeeded(outFrames * r.format.Channels)
	inFrames := max(inSamples/r.format.Channels, minReadFrames)

	srcCh := r.src.Channels()
	want := inFrames * srcCh
	if cap(r.in) < want {
		r.in = make([]int32, want)
	}
	in := r.in[:want]

	n, err := r.src.Read(in)
	if errors.Is(err, io.EOF) {
		r.err = io.EOF
	} else if err != nil {
		r.err = err
	}
	if n == 0 {
		if r.err == nil {
			r.err = io.ErrNoProgress
		}
		return
	}

	r.mapped = mapChannels(r.mapped[:0], in[:n-n%srcCh], srcCh, r.format.Channels)
	r.out = r.resampler.Resample(r.out[:0], r.mapped)
	r.pending = r.enc.Encode(r.pending, r.out)
}

// mapChannels converts interleaved frames between channel counts. Mono output
// averages every input channel, other layouts repeat input channels in order.
func mapChannels(dst, in []int32, from, to int) []int32 {
	if from == to {
		return append(dst, in...)
	}
	frames := len(in) / from
	for f := 0; f < frames; f++ {
		frame := in[f*from : (f+1)*from]
		if to == 1 {
			var sum int64
			for _, s := range frame {
				sum += int64(s)
			}
			dst = append(dst, int32(sum/int64(from)))
			continue
		}
		for c := 0; c < to; c++ {
			dst = append(dst, frame[c%from])
		}
	}
	return dst
}
