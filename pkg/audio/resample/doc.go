// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts streamed audio between sample rates without seams
// Package resample provides streaming sample rate conversion.
//
// The last frame of every chunk is carried into the next call so chunk
// boundaries interpolate like the inside of a chunk.
//
// Example:
//
//	r := resample.New(44100, 22050, 2)
//	out := r.Resample(out[:0], in)
package resample
