// ABOUTME: PCM encoder package for emulator output formats
// ABOUTME: Converts 24-bit-range int32 samples to raw interleaved PCM bytes
// Package encode packs decoded samples into the byte layout a producer
// hands to the player.
//
// Samples use the 24-bit signed range throughout. The output layout is
// chosen by the session format's sample size: 8-bit unsigned, 16 and
// 24-bit signed little-endian, or 32-bit IEEE float.
//
// Example:
//
//	enc, err := encode.NewPCM(format)
//	data := enc.Encode(nil, samples)
package encode
