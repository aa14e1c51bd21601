// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines the PCM Format and sample conversion functions
// Package audio provides fundamental audio types shared by the pipeline.
//
// This package defines core types used throughout the emuaudio library:
//   - Format: Describes a raw PCM stream (sample rate, sample size, channels)
//   - Throughput helpers used by transports and the player to convert bytes to time
//
// It also provides utilities for converting between sample representations:
//   - 24-bit packed bytes to int32
//   - little-endian PCM bytes to normalized float samples
//
// Example:
//
//	format := audio.Format{
//	    SampleRate:     44100,
//	    SampleSizeBits: 16,
//	    Channels:       2,
//	}
//
//	ms := format.BytesToMillis(buffered)
package audio
