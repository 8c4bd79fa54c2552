// Package audio defines the capture and playback primitives for the SmartChat
// voice pipeline: a Source that produces raw PCM frames (the microphone side)
// and a Sink that consumes them (the speaker side), plus PCM format helpers
// and an Opus-framed source adapter.
//
// All PCM in this package is 16-bit signed little-endian.
package audio

import (
	"context"
	"time"
)

// Frame is a single chunk of PCM audio flowing through the pipeline.
type Frame struct {
	// Data is raw little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT input, 48000 for playback).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Source is a capture device producing a stream of PCM frames.
//
// Start may be called again after the returned channel has closed; each call
// begins a fresh capture span. This matters for the voice-capture controller,
// which restarts its source whenever the platform ends a span early.
type Source interface {
	// Start begins capturing and returns a channel of frames. The channel is
	// closed when the capture span ends — because ctx was cancelled, Close was
	// called, or the underlying device stopped on its own.
	Start(ctx context.Context) (<-chan Frame, error)

	// Close stops capturing and releases the device. Safe to call more than once.
	Close() error
}

// Sink is a playback device consuming PCM frames.
//
// Implementations must support Flush being called concurrently with Write:
// the playback controller uses Flush to preempt queued audio when a new
// utterance supersedes the current one.
type Sink interface {
	// Write queues a frame for playback. Blocks until the frame is accepted or
	// ctx is cancelled.
	Write(ctx context.Context, frame Frame) error

	// Flush discards any queued-but-unplayed audio immediately. Idempotent.
	Flush() error

	// Close flushes and releases the device. Safe to call more than once.
	Close() error
}
