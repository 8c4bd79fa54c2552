// Package mock provides in-memory mock implementations of the [audio.Source]
// and [audio.Sink] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	src := mock.NewSource()
//	frames, _ := src.Start(ctx)
//	src.Emit(audio.Frame{Data: pcm, SampleRate: 16000, Channels: 1})
//	src.EndSpan() // simulate the device stopping on its own
package mock

import (
	"context"
	"sync"

	"github.com/smartchat-ai/smartchat/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Tests push frames into
// the active span with [Source.Emit] and end it with [Source.EndSpan]; a new
// Start call after that begins a fresh span, mirroring restartable capture
// devices.
type Source struct {
	mu sync.Mutex

	// StartError is returned by Start when non-nil.
	StartError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	ch     chan audio.Frame
	cancel context.CancelFunc
}

// NewSource creates a mock source with no active span.
func NewSource() *Source {
	return &Source{}
}

// Start implements [audio.Source]. Returns StartError when set; otherwise
// opens a new span and returns its frame channel.
func (s *Source) Start(ctx context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return nil, s.StartError
	}

	spanCtx, cancel := context.WithCancel(ctx)
	ch := make(chan audio.Frame, 32)
	s.ch = ch
	s.cancel = cancel

	go func() {
		<-spanCtx.Done()
		s.mu.Lock()
		if s.ch == ch {
			close(ch)
			s.ch = nil
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	return ch, nil
}

// Emit delivers a frame on the active span. Returns false when no span is
// active or the span buffer is full.
func (s *Source) Emit(frame audio.Frame) bool {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case ch <- frame:
		return true
	default:
		return false
	}
}

// EndSpan closes the active span's channel, simulating a device that stopped
// on its own. No-op when no span is active.
func (s *Source) EndSpan() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close implements [audio.Source]. Ends the active span and records the call.
func (s *Source) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

var _ audio.Source = (*Source)(nil)

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink]. Every written frame is
// recorded; Flush and Close record call counts so tests can assert on
// preemption behavior.
type Sink struct {
	mu sync.Mutex

	// WriteError is returned by Write when non-nil.
	WriteError error

	// Written records every frame accepted by Write, in order.
	Written []audio.Frame

	// CallCountFlush records how many times Flush was called.
	CallCountFlush int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewSink creates an empty recording sink.
func NewSink() *Sink {
	return &Sink{}
}

// Write implements [audio.Sink]. Records the frame unless WriteError is set
// or ctx is already cancelled.
func (k *Sink) Write(ctx context.Context, frame audio.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.WriteError != nil {
		return k.WriteError
	}
	k.Written = append(k.Written, frame)
	return nil
}

// Flush implements [audio.Sink]. Records the call.
func (k *Sink) Flush() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.CallCountFlush++
	return nil
}

// Close implements [audio.Sink]. Records the call.
func (k *Sink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.CallCountClose++
	return nil
}

// WriteCount returns the number of recorded frames. Thread-safe.
func (k *Sink) WriteCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.Written)
}

// FlushCount returns the number of Flush calls. Thread-safe.
func (k *Sink) FlushCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.CallCountFlush
}

// WrittenText concatenates all written frame data, handy for asserting on
// synthesized byte streams.
func (k *Sink) WrittenText() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []byte
	for _, f := range k.Written {
		out = append(out, f.Data...)
	}
	return out
}

var _ audio.Sink = (*Sink)(nil)
