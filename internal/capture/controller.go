// Package capture drives voice input: it pumps microphone audio into a
// speech-to-text session and composes the recognised text for the message
// composer.
//
// Recognition sessions are bounded: the provider may end one on its own
// (idle timeout, service-side limits). The controller owns the distinction
// between such spontaneous ends and the user switching the microphone off.
// While capture is wanted, an ended session is transparently replaced by a
// fresh one; once the user stops capture, an ending session stays ended.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/smartchat-ai/smartchat/internal/observe"
	"github.com/smartchat-ai/smartchat/pkg/audio"
	"github.com/smartchat-ai/smartchat/pkg/provider/stt"
)

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithStreamConfig overrides the recognition stream configuration. Defaults
// to 16 kHz mono with no language hint.
func WithStreamConfig(cfg stt.StreamConfig) Option {
	return func(c *Controller) { c.streamCfg = cfg }
}

// WithMetrics attaches metric instruments. When unset, nothing is recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithOnText registers the callback receiving the composed transcript after
// every recognition update. Called from the capture goroutine.
func WithOnText(fn func(text string)) Option {
	return func(c *Controller) { c.onText = fn }
}

// WithOnError registers the callback fired when the session loop dies on its
// own — a session that could not be started while capture was still wanted.
// By the time it fires the capturing flag is already cleared, so the UI can
// re-derive its microphone state. Called from the capture goroutine.
func WithOnError(fn func(err error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// Controller runs the capture loop over an audio source and an STT provider.
//
// The composed transcript is the concatenation of all finalised segments
// followed by the current interim hypothesis; each partial result overwrites
// the previous interim rather than appending to it.
//
// Safe for concurrent use.
type Controller struct {
	provider  stt.Provider
	source    audio.Source
	streamCfg stt.StreamConfig
	metrics   *observe.Metrics
	onText    func(string)
	onError   func(error)

	mu        sync.Mutex
	capturing bool
	cancel    context.CancelFunc
	done      chan struct{}

	finals  []string
	interim string
}

// NewController creates a capture controller over the given provider and
// audio source.
func NewController(provider stt.Provider, source audio.Source, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		source:   source,
		streamCfg: stt.StreamConfig{
			SampleRate: 16000,
			Channels:   1,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Capturing reports whether voice capture is currently wanted.
func (c *Controller) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Start switches capture on and begins the session loop. Returns an error
// when capture is already running.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return fmt.Errorf("capture: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.capturing = true
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CaptureActive.Add(ctx, 1)
	}
	go func() {
		defer close(done)
		defer func() {
			if c.metrics != nil {
				c.metrics.CaptureActive.Add(context.Background(), -1)
			}
		}()
		c.run(runCtx)
	}()
	return nil
}

// Stop switches capture off and waits for the session loop to exit. The
// capturing flag is cleared before the running session is torn down, so the
// session's final end event is never mistaken for a spontaneous one.
// Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
}

// Text returns the current composed transcript.
func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composedLocked()
}

// Reset clears the accumulated transcript, typically after the composed text
// has been handed to the composer for sending.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.finals = c.finals[:0]
	c.interim = ""
	c.mu.Unlock()
}

// run executes recognition sessions until capture is switched off. Each
// iteration is one bounded session; a session that ends while capture is
// still wanted is replaced.
func (c *Controller) run(ctx context.Context) {
	for {
		if ctx.Err() != nil || !c.Capturing() {
			return
		}

		if err := c.runSession(ctx); err != nil {
			slog.Error("capture: session failed", "error", err)
			c.mu.Lock()
			c.capturing = false
			c.mu.Unlock()
			if c.onError != nil {
				c.onError(err)
			}
			return
		}

		if ctx.Err() == nil && c.Capturing() {
			slog.Debug("capture: session ended on its own, restarting")
			if c.metrics != nil {
				c.metrics.RecordCaptureRestart(ctx)
			}
		}
	}
}

// runSession runs one recognition session to completion: audio span start,
// frame pump, and transcript consumption. Returns nil when the session ended
// (spontaneously or via cancellation) and an error only when it could not be
// started at all.
func (c *Controller) runSession(ctx context.Context) error {
	spanCtx, spanCancel := context.WithCancel(ctx)
	defer spanCancel()

	frames, err := c.source.Start(spanCtx)
	if err != nil {
		return fmt.Errorf("start audio source: %w", err)
	}

	sess, err := c.provider.StartStream(spanCtx, c.streamCfg)
	if err != nil {
		return fmt.Errorf("start recognition stream: %w", err)
	}

	// Pump audio frames into the session until the span ends or the session
	// stops accepting audio.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for f := range frames {
			if err := sess.SendAudio(f.Data); err != nil {
				return
			}
		}
	}()

	partials, finals := sess.Partials(), sess.Finals()
	closed := false
	for partials != nil || finals != nil {
		select {
		case <-spanCtx.Done():
			if !closed {
				closed = true
				if err := sess.Close(); err != nil {
					slog.Warn("capture: session close", "error", err)
				}
			}
			// Keep draining until the channels close.
			spanCtx = context.WithoutCancel(spanCtx)
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			c.setInterim(tr.Text)
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			c.appendFinal(tr.Text)
		}
	}

	spanCancel()
	<-pumpDone
	if !closed {
		if err := sess.Close(); err != nil {
			slog.Debug("capture: session close after end", "error", err)
		}
	}
	return nil
}

func (c *Controller) setInterim(text string) {
	c.mu.Lock()
	c.interim = text
	composed := c.composedLocked()
	c.mu.Unlock()
	c.emit(composed)
}

func (c *Controller) appendFinal(text string) {
	text = strings.TrimSpace(text)
	c.mu.Lock()
	if text != "" {
		c.finals = append(c.finals, text)
	}
	c.interim = ""
	composed := c.composedLocked()
	c.mu.Unlock()
	c.emit(composed)
}

// composedLocked builds the current transcript. Caller holds c.mu.
func (c *Controller) composedLocked() string {
	parts := make([]string, 0, len(c.finals)+1)
	parts = append(parts, c.finals...)
	if c.interim != "" {
		parts = append(parts, c.interim)
	}
	return strings.Join(parts, " ")
}

func (c *Controller) emit(text string) {
	if c.onText != nil {
		c.onText(text)
	}
}
