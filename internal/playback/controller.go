// Package playback speaks assistant replies aloud. At most one utterance
// plays at a time: starting a new one cancels whatever is currently playing
// and flushes its queued audio, so the newest reply always wins the speaker.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smartchat-ai/smartchat/internal/observe"
	"github.com/smartchat-ai/smartchat/pkg/audio"
	"github.com/smartchat-ai/smartchat/pkg/provider/tts"
)

// NoMessage is the SpeakingIndex value while nothing is playing.
const NoMessage = -1

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithVoice selects the synthesis voice. Defaults to the provider's default
// (zero Voice).
func WithVoice(v tts.Voice) Option {
	return func(c *Controller) { c.voice = v }
}

// WithMetrics attaches metric instruments. When unset, nothing is recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithOnChange registers a callback fired when playback starts or stops, for
// UI refreshes. Called from playback goroutines.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller streams synthesized speech to an audio sink, one utterance at a
// time. Safe for concurrent use.
type Controller struct {
	provider tts.Provider
	sink     audio.Sink
	voice    tts.Voice
	metrics  *observe.Metrics
	onChange func()

	// startMu serialises Speak and Stop so two utterances can never race
	// into the sink together.
	startMu sync.Mutex

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	speaking int
}

// NewController creates a playback controller over the given synthesis
// provider and audio sink.
func NewController(provider tts.Provider, sink audio.Sink, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		sink:     sink,
		speaking: NoMessage,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SpeakingIndex returns the transcript index of the message currently being
// spoken, or NoMessage when idle.
func (c *Controller) SpeakingIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Speak plays the given text, preempting any utterance already in progress:
// the running playback is cancelled and its queued audio flushed before the
// new one starts. messageIndex identifies the transcript entry being spoken,
// for the UI's speaking indicator.
func (c *Controller) Speak(text string, messageIndex int) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	c.preempt(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.speaking = messageIndex
	c.mu.Unlock()
	c.notify()

	if c.metrics != nil {
		c.metrics.PlaybackActive.Add(ctx, 1)
	}

	go func() {
		defer close(done)
		if err := c.play(ctx, text); err != nil && ctx.Err() == nil {
			slog.Warn("playback: utterance failed", "error", err)
		}

		c.mu.Lock()
		if c.done == done {
			c.cancel = nil
			c.done = nil
			c.speaking = NoMessage
		}
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.PlaybackActive.Add(context.Background(), -1)
		}
		c.notify()
	}()
}

// Stop cancels the current utterance, if any, and discards its queued audio.
// Idempotent.
func (c *Controller) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	c.preempt(false)
}

// preempt cancels and waits out the running playback. counted controls
// whether the cancellation is recorded as a preemption (it is one only when a
// new utterance is taking over).
func (c *Controller) preempt(counted bool) {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	if err := c.sink.Flush(); err != nil {
		slog.Warn("playback: flush", "error", err)
	}
	<-done

	if counted && c.metrics != nil {
		c.metrics.RecordPlaybackPreemption(context.Background())
	}
}

// play synthesizes text and streams the audio to the sink. Returns when the
// utterance completes, fails, or ctx is cancelled.
func (c *Controller) play(ctx context.Context, text string) error {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	chunks, err := c.provider.SynthesizeStream(ctx, textCh, c.voice)
	if err != nil {
		return err
	}
	format := c.provider.OutputFormat()
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	frames := make(chan audio.Frame, 8)

	g.Go(func() error {
		defer close(frames)
		first := true
		for chunk := range chunks {
			if first {
				first = false
				if c.metrics != nil {
					c.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
				}
			}
			frame := audio.Frame{
				Data:       chunk,
				SampleRate: format.SampleRate,
				Channels:   format.Channels,
				Timestamp:  time.Since(start),
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for f := range frames {
			if err := c.sink.Write(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
