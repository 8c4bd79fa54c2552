// Package chat coordinates the conversation flow between the transcript
// store, the backend API, and speech playback: optimistic sends, reply
// handling, and grammar checks.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/smartchat-ai/smartchat/internal/api"
	"github.com/smartchat-ai/smartchat/internal/observe"
	"github.com/smartchat-ai/smartchat/internal/transcript"
)

// Backend is the subset of the API client the coordinators need.
type Backend interface {
	Send(ctx context.Context, text string) (api.SendResult, error)
	GrammarCheck(ctx context.Context, messageID string) (api.Correction, error)
}

var _ Backend = (*api.Client)(nil)

// Speaker plays an assistant reply aloud. Implementations must not block:
// starting playback hands off to the audio pipeline and returns.
type Speaker interface {
	Speak(text string, messageIndex int)
}

// SendOption configures a SendCoordinator.
type SendOption func(*SendCoordinator)

// WithSpeaker enables automatic speech playback of assistant replies.
func WithSpeaker(sp Speaker) SendOption {
	return func(c *SendCoordinator) { c.speaker = sp }
}

// WithSendMetrics attaches metric instruments. When unset, nothing is
// recorded.
func WithSendMetrics(m *observe.Metrics) SendOption {
	return func(c *SendCoordinator) { c.metrics = m }
}

// WithOnChange registers a callback fired after every transcript mutation and
// thinking-state transition, for UI refreshes. Called from the sending
// goroutine.
func WithOnChange(fn func()) SendOption {
	return func(c *SendCoordinator) { c.onChange = fn }
}

// SendCoordinator runs the optimistic send flow:
//
//  1. The user message is appended to the transcript immediately, before the
//     backend has seen it, addressed by a client-local correlation id.
//  2. On success the message is reconciled with its server id and the
//     assistant's reply is appended (and spoken, when a Speaker is wired).
//  3. On failure the user message stays visible but provisional. There is no
//     retry queue; the message simply never becomes eligible for grammar
//     checking.
//
// Safe for concurrent use, though sends are expected to be serialised by the
// UI (the composer is disabled while thinking).
type SendCoordinator struct {
	backend Backend
	store   *transcript.Store
	speaker Speaker
	metrics *observe.Metrics
	onChange func()

	correlation atomic.Uint64
	thinking    atomic.Bool
}

// NewSendCoordinator creates a coordinator over the given backend and store.
func NewSendCoordinator(backend Backend, store *transcript.Store, opts ...SendOption) *SendCoordinator {
	c := &SendCoordinator{
		backend: backend,
		store:   store,
	}
	// Seed correlations from the wall clock so ids from a previous run of
	// the process can never collide with this one's.
	c.correlation.Store(uint64(time.Now().UnixMilli()) << 16)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Thinking reports whether a send is currently awaiting the backend.
func (c *SendCoordinator) Thinking() bool {
	return c.thinking.Load()
}

// Send submits a user message. Blank input (after trimming) is a no-op and
// returns false; everything else returns true, whether or not the backend
// call ultimately succeeds.
func (c *SendCoordinator) Send(ctx context.Context, text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	ctx, span := observe.StartSpan(ctx, "chat.send")
	defer span.End()

	corr := c.correlation.Add(1)
	c.store.AppendProvisional(corr, trimmed)
	c.thinking.Store(true)
	c.notify()

	start := time.Now()
	res, err := c.backend.Send(ctx, trimmed)
	c.thinking.Store(false)

	switch {
	case errors.Is(err, api.ErrUnauthorized):
		// The guard has already latched the session; leave the message
		// provisional and let the expiry flow take over.
		c.recordSend(ctx, "unauthorized", start)
	case err != nil:
		observe.Logger(ctx).Debug("chat: send failed, message left provisional",
			"correlation", corr, "error", err)
		c.recordSend(ctx, "error", start)
		if c.metrics != nil {
			c.metrics.RecordDanglingSend(ctx)
		}
	default:
		c.store.Reconcile(corr, res.MessageID.String())
		idx := c.store.AppendAssistantReply(res.Reply)
		c.recordSend(ctx, "ok", start)
		if c.speaker != nil {
			c.speaker.Speak(res.Reply, idx)
		}
	}

	c.notify()
	return true
}

func (c *SendCoordinator) recordSend(ctx context.Context, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordSend(ctx, status, time.Since(start))
	}
}

func (c *SendCoordinator) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
