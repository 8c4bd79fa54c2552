package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/smartchat-ai/smartchat/internal/api"
	"github.com/smartchat-ai/smartchat/internal/observe"
)

// GrammarCoordinator runs grammar checks against confirmed user messages.
// At most one check per message is in flight at a time; repeat requests while
// one is pending are dropped. Provisional messages (no server id yet) are
// never checked.
//
// Safe for concurrent use.
type GrammarCoordinator struct {
	backend Backend
	store   correctionStore
	metrics *observe.Metrics
	onChange func()

	mu       sync.Mutex
	inflight map[string]struct{}
}

// correctionStore is the transcript surface the coordinator mutates.
type correctionStore interface {
	AttachCorrection(serverID, corrected string) bool
}

// GrammarOption configures a GrammarCoordinator.
type GrammarOption func(*GrammarCoordinator)

// WithGrammarMetrics attaches metric instruments. When unset, nothing is
// recorded.
func WithGrammarMetrics(m *observe.Metrics) GrammarOption {
	return func(c *GrammarCoordinator) { c.metrics = m }
}

// WithGrammarOnChange registers a callback fired after every state change,
// for UI refreshes.
func WithGrammarOnChange(fn func()) GrammarOption {
	return func(c *GrammarCoordinator) { c.onChange = fn }
}

// NewGrammarCoordinator creates a coordinator over the given backend and
// transcript store.
func NewGrammarCoordinator(backend Backend, store correctionStore, opts ...GrammarOption) *GrammarCoordinator {
	c := &GrammarCoordinator{
		backend:  backend,
		store:    store,
		inflight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// InFlight reports whether a check for the given message is currently
// pending. Drives the per-message spinner.
func (c *GrammarCoordinator) InFlight(serverID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[serverID]
	return ok
}

// Check requests a grammar correction for the confirmed user message with the
// given server id and attaches the result to the transcript. Returns false
// when the request was dropped: empty id (still provisional) or a check
// already in flight for that message. Failures leave the transcript
// untouched; the caller may simply try again.
func (c *GrammarCoordinator) Check(ctx context.Context, serverID string) bool {
	if serverID == "" {
		return false
	}

	c.mu.Lock()
	if _, pending := c.inflight[serverID]; pending {
		c.mu.Unlock()
		return false
	}
	c.inflight[serverID] = struct{}{}
	c.mu.Unlock()
	c.notify()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, serverID)
		c.mu.Unlock()
		c.notify()
	}()

	corr, err := c.backend.GrammarCheck(ctx, serverID)
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		c.record(ctx, "unauthorized")
		return true
	case err != nil:
		slog.Debug("chat: grammar check failed", "message_id", serverID, "error", err)
		c.record(ctx, "error")
		return true
	}

	c.store.AttachCorrection(serverID, corr.Corrected)
	c.record(ctx, "ok")
	return true
}

func (c *GrammarCoordinator) record(ctx context.Context, status string) {
	if c.metrics != nil {
		c.metrics.RecordGrammarCheck(ctx, status)
	}
}

func (c *GrammarCoordinator) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
