package auth

import (
	"log/slog"
	"net/http"
	"sync"
)

// ResponseGuard watches HTTP status codes flowing back from the backend and
// converts the first 401 into a one-shot session-expired event. Every API
// response passes through Inspect, so expiry is detected no matter which
// operation tripped it.
//
// Expiry is terminal: the guard never retries or refreshes. The registered
// callback fires exactly once per session episode, even under concurrent
// in-flight requests racing to report 401 first.
type ResponseGuard struct {
	store *CredentialStore

	mu        sync.Mutex
	onExpired func()
}

// NewResponseGuard creates a guard latching the given store. onExpired may be
// nil; it can also be set later with SetOnExpired before requests start.
func NewResponseGuard(store *CredentialStore, onExpired func()) *ResponseGuard {
	return &ResponseGuard{store: store, onExpired: onExpired}
}

// SetOnExpired replaces the expiry callback. Intended for wiring during
// startup, before the first request is in flight.
func (g *ResponseGuard) SetOnExpired(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onExpired = fn
}

// Inspect examines a response status code. Returns true exactly when the
// status is 401 Unauthorized; on the first such detection it latches the
// credential store and delivers the session-expired notification.
func (g *ResponseGuard) Inspect(statusCode int) bool {
	if statusCode != http.StatusUnauthorized {
		return false
	}
	if g.store.Expire() {
		slog.Info("auth: session expired, latching")
		g.mu.Lock()
		fn := g.onExpired
		g.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
	return true
}
