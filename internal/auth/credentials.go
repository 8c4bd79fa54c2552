// Package auth holds the client's session credentials and the cross-cutting
// response guard that turns HTTP 401 responses into a single session-expired
// event.
package auth

import (
	"log/slog"
	"sync"

	"github.com/smartchat-ai/smartchat/internal/localstore"
)

// CredentialStore owns the access/refresh token pair and username for the
// current session, plus a monotonic expired latch. Once the latch flips the
// session is terminal: there is no automatic refresh, the only way forward is
// logout followed by a fresh login, which builds a new store.
//
// Safe for concurrent use.
type CredentialStore struct {
	mu       sync.Mutex
	access   string
	refresh  string
	username string
	expired  bool

	persist localstore.Store // optional write-through; may be nil
}

// Option configures a CredentialStore.
type Option func(*CredentialStore)

// WithPersistence makes the store write sessions through to the given local
// state store, so tokens survive restarts.
func WithPersistence(store localstore.Store) Option {
	return func(s *CredentialStore) { s.persist = store }
}

// NewCredentialStore creates an empty store. Use Restore or SetSession to
// populate it.
func NewCredentialStore(opts ...Option) *CredentialStore {
	s := &CredentialStore{}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Restore loads a previously persisted session, if any. Returns true when a
// session was found.
func (s *CredentialStore) Restore() bool {
	if s.persist == nil {
		return false
	}
	state, err := s.persist.Load()
	if err != nil || !state.HasSession() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = state.AccessToken
	s.refresh = state.RefreshToken
	s.username = state.Username
	s.expired = false
	return true
}

// SetSession installs a fresh token pair after login or registration and
// persists it. Resets the expired latch: a new session is a new episode.
func (s *CredentialStore) SetSession(access, refresh, username string) error {
	s.mu.Lock()
	s.access = access
	s.refresh = refresh
	s.username = username
	s.expired = false
	s.mu.Unlock()

	return s.saveThrough(access, refresh, username)
}

// AuthHeader returns the Authorization header value for the current session,
// or "" when unauthenticated. Requests without credentials are still sent;
// the server is the authority on what they may do.
func (s *CredentialStore) AuthHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.access == "" {
		return ""
	}
	return "Bearer " + s.access
}

// RefreshToken returns the refresh token for the current session, or "".
// Logout posts it so the server can blacklist it.
func (s *CredentialStore) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

// Username returns the signed-in username, or "".
func (s *CredentialStore) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Expired reports whether the session has been latched as expired.
func (s *CredentialStore) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Expire flips the expired latch. Returns true only for the first flip of the
// current episode, so concurrent detections collapse to one winner.
func (s *CredentialStore) Expire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired {
		return false
	}
	s.expired = true
	return true
}

// Clear discards the session entirely: tokens, username, and the persisted
// copy. Used by logout regardless of whether the server call succeeded.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	s.access = ""
	s.refresh = ""
	s.username = ""
	s.expired = false
	s.mu.Unlock()

	if s.persist == nil {
		return nil
	}
	return s.persist.ClearSession()
}

func (s *CredentialStore) saveThrough(access, refresh, username string) error {
	if s.persist == nil {
		return nil
	}
	state, err := s.persist.Load()
	if err != nil {
		state = &localstore.State{}
	}
	state.AccessToken = access
	state.RefreshToken = refresh
	state.Username = username
	if err := s.persist.Save(state); err != nil {
		slog.Warn("auth: failed to persist session", "error", err)
		return err
	}
	return nil
}
