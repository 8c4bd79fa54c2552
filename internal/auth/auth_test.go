package auth

import (
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/smartchat-ai/smartchat/internal/localstore"
)

func TestAuthHeader(t *testing.T) {
	s := NewCredentialStore()
	if got := s.AuthHeader(); got != "" {
		t.Errorf("AuthHeader on empty store = %q; want \"\"", got)
	}

	if err := s.SetSession("tok-1", "ref-1", "zoe"); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if got := s.AuthHeader(); got != "Bearer tok-1" {
		t.Errorf("AuthHeader = %q; want \"Bearer tok-1\"", got)
	}
	if got := s.Username(); got != "zoe" {
		t.Errorf("Username = %q; want \"zoe\"", got)
	}
}

func TestExpire_FirstFlipWins(t *testing.T) {
	s := NewCredentialStore()
	if !s.Expire() {
		t.Fatal("first Expire() = false; want true")
	}
	if s.Expire() {
		t.Error("second Expire() = true; want false")
	}
	if !s.Expired() {
		t.Error("Expired() = false after latch")
	}
}

func TestSetSession_ResetsExpiredLatch(t *testing.T) {
	s := NewCredentialStore()
	s.Expire()
	if err := s.SetSession("tok", "ref", "zoe"); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if s.Expired() {
		t.Error("Expired() = true after a fresh session")
	}
	if !s.Expire() {
		t.Error("Expire() after fresh session = false; want true (new episode)")
	}
}

func TestClear_DiscardsEverything(t *testing.T) {
	s := NewCredentialStore()
	_ = s.SetSession("tok", "ref", "zoe")
	s.Expire()

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.AuthHeader() != "" || s.Username() != "" {
		t.Error("Clear left session data behind")
	}
	if s.Expired() {
		t.Error("Clear did not reset the expired latch")
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	file := localstore.NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	s := NewCredentialStore(WithPersistence(file))
	if s.Restore() {
		t.Fatal("Restore on empty state = true; want false")
	}
	if err := s.SetSession("tok", "ref", "zoe"); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	// A new store over the same file sees the session.
	s2 := NewCredentialStore(WithPersistence(file))
	if !s2.Restore() {
		t.Fatal("Restore = false; want true")
	}
	if s2.AuthHeader() != "Bearer tok" {
		t.Errorf("restored AuthHeader = %q", s2.AuthHeader())
	}
	if s2.Username() != "zoe" {
		t.Errorf("restored Username = %q", s2.Username())
	}

	// Clear wipes the persisted copy too.
	if err := s2.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	s3 := NewCredentialStore(WithPersistence(file))
	if s3.Restore() {
		t.Error("Restore after Clear = true; want false")
	}
}

func TestGuard_NonUnauthorizedStatuses(t *testing.T) {
	store := NewCredentialStore()
	fired := 0
	g := NewResponseGuard(store, func() { fired++ })

	for _, code := range []int{http.StatusOK, http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError} {
		if g.Inspect(code) {
			t.Errorf("Inspect(%d) = true; want false", code)
		}
	}
	if fired != 0 {
		t.Errorf("callback fired %d times for non-401 statuses", fired)
	}
	if store.Expired() {
		t.Error("store latched without a 401")
	}
}

func TestGuard_FirstUnauthorizedLatchesAndNotifiesOnce(t *testing.T) {
	store := NewCredentialStore()
	fired := 0
	g := NewResponseGuard(store, func() { fired++ })

	if !g.Inspect(http.StatusUnauthorized) {
		t.Fatal("Inspect(401) = false; want true")
	}
	if !g.Inspect(http.StatusUnauthorized) {
		t.Fatal("repeat Inspect(401) = false; want true (still a 401)")
	}
	if fired != 1 {
		t.Errorf("callback fired %d times; want 1", fired)
	}
	if !store.Expired() {
		t.Error("store not latched after 401")
	}
}

func TestGuard_ConcurrentUnauthorized_SingleNotification(t *testing.T) {
	store := NewCredentialStore()
	var fired atomic.Int32
	g := NewResponseGuard(store, func() { fired.Add(1) })

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Inspect(http.StatusUnauthorized)
		}()
	}
	wg.Wait()

	if n := fired.Load(); n != 1 {
		t.Errorf("callback fired %d times under concurrent 401s; want 1", n)
	}
}
