package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartchat-ai/smartchat/pkg/audio"
	audiomock "github.com/smartchat-ai/smartchat/pkg/audio/mock"
	"github.com/smartchat-ai/smartchat/pkg/provider/stt"
	sttmock "github.com/smartchat-ai/smartchat/pkg/provider/stt/mock"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartStop_SingleSession(t *testing.T) {
	sess := sttmock.NewSession()
	provider := &sttmock.Provider{Session: sess}
	source := audiomock.NewSource()
	c := NewController(provider, source)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Capturing() {
		t.Error("Capturing() = false after Start")
	}
	waitFor(t, "session start", func() bool { return provider.StartStreamCallCount() == 1 })

	c.Stop()
	if c.Capturing() {
		t.Error("Capturing() = true after Stop")
	}
	if got := provider.StartStreamCallCount(); got != 1 {
		t.Errorf("StartStream called %d times; want 1 (no restart on explicit stop)", got)
	}
	if sess.CloseCallCount == 0 {
		t.Error("session not closed on Stop")
	}
}

func TestStop_Idempotent(t *testing.T) {
	provider := &sttmock.Provider{}
	c := NewController(provider, audiomock.NewSource())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	c.Stop()
}

func TestStart_WhileRunningFails(t *testing.T) {
	provider := &sttmock.Provider{}
	c := NewController(provider, audiomock.NewSource())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if err := c.Start(context.Background()); err == nil {
		t.Error("second Start succeeded; want error")
	}
}

func TestSpontaneousEnd_RestartsWhileCapturing(t *testing.T) {
	s1 := sttmock.NewSession()
	s2 := sttmock.NewSession()
	provider := &sttmock.Provider{Sessions: []stt.SessionHandle{s1, s2}}
	source := audiomock.NewSource()
	c := NewController(provider, source)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	waitFor(t, "first session", func() bool { return provider.StartStreamCallCount() == 1 })

	// The engine ends the session on its own; capture is still wanted, so a
	// replacement session must be started.
	s1.End()
	waitFor(t, "restart", func() bool { return provider.StartStreamCallCount() == 2 })

	if !c.Capturing() {
		t.Error("Capturing() = false after spontaneous session end")
	}
}

func TestExplicitStop_DoesNotRestart(t *testing.T) {
	s1 := sttmock.NewSession()
	s2 := sttmock.NewSession()
	provider := &sttmock.Provider{Sessions: []stt.SessionHandle{s1, s2}}
	c := NewController(provider, audiomock.NewSource())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "session start", func() bool { return provider.StartStreamCallCount() == 1 })

	c.Stop()
	// Give a would-be restart a moment to happen; it must not.
	time.Sleep(50 * time.Millisecond)
	if got := provider.StartStreamCallCount(); got != 1 {
		t.Errorf("StartStream called %d times after Stop; want 1", got)
	}
}

func TestFramesArePumpedIntoSession(t *testing.T) {
	sess := sttmock.NewSession()
	provider := &sttmock.Provider{Session: sess}
	source := audiomock.NewSource()
	c := NewController(provider, source)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	waitFor(t, "session start", func() bool { return provider.StartStreamCallCount() == 1 })

	frame := audio.Frame{Data: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1}
	waitFor(t, "frame delivery", func() bool {
		source.Emit(frame)
		return sess.SendAudioCallCount() > 0
	})
}

func TestTranscriptComposition(t *testing.T) {
	sess := sttmock.NewSession()
	provider := &sttmock.Provider{Session: sess}

	var mu sync.Mutex
	var updates []string
	c := NewController(provider, audiomock.NewSource(), WithOnText(func(text string) {
		mu.Lock()
		updates = append(updates, text)
		mu.Unlock()
	}))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	waitFor(t, "session start", func() bool { return provider.StartStreamCallCount() == 1 })

	// Interim results overwrite each other; finals accumulate.
	sess.PartialsCh <- stt.Transcript{Text: "hel"}
	sess.PartialsCh <- stt.Transcript{Text: "hello"}
	sess.FinalsCh <- stt.Transcript{Text: "hello world", IsFinal: true}
	waitFor(t, "final transcript", func() bool { return c.Text() == "hello world" })

	sess.PartialsCh <- stt.Transcript{Text: "how are"}
	waitFor(t, "composed transcript", func() bool { return c.Text() == "hello world how are" })

	mu.Lock()
	defer mu.Unlock()
	var sawOverwrite bool
	for _, u := range updates {
		if u == "hello" {
			sawOverwrite = true
		}
		if u == "hel hello" {
			t.Errorf("interim results were concatenated: %q", u)
		}
	}
	if !sawOverwrite {
		t.Errorf("never saw the overwritten interim; updates = %q", updates)
	}
}

func TestReset_ClearsComposedText(t *testing.T) {
	sess := sttmock.NewSession()
	provider := &sttmock.Provider{Session: sess}
	c := NewController(provider, audiomock.NewSource())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	waitFor(t, "session start", func() bool { return provider.StartStreamCallCount() == 1 })

	sess.FinalsCh <- stt.Transcript{Text: "hello world", IsFinal: true}
	waitFor(t, "final transcript", func() bool { return c.Text() == "hello world" })

	c.Reset()
	if got := c.Text(); got != "" {
		t.Errorf("Text() = %q after Reset; want \"\"", got)
	}
}

func TestStartStreamFailure_StopsCapture(t *testing.T) {
	provider := &sttmock.Provider{StartStreamErr: errors.New("no engine")}
	c := NewController(provider, audiomock.NewSource())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "capture shutdown", func() bool { return !c.Capturing() })
}

func TestStartStreamFailure_NotifiesOnError(t *testing.T) {
	provider := &sttmock.Provider{StartStreamErr: errors.New("no engine")}

	var mu sync.Mutex
	var errs []error
	var stillCapturing bool
	var c *Controller
	c = NewController(provider, audiomock.NewSource(), WithOnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		stillCapturing = c.Capturing()
		mu.Unlock()
	}))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "error callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) > 0
	})

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Fatalf("onError fired %d times; want 1", len(errs))
	}
	if !errors.Is(errs[0], provider.StartStreamErr) {
		t.Errorf("onError err = %v; want the stream-start failure", errs[0])
	}
	// The flag is cleared before the callback so the UI sees the truth.
	if stillCapturing {
		t.Error("Capturing() = true inside the error callback")
	}
}

func TestStreamConfigIsForwarded(t *testing.T) {
	provider := &sttmock.Provider{}
	cfg := stt.StreamConfig{SampleRate: 48000, Channels: 2, Language: "de"}
	c := NewController(provider, audiomock.NewSource(), WithStreamConfig(cfg))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	waitFor(t, "session start", func() bool { return provider.StartStreamCallCount() == 1 })

	got := provider.StartStreamCalls[0].Cfg
	if got != cfg {
		t.Errorf("StreamConfig = %+v; want %+v", got, cfg)
	}
}
