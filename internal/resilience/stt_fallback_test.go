package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/smartchat-ai/smartchat/pkg/provider/stt"
	sttmock "github.com/smartchat-ai/smartchat/pkg/provider/stt/mock"
)

func TestSTTFallback_StartStream_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Session: sttmock.NewSession()}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper-native", secondary)

	handle, err := fb.StartStream(context.Background(), stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if got := primary.StartStreamCallCount(); got != 1 {
		t.Fatalf("primary called %d times, want 1", got)
	}
	if got := secondary.StartStreamCallCount(); got != 0 {
		t.Fatalf("secondary called %d times, want 0", got)
	}
	_ = handle.Close()
}

func TestSTTFallback_StartStream_Failover(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: errors.New("server down")}
	secondary := &sttmock.Provider{Session: sttmock.NewSession()}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper-native", secondary)

	handle, err := fb.StartStream(context.Background(), stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if got := secondary.StartStreamCallCount(); got != 1 {
		t.Fatalf("secondary called %d times, want 1", got)
	}
	_ = handle.Close()
}

func TestSTTFallback_StartStream_AllFail(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: errors.New("server down")}
	secondary := &sttmock.Provider{StartStreamErr: errors.New("model missing")}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper-native", secondary)

	_, err := fb.StartStream(context.Background(), stt.StreamConfig{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: errors.New("server down")}
	secondary := &sttmock.Provider{Session: sttmock.NewSession()}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback("whisper-native", secondary)

	// Two failing session starts trip the primary's breaker.
	for range 2 {
		if _, err := fb.StartStream(context.Background(), stt.StreamConfig{}); err != nil {
			t.Fatalf("unexpected error while tripping breaker: %v", err)
		}
	}
	if got := primary.StartStreamCallCount(); got != 2 {
		t.Fatalf("primary called %d times, want 2", got)
	}

	// Third start must go straight to the fallback without touching the primary.
	if _, err := fb.StartStream(context.Background(), stt.StreamConfig{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := primary.StartStreamCallCount(); got != 2 {
		t.Fatalf("primary called %d times after breaker opened, want 2", got)
	}
	if got := secondary.StartStreamCallCount(); got != 3 {
		t.Fatalf("secondary called %d times, want 3", got)
	}
}
