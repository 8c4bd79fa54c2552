package resilience

import (
	"context"

	"github.com/smartchat-ai/smartchat/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// transcription backends, e.g. a whisper-server primary with the in-process
// bindings as a local fallback. Each backend has its own circuit breaker.
//
// Failover covers session setup only: once StartStream has handed out a
// [stt.SessionHandle], a mid-session failure ends that session and the capture
// layer's restart opens a fresh one, which is when the group re-evaluates which
// backend is healthy.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider. Fallbacks are tried in
// registration order after the primary.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream opens a streaming transcription session against the first healthy
// backend.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
