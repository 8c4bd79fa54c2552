package resilience

import (
	"context"

	"github.com/smartchat-ai/smartchat/pkg/audio"
	"github.com/smartchat-ai/smartchat/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// synthesis backends. Each backend has its own circuit breaker.
//
// All backends in the group must emit the same PCM format: the playback sink is
// opened once with [TTSFallback.OutputFormat], so a fallback that synthesised at
// a different rate would play at the wrong speed.
type TTSFallback struct {
	group   *FallbackGroup[tts.Provider]
	primary tts.Provider
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group:   NewFallbackGroup(primary, primaryName, cfg),
		primary: primary,
	}
}

// AddFallback registers an additional TTS provider. Fallbacks are tried in
// registration order after the primary.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SynthesizeStream starts synthesis on the first healthy backend. Only stream
// setup is covered by failover; once a backend has accepted the text channel,
// mid-stream errors surface to the caller as an early channel close.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.Voice) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// OutputFormat reports the primary backend's PCM format, which every backend in
// the group is required to match.
func (f *TTSFallback) OutputFormat() audio.Format {
	return f.primary.OutputFormat()
}

// ListVoices returns the voice catalogue of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}
