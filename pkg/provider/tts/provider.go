// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, or a
// local engine) and presents a uniform streaming interface. The entry point
// is SynthesizeStream, which accepts a channel of text fragments and returns
// a channel of raw PCM audio bytes as they become available, so playback can
// begin before the full reply has been synthesised.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/smartchat-ai/smartchat/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel, though the playback controller only ever
// keeps one audible.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw PCM audio byte slices as they are
	// synthesised.
	//
	// The returned audio channel is closed by the implementation when all
	// text has been synthesised or when ctx is cancelled. The caller must
	// drain the audio channel to avoid blocking the provider's internal
	// goroutines.
	//
	// voice specifies the voice to use. Providers should return an error if
	// the requested voice is not available.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered mid-synthesis are signalled by closing the audio channel
	// early; callers should check ctx.Err() to distinguish cancellation from
	// provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice Voice) (<-chan []byte, error)

	// OutputFormat reports the PCM format of the audio emitted by
	// SynthesizeStream, so the caller can frame it for the playback sink.
	OutputFormat() audio.Format

	// ListVoices returns all voices available from this provider. The list
	// reflects the provider's current catalogue and may change between calls.
	ListVoices(ctx context.Context) ([]Voice, error)
}
