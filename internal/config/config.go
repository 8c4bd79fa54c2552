// Package config provides the configuration schema, loader, and provider
// registry for the SmartChat client.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for SmartChat.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Log       LogConfig       `yaml:"log"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Voice     VoiceConfig     `yaml:"voice"`
	Payment   PaymentConfig   `yaml:"payment"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// BackendConfig locates the SmartChat backend.
type BackendConfig struct {
	// BaseURL is the backend root (e.g., "https://api.smartchat.example").
	BaseURL string `yaml:"base_url"`
}

// LogConfig controls structured logging. The TUI owns the terminal, so logs
// go to a file.
type LogConfig struct {
	// Level controls verbosity. Defaults to info.
	Level LogLevel `yaml:"level"`

	// File is the log file path. Empty discards log output while the UI is
	// running.
	File string `yaml:"file"`
}

// ProvidersConfig declares which provider implementation to use for each
// speech stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`

	// STTFallback, when named, is a second transcription backend tried when
	// the primary fails to open a session (circuit-breaker failover).
	STTFallback ProviderEntry `yaml:"stt_fallback"`

	// TTSFallback, when named, is a second synthesis backend tried when the
	// primary fails to start a stream. It must emit the same PCM format as
	// the primary.
	TTSFallback ProviderEntry `yaml:"tts_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper",
	// "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., a whisper
	// model path or an ElevenLabs model id).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or
	// nested maps.
	Options map[string]any `yaml:"options"`
}

// AudioConfig selects the capture and playback devices.
type AudioConfig struct {
	// Input is the microphone-side source (e.g., "command").
	Input ProviderEntry `yaml:"input"`

	// Output is the speaker-side sink (e.g., "command").
	Output ProviderEntry `yaml:"output"`
}

// VoiceConfig specifies the synthesis voice for assistant replies.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Language is the recognition language hint (e.g., "en"). Empty lets the
	// provider decide.
	Language string `yaml:"language"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means
	// provider default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// PaymentConfig configures the subscription checkout flow.
type PaymentConfig struct {
	// Amount is the subscription price in minor currency units.
	Amount int64 `yaml:"amount"`

	// PaymentMethod is a saved provider payment method id used to confirm
	// orders.
	PaymentMethod string `yaml:"payment_method"`
}

// MetricsConfig controls the optional Prometheus scrape endpoint.
type MetricsConfig struct {
	// ListenAddr serves /metrics when non-empty (e.g., "127.0.0.1:9090").
	ListenAddr string `yaml:"listen_addr"`
}
