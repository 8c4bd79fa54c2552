// Command smartchat is the terminal client for the SmartChat backend: a
// Bubble Tea chat UI with voice capture, speech playback, grammar checks, and
// subscription checkout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.opentelemetry.io/otel"

	"github.com/smartchat-ai/smartchat/internal/api"
	"github.com/smartchat-ai/smartchat/internal/auth"
	"github.com/smartchat-ai/smartchat/internal/capture"
	"github.com/smartchat-ai/smartchat/internal/chat"
	"github.com/smartchat-ai/smartchat/internal/checkout"
	"github.com/smartchat-ai/smartchat/internal/config"
	"github.com/smartchat-ai/smartchat/internal/diag"
	"github.com/smartchat-ai/smartchat/internal/localstore"
	"github.com/smartchat-ai/smartchat/internal/observe"
	"github.com/smartchat-ai/smartchat/internal/playback"
	"github.com/smartchat-ai/smartchat/internal/resilience"
	"github.com/smartchat-ai/smartchat/internal/transcript"
	"github.com/smartchat-ai/smartchat/internal/tui"
	"github.com/smartchat-ai/smartchat/pkg/audio"
	"github.com/smartchat-ai/smartchat/pkg/provider/stt"
	"github.com/smartchat-ai/smartchat/pkg/provider/stt/whisper"
	"github.com/smartchat-ai/smartchat/pkg/provider/tts"
	"github.com/smartchat-ai/smartchat/pkg/provider/tts/coqui"
	"github.com/smartchat-ai/smartchat/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	statePath := flag.String("state", "", "path to the local state file (default: ~/.config/smartchat/state.json)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "smartchat: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "smartchat: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The TUI owns the terminal, so log output goes to a file (or nowhere).
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smartchat: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("smartchat starting",
		"config", *configPath,
		"backend", cfg.Backend.BaseURL,
		"log_level", cfg.Log.Level,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "smartchat",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Local state and credentials ───────────────────────────────────────────
	local := localstore.NewFileStore(*statePath)
	dark := false
	if state, err := local.Load(); err == nil {
		dark = state.DarkMode
	}

	creds := auth.NewCredentialStore(auth.WithPersistence(local))
	if creds.Restore() {
		slog.Info("restored session", "username", creds.Username())
	}

	// ── Backend client ────────────────────────────────────────────────────────
	events := tui.NewEvents()
	guard := auth.NewResponseGuard(creds, events.SessionExpired)

	httpClient := &http.Client{
		Transport: observe.NewTransport(nil, metrics),
		Timeout:   60 * time.Second,
	}
	client, err := api.NewClient(cfg.Backend.BaseURL, creds, guard, api.WithHTTPClient(httpClient))
	if err != nil {
		slog.Error("failed to create backend client", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Voice pipeline (both halves optional) ─────────────────────────────────
	var captureCtl *capture.Controller
	if cfg.Providers.STT.Name != "" && cfg.Audio.Input.Name != "" {
		sttProv, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
			return 1
		}
		if fb := cfg.Providers.STTFallback; fb.Name != "" {
			fbProv, err := reg.CreateSTT(fb)
			if err != nil {
				slog.Error("failed to create stt fallback provider", "name", fb.Name, "err", err)
				return 1
			}
			group := resilience.NewSTTFallback(sttProv, cfg.Providers.STT.Name, resilience.FallbackConfig{})
			group.AddFallback(fb.Name, fbProv)
			sttProv = group
			slog.Info("stt failover enabled", "primary", cfg.Providers.STT.Name, "fallback", fb.Name)
		}
		source, err := reg.CreateSource(cfg.Audio.Input)
		if err != nil {
			slog.Error("failed to create audio source", "name", cfg.Audio.Input.Name, "err", err)
			return 1
		}
		defer source.Close()

		captureCtl = capture.NewController(sttProv, source,
			capture.WithStreamConfig(stt.StreamConfig{
				SampleRate: 16000,
				Channels:   1,
				Language:   cfg.Voice.Language,
			}),
			capture.WithMetrics(metrics),
			capture.WithOnText(events.CaptureText),
			capture.WithOnError(events.CaptureFailed),
		)
		slog.Info("voice capture ready", "stt", cfg.Providers.STT.Name, "input", cfg.Audio.Input.Name)
	}

	var playbackCtl *playback.Controller
	if cfg.Providers.TTS.Name != "" && cfg.Audio.Output.Name != "" {
		ttsProv, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			slog.Error("failed to create tts provider", "name", cfg.Providers.TTS.Name, "err", err)
			return 1
		}
		if fb := cfg.Providers.TTSFallback; fb.Name != "" {
			fbProv, err := reg.CreateTTS(fb)
			if err != nil {
				slog.Error("failed to create tts fallback provider", "name", fb.Name, "err", err)
				return 1
			}
			group := resilience.NewTTSFallback(ttsProv, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
			group.AddFallback(fb.Name, fbProv)
			ttsProv = group
			slog.Info("tts failover enabled", "primary", cfg.Providers.TTS.Name, "fallback", fb.Name)
		}
		sink, err := reg.CreateSink(cfg.Audio.Output)
		if err != nil {
			slog.Error("failed to create audio sink", "name", cfg.Audio.Output.Name, "err", err)
			return 1
		}
		defer sink.Close()

		playbackCtl = playback.NewController(ttsProv, sink,
			playback.WithVoice(tts.Voice{ID: cfg.Voice.VoiceID, Provider: cfg.Providers.TTS.Name}),
			playback.WithMetrics(metrics),
			playback.WithOnChange(events.StateChanged),
		)
		slog.Info("speech playback ready", "tts", cfg.Providers.TTS.Name, "output", cfg.Audio.Output.Name)
	}

	// ── Conversation coordinators ─────────────────────────────────────────────
	store := transcript.NewStore()

	sendOpts := []chat.SendOption{
		chat.WithSendMetrics(metrics),
		chat.WithOnChange(events.StateChanged),
	}
	if playbackCtl != nil {
		sendOpts = append(sendOpts, chat.WithSpeaker(playbackCtl))
	}
	sender := chat.NewSendCoordinator(client, store, sendOpts...)

	grammar := chat.NewGrammarCoordinator(client, store,
		chat.WithGrammarMetrics(metrics),
		chat.WithGrammarOnChange(events.StateChanged),
	)

	// ── Checkout ──────────────────────────────────────────────────────────────
	var checkoutSvc checkout.Service
	if cfg.Payment.Amount > 0 {
		var opts []checkout.StripeOption
		if cfg.Payment.PaymentMethod != "" {
			opts = append(opts, checkout.WithPaymentMethod(cfg.Payment.PaymentMethod))
		}
		checkoutSvc = checkout.NewStripeService(opts...)
	}

	// ── Diagnostics endpoint (optional) ───────────────────────────────────────
	if cfg.Metrics.ListenAddr != "" {
		diagSrv := diag.NewServer(cfg.Metrics.ListenAddr,
			diag.BackendCheck(cfg.Backend.BaseURL, httpClient),
		)
		diagSrv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := diagSrv.Shutdown(ctx); err != nil {
				slog.Warn("diagnostics shutdown error", "err", err)
			}
		}()
	}

	// ── UI ────────────────────────────────────────────────────────────────────
	deps := tui.Deps{
		Account:       client,
		Sender:        sender,
		Grammar:       grammar,
		Checkout:      checkoutSvc,
		Creds:         creds,
		Store:         store,
		Local:         local,
		PaymentAmount: cfg.Payment.Amount,
	}
	// Interface-typed fields must stay nil unless a controller exists; a typed
	// nil pointer would make the UI think voice is available.
	if captureCtl != nil {
		deps.Capture = captureCtl
	}
	if playbackCtl != nil {
		deps.Playback = playbackCtl
	}

	program := tea.NewProgram(tui.New(deps, events, dark),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := program.Run(); err != nil {
		slog.Error("ui error", "err", err)
		return 1
	}

	// ── Teardown ──────────────────────────────────────────────────────────────
	if captureCtl != nil {
		captureCtl.Stop()
	}
	if playbackCtl != nil {
		playbackCtl.Stop()
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// SmartChat into reg. Each factory receives a config.ProviderEntry and
// constructs the provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Audio devices ─────────────────────────────────────────────────────────
	// "command" pipes PCM through an external recorder/player (arecord, sox,
	// aplay, …), which keeps the binary free of cgo audio backends.

	reg.RegisterSource("command", func(entry config.ProviderEntry) (audio.Source, error) {
		name, args, err := commandLine(entry)
		if err != nil {
			return nil, err
		}
		return audio.NewCommandSource(name, args, commandFormat(entry, 16000, 1)), nil
	})

	reg.RegisterSink("command", func(entry config.ProviderEntry) (audio.Sink, error) {
		name, args, err := commandLine(entry)
		if err != nil {
			return nil, err
		}
		return audio.NewCommandSink(name, args, commandFormat(entry, 16000, 1)), nil
	})
}

// commandLine extracts the external command from a provider entry's options.
func commandLine(entry config.ProviderEntry) (string, []string, error) {
	raw := optString(entry.Options, "command")
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("audio provider %q requires options.command", entry.Name)
	}
	return fields[0], fields[1:], nil
}

// commandFormat reads the PCM format for a command device, with defaults.
func commandFormat(entry config.ProviderEntry, rate, channels int) audio.Format {
	if v := optInt(entry.Options, "sample_rate"); v > 0 {
		rate = v
	}
	if v := optInt(entry.Options, "channels"); v > 0 {
		channels = v
	}
	return audio.Format{SampleRate: rate, Channels: channels}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the slog handler for a TUI process: text format into the
// configured log file, or a discard handler when no file is set.
func newLogger(cfg config.LogConfig) (*slog.Logger, func(), error) {
	var lvl slog.Level
	switch cfg.Level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = io.Discard
	closeLog := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", cfg.File, err)
		}
		out = f
		closeLog = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), closeLog, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an integer from a provider Options map. YAML decodes bare
// numbers as int, so only that case is handled.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	v, ok := opts[key]
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}
