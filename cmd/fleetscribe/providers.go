package main

import (
	"log/slog"

	"github.com/fleetscribe/fleetscribe/internal/config"
	"github.com/fleetscribe/fleetscribe/pkg/provider/transcribe"
	"github.com/fleetscribe/fleetscribe/pkg/provider/transcribe/deepgram"
	"github.com/fleetscribe/fleetscribe/pkg/provider/transcribe/whisperapi"
	"github.com/fleetscribe/fleetscribe/pkg/provider/transcribe/whispercpp"
	"github.com/fleetscribe/fleetscribe/pkg/provider/tts"
	"github.com/fleetscribe/fleetscribe/pkg/provider/tts/elevenlabs"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider kinds to the implementations that ship with
// fleetscribe. Used for startup logging.
var builtinProviders = map[string][]string{
	"transcription":          {"deepgram", "whisper", "whisper-native"},
	"transcription-realtime": {"deepgram"},
	"tts":                    {"elevenlabs"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Transcription (batch) ─────────────────────────────────────────────────

	reg.RegisterBatchTranscriber("deepgram", func(entry config.ProviderEntry) (transcribe.Batch, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterBatchTranscriber("whisper", func(entry config.ProviderEntry) (transcribe.Batch, error) {
		var opts []whisperapi.Option
		if entry.BaseURL != "" {
			opts = append(opts, whisperapi.WithBaseURL(entry.BaseURL))
		}
		return whisperapi.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterBatchTranscriber("whisper-native", func(entry config.ProviderEntry) (transcribe.Batch, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whispercpp.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whispercpp.WithLanguage(lang))
		}
		return whispercpp.New(modelPath, opts...)
	})

	// ── Transcription (realtime) ──────────────────────────────────────────────
	// Only deepgram streams; whisper bots fall back to non-realtime.

	reg.RegisterStreamingTranscriber("deepgram", func(entry config.ProviderEntry) (transcribe.Streaming, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if voice := optString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
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
