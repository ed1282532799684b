package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/fleetscribe/fleetscribe/internal/config"
	"github.com/fleetscribe/fleetscribe/internal/media"
	"github.com/fleetscribe/fleetscribe/internal/store"
	"github.com/fleetscribe/fleetscribe/internal/supervisor"
	"github.com/fleetscribe/fleetscribe/internal/uploader"
	"github.com/fleetscribe/fleetscribe/internal/webhook"
	"github.com/fleetscribe/fleetscribe/pkg/meeting"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
)

// buildSupervisorConfig assembles everything the supervisor needs for one
// bot: the media pipeline matching the bot's settings, the transcription and
// TTS providers, the recording uploader and the webhook dispatcher.
func buildSupervisorConfig(ctx context.Context, cfg *config.Config, st store.Store, rdb *redis.Client, reg *config.Registry, botID string, log *slog.Logger) (supervisor.Config, error) {
	bot, err := st.GetBot(ctx, botID)
	if err != nil {
		return supervisor.Config{}, fmt.Errorf("load bot %q: %w", botID, err)
	}
	settings := bot.Settings

	platform, err := meeting.TypeFromURL(bot.MeetingURL)
	if err != nil {
		return supervisor.Config{}, err
	}

	rec, err := st.DefaultRecording(ctx, bot.ID)
	if err != nil {
		return supervisor.Config{}, fmt.Errorf("load recording: %w", err)
	}

	pcfg := media.ConfigurationFor(settings)
	caps, err := pcfg.Caps()
	if err != nil {
		return supervisor.Config{}, err
	}
	log.Info("pipeline configuration resolved",
		"configuration", string(pcfg),
		"platform", string(platform))

	sc := supervisor.Config{
		Store:    st,
		BotID:    bot.ID,
		Platform: platform,
		Redis:    rdb,
		Webhooks: webhook.NewDispatcher(st, webhook.WithLogger(log)),
	}

	// ── Transcription providers ───────────────────────────────────────────────
	if caps.TranscribeAudio && settings.TranscriptionType != store.TranscriptionNone {
		entry := cfg.Providers.Transcription
		if settings.Transcription.Provider != "" {
			entry.Name = settings.Transcription.Provider
		}
		if settings.Transcription.Model != "" {
			entry.Model = settings.Transcription.Model
		}
		if entry.Name != "" {
			batch, err := reg.CreateBatchTranscriber(entry)
			if errors.Is(err, config.ErrProviderNotRegistered) {
				log.Warn("transcription provider not available, skipping", "name", entry.Name)
			} else if err != nil {
				return supervisor.Config{}, fmt.Errorf("create transcription provider %q: %w", entry.Name, err)
			} else {
				sc.Transcriber = batch
			}

			if settings.TranscriptionType == store.TranscriptionRealtime {
				streaming, err := reg.CreateStreamingTranscriber(entry)
				if errors.Is(err, config.ErrProviderNotRegistered) {
					log.Warn("provider has no realtime mode, transcribing per utterance", "name", entry.Name)
				} else if err != nil {
					return supervisor.Config{}, fmt.Errorf("create realtime transcriber %q: %w", entry.Name, err)
				} else {
					sc.Streaming = streaming
				}
			}
		}
	}

	// ── TTS ───────────────────────────────────────────────────────────────────
	if name := cfg.Providers.TTS.Name; name != "" {
		synth, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			log.Warn("tts provider not available, speech requests disabled", "name", name)
		} else if err != nil {
			return supervisor.Config{}, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			sc.Synth = synth
		}
	}

	// ── Media ─────────────────────────────────────────────────────────────────
	width, height := parseResolution(settings.Resolution)
	format := settings.RecordingFormat
	if format == "" {
		format = store.FormatMP4
		if settings.AudioOnly {
			format = store.FormatMP3
		}
	}

	switch {
	case caps.RTMPStreamAudio || caps.RTMPStreamVideo:
		// The fatal-error metadata carries the same key-joined URL the
		// forwarder dials.
		dest := media.RTMPURL(settings.RTMP.DestinationURL, settings.RTMP.StreamKey)
		fwd := media.NewRTMPForwarder(dest, log)
		sc.RTMP = fwd
		sc.RTMPDestination = dest
		pipe, err := media.NewPipeline(media.PipelineOptions{
			Configuration:   pcfg,
			Format:          store.FormatFLV,
			Width:           width,
			Height:          height,
			AudioSampleRate: platform.IngestSampleRate(),
			Sink:            func(data []byte) { fwd.Write(data) },
			Logger:          log,
		})
		if err != nil {
			return supervisor.Config{}, err
		}
		sc.Pipeline = pipe

	case caps.RecordAudio || caps.RecordVideo:
		out := uploader.LocalPath(rec.ID, string(format))
		if platform.BrowserBased() {
			// Browser platforms render into an X display; capture it
			// wholesale instead of encoding raw frames.
			sc.Recorder = media.NewScreenRecorder(media.ScreenRecorderOptions{
				Display:    os.Getenv("DISPLAY"),
				Width:      width,
				Height:     height,
				AudioOnly:  !caps.RecordVideo,
				OutputPath: out,
				Logger:     log,
			})
		} else {
			pipe, err := media.NewPipeline(media.PipelineOptions{
				Configuration:   pcfg,
				Format:          format,
				Width:           width,
				Height:          height,
				AudioSampleRate: platform.IngestSampleRate(),
				OutputPath:      out,
				Logger:          log,
			})
			if err != nil {
				return supervisor.Config{}, err
			}
			sc.Pipeline = pipe
		}
		sc.RecordingPath = out
	}

	if settings.DebugCapture {
		sc.DebugRecordingPath = uploader.LocalPath(rec.ID+"-debug", "mkv")
	}

	// ── Websocket audio egress ────────────────────────────────────────────────
	if caps.WebsocketStreamAudio && settings.Websocket != nil {
		conn, err := media.DialWS(ctx, settings.Websocket.AudioURL)
		if err != nil {
			return supervisor.Config{}, fmt.Errorf("dial websocket egress: %w", err)
		}
		egress, err := media.NewWSEgress(conn, log)
		if err != nil {
			return supervisor.Config{}, err
		}
		sc.Egress = egress
	}

	// ── Recording uploader ────────────────────────────────────────────────────
	if cfg.Storage.Bucket != "" && sc.RecordingPath != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
		if err != nil {
			return supervisor.Config{}, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Storage.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
				o.UsePathStyle = true
			}
		})
		sc.Uploader = uploader.NewS3(client, cfg.Storage.Bucket, log)
	}

	sc.NewAdapter = adapterFactory(ctx, bot, platform, log)
	return sc, nil
}

// parseResolution parses "1280x720" style strings, falling back to the
// default geometry on anything malformed.
func parseResolution(s string) (width, height int) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return defaultWidth, defaultHeight
	}
	width, errW := strconv.Atoi(strings.TrimSpace(w))
	height, errH := strconv.Atoi(strings.TrimSpace(h))
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return defaultWidth, defaultHeight
	}
	return width, height
}
