package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/fleetscribe/fleetscribe/internal/config"
	"github.com/fleetscribe/fleetscribe/internal/store"
	"github.com/fleetscribe/fleetscribe/internal/store/memstore"
)

func TestBuildRTMPDestinationIncludesStreamKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := memstore.New()
	bot, err := st.CreateBot(ctx, store.Bot{
		ID:          "bot-rtmp",
		MeetingURL:  "https://zoom.us/j/123456789",
		DisplayName: "Streamer",
		Settings: store.BotSettings{
			RTMP: &store.RTMPSettings{
				DestinationURL: "rtmp://example.com/live/stream",
				StreamKey:      "1234",
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateBot: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sc, err := buildSupervisorConfig(ctx, &config.Config{}, st, nil, config.NewRegistry(), bot.ID, log)
	if err != nil {
		t.Fatalf("buildSupervisorConfig: %v", err)
	}

	if sc.RTMP == nil {
		t.Fatal("no rtmp forwarder assembled")
	}
	if sc.Pipeline == nil {
		t.Fatal("no encoder pipeline assembled")
	}
	// The destination reported in failure metadata is the key-joined URL the
	// forwarder dials, not the bare destination.
	if want := "rtmp://example.com/live/stream/1234"; sc.RTMPDestination != want {
		t.Errorf("RTMPDestination = %q, want %q", sc.RTMPDestination, want)
	}
}

func TestParseResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in           string
		wantW, wantH int
	}{
		{"1920x1080", 1920, 1080},
		{"640x480", 640, 480},
		{"", defaultWidth, defaultHeight},
		{"garbage", defaultWidth, defaultHeight},
		{"0x0", defaultWidth, defaultHeight},
	}
	for _, tt := range tests {
		w, h := parseResolution(tt.in)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("parseResolution(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.wantW, tt.wantH)
		}
	}
}
