package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fleetscribe/fleetscribe/internal/autoleave"
	"github.com/fleetscribe/fleetscribe/internal/store"
	"github.com/fleetscribe/fleetscribe/pkg/meeting"
	"github.com/fleetscribe/fleetscribe/pkg/meeting/browser"
	"github.com/fleetscribe/fleetscribe/pkg/meeting/gmeet"
	"github.com/fleetscribe/fleetscribe/pkg/meeting/teams"
	"github.com/fleetscribe/fleetscribe/pkg/meeting/zoom"
)

// Session constructors are installed by the build that links the platform
// driver glue (the native meeting SDK for Zoom, the headless browser for
// Meet and Teams). The adapters themselves are SDK-agnostic; only these
// hooks touch driver code.
var (
	newZoomSession    func(ctx context.Context, log *slog.Logger) (zoom.Session, error)
	newBrowserSession func(ctx context.Context, platform meeting.Type, log *slog.Logger) (browser.Session, error)
)

// adapterFactory returns the supervisor's adapter constructor for the bot's
// platform. The factory runs once, after the supervisor has its callbacks
// assembled.
func adapterFactory(ctx context.Context, bot store.Bot, platform meeting.Type, log *slog.Logger) func(cb meeting.Callbacks) (meeting.Adapter, error) {
	return func(cb meeting.Callbacks) (meeting.Adapter, error) {
		leave := autoleave.FromSettings(bot.Settings.AutoLeave)

		switch platform {
		case meeting.TypeZoom:
			if newZoomSession == nil {
				return nil, fmt.Errorf("no zoom driver linked into this build")
			}
			session, err := newZoomSession(ctx, log)
			if err != nil {
				return nil, fmt.Errorf("create zoom session: %w", err)
			}
			meetingID, password, err := zoom.ParseURL(bot.MeetingURL)
			if err != nil {
				return nil, err
			}
			return zoom.New(zoom.Config{
				MeetingID:   meetingID,
				Password:    password,
				DisplayName: bot.DisplayName,
				Session:     session,
				Callbacks:   cb,
				AutoLeave:   leave,
				Logger:      log,
			})

		case meeting.TypeMeet, meeting.TypeTeams:
			if newBrowserSession == nil {
				return nil, fmt.Errorf("no browser driver linked into this build")
			}
			session, err := newBrowserSession(ctx, platform, log)
			if err != nil {
				return nil, fmt.Errorf("create browser session: %w", err)
			}
			bcfg := browser.Config{
				Platform:    platform,
				MeetingURL:  bot.MeetingURL,
				DisplayName: bot.DisplayName,
				Session:     session,
				Callbacks:   cb,
				AutoLeave:   leave,
				Logger:      log,
			}
			if platform == meeting.TypeMeet {
				return gmeet.New(bcfg)
			}
			return teams.New(bcfg)

		default:
			return nil, fmt.Errorf("unsupported platform %q", platform)
		}
	}
}
