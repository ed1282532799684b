// Command fleetscribe runs one meeting bot: it loads the bot row, assembles
// the media pipeline and providers the bot's settings call for, and hands
// everything to the supervisor for the bot's lifetime. One process, one bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fleetscribe/fleetscribe/internal/config"
	"github.com/fleetscribe/fleetscribe/internal/credits"
	"github.com/fleetscribe/fleetscribe/internal/observe"
	"github.com/fleetscribe/fleetscribe/internal/store"
	"github.com/fleetscribe/fleetscribe/internal/store/memstore"
	"github.com/fleetscribe/fleetscribe/internal/store/postgres"
	"github.com/fleetscribe/fleetscribe/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	botID := flag.String("bot", "", "id of the bot to attend")
	flag.Parse()

	if *botID == "" {
		fmt.Fprintln(os.Stderr, "fleetscribe: -bot is required")
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fleetscribe: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fleetscribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can change it while
	// the bot is attending.
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("fleetscribe starting",
		"config", *configPath,
		"bot_id", *botID,
		"log_level", cfg.Server.LogLevel,
	)

	// The charger is wired below; the watcher closure sees it through this
	// variable so feature flips reach it without a restart.
	var charger *credits.Charger

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.FeaturesChanged && charger != nil {
			charger.SetEnabled(d.NewFeatures.ChargeCredits)
			slog.Info("feature flags reloaded", "charge_credits", d.NewFeatures.ChargeCredits)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	// The supervisor installs its own SIGTERM/SIGINT handling so a signal
	// becomes a fatal event with full cleanup rather than an abrupt exit;
	// this context only scopes setup and background workers.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "fleetscribe",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer flushCancel()
		if err := shutdownOtel(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv := &http.Server{
			Addr:    cfg.Server.MetricsAddr,
			Handler: observe.Middleware(observe.DefaultMetrics())(mux),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		slog.Info("metrics endpoint up", "addr", cfg.Server.MetricsAddr)
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	var st store.Store
	if cfg.Postgres.DSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			return 1
		}
		defer pg.Close()
		st = pg
	} else {
		slog.Warn("no postgres dsn configured, falling back to the in-memory store")
		st = memstore.New()
	}

	charger = credits.NewCharger(st, cfg.Features.ChargeCredits, logger, nil)
	st.OnTerminal(charger.OnTerminal)

	// ── Redis command channel ─────────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	} else {
		slog.Warn("no redis configured, bot commands are disabled")
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Supervisor ────────────────────────────────────────────────────────────
	supCfg, err := buildSupervisorConfig(ctx, cfg, st, rdb, reg, *botID, logger)
	if err != nil {
		slog.Error("failed to assemble bot", "error", err)
		return 1
	}

	sup, err := supervisor.New(ctx, supCfg, supervisor.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create supervisor", "error", err)
		return 1
	}

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("bot run failed", "error", err)
		return 1
	}

	slog.Info("bot finished")
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
