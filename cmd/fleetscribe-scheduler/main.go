// Command fleetscribe-scheduler scans for bots whose scheduled join time has
// arrived and spawns one fleetscribe runtime process per due bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetscribe/fleetscribe/internal/config"
	"github.com/fleetscribe/fleetscribe/internal/observe"
	"github.com/fleetscribe/fleetscribe/internal/scheduler"
	"github.com/fleetscribe/fleetscribe/internal/store"
	"github.com/fleetscribe/fleetscribe/internal/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fleetscribe-scheduler: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fleetscribe-scheduler: %v\n", err)
		}
		return 1
	}
	if cfg.Postgres.DSN == "" {
		fmt.Fprintln(os.Stderr, "fleetscribe-scheduler: postgres dsn is required")
		return 1
	}
	if cfg.Scheduler.LaunchCommand == "" {
		fmt.Fprintln(os.Stderr, "fleetscribe-scheduler: scheduler.launch_command is required")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("fleetscribe-scheduler starting",
		"config", *configPath,
		"launch_command", cfg.Scheduler.LaunchCommand,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "fleetscribe-scheduler",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
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
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	st, err := postgres.NewStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		return 1
	}
	defer st.Close()

	// ── Scheduler ─────────────────────────────────────────────────────────────
	var opts []scheduler.Option
	opts = append(opts, scheduler.WithLogger(logger))
	if cfg.Scheduler.ScanIntervalSeconds > 0 {
		opts = append(opts, scheduler.WithInterval(time.Duration(cfg.Scheduler.ScanIntervalSeconds)*time.Second))
	}

	sched := scheduler.New(st, processLauncher(cfg.Scheduler.LaunchCommand, logger), opts...)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduler stopped", "error", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// processLauncher execs the configured launch command with the bot id
// appended as the final argument. The child is detached from the scan loop:
// it outlives the launching scan and is reaped in the background.
func processLauncher(command string, log *slog.Logger) scheduler.LauncherFunc {
	return func(_ context.Context, bot store.Bot) error {
		parts := strings.Fields(command)
		if len(parts) == 0 {
			return errors.New("empty launch command")
		}
		args := append(parts[1:], bot.ID)

		cmd := exec.Command(parts[0], args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start %q: %w", parts[0], err)
		}

		go func() {
			if err := cmd.Wait(); err != nil {
				log.Warn("bot process exited with error", "bot_id", bot.ID, "error", err)
			}
		}()
		return nil
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
