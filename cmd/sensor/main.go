package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calewis/yahoo-matchup/internal/app"
	"github.com/calewis/yahoo-matchup/internal/config"
	"github.com/calewis/yahoo-matchup/internal/observability"
	"github.com/calewis/yahoo-matchup/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)

	shutdownUptrace, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}

	stopPyroscope, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}

	pprofSrv, err := observability.StartPprofServer(cfg, logger)
	if err != nil {
		logger.Error("start pprof server", "error", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.Status != nil {
		go func() {
			if err := a.Status.ListenAndServe(); err != nil {
				logger.Error("status server failed", "error", err)
				stop()
			}
		}()
	}

	logger.Info("sensor starting",
		"matchups", len(cfg.Matchups),
		"update_interval", cfg.MinUpdateInterval.String(),
	)
	_ = a.Poller.Run(ctx)
	a.Poller.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Status != nil {
		if err := a.Status.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown failed", "error", err)
		}
	}
	if err := observability.StopPprofServer(pprofSrv, logger, 5*time.Second); err != nil {
		logger.Error("pprof shutdown failed", "error", err)
	}
	if err := stopPyroscope(); err != nil {
		logger.Error("pyroscope shutdown failed", "error", err)
	}
	if err := shutdownUptrace(shutdownCtx); err != nil {
		logger.Error("uptrace shutdown failed", "error", err)
	}

	logger.Info("sensor stopped")
}
