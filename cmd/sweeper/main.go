// Sweeper periodically marks idle and expired sessions inactive. Validation
// never depends on it; it keeps the active-session indexes small.
// Set DATABASE_URL; SWEEP_INTERVAL defaults to 5m.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sessionguard/internal/app"
	"sessionguard/internal/config"
)

func main() {
	once := flag.Bool("once", false, "Run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := app.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("sweeper: shutdown", "error", err)
		}
	}()

	if st := a.Health.Check(ctx); !st.Serving {
		logger.Error("sweeper: not ready", "failures", st.Failures)
		return
	}

	if *once {
		sweep(ctx, a, logger)
		return
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("sweeper: shutting down...")
		cancel()
	}()

	interval := cfg.SweepInterval()
	logger.Info("sweeper: started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sweep(ctx, a, logger)
		select {
		case <-ctx.Done():
			logger.Info("sweeper: stopped")
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, a *app.App, logger *slog.Logger) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := a.Sessions.SweepExpired(sweepCtx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("sweeper: sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		logger.Info("sweeper: deactivated expired sessions", "count", n)
	}
}
