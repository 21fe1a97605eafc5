package watch

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/blocklist-curator/models"
	"github.com/dtnitsch/blocklist-curator/pkg/pipeline"
)

// WatchAction runs the pipeline continuously until interrupted.
func WatchAction(c *cli.Context) error {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	configPath := c.String("config")

	// Fail fast on a config that is broken at startup. Later edits that
	// break it are tolerated; the watcher keeps the previous outputs.
	if _, err := models.LoadConfig(configPath); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := New(logger, configPath, c.String("schedule"), pipeline.Options{
		Workers: c.Int("workers"),
		Force:   c.Bool("force"),
		Timeout: c.Duration("timeout"),
	})
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start watcher", "error", err)
		os.Exit(2)
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	w.Stop()

	return nil
}
