package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/dtnitsch/blocklist-curator/internal/run"
	"github.com/dtnitsch/blocklist-curator/models"
	"github.com/dtnitsch/blocklist-curator/pkg/pipeline"
)

// debounceDelay is how long to wait for more config changes before
// triggering a run. Editors that write in several steps produce a burst of
// events for one logical save.
const debounceDelay = 500 * time.Millisecond

// Watcher keeps output documents current: it reruns the pipeline on a cron
// schedule and whenever the config file changes. Runs are serialized; a
// trigger that lands while a run is in flight is skipped.
type Watcher struct {
	logger     *slog.Logger
	configPath string
	schedule   string
	opts       pipeline.Options

	cron *cron.Cron
	fsw  *fsnotify.Watcher

	mu        sync.Mutex
	isRunning bool
}

func New(logger *slog.Logger, configPath, schedule string, opts pipeline.Options) *Watcher {
	return &Watcher{
		logger:     logger,
		configPath: configPath,
		schedule:   schedule,
		opts:       opts,
		cron:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start schedules runs and begins watching the config file. The first run
// is triggered immediately so a restart never waits for the next cron tick.
func (w *Watcher) Start(ctx context.Context) error {
	if w.schedule != "" {
		if _, err := w.cron.AddFunc(w.schedule, func() { w.runOnce(ctx) }); err != nil {
			return fmt.Errorf("invalid cron schedule %q: %w", w.schedule, err)
		}
		w.cron.Start()
		w.logger.Info("Scheduled runs enabled", "schedule", w.schedule)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsw = fsw

	// Watch the directory, not the file: editors that replace the file via
	// rename would otherwise detach the watch.
	dir := filepath.Dir(w.configPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	go w.processEvents(ctx)
	w.logger.Info("Watching config for changes", "path", w.configPath)

	go w.runOnce(ctx)
	return nil
}

// Stop halts the schedule, waits for a running job to finish, and closes
// the file watcher.
func (w *Watcher) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	if w.fsw != nil {
		w.fsw.Close()
	}
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	target := filepath.Clean(w.configPath)
	ticker := time.NewTicker(debounceDelay)
	defer ticker.Stop()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug("Config change detected", "op", event.Op.String())
				dirty = true
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			w.logger.Info("Config changed, triggering run", "path", w.configPath)
			w.runOnce(ctx)
		}
	}
}

// runOnce reloads the config and executes one pipeline run. A config that
// no longer validates is reported and skipped, leaving the previous outputs
// in place.
func (w *Watcher) runOnce(ctx context.Context) {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		w.logger.Warn("Run skipped, previous run still in progress")
		return
	}
	w.isRunning = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.isRunning = false
		w.mu.Unlock()
	}()

	cfg, err := models.LoadConfig(w.configPath)
	if err != nil {
		w.logger.Error("Config rejected, keeping previous outputs", "error", err)
		return
	}

	summary, err := run.Execute(ctx, w.logger, cfg, w.opts)
	if err != nil {
		w.logger.Error("pipeline run failed", "error", err)
		return
	}
	w.logger.Info("Run complete",
		"run_id", summary.RunID,
		"status", summary.Status,
		"successful", summary.Stats.Successful,
		"failed", summary.Stats.Failed,
		"documents", len(summary.Outputs))
}
