package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/blocklist-curator/models"
	"github.com/dtnitsch/blocklist-curator/pkg/journal"
	"github.com/dtnitsch/blocklist-curator/pkg/pipeline"
)

// RunAction executes one full pipeline run from a config file.
func RunAction(c *cli.Context) error {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	summary, err := Execute(c.Context, logger, cfg, pipeline.Options{
		Workers: c.Int("workers"),
		Force:   c.Bool("force"),
		Timeout: c.Duration("timeout"),
	})
	if err != nil {
		logger.Error("pipeline run failed", "error", err)
		os.Exit(2)
	}

	var outputData []byte
	var marshalErr error
	if strings.ToLower(c.String("format")) == "yaml" {
		outputData, marshalErr = yaml.Marshal(summary)
	} else {
		outputData, marshalErr = json.MarshalIndent(summary, "", "  ")
	}
	if marshalErr != nil {
		logger.Error("failed to marshal run summary", "error", marshalErr)
		os.Exit(2)
	}
	fmt.Println(string(outputData))

	if summary.Stats.TotalLists > 0 && summary.Stats.Successful == 0 {
		os.Exit(1)
	}
	return nil
}

// Execute runs the pipeline for cfg and journals the outcome. Watch mode
// calls it for every scheduled trigger. The journal is observability only;
// when it cannot be opened or written the run still counts.
func Execute(ctx context.Context, logger *slog.Logger, cfg *models.Config, opts pipeline.Options) (*pipeline.Summary, error) {
	summary, err := pipeline.Run(ctx, logger, cfg, opts)
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(filepath.Join(cfg.TmpDir, journal.DefaultDBName))
	if err != nil {
		logger.Warn("Failed to open run journal", "error", err)
		return summary, nil
	}
	defer j.Close()

	run, results := summary.JournalRecords()
	if err := j.RecordRun(run, results); err != nil {
		logger.Warn("Failed to journal run", "error", err)
	}
	return summary, nil
}
