package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/blocklist-curator/pkg/journal"
)

// openJournal resolves the journal from the config file; it lives next to
// the fetch cache in tmp_dir. Only tmp_dir is decoded, so a half-edited
// list entry does not lock you out of past runs.
func openJournal(c *cli.Context) (*journal.Journal, error) {
	path := c.String("config")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var probe struct {
		TmpDir string `json:"tmp_dir" yaml:"tmp_dir"`
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &probe)
	default:
		err = json.Unmarshal(data, &probe)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if probe.TmpDir == "" {
		return nil, fmt.Errorf("config has no tmp_dir, nowhere to look for a journal")
	}
	return journal.Open(filepath.Join(probe.TmpDir, journal.DefaultDBName))
}

// RunsAction prints recent pipeline runs, newest first.
func RunsAction(c *cli.Context) error {
	j, err := openJournal(c)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	runs, err := j.RecentRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	fmt.Printf("%-36s %-20s %-16s %-6s %-6s %-6s %-5s\n",
		"Run ID", "Started", "Status", "Lists", "OK", "Fail", "Docs")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range runs {
		fmt.Printf("%-36s %-20s %-16s %-6d %-6d %-6d %-5d\n",
			r.RunID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Status,
			r.TotalLists,
			r.Successful,
			r.Failed,
			r.DocumentsWritten,
		)
	}

	fmt.Printf("\nTotal: %d runs\n", len(runs))
	fmt.Printf("\nTip: Use 'blocklist-curator history show <run-id>' to see per-list results\n")

	return nil
}

// ShowAction prints one run's header and per-list outcomes. Without a run
// id argument it shows the most recent run.
func ShowAction(c *cli.Context) error {
	j, err := openJournal(c)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	runID := c.Args().First()
	if runID == "" {
		recent, err := j.RecentRuns(1)
		if err != nil {
			return fmt.Errorf("failed to find latest run: %w", err)
		}
		if len(recent) == 0 {
			fmt.Println("No runs recorded yet")
			return nil
		}
		runID = recent[0].RunID
	}

	run, err := j.GetRun(runID)
	if err != nil {
		return err
	}
	results, err := j.RunResults(runID)
	if err != nil {
		return fmt.Errorf("failed to get run results: %w", err)
	}

	fmt.Printf("Run %s\n", run.RunID)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Started:    %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Finished:   %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Status:     %s\n", run.Status)
	fmt.Printf("Format:     %s\n", run.OutFormat)
	fmt.Printf("Lists:      %d total (%d success, %d failed, %d cache hits)\n",
		run.TotalLists, run.Successful, run.Failed, run.CacheHits)
	fmt.Printf("Documents:  %d written, %d entries\n", run.DocumentsWritten, run.TotalEntries)

	if len(results) > 0 {
		fmt.Printf("\nLists (%d):\n", len(results))
		fmt.Println(strings.Repeat("-", 60))
		for i, r := range results {
			fmt.Printf("%2d. [%s] %s\n", i+1, r.Status, r.ListID)
			if r.Status == "failed" {
				fmt.Printf("    Error: [%s] %s\n", r.ErrorType, r.ErrorMessage)
				if streak, streakErr := j.ListFailureStreak(r.ListID); streakErr == nil && streak > 1 {
					fmt.Printf("    Failing for %d consecutive runs\n", streak)
				}
			} else {
				cached := ""
				if r.CacheHit {
					cached = " (cached)"
				}
				fmt.Printf("    Entries: %d | Took: %dms%s\n", r.Entries, r.DurationMS, cached)
			}
		}
	}

	fmt.Printf("\nTip: Use 'blocklist-curator history' to list recent runs\n")

	return nil
}
