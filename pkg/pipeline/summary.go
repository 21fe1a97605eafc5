package pipeline

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/blocklist-curator/models"
	"github.com/dtnitsch/blocklist-curator/pkg/journal"
	"github.com/dtnitsch/blocklist-curator/pkg/storage"
)

// Run status values.
const (
	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"
	StatusFailed         = "failed"
)

// ListOutcome is the reportable form of one list's terminal record.
type ListOutcome struct {
	ID         string `json:"id" yaml:"id"`
	Source     string `json:"source" yaml:"source"`
	Status     string `json:"status" yaml:"status"`
	ErrorType  string `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	Entries    int    `json:"entries" yaml:"entries"`
	CacheHit   bool   `json:"cache_hit" yaml:"cache_hit"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
}

// OutputDoc records one written output document.
type OutputDoc struct {
	Tag     string `json:"tag" yaml:"tag"`
	Path    string `json:"path" yaml:"path"`
	Entries int    `json:"entries" yaml:"entries"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Stats provides summary statistics for a run.
type Stats struct {
	TotalLists       int     `json:"total_lists" yaml:"total_lists"`
	Successful       int     `json:"successful" yaml:"successful"`
	Failed           int     `json:"failed" yaml:"failed"`
	CacheHits        int     `json:"cache_hits" yaml:"cache_hits"`
	EntriesWritten   int     `json:"entries_written" yaml:"entries_written"`
	TotalTimeSeconds float64 `json:"total_time_seconds" yaml:"total_time_seconds"`
}

// Summary is the structured report for an entire run.
type Summary struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Status    string        `json:"status" yaml:"status"`
	OutFormat string        `json:"out_format" yaml:"out_format"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Outputs   []OutputDoc   `json:"outputs" yaml:"outputs"`
	Results   []ListOutcome `json:"results" yaml:"results"`
	Stats     Stats         `json:"stats" yaml:"stats"`
}

func buildSummary(runID string, started time.Time, format models.OutputFormat, outcomes []Outcome, outputs []OutputDoc) *Summary {
	s := &Summary{
		RunID:     runID,
		OutFormat: format.String(),
		StartedAt: started.UTC(),
		Outputs:   outputs,
	}
	s.Stats.TotalLists = len(outcomes)

	writeFailed := false
	for _, doc := range outputs {
		if doc.Error != "" {
			writeFailed = true
			continue
		}
		s.Stats.EntriesWritten += doc.Entries
	}

	for _, outcome := range outcomes {
		row := ListOutcome{
			ID:         outcome.ListID,
			Source:     outcome.Source,
			Status:     StatusSuccess,
			Entries:    len(outcome.Entries),
			CacheHit:   outcome.CacheHit,
			DurationMS: outcome.Duration.Milliseconds(),
		}
		if outcome.Error != nil {
			row.Status = StatusFailed
			row.ErrorType = outcome.ErrorType
			row.Error = outcome.Error.Error()
			row.Entries = 0
			s.Stats.Failed++
		} else {
			s.Stats.Successful++
			if outcome.CacheHit {
				s.Stats.CacheHits++
			}
		}
		s.Results = append(s.Results, row)
	}
	s.Stats.TotalTimeSeconds = time.Since(started).Seconds()

	switch {
	case s.Stats.TotalLists > 0 && s.Stats.Successful == 0:
		s.Status = StatusFailed
	case s.Stats.Failed > 0 || writeFailed:
		s.Status = StatusPartialFailure
	default:
		s.Status = StatusSuccess
	}
	return s
}

// SaveTo writes the summary as YAML using an atomic replace.
func (s *Summary) SaveTo(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	store := &storage.Storage{}
	return store.SaveFile(path, data)
}

// JournalRecords converts the summary into journal rows.
func (s *Summary) JournalRecords() (journal.Run, []journal.ListResult) {
	run := journal.Run{
		RunID:            s.RunID,
		StartedAt:        s.StartedAt,
		FinishedAt:       s.StartedAt.Add(time.Duration(s.Stats.TotalTimeSeconds * float64(time.Second))),
		Status:           s.Status,
		OutFormat:        s.OutFormat,
		TotalLists:       s.Stats.TotalLists,
		Successful:       s.Stats.Successful,
		Failed:           s.Stats.Failed,
		CacheHits:        s.Stats.CacheHits,
		TotalEntries:     s.Stats.EntriesWritten,
		DocumentsWritten: len(s.Outputs),
	}
	results := make([]journal.ListResult, 0, len(s.Results))
	for _, row := range s.Results {
		results = append(results, journal.ListResult{
			RunID:        s.RunID,
			ListID:       row.ID,
			Source:       row.Source,
			Status:       row.Status,
			ErrorType:    row.ErrorType,
			ErrorMessage: row.Error,
			Entries:      row.Entries,
			CacheHit:     row.CacheHit,
			DurationMS:   row.DurationMS,
		})
	}
	return run, results
}
