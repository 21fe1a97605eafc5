package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// Run is one recorded pipeline execution.
type Run struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Status           string
	OutFormat        string
	TotalLists       int
	Successful       int
	Failed           int
	CacheHits        int
	TotalEntries     int
	DocumentsWritten int
}

// ListResult is one list's terminal outcome within a run.
type ListResult struct {
	RunID        string
	ListID       string
	Source       string
	Status       string
	ErrorType    string
	ErrorMessage string
	Entries      int
	CacheHit     bool
	DurationMS   int64
}

// RecordRun writes a run and its per-list results in one transaction.
func (j *Journal) RecordRun(run Run, results []ListResult) error {
	tx, err := j.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, started_at, finished_at, status, out_format,
			total_lists, successful, failed, cache_hits, total_entries, documents_written)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Status, run.OutFormat,
		run.TotalLists, run.Successful, run.Failed, run.CacheHits, run.TotalEntries, run.DocumentsWritten,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO list_results (run_id, list_id, source, status, error_type,
			error_message, entries, cache_hit, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err := stmt.Exec(run.RunID, r.ListID, r.Source, r.Status,
			r.ErrorType, r.ErrorMessage, r.Entries, r.CacheHit, r.DurationMS)
		if err != nil {
			return fmt.Errorf("failed to insert result for list %s: %w", r.ListID, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first.
func (j *Journal) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.Query(`
		SELECT run_id, started_at, finished_at, status, out_format,
			total_lists, successful, failed, cache_hits, total_entries, documents_written
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.OutFormat,
			&r.TotalLists, &r.Successful, &r.Failed, &r.CacheHits, &r.TotalEntries, &r.DocumentsWritten)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by id.
func (j *Journal) GetRun(runID string) (Run, error) {
	var r Run
	err := j.QueryRow(`
		SELECT run_id, started_at, finished_at, status, out_format,
			total_lists, successful, failed, cache_hits, total_entries, documents_written
		FROM runs
		WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.OutFormat,
			&r.TotalLists, &r.Successful, &r.Failed, &r.CacheHits, &r.TotalEntries, &r.DocumentsWritten)
	if err == sql.ErrNoRows {
		return Run{}, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// RunResults returns the per-list outcomes of a run, ordered by list id.
func (j *Journal) RunResults(runID string) ([]ListResult, error) {
	rows, err := j.Query(`
		SELECT run_id, list_id, source, status, error_type, error_message,
			entries, cache_hit, duration_ms
		FROM list_results
		WHERE run_id = ?
		ORDER BY list_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []ListResult
	for rows.Next() {
		var r ListResult
		err := rows.Scan(&r.RunID, &r.ListID, &r.Source, &r.Status, &r.ErrorType,
			&r.ErrorMessage, &r.Entries, &r.CacheHit, &r.DurationMS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListFailureStreak counts consecutive failures of one list over recent
// runs, newest first, stopping at the first success. Flaky sources show up
// here before anyone reads individual run summaries.
func (j *Journal) ListFailureStreak(listID string) (int, error) {
	rows, err := j.Query(`
		SELECT lr.status
		FROM list_results lr
		JOIN runs r ON r.run_id = lr.run_id
		WHERE lr.list_id = ?
		ORDER BY r.started_at DESC`, listID)
	if err != nil {
		return 0, fmt.Errorf("failed to query list history: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, fmt.Errorf("failed to scan status: %w", err)
		}
		if status != "failed" {
			break
		}
		streak++
	}
	return streak, rows.Err()
}
