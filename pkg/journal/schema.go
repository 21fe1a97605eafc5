package journal

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Runs: one row per pipeline execution
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL,              -- success, partial_failure, failed
    out_format TEXT NOT NULL,
    total_lists INTEGER NOT NULL,
    successful INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    cache_hits INTEGER NOT NULL,
    total_entries INTEGER NOT NULL,
    documents_written INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- List results: every list's terminal outcome within a run
CREATE TABLE IF NOT EXISTS list_results (
    result_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    list_id TEXT NOT NULL,
    source TEXT NOT NULL,
    status TEXT NOT NULL,              -- success, failed
    error_type TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    entries INTEGER NOT NULL DEFAULT 0,
    cache_hit BOOLEAN NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_list_results_run ON list_results(run_id);
CREATE INDEX IF NOT EXISTS idx_list_results_list ON list_results(list_id);
`
