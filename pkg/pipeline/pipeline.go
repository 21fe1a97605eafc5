// Package pipeline orchestrates a full run: fetch every configured list
// concurrently, decode and extract each one, then aggregate, render, and
// write output documents once all lists have reached a terminal state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtnitsch/blocklist-curator/models"
	"github.com/dtnitsch/blocklist-curator/pkg/aggregate"
	"github.com/dtnitsch/blocklist-curator/pkg/archive"
	"github.com/dtnitsch/blocklist-curator/pkg/extract"
	"github.com/dtnitsch/blocklist-curator/pkg/fetchcache"
	"github.com/dtnitsch/blocklist-curator/pkg/fetcher"
	"github.com/dtnitsch/blocklist-curator/pkg/render"
	"github.com/dtnitsch/blocklist-curator/pkg/storage"
)

// LastConfName is the copy of the validated config kept next to the cache.
const LastConfName = "last_conf.json"

// SummaryName is the per-run summary written next to the cache.
const SummaryName = "summary.yaml"

const defaultWorkers = 4

type Job struct {
	List models.FilterList
}

// Outcome is one list's terminal record. Every configured list produces
// exactly one, whatever stage it failed at.
type Outcome struct {
	ListID    string
	Source    string
	Tags      []string
	Entries   []string
	Error     error
	ErrorType string // fetch_error, decompress_error, extract_error
	CacheHit  bool
	Duration  time.Duration
}

// Options tune a single run.
type Options struct {
	Workers int
	Force   bool
	Timeout time.Duration
}

// Run executes the whole pipeline for cfg. Per-list failures are contained
// in the returned Summary; the error return is reserved for faults that stop
// the run as a whole, such as an unusable cache or output directory.
func Run(ctx context.Context, logger *slog.Logger, cfg *models.Config, opts Options) (*Summary, error) {
	started := time.Now()

	if err := os.MkdirAll(cfg.TmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tmp directory: %w", err)
	}
	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	cache, err := fetchcache.New(filepath.Join(cfg.TmpDir, "artifacts"))
	if err != nil {
		return nil, err
	}

	if err := cfg.SaveTo(filepath.Join(cfg.TmpDir, LastConfName)); err != nil {
		logger.Warn("Failed to save config snapshot", "error", err)
	}

	f := fetcher.NewFetcher(fetcher.Options{
		Timeout:                opts.Timeout,
		AllowInsecureRedirects: cfg.AllowInsecureRedirects,
	})
	reader := archive.NewReader(cfg.MaxBytes())
	store := &storage.Storage{}

	workerCount := opts.Workers
	if workerCount <= 0 {
		workerCount = defaultWorkers
	}

	logger.Info("Starting concurrent fetch phase",
		"list_count", len(cfg.Lists), "workers", workerCount, "force", opts.Force)
	var wg sync.WaitGroup
	jobs := make(chan Job, len(cfg.Lists))
	results := make(chan Outcome, len(cfg.Lists))

	for w := 1; w <= workerCount; w++ {
		wg.Add(1)
		go worker(ctx, w, logger, f, cache, reader, &wg, jobs, results, opts.Force)
	}

	for _, list := range cfg.Lists {
		jobs <- Job{List: list}
	}
	close(jobs)

	// Barrier: no aggregation or output write happens while any list is
	// still in flight.
	wg.Wait()
	close(results)
	logger.Info("All fetch workers finished")

	outcomes := make([]Outcome, 0, len(cfg.Lists))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].ListID < outcomes[j].ListID
	})

	var contribs []aggregate.Contribution
	for _, outcome := range outcomes {
		if outcome.Error != nil {
			continue
		}
		contribs = append(contribs, aggregate.Contribution{
			ListID:  outcome.ListID,
			Tags:    outcome.Tags,
			Entries: outcome.Entries,
		})
	}

	logger.Info("Starting aggregation phase", "contributors", len(contribs))
	merged := aggregate.Collect(cfg.Tags(), contribs)

	tags := make([]string, 0, len(merged))
	for tag := range merged {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var outputs []OutputDoc
	for _, tag := range tags {
		doc := OutputDoc{
			Tag:     tag,
			Path:    filepath.Join(cfg.OutDir, render.FileName(tag, cfg.OutFormat)),
			Entries: len(merged[tag]),
		}
		data := render.Render(cfg.OutFormat, merged[tag])
		if err := store.SaveFile(doc.Path, data); err != nil {
			// One tag's write failure must not take down the others.
			logger.Error("Failed to write output document", "tag", tag, "error", err)
			doc.Error = err.Error()
		} else {
			logger.Info("Wrote output document", "tag", tag, "path", doc.Path, "entries", doc.Entries)
		}
		outputs = append(outputs, doc)
	}

	summary := buildSummary(uuid.NewString(), started, cfg.OutFormat, outcomes, outputs)
	if err := summary.SaveTo(filepath.Join(cfg.TmpDir, SummaryName)); err != nil {
		logger.Warn("Failed to save run summary", "error", err)
	}
	return summary, nil
}

// worker drains jobs until the channel closes, emitting one Outcome per job.
func worker(ctx context.Context, id int, logger *slog.Logger, f *fetcher.Fetcher, cache *fetchcache.Cache, reader *archive.Reader, wg *sync.WaitGroup, jobs <-chan Job, results chan<- Outcome, force bool) {
	defer wg.Done()
	for job := range jobs {
		results <- processList(ctx, id, logger, f, cache, reader, job.List, force)
	}
}

func processList(ctx context.Context, id int, logger *slog.Logger, f *fetcher.Fetcher, cache *fetchcache.Cache, reader *archive.Reader, list models.FilterList, force bool) Outcome {
	started := time.Now()
	outcome := Outcome{ListID: list.ID, Source: list.Source, Tags: list.Tags}
	logger.Info("Worker started list", "worker_id", id, "list_id", list.ID, "source", list.Source)

	raw, cacheHit, err := fetchArtifact(ctx, logger, f, cache, list, force)
	if err != nil {
		logger.Error("Error fetching list", "worker_id", id, "list_id", list.ID, "error", err)
		outcome.Error = err
		outcome.ErrorType = "fetch_error"
		outcome.Duration = time.Since(started)
		return outcome
	}
	outcome.CacheHit = cacheHit

	text, err := reader.Decode(raw, list.Compression)
	if err != nil {
		logger.Error("Error decoding artifact", "worker_id", id, "list_id", list.ID, "error", err)
		outcome.Error = err
		outcome.ErrorType = "decompress_error"
		outcome.Duration = time.Since(started)
		return outcome
	}

	entries, err := extract.New(text, list.Pattern()).All()
	if err != nil {
		logger.Error("Error extracting entries", "worker_id", id, "list_id", list.ID, "error", err)
		outcome.Error = err
		outcome.ErrorType = "extract_error"
		outcome.Duration = time.Since(started)
		return outcome
	}
	if len(entries) == 0 {
		logger.Warn("List produced no entries", "worker_id", id, "list_id", list.ID, "regex", list.Regex)
	}

	outcome.Entries = entries
	outcome.Duration = time.Since(started)
	logger.Info("Worker finished list",
		"worker_id", id, "list_id", list.ID, "entries", len(entries), "cache_hit", cacheHit)
	return outcome
}

// fetchArtifact consults the cache before touching the network. A cached
// artifact is reused when its descriptor fingerprint still matches and the
// remote validator confirms it; when validation itself fails, the cached
// bytes win over a refetch.
func fetchArtifact(ctx context.Context, logger *slog.Logger, f *fetcher.Fetcher, cache *fetchcache.Cache, list models.FilterList, force bool) ([]byte, bool, error) {
	fingerprint := list.Fingerprint()
	if !force {
		if data, fp, ok := cache.Get(list.ID); ok {
			if fp.ConfigHash != fingerprint {
				logger.Info("List descriptor changed, refetching", "list_id", list.ID)
			} else {
				unchanged, err := f.RemoteUnchanged(ctx, list.Source, fp)
				if err != nil {
					logger.Warn("Cache validation failed, using cached artifact", "list_id", list.ID, "error", err)
					return data, true, nil
				}
				if unchanged {
					return data, true, nil
				}
				logger.Info("Remote artifact changed, refetching", "list_id", list.ID)
			}
		}
	}

	data, etag, err := f.GetBytes(ctx, list.Source)
	if err != nil {
		return nil, false, err
	}
	fp := fetchcache.Fingerprint{
		ETag:       etag,
		ConfigHash: fingerprint,
		FetchedAt:  time.Now().UTC(),
	}
	if err := cache.Put(list.ID, data, fp); err != nil {
		logger.Warn("Failed to cache artifact", "list_id", list.ID, "error", err)
	}
	return data, false, nil
}
