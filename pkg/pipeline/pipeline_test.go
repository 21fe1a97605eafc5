package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/dtnitsch/blocklist-curator/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, format models.OutputFormat, lists []models.FilterList) *models.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &models.Config{
		TmpDir:    filepath.Join(root, "tmp"),
		OutDir:    filepath.Join(root, "out"),
		OutFormat: format,
		Lists:     lists,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config did not validate: %v", err)
	}
	return cfg
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output document: %v", err)
	}
	return string(data)
}

func findResult(t *testing.T, s *Summary, id string) ListOutcome {
	t.Helper()
	for _, r := range s.Results {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("no result for list %q", id)
	return ListOutcome{}
}

func gzipBytes(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(body)); err != nil {
		t.Fatalf("failed to gzip fixture: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return buf.Bytes()
}

func tarGzBytes(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body := members[name]
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("failed to write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("failed to write tar member: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return buf.Bytes()
}

func TestRun_HostsfileAggregation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/one", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "# upstream comment\n0.0.0.0 malicious.com\n0.0.0.0 evil.net\n")
	})
	mux.HandleFunc("/two", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "evil.net\ntracker.example\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(t, models.FormatHostsfile, []models.FilterList{
		{ID: "one", Source: server.URL + "/one", Tags: []string{"security"}, Regex: `^0\.0\.0\.0 (.*)$`},
		{ID: "two", Source: server.URL + "/two", Tags: []string{"security", "trackers"}, Regex: `^([a-z][a-z0-9.-]*)$`},
	})

	summary, err := Run(context.Background(), testLogger(), cfg, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Status != StatusSuccess {
		t.Errorf("got status %q, want %q", summary.Status, StatusSuccess)
	}
	if summary.Stats.Successful != 2 || summary.Stats.Failed != 0 {
		t.Errorf("got %d successful / %d failed, want 2 / 0", summary.Stats.Successful, summary.Stats.Failed)
	}

	got := readOutput(t, filepath.Join(cfg.OutDir, "security.hosts"))
	want := "0.0.0.0 evil.net\n0.0.0.0 malicious.com\n0.0.0.0 tracker.example\n"
	if got != want {
		t.Errorf("security.hosts = %q, want %q", got, want)
	}
	got = readOutput(t, filepath.Join(cfg.OutDir, "trackers.hosts"))
	want = "0.0.0.0 evil.net\n0.0.0.0 tracker.example\n"
	if got != want {
		t.Errorf("trackers.hosts = %q, want %q", got, want)
	}

	if _, err := os.Stat(filepath.Join(cfg.TmpDir, SummaryName)); err != nil {
		t.Errorf("run summary was not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.TmpDir, LastConfName)); err != nil {
		t.Errorf("config snapshot was not written: %v", err)
	}
}

func TestRun_LuaFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ads.example\ntrack.example\n")
	}))
	defer server.Close()

	cfg := testConfig(t, models.FormatLua, []models.FilterList{
		{ID: "ads", Source: server.URL, Tags: []string{"ads"}, Regex: `^([a-z.]+)$`},
	})

	summary, err := Run(context.Background(), testLogger(), cfg, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Status != StatusSuccess {
		t.Errorf("got status %q, want %q", summary.Status, StatusSuccess)
	}

	got := readOutput(t, filepath.Join(cfg.OutDir, "ads.lua"))
	want := "return {\n  \"ads.example\",\n  \"track.example\",\n}"
	if got != want {
		t.Errorf("ads.lua = %q, want %q", got, want)
	}
}

func TestRun_CompressedSources(t *testing.T) {
	body := "0.0.0.0 evil.net\n0.0.0.0 malicious.com\n"

	tests := []struct {
		name        string
		payload     func(t *testing.T) []byte
		compression *models.Compression
	}{
		{
			name:        "gzip",
			payload:     func(t *testing.T) []byte { return gzipBytes(t, body) },
			compression: &models.Compression{Kind: models.CompressionGz},
		},
		{
			name: "tar gzip member",
			payload: func(t *testing.T) []byte {
				return tarGzBytes(t, map[string]string{
					"README":        "not the list",
					"data/list.txt": body,
				})
			},
			compression: &models.Compression{Kind: models.CompressionTarGz, MemberPath: "data/list.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := tt.payload(t)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write(payload)
			}))
			defer server.Close()

			cfg := testConfig(t, models.FormatHostsfile, []models.FilterList{
				{
					ID:          "packed",
					Source:      server.URL,
					Tags:        []string{"security"},
					Regex:       `^0\.0\.0\.0 (.*)$`,
					Compression: tt.compression,
				},
			})

			summary, err := Run(context.Background(), testLogger(), cfg, Options{})
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
			if summary.Status != StatusSuccess {
				t.Fatalf("got status %q, want %q", summary.Status, StatusSuccess)
			}
			got := readOutput(t, filepath.Join(cfg.OutDir, "security.hosts"))
			if got != body {
				t.Errorf("security.hosts = %q, want %q", got, body)
			}
		})
	}
}

func TestRun_PartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "evil.net\n")
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(t, models.FormatHostsfile, []models.FilterList{
		{ID: "good", Source: server.URL + "/good", Tags: []string{"security"}, Regex: `^([a-z.]+)$`},
		{ID: "bad", Source: server.URL + "/bad", Tags: []string{"security", "extra"}, Regex: `^([a-z.]+)$`},
	})

	summary, err := Run(context.Background(), testLogger(), cfg, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Status != StatusPartialFailure {
		t.Errorf("got status %q, want %q", summary.Status, StatusPartialFailure)
	}
	if summary.Stats.Failed != 1 || summary.Stats.Successful != 1 {
		t.Errorf("got %d failed / %d successful, want 1 / 1", summary.Stats.Failed, summary.Stats.Successful)
	}

	bad := findResult(t, summary, "bad")
	if bad.Status != StatusFailed {
		t.Errorf("got status %q for failed list, want %q", bad.Status, StatusFailed)
	}
	if bad.ErrorType != "fetch_error" {
		t.Errorf("got error type %q, want %q", bad.ErrorType, "fetch_error")
	}
	if bad.Error == "" {
		t.Error("failed list should carry an error message")
	}

	got := readOutput(t, filepath.Join(cfg.OutDir, "security.hosts"))
	want := "0.0.0.0 evil.net\n"
	if got != want {
		t.Errorf("security.hosts = %q, want %q", got, want)
	}

	// The failed list was extra's only contributor; the document is still
	// written, just empty.
	got = readOutput(t, filepath.Join(cfg.OutDir, "extra.hosts"))
	if got != "" {
		t.Errorf("extra.hosts = %q, want empty", got)
	}
}

func TestRun_AllListsFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	cfg := testConfig(t, models.FormatHostsfile, []models.FilterList{
		{ID: "gone", Source: server.URL, Tags: []string{"security"}, Regex: `^([a-z.]+)$`},
	})

	summary, err := Run(context.Background(), testLogger(), cfg, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Status != StatusFailed {
		t.Errorf("got status %q, want %q", summary.Status, StatusFailed)
	}
	got := readOutput(t, filepath.Join(cfg.OutDir, "security.hosts"))
	if got != "" {
		t.Errorf("security.hosts = %q, want empty", got)
	}
}

func TestRun_TarGzMemberMissing(t *testing.T) {
	payload := tarGzBytes(t, map[string]string{"other.txt": "nope\n"})
	mux := http.NewServeMux()
	mux.HandleFunc("/packed", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "evil.net\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(t, models.FormatHostsfile, []models.FilterList{
		{
			ID:          "packed",
			Source:      server.URL + "/packed",
			Tags:        []string{"security"},
			Regex:       `^([a-z.]+)$`,
			Compression: &models.Compression{Kind: models.CompressionTarGz, MemberPath: "data/list.txt"},
		},
		{ID: "plain", Source: server.URL + "/plain", Tags: []string{"security"}, Regex: `^([a-z.]+)$`},
	})

	summary, err := Run(context.Background(), testLogger(), cfg, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Status != StatusPartialFailure {
		t.Errorf("got status %q, want %q", summary.Status, StatusPartialFailure)
	}
	packed := findResult(t, summary, "packed")
	if packed.ErrorType != "decompress_error" {
		t.Errorf("got error type %q, want %q", packed.ErrorType, "decompress_error")
	}

	got := readOutput(t, filepath.Join(cfg.OutDir, "security.hosts"))
	want := "0.0.0.0 evil.net\n"
	if got != want {
		t.Errorf("security.hosts = %q, want %q", got, want)
	}
}

func TestRun_CacheReuse(t *testing.T) {
	var mu sync.Mutex
	gets := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		if r.Method == http.MethodGet {
			mu.Lock()
			gets++
			mu.Unlock()
			io.WriteString(w, "0.0.0.0 evil.net\n")
		}
	}))
	defer server.Close()

	cfg := testConfig(t, models.FormatHostsfile, []models.FilterList{
		{ID: "steady", Source: server.URL, Tags: []string{"security"}, Regex: `^0\.0\.0\.0 (.*)$`},
	})
	logger := testLogger()
	outPath := filepath.Join(cfg.OutDir, "security.hosts")

	first, err := Run(context.Background(), logger, cfg, Options{})
	if err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	if findResult(t, first, "steady").CacheHit {
		t.Error("first run cannot be a cache hit")
	}
	firstDoc := readOutput(t, outPath)

	second, err := Run(context.Background(), logger, cfg, Options{})
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if !findResult(t, second, "steady").CacheHit {
		t.Error("second run did not reuse the cached artifact")
	}
	if second.Stats.CacheHits != 1 {
		t.Errorf("got %d cache hits, want 1", second.Stats.CacheHits)
	}
	mu.Lock()
	g := gets
	mu.Unlock()
	if g != 1 {
		t.Errorf("got %d GET requests after cached rerun, want 1", g)
	}
	if secondDoc := readOutput(t, outPath); secondDoc != firstDoc {
		t.Errorf("output changed between identical runs: %q vs %q", firstDoc, secondDoc)
	}

	third, err := Run(context.Background(), logger, cfg, Options{Force: true})
	if err != nil {
		t.Fatalf("forced Run returned error: %v", err)
	}
	if findResult(t, third, "steady").CacheHit {
		t.Error("forced run must refetch")
	}
	mu.Lock()
	g = gets
	mu.Unlock()
	if g != 2 {
		t.Errorf("got %d GET requests after forced rerun, want 2", g)
	}
}

func TestRun_DescriptorChangeInvalidatesCache(t *testing.T) {
	var mu sync.Mutex
	gets := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		if r.Method == http.MethodGet {
			mu.Lock()
			gets++
			mu.Unlock()
			io.WriteString(w, "0.0.0.0 evil.net\n")
		}
	}))
	defer server.Close()

	root := t.TempDir()
	makeConfig := func(regex string) *models.Config {
		cfg := &models.Config{
			TmpDir:    filepath.Join(root, "tmp"),
			OutDir:    filepath.Join(root, "out"),
			OutFormat: models.FormatHostsfile,
			Lists: []models.FilterList{
				{ID: "steady", Source: server.URL, Tags: []string{"security"}, Regex: regex},
			},
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("test config did not validate: %v", err)
		}
		return cfg
	}

	if _, err := Run(context.Background(), testLogger(), makeConfig(`^0\.0\.0\.0 (.*)$`), Options{}); err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	summary, err := Run(context.Background(), testLogger(), makeConfig(`^0\.0\.0\.0 ([a-z.]+)$`), Options{})
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if findResult(t, summary, "steady").CacheHit {
		t.Error("changed descriptor must not reuse the cached artifact")
	}
	mu.Lock()
	g := gets
	mu.Unlock()
	if g != 2 {
		t.Errorf("got %d GET requests, want 2", g)
	}
}

func TestRun_OutputWriteFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "evil.net\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(t, models.FormatHostsfile, []models.FilterList{
		{ID: "only", Source: server.URL + "/list", Tags: []string{"blocked", "security"}, Regex: `^([a-z.]+)$`},
	})
	// A directory squatting on the target path makes the atomic rename fail.
	if err := os.MkdirAll(filepath.Join(cfg.OutDir, "blocked.hosts"), 0755); err != nil {
		t.Fatalf("failed to create blocking directory: %v", err)
	}

	summary, err := Run(context.Background(), testLogger(), cfg, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Status != StatusPartialFailure {
		t.Errorf("got status %q, want %q", summary.Status, StatusPartialFailure)
	}

	var blocked, security OutputDoc
	for _, doc := range summary.Outputs {
		switch doc.Tag {
		case "blocked":
			blocked = doc
		case "security":
			security = doc
		}
	}
	if blocked.Error == "" {
		t.Error("blocked.hosts write should have failed")
	}
	if security.Error != "" {
		t.Errorf("security.hosts write failed unexpectedly: %v", security.Error)
	}
	got := readOutput(t, filepath.Join(cfg.OutDir, "security.hosts"))
	if got != "0.0.0.0 evil.net\n" {
		t.Errorf("security.hosts = %q, want %q", got, "0.0.0.0 evil.net\n")
	}
}

func TestBuildSummary_Statuses(t *testing.T) {
	started := time.Now()
	ok := Outcome{ListID: "ok", Entries: []string{"evil.net"}}
	broken := Outcome{ListID: "broken", Error: errors.New("boom"), ErrorType: "fetch_error"}

	tests := []struct {
		name     string
		outcomes []Outcome
		outputs  []OutputDoc
		want     string
	}{
		{"all lists succeed", []Outcome{ok}, []OutputDoc{{Tag: "t", Entries: 1}}, StatusSuccess},
		{"no lists at all", nil, nil, StatusSuccess},
		{"some lists fail", []Outcome{ok, broken}, []OutputDoc{{Tag: "t", Entries: 1}}, StatusPartialFailure},
		{"write fails", []Outcome{ok}, []OutputDoc{{Tag: "t", Error: "rename failed"}}, StatusPartialFailure},
		{"all lists fail", []Outcome{broken}, []OutputDoc{{Tag: "t"}}, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := buildSummary("run", started, models.FormatHostsfile, tt.outcomes, tt.outputs)
			if s.Status != tt.want {
				t.Errorf("got status %q, want %q", s.Status, tt.want)
			}
		})
	}
}
