// Package reporting persists run history as durable, human-inspectable JSON
// files, one per suite per calendar day. Runs append; nothing is rewritten
// away, so the files double as an audit trail of what ran and when.
package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/autoapitester/api-acceptor/metrics"
	"github.com/autoapitester/api-acceptor/types"
)

const dateLayout = "2006-01-02"

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Config holds reporter dependencies.
type Config struct {
	Dir string // root directory for report files
	Log *zap.SugaredLogger
	Now func() time.Time // defaults to time.Now; injectable for tests
}

// Reporter appends TestRuns to per-(suite, day) report files. Appends to the
// same key are serialized through a per-key mutex, so concurrent runs of the
// same suite on the same day cannot lose each other's updates.
type Reporter struct {
	dir string
	log *zap.SugaredLogger
	now func() time.Time

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// NewReporter creates a Reporter rooted at cfg.Dir.
func NewReporter(cfg Config) (*Reporter, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	return &Reporter{
		dir:  cfg.Dir,
		log:  cfg.Log,
		now:  cfg.Now,
		keys: make(map[string]*sync.Mutex),
	}, nil
}

// Append records a run under (suiteName, today). The first run of a day
// creates the report file; later runs are appended to its run list. An
// unreadable prior file is treated as no prior report: availability of new
// data wins over strict corruption detection, and the loss is logged and
// counted so monitoring can see it.
func (r *Reporter) Append(suiteName string, run *types.TestRun) error {
	date := r.now().Format(dateLayout)
	path := r.reportPath(suiteName, date)

	lock := r.keyLock(path)
	lock.Lock()
	defer lock.Unlock()

	report := r.loadOrNew(suiteName, date, path)
	report.TestRuns = append(report.TestRuns, *run)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report date directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	r.log.Infow("run recorded",
		"suite", suiteName,
		"date", date,
		"runs", len(report.TestRuns),
		"passed", run.Passed,
		"failed", run.Failed)
	return nil
}

func (r *Reporter) loadOrNew(suiteName, date, path string) *types.RunReport {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warnw("prior report unreadable, starting fresh",
				"suite", suiteName, "path", path, "error", err)
			metrics.RecordReportCorruption(suiteName)
		}
		return &types.RunReport{Suite: suiteName, Date: date}
	}
	var report types.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		r.log.Warnw("prior report corrupt, starting fresh",
			"suite", suiteName, "path", path, "error", err)
		metrics.RecordReportCorruption(suiteName)
		return &types.RunReport{Suite: suiteName, Date: date}
	}
	return &report
}

// ReadReport returns the report for (suiteName, date), date in YYYY-MM-DD.
func (r *Reporter) ReadReport(suiteName, date string) (*types.RunReport, error) {
	data, err := os.ReadFile(r.reportPath(suiteName, date))
	if err != nil {
		return nil, err
	}
	var report types.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &report, nil
}

// Dates lists the calendar days that have at least one report, oldest first.
func (r *Reporter) Dates() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(dateLayout, e.Name()); err != nil {
			continue
		}
		dates = append(dates, e.Name())
	}
	sort.Strings(dates)
	return dates, nil
}

// Suites lists the suite names recorded on the given day.
func (r *Reporter) Suites(date string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.dir, date))
	if err != nil {
		return nil, err
	}
	var suites []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		suites = append(suites, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(suites)
	return suites, nil
}

func (r *Reporter) reportPath(suiteName, date string) string {
	return filepath.Join(r.dir, date, sanitizeName(suiteName)+".json")
}

func (r *Reporter) keyLock(path string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.keys[path]
	if !ok {
		lock = &sync.Mutex{}
		r.keys[path] = lock
	}
	return lock
}

// sanitizeName makes a suite name safe for use as a file name.
func sanitizeName(name string) string {
	clean := unsafeNameChars.ReplaceAllString(name, "_")
	if clean == "" {
		return "unnamed"
	}
	return clean
}
