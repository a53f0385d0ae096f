package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/basinops/basinops-kernel/internal/metrics"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package audit persists the kernel's action trail: one JSON object per
// line, appended to a dated file under the configured directory. Parameters
// are redacted before they touch disk. A failed write is reported through
// the operational logger and otherwise swallowed; auditing must never take
// down the call it records.
//
// The trail deliberately does not rotate or compact. Consumers parse each
// line as JSON and rely on nothing about field order.

// Trail is the audit sink handed to the kernel.
type Trail interface {
	// Record redacts the entry's parameters and appends it to today's file.
	Record(entry *types.AuditEntry)

	// GetEntries reads back the entries for a YYYY-MM-DD date (UTC).
	// An empty date means today.
	GetEntries(date string) ([]types.AuditEntry, error)

	// Close releases the current file handle.
	Close() error
}

// Config controls the trail.
type Config struct {
	// Enabled turns the trail on. When false every method is a no-op and
	// no directory is created.
	Enabled bool

	// Path is the directory receiving the dated JSONL files.
	Path string
}

// New creates a Trail. The directory is created eagerly so a misconfigured
// path fails at startup rather than on the first call.
func New(cfg Config, logger *zap.Logger) (Trail, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &noopTrail{}, nil
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit path is required when audit is enabled")
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return &fileTrail{path: cfg.Path, logger: logger}, nil
}

// fileTrail appends entries to <path>/<UTC date>.jsonl. The file handle is
// kept open across writes and rolled when the UTC date changes.
type fileTrail struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	file    *os.File
	curDate string
}

func (t *fileTrail) Record(entry *types.AuditEntry) {
	if entry == nil {
		return
	}

	out := *entry
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	out.Parameters = Redact(out.Parameters)

	line, err := json.Marshal(&out)
	if err != nil {
		t.reportFailure("marshal audit entry", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := t.fileForLocked(out.Timestamp.UTC().Format("2006-01-02"))
	if err != nil {
		t.reportFailure("open audit file", err)
		return
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		t.reportFailure("append audit line", err)
	}
}

// fileForLocked returns the append handle for a date, rolling the handle
// when the date has moved on. Caller must hold the mutex.
func (t *fileTrail) fileForLocked(date string) (*os.File, error) {
	if t.file != nil && t.curDate == date {
		return t.file, nil
	}
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
	file, err := os.OpenFile(t.fileName(date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	t.file = file
	t.curDate = date
	return file, nil
}

func (t *fileTrail) fileName(date string) string {
	return filepath.Join(t.path, date+".jsonl")
}

func (t *fileTrail) GetEntries(date string) ([]types.AuditEntry, error) {
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	file, err := os.Open(t.fileName(date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit file for %s: %w", date, err)
	}
	defer file.Close()

	var entries []types.AuditEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry types.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("parsing audit line: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit file for %s: %w", date, err)
	}
	return entries, nil
}

func (t *fileTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	t.curDate = ""
	return err
}

func (t *fileTrail) reportFailure(what string, err error) {
	metrics.AuditWriteFailuresTotal.Inc()
	t.logger.Error("audit write failed", zap.String("op", what), zap.Error(err))
}

// noopTrail is the disabled trail.
type noopTrail struct{}

func (noopTrail) Record(*types.AuditEntry) {}

func (noopTrail) GetEntries(string) ([]types.AuditEntry, error) { return nil, nil }

func (noopTrail) Close() error { return nil }
