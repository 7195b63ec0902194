// Package journal implements CaptureLog: the run.json/index.jsonl artifacts
// described in spec.md §4.6. Writes are append-only; reads tolerate partial
// or corrupt trailing lines so a crash mid-append never blocks aggregation
// of the records that landed cleanly.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/domlens/apiscout/capture"
)

// Log owns run.json and index.jsonl for one run directory.
type Log struct {
	dir string

	mu   sync.Mutex
	file *os.File
}

// Open creates the run directory (and its bodies/ subdirectory) if needed,
// writes run.json once, and opens index.jsonl for appending. The index file
// is created even if empty, per spec.md §4.6.
func Open(dir string, meta capture.RunMetadata) (*Log, error) {
	if err := os.MkdirAll(filepath.Join(dir, "bodies"), 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir run dir: %w", err)
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("journal: marshal run metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.json"), metaBytes, 0o644); err != nil {
		return nil, fmt.Errorf("journal: write run.json: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "index.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open index.jsonl: %w", err)
	}

	return &Log{dir: dir, file: f}, nil
}

// Dir returns the run directory this log was opened for.
func (l *Log) Dir() string { return l.dir }

// Append writes one CaptureRecord as a single atomic line. Safe for
// concurrent callers; index.jsonl has exactly one writer at a time.
func (l *Log) Append(r *capture.CaptureRecord) error {
	line, err := capture.MarshalRecord(r)
	if err != nil {
		return fmt.Errorf("journal: marshal record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("journal: append record: %w", err)
	}
	return nil
}

// Close flushes and closes index.jsonl.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync index.jsonl: %w", err)
	}
	return l.file.Close()
}

// ReadIndex streams every parseable record from dir/index.jsonl, calling fn
// for each. A line that fails to parse (partial write, corruption) is
// skipped rather than aborting the read, per spec.md invariant (g).
func ReadIndex(dir string, fn func(*capture.CaptureRecord)) error {
	f, err := os.Open(filepath.Join(dir, "index.jsonl"))
	if err != nil {
		return fmt.Errorf("journal: open index.jsonl: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := capture.UnmarshalRecord(line)
		if err != nil {
			continue
		}
		fn(rec)
	}
	// A scanner error (e.g. a too-long final line) is treated the same as a
	// corrupt trailing line: the records already delivered to fn stand.
	return nil
}
