// Package csvfile keeps the daily request ledger in a small "date,count" CSV
// file, one row per day. A sibling ".lock" file created with O_EXCL enforces a
// single writer for as long as the tracker is open.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/quota"
)

// ErrLocked is returned when another process holds the ledger.
var ErrLocked = errors.New("quota ledger is locked by another run")

var header = []string{"date", "count"}

// Tracker implements discovery.QuotaTracker on a CSV file.
type Tracker struct {
	mu       sync.Mutex
	path     string
	lockPath string
	clock    discovery.Clock
	// counts mirrors the file; this process is its only writer.
	counts map[string]int
	days   []string
}

// Open acquires the lock and loads the ledger, creating it with a header if missing.
func Open(path string, clock discovery.Clock) (*Tracker, error) {
	if path == "" {
		return nil, fmt.Errorf("quota file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create quota dir: %w", err)
		}
	}
	lockPath := path + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: remove %s if no other run is active", ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("create quota lock: %w", err)
	}
	_, _ = fmt.Fprintf(lock, "%d\n", os.Getpid())
	_ = lock.Close()

	t := &Tracker{
		path:     path,
		lockPath: lockPath,
		clock:    quota.ClockOrSystem(clock),
		counts:   make(map[string]int),
	}
	if err := t.load(); err != nil {
		_ = os.Remove(lockPath)
		return nil, err
	}
	return t, nil
}

func (t *Tracker) load() error {
	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return t.persist()
	}
	if err != nil {
		return fmt.Errorf("open quota file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("read quota file: %w", err)
	}
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == header[0] {
			continue
		}
		if len(rec) < 2 || rec[0] == "" {
			continue
		}
		n, err := strconv.Atoi(rec[1])
		if err != nil {
			return fmt.Errorf("quota file %s line %d: bad count %q", t.path, i+1, rec[1])
		}
		if _, seen := t.counts[rec[0]]; !seen {
			t.days = append(t.days, rec[0])
		}
		t.counts[rec[0]] = n
	}
	return nil
}

// Remaining implements discovery.QuotaTracker.
func (t *Tracker) Remaining(_ context.Context, limit int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return quota.Remaining(limit, t.counts[quota.Day(t.clock)]), nil
}

// Consume implements discovery.QuotaTracker. The file is rewritten before
// the new count is returned.
func (t *Tracker) Consume(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	day := quota.Day(t.clock)
	if _, seen := t.counts[day]; !seen {
		t.days = append(t.days, day)
	}
	t.counts[day]++
	if err := t.persist(); err != nil {
		return t.counts[day], err
	}
	return t.counts[day], nil
}

// Close releases the lock.
func (t *Tracker) Close() error {
	if err := os.Remove(t.lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release quota lock: %w", err)
	}
	return nil
}

// persist writes to a temp file and renames it over the ledger.
func (t *Tracker) persist() error {
	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create quota temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write quota header: %w", err)
	}
	for _, day := range t.days {
		if err := w.Write([]string{day, strconv.Itoa(t.counts[day])}); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write quota row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush quota file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync quota file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close quota file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		return fmt.Errorf("replace quota file: %w", err)
	}
	return nil
}
