package table

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

// Header is the output table header.
var Header = []string{"ID", "NAME", "TYPE", "URL", "YEAR"}

// Writer appends output rows to a delimited file and syncs after every batch,
// so an interrupted run leaves a valid table behind.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	csv  *csv.Writer
}

// Create opens path for writing. With appendRows set an existing file is
// extended and its header kept; otherwise the file is truncated.
func Create(path string, delim rune, appendRows bool) (*Writer, error) {
	if delim == 0 {
		delim = ','
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendRows {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output table: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat output table: %w", err)
	}

	w := &Writer{f: f, csv: csv.NewWriter(f)}
	w.csv.Comma = delim
	if info.Size() == 0 {
		if err := w.flush(Header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return w, nil
}

// WriteRows implements discovery.RowSink.
func (w *Writer) WriteRows(_ context.Context, rows []discovery.OutputRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{r.ID, r.Name, string(r.Tier), r.URL, r.Year})
	}
	return w.flush(records...)
}

func (w *Writer) flush(records ...[]string) error {
	for _, rec := range records {
		if err := w.csv.Write(rec); err != nil {
			return fmt.Errorf("write output row: %w", err)
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush output table: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync output table: %w", err)
	}
	return nil
}

// Close implements discovery.RowSink.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("flush output table: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close output table: %w", err)
	}
	return nil
}
