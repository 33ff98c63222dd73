package table

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

// Completed returns the keys of every entity already present in the output
// table at path. A missing file yields an empty set.
func Completed(path string, delim rune) (map[string]struct{}, error) {
	done := make(map[string]struct{})
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return done, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open output table: %w", err)
	}
	defer func() { _ = f.Close() }()

	src, delim, err := sniff(f, delim)
	if err != nil {
		return nil, err
	}
	cr := newReader(src, delim)
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return done, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read output header: %w", err)
	}
	cols := indexHeader(head)
	nameIdx := cols.find(nameColumns...)
	if nameIdx < 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoNameColumn)
	}
	idIdx := cols.find(idColumns...)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read output row: %w", err)
		}
		e := discovery.Entity{
			ID:   strings.TrimSpace(field(rec, idIdx)),
			Name: strings.TrimSpace(field(rec, nameIdx)),
		}
		if e.ID == "" && e.Name == "" {
			continue
		}
		done[e.Key()] = struct{}{}
	}
	return done, nil
}
