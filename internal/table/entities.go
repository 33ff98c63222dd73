package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

// ErrNoNameColumn is returned when an entity table has no NAME or COMPANY column.
var ErrNoNameColumn = errors.New("entity table needs a NAME or COMPANY column")

var (
	nameColumns = []string{"NAME", "COMPANY", "COMPANY_NAME"}
	idColumns   = []string{"ID", "COMPANY_ID", "ENTITY_ID"}
)

// ReadEntitiesFile opens path and reads it with ReadEntities.
func ReadEntitiesFile(path string, delim rune) ([]discovery.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open entity table: %w", err)
	}
	defer func() { _ = f.Close() }()
	entities, err := ReadEntities(f, delim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entities, nil
}

// ReadEntities reads an ordered entity list. delim 0 detects the separator.
// Rows with a blank name are skipped; input order is preserved.
func ReadEntities(r io.Reader, delim rune) ([]discovery.Entity, error) {
	src, delim, err := sniff(r, delim)
	if err != nil {
		return nil, err
	}
	cr := newReader(src, delim)
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoNameColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := indexHeader(head)
	nameIdx := cols.find(nameColumns...)
	if nameIdx < 0 {
		return nil, ErrNoNameColumn
	}
	idIdx := cols.find(idColumns...)

	var out []discovery.Entity
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read entity row: %w", err)
		}
		name := strings.TrimSpace(field(rec, nameIdx))
		if name == "" {
			continue
		}
		out = append(out, discovery.Entity{ID: strings.TrimSpace(field(rec, idIdx)), Name: name})
	}
	return out, nil
}

func newReader(r io.Reader, delim rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

type header map[string]int

func indexHeader(rec []string) header {
	h := make(header, len(rec))
	for i, name := range rec {
		name = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

func (h header) find(names ...string) int {
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
