package table

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

// Legacy labels.
const (
	LegacyPrimary   = "FIN_REP"
	LegacySecondary = "OTHER"
)

// LegacyHeader is the header written when ConvertOptions.Legacy is set.
var LegacyHeader = []string{"ID", "NAME", "TYPE", "SRC", "REFYEAR"}

// ConvertOptions controls Convert.
type ConvertOptions struct {
	// InDelim 0 detects the input separator; OutDelim 0 means comma.
	InDelim  rune
	OutDelim rune
	// MinYear and MaxYear bound the accepted YEAR; 0 leaves a side open.
	// Rows outside the window keep ID, NAME and TYPE but lose URL and YEAR.
	MinYear int
	MaxYear int
	// IDs fills empty ID cells by entity name, see IDIndex.
	IDs    map[string]string
	Legacy bool
}

// ConvertStats summarises a conversion.
type ConvertStats struct {
	Rows         int
	BlankedYears int
	FilledIDs    int
}

type tableRow struct {
	id, name, tier, url, year string
}

// IDIndex maps upper-cased entity names to their IDs for ConvertOptions.IDs.
func IDIndex(entities []discovery.Entity) map[string]string {
	out := make(map[string]string, len(entities))
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		key := nameKey(e.Name)
		if _, dup := out[key]; !dup {
			out[key] = e.ID
		}
	}
	return out
}

// Convert rewrites an output table, reading and writing concurrently.
func Convert(ctx context.Context, r io.Reader, w io.Writer, opts ConvertOptions) (ConvertStats, error) {
	src, inDelim, err := sniff(r, opts.InDelim)
	if err != nil {
		return ConvertStats{}, err
	}
	outDelim := opts.OutDelim
	if outDelim == 0 {
		outDelim = ','
	}

	rows := make(chan tableRow, 64)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		return readRows(gctx, newReader(src, inDelim), rows)
	})

	var stats ConvertStats
	g.Go(func() error {
		cw := csv.NewWriter(w)
		cw.Comma = outDelim
		head := Header
		if opts.Legacy {
			head = LegacyHeader
		}
		if err := cw.Write(head); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for row := range rows {
			stats.Rows++
			if row.id == "" && opts.IDs != nil {
				if id, ok := opts.IDs[nameKey(row.name)]; ok {
					row.id = id
					stats.FilledIDs++
				}
			}
			if row.year != "" && !inWindow(row.year, opts.MinYear, opts.MaxYear) {
				row.url, row.year = "", ""
				stats.BlankedYears++
			}
			if err := cw.Write([]string{row.id, row.name, convertTier(row.tier, opts.Legacy), row.url, row.year}); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func readRows(ctx context.Context, cr *csv.Reader, out chan<- tableRow) error {
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols := indexHeader(head)
	nameIdx := cols.find(nameColumns...)
	if nameIdx < 0 {
		return ErrNoNameColumn
	}
	idIdx := cols.find(idColumns...)
	tierIdx := cols.find("TYPE", "TIER")
	urlIdx := cols.find("URL", "SRC")
	yearIdx := cols.find("YEAR", "REFYEAR")

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		row := tableRow{
			id:   strings.TrimSpace(field(rec, idIdx)),
			name: strings.TrimSpace(field(rec, nameIdx)),
			tier: strings.TrimSpace(field(rec, tierIdx)),
			url:  strings.TrimSpace(field(rec, urlIdx)),
			year: strings.TrimSpace(field(rec, yearIdx)),
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- row:
		}
	}
}

func inWindow(year string, minYear, maxYear int) bool {
	if minYear == 0 && maxYear == 0 {
		return true
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return false
	}
	if minYear != 0 && y < minYear {
		return false
	}
	if maxYear != 0 && y > maxYear {
		return false
	}
	return true
}

func convertTier(tier string, legacy bool) string {
	switch strings.ToUpper(tier) {
	case string(discovery.TierPrimary), LegacyPrimary:
		if legacy {
			return LegacyPrimary
		}
		return string(discovery.TierPrimary)
	case string(discovery.TierSecondary), LegacySecondary:
		if legacy {
			return LegacySecondary
		}
		return string(discovery.TierSecondary)
	}
	return tier
}

func nameKey(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}
