// Package importer parses analytics exports (a single CSV or a ZIP of
// CSVs) into per-variation overrides.
package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/headline-goat/vwo-pulse/internal/logging"
	"github.com/headline-goat/vwo-pulse/internal/metrics"
	"github.com/headline-goat/vwo-pulse/internal/store"
)

var (
	ErrNoVariationColumn = errors.New("no variation column (Variation ID, Variation Name or Variation)")
	ErrNoRows            = errors.New("no usable rows in upload")
)

// Kind says which counters a CSV contributes.
type Kind int

const (
	KindAll Kind = iota
	KindSessions
	KindOrders
)

func (k Kind) String() string {
	switch k {
	case KindSessions:
		return "sessions"
	case KindOrders:
		return "orders"
	default:
		return "all"
	}
}

// Column aliases, in priority order.
var (
	variationColumns   = []string{"Variation ID", "Variation Name", "Variation"}
	visitorColumns     = []string{"Sessions", "Visitors", "Users"}
	conversionColumns  = []string{"Orders", "Conversions", "Leads"}
	revenueColumns     = []string{"Revenue", "Total Revenue", "Sale Amount"}
	nonNumericPattern  = regexp.MustCompile(`[^0-9.\-]+`)
	sessionsEntryNames = []string{"sessions_by_variation", "sessions.csv"}
	ordersEntryNames   = []string{"orders_per_session", "revenue_per_session", "leads_per_session"}
)

// Rows maps a variation key (id or name, as exported) to its counters.
type Rows map[string]store.VariationOverride

func (r Rows) add(key string, v store.VariationOverride) {
	if v.IsZero() {
		return
	}
	r[key] = r[key].Merge(v)
}

// Parse dispatches on the file name: .zip archives are read entry by
// entry, anything else is treated as one CSV carrying every counter.
func Parse(fileName string, data []byte) (Rows, error) {
	var (
		rows Rows
		err  error
	)
	if strings.HasSuffix(strings.ToLower(fileName), ".zip") {
		rows, err = ParseZIP(data)
	} else {
		rows, err = ParseCSV(bytes.NewReader(data), KindAll)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}

// EntryKind routes a ZIP entry by name. Entries that match no known
// export are skipped.
func EntryKind(name string) (Kind, bool) {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".csv") {
		return 0, false
	}
	for _, s := range sessionsEntryNames {
		if strings.Contains(lower, s) {
			return KindSessions, true
		}
	}
	for _, s := range ordersEntryNames {
		if strings.Contains(lower, s) {
			return KindOrders, true
		}
	}
	return 0, false
}

func ParseZIP(data []byte) (Rows, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	log := logging.WithComponent("importer")
	rows := Rows{}
	for _, f := range zr.File {
		kind, ok := EntryKind(path.Base(f.Name))
		if !ok {
			log.Debug().Str("entry", f.Name).Msg("skipping zip entry")
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		entryRows, err := ParseCSV(rc, kind)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}

		for key, v := range entryRows {
			rows.add(key, v)
		}
		log.Debug().Str("entry", f.Name).Stringer("kind", kind).Int("rows", len(entryRows)).Msg("parsed zip entry")
	}
	return rows, nil
}

// ParseCSV reads a header row and then one row per variation.
func ParseCSV(r io.Reader, kind Kind) (Rows, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return Rows{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	if !hasAny(index, variationColumns) {
		return nil, ErrNoVariationColumn
	}

	rows := Rows{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		get := func(cols []string) string { return first(record, index, cols) }
		key := get(variationColumns)
		if key == "" {
			continue
		}

		var v store.VariationOverride
		if kind != KindOrders {
			if n, ok := cleanNumber(get(visitorColumns)); ok {
				v.Visitors = store.Int64(int64(math.Round(n)))
			}
		}
		if kind != KindSessions {
			if n, ok := cleanNumber(get(conversionColumns)); ok {
				v.Conversions = store.Int64(int64(math.Round(n)))
			}
			if n, ok := cleanNumber(get(revenueColumns)); ok {
				v.Revenue = store.Float64(n)
			}
		}
		rows.add(key, v)
	}
	return rows, nil
}

// Import parses an upload and merges it into the override store.
func Import(ctx context.Context, st store.Store, experimentID, fileName string, data []byte) (*store.ExperimentOverride, error) {
	rows, err := Parse(fileName, data)
	if err != nil {
		metrics.OverrideImports.WithLabelValues("rejected").Inc()
		return nil, err
	}

	override, err := st.Merge(ctx, experimentID, fileName, rows)
	if err != nil {
		metrics.OverrideImports.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to save overrides: %w", err)
	}

	metrics.OverrideImports.WithLabelValues("ok").Inc()
	logging.Info().Str("experiment_id", experimentID).Str("file", fileName).Int("variations", len(rows)).
		Msg("imported override data")
	return override, nil
}

func hasAny(index map[string]int, cols []string) bool {
	for _, c := range cols {
		if _, ok := index[c]; ok {
			return true
		}
	}
	return false
}

// first returns the first non-empty value among the aliased columns.
func first(record []string, index map[string]int, cols []string) string {
	for _, c := range cols {
		i, ok := index[c]
		if !ok || i >= len(record) {
			continue
		}
		if v := strings.TrimSpace(record[i]); v != "" {
			return v
		}
	}
	return ""
}

// cleanNumber strips currency symbols, separators and the like. Zero and
// unparsable values count as absent.
func cleanNumber(s string) (float64, bool) {
	s = nonNumericPattern.ReplaceAllString(s, "")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
