package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("not found")

// Store persists imported per-variation overrides.
type Store interface {
	// Get returns the override for one experiment or ErrNotFound.
	Get(ctx context.Context, experimentID string) (*ExperimentOverride, error)
	// Snapshot returns a copy of every override. Callers may keep it for
	// the duration of a fetch cycle.
	Snapshot(ctx context.Context) (Overlay, error)
	// Merge folds rows into the experiment's overrides field by field and
	// records fileName and the update time.
	Merge(ctx context.Context, experimentID, fileName string, rows map[string]VariationOverride) (*ExperimentOverride, error)
	Delete(ctx context.Context, experimentID string) error

	Close() error
}

// Open picks a backend from the path: .db, .sqlite and .sqlite3 open a
// SQLite database, anything else a JSON file.
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path)
	default:
		return OpenJSONFile(path)
	}
}

func mergeRows(existing *ExperimentOverride, rows map[string]VariationOverride) *ExperimentOverride {
	var out *ExperimentOverride
	if existing != nil {
		out = existing.clone()
	} else {
		out = &ExperimentOverride{Variations: map[string]VariationOverride{}}
	}
	for key, row := range rows {
		if row.IsZero() {
			continue
		}
		out.Variations[key] = out.Variations[key].Merge(row)
	}
	return out
}
