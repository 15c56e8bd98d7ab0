package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS overrides (
    experiment_id TEXT PRIMARY KEY,
    file_name TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS override_variations (
    experiment_id TEXT NOT NULL,
    variation_key TEXT NOT NULL,
    visitors INTEGER,
    conversions INTEGER,
    revenue REAL,
    PRIMARY KEY (experiment_id, variation_key),
    FOREIGN KEY (experiment_id) REFERENCES overrides(experiment_id)
);

CREATE INDEX IF NOT EXISTS idx_override_variations_exp ON override_variations(experiment_id);
`

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, experimentID string) (*ExperimentOverride, error) {
	var o ExperimentOverride
	var updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT file_name, updated_at FROM overrides WHERE experiment_id = ?`, experimentID,
	).Scan(&o.FileName, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get override: %w", err)
	}
	o.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT variation_key, visitors, conversions, revenue
		 FROM override_variations WHERE experiment_id = ?`, experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get override variations: %w", err)
	}
	defer rows.Close()

	o.Variations = map[string]VariationOverride{}
	for rows.Next() {
		key, v, err := scanVariation(rows)
		if err != nil {
			return nil, err
		}
		o.Variations[key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read override variations: %w", err)
	}

	return &o, nil
}

func (s *SQLiteStore) Snapshot(ctx context.Context) (Overlay, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT experiment_id, file_name, updated_at FROM overrides`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	overlay := Overlay{}
	for rows.Next() {
		var id string
		var updatedAt int64
		o := &ExperimentOverride{Variations: map[string]VariationOverride{}}
		if err := rows.Scan(&id, &o.FileName, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		o.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		overlay[id] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}

	vrows, err := s.db.QueryContext(ctx,
		`SELECT experiment_id, variation_key, visitors, conversions, revenue FROM override_variations`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list override variations: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var id string
		var key string
		var visitors, conversions sql.NullInt64
		var revenue sql.NullFloat64
		if err := vrows.Scan(&id, &key, &visitors, &conversions, &revenue); err != nil {
			return nil, fmt.Errorf("failed to scan override variation: %w", err)
		}
		o, ok := overlay[id]
		if !ok {
			continue
		}
		o.Variations[key] = fromNulls(visitors, conversions, revenue)
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list override variations: %w", err)
	}

	return overlay, nil
}

// Merge upserts each row; COALESCE keeps the stored value for fields the
// new row leaves unset.
func (s *SQLiteStore) Merge(ctx context.Context, experimentID, fileName string, rows map[string]VariationOverride) (*ExperimentOverride, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO overrides (experiment_id, file_name, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(experiment_id) DO UPDATE SET file_name = excluded.file_name, updated_at = excluded.updated_at`,
		experimentID, fileName, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert override: %w", err)
	}

	for key, row := range rows {
		if row.IsZero() {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO override_variations (experiment_id, variation_key, visitors, conversions, revenue)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(experiment_id, variation_key) DO UPDATE SET
			     visitors = COALESCE(excluded.visitors, visitors),
			     conversions = COALESCE(excluded.conversions, conversions),
			     revenue = COALESCE(excluded.revenue, revenue)`,
			experimentID, key, nullInt(row.Visitors), nullInt(row.Conversions), nullFloat(row.Revenue),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert variation %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit override: %w", err)
	}

	return s.Get(ctx, experimentID)
}

func (s *SQLiteStore) Delete(ctx context.Context, experimentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM override_variations WHERE experiment_id = ?`, experimentID)
	if err != nil {
		return fmt.Errorf("failed to delete override variations: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM overrides WHERE experiment_id = ?`, experimentID)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanVariation(rows *sql.Rows) (string, VariationOverride, error) {
	var key string
	var visitors, conversions sql.NullInt64
	var revenue sql.NullFloat64
	if err := rows.Scan(&key, &visitors, &conversions, &revenue); err != nil {
		return "", VariationOverride{}, fmt.Errorf("failed to scan override variation: %w", err)
	}
	return key, fromNulls(visitors, conversions, revenue), nil
}

func fromNulls(visitors, conversions sql.NullInt64, revenue sql.NullFloat64) VariationOverride {
	var v VariationOverride
	if visitors.Valid {
		v.Visitors = Int64(visitors.Int64)
	}
	if conversions.Valid {
		v.Conversions = Int64(conversions.Int64)
	}
	if revenue.Valid {
		v.Revenue = Float64(revenue.Float64)
	}
	return v
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
