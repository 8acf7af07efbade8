// Package metricstore reads unit metric readings from the time-series
// store and flattens them into a MetricSnapshot, stripping
// storage-reserved columns.
package metricstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightloop/sitecore/model"
)

// reservedFields are storage columns that are never surfaced as metric
// values in the flattened snapshot.
var reservedFields = map[string]bool{
	"equipment_id": true,
	"site_id":      true,
	"recorded_at":  true,
}

// Store reads the most recent metric reading per field for a unit.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store from an existing connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// snapshotRowCap bounds how many rows FetchSnapshot's query may return for
// a single unit.
const snapshotRowCap = 100

// FetchSnapshot returns the most recent scalar reading for every metric
// field recorded against unitID at siteID within the last 15 minutes, as
// of the query instant.
func (s *Store) FetchSnapshot(ctx context.Context, unitID string, siteID int) (model.MetricSnapshot, error) {
	const query = `
		SELECT DISTINCT ON (field_name) field_name, field_value, recorded_at
		FROM unit_metrics
		WHERE equipment_id = $1 AND site_id = $2 AND recorded_at >= now() - interval '15 minutes'
		ORDER BY field_name, recorded_at DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, unitID, siteID, snapshotRowCap)
	if err != nil {
		return model.MetricSnapshot{}, fmt.Errorf("metricstore: query unit %q: %w", unitID, err)
	}
	defer rows.Close()

	snap := model.MetricSnapshot{
		UnitID:     unitID,
		SiteID:     siteID,
		CapturedAt: time.Now(),
		Values:     make(map[string]float64),
	}
	for rows.Next() {
		var field string
		var value float64
		var recordedAt time.Time
		if err := rows.Scan(&field, &value, &recordedAt); err != nil {
			return model.MetricSnapshot{}, fmt.Errorf("metricstore: scan unit %q: %w", unitID, err)
		}
		addField(snap.Values, field, value)
	}
	if err := rows.Err(); err != nil {
		return model.MetricSnapshot{}, fmt.Errorf("metricstore: iterate unit %q: %w", unitID, err)
	}
	return snap, nil
}

// addField writes field into values unless it names a storage-reserved
// column. Factored out of FetchSnapshot so the filtering rule is
// testable without a live database.
func addField(values map[string]float64, field string, value float64) {
	if reservedFields[field] {
		return
	}
	values[field] = value
}
