// Package commandwriter turns control-algorithm outputs into durable
// command records: extraction against a closed per-kind allowlist,
// stringified at the write boundary, one batched round-trip per
// invocation.
package commandwriter

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/observability"
)

// Writer appends Command records to the time-series command store.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter constructs a Writer from an existing connection pool.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// Write appends all commands for one invocation in a single batched
// round-trip.
func (w *Writer) Write(ctx context.Context, commands []model.Command) error {
	if len(commands) == 0 {
		return nil
	}

	const insert = `
		INSERT INTO commands (equipment_id, site_id, equipment_type, command_type, value, emitted_at, source, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	batch := &pgx.Batch{}
	for _, c := range commands {
		batch.Queue(insert, c.EquipmentID, c.SiteID, c.EquipmentType, c.CommandType,
			c.Value.String(), c.EmittedAt, c.Source, c.Status)
	}

	br := w.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, c := range commands {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("commandwriter: batched insert: %w", err)
		}
		observability.CommandsWritten.WithLabelValues(c.EquipmentType, c.CommandType).Inc()
	}
	return nil
}
