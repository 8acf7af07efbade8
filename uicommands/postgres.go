// Package uicommands reads recent UI-issued commands: records with
// equipmentId = X and instant within the last 5 minutes, newest first,
// capped at 5. The Gate only needs to know whether the result is
// non-empty.
package uicommands

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// resultCap bounds the query to the 5 most recent commands.
const resultCap = 5

// Store answers UI-command recency queries against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store from an existing connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// HasRecent reports whether unitID has a UI command recorded at or after
// since. Implements gate.UICommandChecker.
func (s *Store) HasRecent(ctx context.Context, unitID string, since time.Time) (bool, error) {
	const query = `
		SELECT 1 FROM ui_commands
		WHERE equipment_id = $1 AND issued_at >= $2
		ORDER BY issued_at DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, unitID, since, resultCap)
	if err != nil {
		return false, fmt.Errorf("uicommands: query unit %q: %w", unitID, err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("uicommands: iterate unit %q: %w", unitID, err)
	}
	return found, nil
}
