package beat

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTickStore persists last_tick per beat entry in the same database
// TaskStore uses, so a restarted Orchestrator can tell which entries it
// missed while it was down (spec §4.11's "persist last_tick per entry").
type PostgresTickStore struct {
	pool *pgxpool.Pool
}

// NewPostgresTickStore wraps an existing pool (shared with PostgresStore).
func NewPostgresTickStore(pool *pgxpool.Pool) *PostgresTickStore {
	return &PostgresTickStore{pool: pool}
}

func (p *PostgresTickStore) LastTick(ctx context.Context, name string) (time.Time, bool, error) {
	var t time.Time
	err := p.pool.QueryRow(ctx, `SELECT fired_at FROM beat_ticks WHERE entry_name = $1`, name).Scan(&t)
	if err == pgx.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (p *PostgresTickStore) SetLastTick(ctx context.Context, name string, t time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO beat_ticks (entry_name, fired_at) VALUES ($1, $2)
		ON CONFLICT (entry_name) DO UPDATE SET fired_at = EXCLUDED.fired_at
	`, name, t)
	return err
}
