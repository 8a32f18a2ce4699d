package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresLedger struct {
	pool *pgxpool.Pool
}

var _ LedgerRepository = (*PostgresLedger)(nil)

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (r *PostgresLedger) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS forward_ledger (
			channel_id      TEXT PRIMARY KEY,
			last_message_id BIGINT NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create forward_ledger: %w", err)
	}
	return nil
}

func (r *PostgresLedger) Load(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT channel_id, last_message_id FROM forward_ledger`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			channel string
			id      int64
		)
		if err := rows.Scan(&channel, &id); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out[channel] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return out, nil
}

// Save never lowers a stored watermark.
func (r *PostgresLedger) Save(ctx context.Context, channelKey string, messageID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO forward_ledger (channel_id, last_message_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (channel_id) DO UPDATE
		SET last_message_id = GREATEST(forward_ledger.last_message_id, EXCLUDED.last_message_id),
		    updated_at = now()
	`, channelKey, messageID)
	if err != nil {
		return fmt.Errorf("upsert ledger %s: %w", channelKey, err)
	}
	return nil
}
