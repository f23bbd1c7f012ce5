package postgres

import (
	"context"
	"fmt"

	"trade_agent/internal/modules/config"
	"trade_agent/pkg/db"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS %s (
	id          UUID PRIMARY KEY,
	kind        TEXT        NOT NULL,
	instrument  TEXT        NOT NULL,
	at          TIMESTAMPTZ NOT NULL,
	payload     JSONB       NOT NULL
)`

// Connect opens the pool, pings it and makes sure the events table exists.
func Connect(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
	if cfg.DB == "" {
		return nil, fmt.Errorf("postgres: %s is empty", "db_dsn")
	}
	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN:      cfg.DB,
		MaxConns: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}

	m := db.NewPgTxManager(poolMaster)
	if _, err := m.Conn().Exec(ctx, fmt.Sprintf(eventsSchema, db.Ident(cfg.Events.Table))); err != nil {
		m.Close()
		return nil, fmt.Errorf("create %s: %w", cfg.Events.Table, err)
	}
	return m, nil
}
