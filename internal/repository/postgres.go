package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// ConnectRetries is how many extra pings are tried while Postgres is
	// still starting. Zero pings once.
	ConnectRetries int
}

const connectBackoff = 500 * time.Millisecond

// NewPostgresDB opens the ledger database and waits for it to answer.
func NewPostgresDB(ctx context.Context, databaseURL string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresDB: open: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := pingWithRetry(ctx, db, pool.ConnectRetries); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewPostgresDB: ping: %w", err)
	}

	return db, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, retries int) error {
	log := logging.FromContext(ctx)
	wait := connectBackoff

	for attempt := 0; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil || attempt >= retries {
			return err
		}
		log.Warn("postgres not ready, retrying", "attempt", attempt+1, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}
