package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

const (
	pingAttempts   = 10
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// OpenPostgres connects with retries, since the database often starts
// alongside the service, then migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := pingWithRetry(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := newSQLStore(db, postgresDialect, logger)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("postgres store ready")
	return s, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		logger.Warn("postgres not ready", "attempt", attempt, "retry_in", backoff, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return fmt.Errorf("postgres: ping failed after %d attempts: %w", pingAttempts, err)
}
