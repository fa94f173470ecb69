// Package db provides database connection handling for the play service.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Postgres driver registration.
	_ "github.com/lib/pq"
)

// Connection pool settings. The service is read-heavy (dedup lookups and
// analytics queries) with short transactions, so a modest pool suffices.
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
)

// Open connects to Postgres at the given URL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(maxOpenConns)
	conn.SetMaxIdleConns(maxIdleConns)
	conn.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}
