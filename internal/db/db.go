// internal/db/db.go
package db

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// Open returns a *sql.DB and pings it so callers fail fast during bootstrap.
func Open(dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
