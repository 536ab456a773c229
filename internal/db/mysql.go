package db

import (
	"context"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// OpenMySQL creates the OLTP connection pool
func OpenMySQL(ctx context.Context, dsn string) (*sqlx.DB, error) {
	pool, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Connection pool configuration
	pool.SetMaxOpenConns(10)
	pool.SetMaxIdleConns(2)
	pool.SetConnMaxLifetime(time.Hour)
	pool.SetConnMaxIdleTime(30 * time.Minute)

	// Verify connectivity; 3 s bound stands in for an acquire timeout.
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Int("max_conns", 10).
		Int("min_conns", 2).
		Msg("mysql connection pool created")

	return pool, nil
}
