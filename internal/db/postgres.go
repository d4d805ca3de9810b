package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// ConnectPostgres opens a pgx pool and pings it, retrying like
// ConnectWithRetry.
func ConnectPostgres(ctx context.Context, dsn string, attempts int, delay time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	err = withRetry(ctx, "postgres", attempts, delay, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		p, err := pgxpool.NewWithConfig(pingCtx, cfg)
		if err != nil {
			return err
		}
		// Try pinging to make sure it's valid
		if err := p.Ping(pingCtx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("pg connection established to %s", cfg.ConnConfig.Host)
	return pool, nil
}
