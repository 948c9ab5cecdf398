package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	logx "matchwatch/pkg/logx"
)

const (
	postgresTableName        = "matchwatch_tenants"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// postgresStore connects lazily and creates the table on first use. A failed
// connect is retried on the next call; only a ready handle is kept.
type postgresStore struct {
	dsn    string
	log    logx.Logger
	openDB sqlOpenFunc

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

func openPostgres(cfg Config, log logx.Logger) (Backend, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	return &postgresStore{dsn: dsn, log: log, openDB: sql.Open}, nil
}

func (s *postgresStore) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.db != nil {
		return s.db, nil
	}

	db, err := s.openDB("postgres", s.dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+postgresTableName+` (
			tenant_id  TEXT PRIMARY KEY,
			record     TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		_ = db.Close()
		s.log.Warn("postgres not ready; will retry", logx.Err(err))
		return nil, err
	}
	s.db = db
	return db, nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

func (s *postgresStore) Load(ctx context.Context) (Snapshot, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT tenant_id, record FROM `+postgresTableName)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return Snapshot{}, err
		}
		ts, err := decodeTenant([]byte(record))
		if err != nil {
			return Snapshot{}, fmt.Errorf("tenant %q: %w", id, err)
		}
		snap[id] = ts
	}
	return snap, rows.Err()
}

func (s *postgresStore) Save(ctx context.Context, snap Snapshot) (err error) {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ids := sortedTenantIDs(snap)
	if _, err = tx.ExecContext(ctx, `DELETE FROM `+postgresTableName+` WHERE NOT (tenant_id = ANY($1))`, pq.Array(ids)); err != nil {
		return err
	}
	for _, id := range ids {
		b, encErr := encodeTenant(snap[id])
		if encErr != nil {
			err = encErr
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO `+postgresTableName+` (tenant_id, record, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (tenant_id)
			DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()`, id, string(b))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *postgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
