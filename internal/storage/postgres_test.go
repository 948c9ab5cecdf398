package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "matchwatch/pkg/logx"
)

// stubConnector hands out connections that accept Exec and nothing else.
type stubConnector struct{ execs *atomic.Int32 }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return stubConn(c), nil }
func (c stubConnector) Driver() driver.Driver                        { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("stub: use the connector")
}

type stubConn struct{ execs *atomic.Int32 }

func (stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepare unsupported")
}
func (stubConn) Close() error              { return nil }
func (stubConn) Begin() (driver.Tx, error) { return nil, errors.New("stub: tx unsupported") }

func (c stubConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.execs.Add(1)
	return driver.RowsAffected(0), nil
}

// flakyOpener fails the first failures calls, then opens stub databases.
type flakyOpener struct {
	failures int32
	calls    atomic.Int32
	execs    atomic.Int32
}

func (o *flakyOpener) open(driverName, dsn string) (*sql.DB, error) {
	if o.calls.Add(1) <= o.failures {
		return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}
	return sql.OpenDB(stubConnector{execs: &o.execs}), nil
}

func newStubPostgres(o *flakyOpener) *postgresStore {
	return &postgresStore{dsn: "postgres://stub", log: logx.Nop(), openDB: o.open}
}

func TestPostgresReconnectsAfterFailedConnect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o := &flakyOpener{failures: 2}
	s := newStubPostgres(o)

	require.ErrorContains(t, s.Save(ctx, Snapshot{}), "connection refused")
	_, err := s.Load(ctx)
	require.ErrorContains(t, err, "connection refused")
	assert.Equal(t, int32(2), o.calls.Load())

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Ping(ctx))
	assert.Equal(t, int32(3), o.calls.Load(), "a ready handle is reused")
	assert.Equal(t, int32(1), o.execs.Load(), "table created once")
}

func TestPostgresStatementErrorsKeepHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o := &flakyOpener{}
	s := newStubPostgres(o)

	require.ErrorContains(t, s.Save(ctx, sampleSnapshot()), "tx unsupported")
	_, err := s.Load(ctx)
	require.ErrorContains(t, err, "prepare unsupported")
	assert.Equal(t, int32(1), o.calls.Load())
}

func TestPostgresClosed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o := &flakyOpener{}
	s := newStubPostgres(o)
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Save(ctx, Snapshot{}), ErrClosed)
	require.ErrorIs(t, s.Ping(ctx), ErrClosed)
	assert.Equal(t, int32(1), o.calls.Load())
	require.NoError(t, s.Close())
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "postgres", DSN: "  "}, logx.Nop())
	require.Error(t, err)

	b, err := Open(Config{Driver: "postgres", DSN: "postgres://u@localhost/db"}, logx.Nop())
	require.NoError(t, err)
	_, ok := b.(Pinger)
	assert.True(t, ok)
	require.NoError(t, b.Close())
}
