// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package database

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/ManuGH/backend/internal/broker"
	"github.com/ManuGH/backend/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDBConfig() config.DatabaseConfig {
	cfg := config.Defaults("").Database
	cfg.Name = "rides"
	cfg.User = "app"
	cfg.Password = "p@ss/word"
	cfg.Host = "db"
	cfg.Port = 5432
	return cfg
}

func TestConnString(t *testing.T) {
	raw := ConnString(testDBConfig())
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/rides", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/word", pw)
	assert.Equal(t, "backend", u.Query().Get("application_name"))
}

func TestPoolConfig(t *testing.T) {
	pc, err := PoolConfig(testDBConfig())
	require.NoError(t, err)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, uint16(5432), pc.ConnConfig.Port)
	assert.Equal(t, "rides", pc.ConnConfig.Database)
	assert.Equal(t, "app", pc.ConnConfig.User)
	assert.Equal(t, "p@ss/word", pc.ConnConfig.Password)
	assert.Equal(t, int32(defaultMaxConns), pc.MaxConns)
	assert.Equal(t, defaultConnectTimeout, pc.ConnConfig.ConnectTimeout)
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeQuerier struct {
	execs [][]any
	rows  map[string]fakeRow
	err   error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	f.execs = append(f.execs, append([]any{sql}, args...))
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if row, ok := f.rows[args[0].(string)]; ok {
		return row
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func TestTaskResults_Store(t *testing.T) {
	q := &fakeQuerier{}
	s := NewTaskResults(q)
	done := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.StoreResult(context.Background(), broker.Result{
		TaskID: "t1", TaskName: "send_sms", Status: broker.StatusSuccess,
		Result: json.RawMessage(`{"to":"+573001234567"}`), DoneAt: done,
	}))
	require.Len(t, q.execs, 2)
	assert.Contains(t, q.execs[0][0], "CREATE TABLE IF NOT EXISTS task_results")
	assert.Equal(t, "t1", q.execs[1][1])
	assert.Equal(t, []byte(`{"to":"+573001234567"}`), q.execs[1][4])
	assert.Equal(t, done, q.execs[1][6])
}

func TestTaskResults_Load(t *testing.T) {
	done := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	q := &fakeQuerier{rows: map[string]fakeRow{
		"t1": {values: []any{"t1", "send_email", broker.StatusFailure, []byte(nil), "boom", done}},
	}}
	s := NewTaskResults(q)

	r, err := s.Result(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "send_email", r.TaskName)
	assert.Equal(t, broker.StatusFailure, r.Status)
	assert.Equal(t, "boom", r.Error)
	assert.Equal(t, done, r.DoneAt)

	_, err = s.Result(context.Background(), "missing")
	assert.ErrorIs(t, err, broker.ErrResultNotFound)
}

func TestTaskResults_StoreError(t *testing.T) {
	boom := errors.New("conn reset")
	s := NewTaskResults(&fakeQuerier{err: boom})
	assert.ErrorIs(t, s.StoreResult(context.Background(), broker.Result{TaskID: "x"}), boom)
}

func TestCheckPostGIS(t *testing.T) {
	q := &postgisQuerier{}
	assert.ErrorIs(t, CheckPostGIS(context.Background(), q), ErrPostGISMissing)
	q.installed = true
	assert.NoError(t, CheckPostGIS(context.Background(), q))
}

type postgisQuerier struct{ installed bool }

func (q *postgisQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (q *postgisQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	if q.installed {
		return fakeRow{values: []any{"3.4 USE_GEOS=1"}}
	}
	return fakeRow{err: errors.New(`function postgis_version() does not exist`)}
}
