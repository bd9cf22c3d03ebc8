/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package history records diearea runs in a small SQL ledger.
//
// Two backends share one schema: a per-user SQLite file (modernc.org/sqlite,
// no cgo) and a shared Postgres database reached through pgx. Migrations are
// embedded per dialect and tracked in schema_migrations.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"diearea/internal/config"
	"diearea/internal/def"
	applog "diearea/internal/log"
	"diearea/internal/version"
)

// Outcome classifies a run.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeNoMatch Outcome = "no_match"
	OutcomeError   Outcome = "error"
)

// Run is one recorded invocation. Before and After are nil when no statement was parsed.
type Run struct {
	ID           int64
	StartedAt    time.Time
	Input        string
	Output       string
	Outcome      Outcome
	Before       *def.Rect
	After        *def.Rect
	Replacements int
	Error        string
	Version      string
	Host         string
}

// NewRun builds a Run from the result of def.DoubleFile.
func NewRun(started time.Time, in, out string, res def.Result, err error) Run {
	r := Run{
		StartedAt: started.UTC(),
		Input:     in,
		Output:    out,
		Version:   version.String(),
	}
	if h, herr := os.Hostname(); herr == nil {
		r.Host = h
	}
	switch {
	case err == nil:
		r.Outcome = OutcomeOK
		before, after := res.Before, res.After
		r.Before, r.After = &before, &after
		r.Replacements = res.Replacements
	case errors.Is(err, def.ErrNoDieArea):
		r.Outcome = OutcomeNoMatch
		r.Error = err.Error()
	default:
		r.Outcome = OutcomeError
		r.Error = err.Error()
	}
	return r
}

// Store is an open history database.
type Store struct {
	db      *sql.DB
	dialect dialect
	log     *slog.Logger
}

// Open opens the history backend selected by cfg and brings its schema up to date.
func Open(ctx context.Context, cfg config.AppConfig) (*Store, error) {
	switch cfg.History.Driver {
	case "", config.DriverSQLite:
		path, err := cfg.HistoryPath()
		if err != nil {
			return nil, err
		}
		return OpenSQLite(ctx, path)
	case config.DriverPostgres:
		pw, err := config.PostgresPassword()
		if err != nil {
			applog.WithComponent("history").Warn("keychain lookup failed", slog.Any("err", err))
		}
		return OpenPostgres(ctx, cfg.History.PostgresURL, pw)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.History.Driver)
	}
}

// OpenSQLite opens (creating if needed) a SQLite history file at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("history"), "open_sqlite").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_txlock=immediate", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	return newStore(ctx, db, sqliteDialect, l)
}

// OpenPostgres connects to a shared Postgres history. A password missing from
// the DSN is taken from password (normally the keychain entry).
func OpenPostgres(ctx context.Context, dsn, password string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("history"), "open_postgres")
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("history postgres_url is required")
	}
	pcfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if pcfg.Password == "" {
		pcfg.Password = password
	}
	l = l.With(slog.String("host", pcfg.Host), slog.String("db", pcfg.Database))
	db := stdlib.OpenDB(*pcfg)
	db.SetMaxOpenConns(2)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		l.Error("ping failed", slog.Any("err", err))
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newStore(ctx, db, postgresDialect, l)
}

func newStore(ctx context.Context, db *sql.DB, d dialect, l *slog.Logger) (*Store, error) {
	if err := migrate(ctx, db, d); err != nil {
		_ = db.Close()
		l.Error("migrate failed", slog.Any("err", err))
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	l.Debug("history ready", slog.String("dialect", d.name))
	return &Store{db: db, dialect: d, log: l}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts r and returns its id.
func (s *Store) Record(ctx context.Context, r Run) (int64, error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	args := []any{
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.Input, r.Output, string(r.Outcome),
	}
	args = append(args, rectArgs(r.Before)...)
	args = append(args, rectArgs(r.After)...)
	args = append(args, areaArg(r.Before), areaArg(r.After), r.Replacements, r.Error, r.Version, r.Host)

	q := `INSERT INTO runs (started_at, input_path, output_path, outcome,
		before_lx, before_ly, before_ux, before_uy,
		after_lx, after_ly, after_ux, after_uy,
		before_area, after_area,
		replacements, error, app_version, host)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var id int64
	if s.dialect.returning {
		err := s.db.QueryRowContext(ctx, s.dialect.rebind(q)+" RETURNING id", args...).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert run: %w", err)
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, fmt.Errorf("insert run id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, started_at, input_path, output_path, outcome,
		before_lx, before_ly, before_ux, before_uy,
		after_lx, after_ly, after_ux, after_uy,
		before_area, after_area,
		replacements, error, app_version, host
		FROM runs ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.log.Warn("rows close", slog.Any("err", cerr))
		}
	}()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			started string
			outcome string
			b, a    [4]sql.NullInt64
			bt, at  sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &r.Input, &r.Output, &outcome,
			&b[0], &b[1], &b[2], &b[3], &a[0], &a[1], &a[2], &a[3], &bt, &at,
			&r.Replacements, &r.Error, &r.Version, &r.Host); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			r.StartedAt = t
		}
		r.Outcome = Outcome(outcome)
		r.Before = scanRect(bt, b)
		r.After = scanRect(at, a)
		out = append(out, r)
	}
	return out, rows.Err()
}

// rectArgs fills the integer columns; a rect that does not fit in them is
// kept only in its *_area text column.
func rectArgs(r *def.Rect) []any {
	if r == nil {
		return []any{nil, nil, nil, nil}
	}
	v, ok := r.Int64()
	if !ok {
		return []any{nil, nil, nil, nil}
	}
	return []any{v[0], v[1], v[2], v[3]}
}

func areaArg(r *def.Rect) any {
	if r == nil {
		return nil
	}
	return r.String()
}

// scanRect prefers the exact text form; rows written before it existed
// fall back to the integer columns.
func scanRect(text sql.NullString, v [4]sql.NullInt64) *def.Rect {
	if text.Valid {
		if st, err := def.Find(text.String); err == nil {
			return &st.Rect
		}
	}
	for _, n := range v {
		if !n.Valid {
			return nil
		}
	}
	r := def.NewRect(v[0].Int64, v[1].Int64, v[2].Int64, v[3].Int64)
	return &r
}
