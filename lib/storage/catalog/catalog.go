/*
Copyright 2024 University of Stuttgart

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package catalog implements the relational plugin catalog: plugins with
// their IO data and dependencies, tags, seeds, services, env entries, UI
// templates and template tabs.
//
// The catalog runs on a single database/sql connection pool. The backend
// driver is selected from the database URI scheme: "sqlite://" uses the
// embedded SQLite driver, "postgres://" the pgx driver. All SQL sticks to
// the portable subset both engines support; queries are written with "?"
// placeholders and rebound for postgres.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonboulle/clockwork"
	sqlite3 "github.com/mattn/go-sqlite3"

	// Registers the pgx database/sql driver under the name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config holds catalog construction parameters.
type Config struct {
	// DatabaseURI selects the backend, e.g. "sqlite://registry.db",
	// "sqlite://:memory:" or "postgres://user@host/registry".
	DatabaseURI string
	// Clock supplies freshness timestamps. Defaults to the real clock.
	Clock clockwork.Clock
	// Log is the catalog logger. Defaults to slog.Default.
	Log *slog.Logger
}

// Catalog is the persistent store behind the registry. All methods are safe
// for concurrent use; every write runs in its own transaction.
type Catalog struct {
	db       *sql.DB
	postgres bool
	clock    clockwork.Clock
	log      *slog.Logger
}

// Open connects to the database named by the config and ensures the schema
// exists.
func Open(ctx context.Context, cfg Config) (*Catalog, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	driver, dsn, postgres, err := splitDatabaseURI(cfg.DatabaseURI)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if !postgres {
		// SQLite serializes writers; a second connection would only
		// produce busy errors.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, trace.ConnectionProblem(err, "failed to connect to %v", cfg.DatabaseURI)
	}

	c := &Catalog{db: db, postgres: postgres, clock: cfg.Clock, log: cfg.Log}
	if err := c.InitSchema(ctx); err != nil {
		db.Close()
		return nil, trace.Wrap(err)
	}
	return c, nil
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// splitDatabaseURI maps a registry database URI onto a database/sql driver
// name and DSN.
func splitDatabaseURI(uri string) (driver, dsn string, postgres bool, err error) {
	switch {
	case strings.HasPrefix(uri, "sqlite://"):
		path := strings.TrimPrefix(uri, "sqlite://")
		if path == ":memory:" {
			// A shared cache keeps the in-memory database alive across
			// pooled connections.
			path = "file::memory:?cache=shared&_foreign_keys=on"
		} else {
			path = "file:" + path + "?_foreign_keys=on"
		}
		return "sqlite3", path, false, nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return "pgx", uri, true, nil
	case uri == "":
		return "", "", false, trace.BadParameter("database URI is not set")
	default:
		return "", "", false, trace.BadParameter(
			"unsupported database URI %q (want sqlite:// or postgres://)", uri)
	}
}

// rebind rewrites "?" placeholders into the "$n" form when running on
// postgres. SQLite consumes the query unchanged.
func (c *Catalog) rebind(query string) string {
	if !c.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (c *Catalog) inTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return trace.Wrap(err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				c.log.WarnContext(ctx, "failed to rollback transaction", "error", err)
			}
		}
	}()
	if err := fn(tx); err != nil {
		return trace.Wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return convertError(err)
	}
	committed = true
	return nil
}

// convertError translates driver errors into the trace taxonomy so the HTTP
// layer can derive status codes.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return trace.NotFound("not found")
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return trace.AlreadyExists("already exists: %v", err)
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 is unique_violation.
		if pgErr.Code == "23505" {
			return trace.AlreadyExists("already exists: %v", err)
		}
	}
	return trace.Wrap(err)
}
