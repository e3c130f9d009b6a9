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

package catalog

import (
	"context"
	"database/sql"

	"github.com/gravitational/trace"
)

// ListEnv returns every env entry ordered by name.
func (c *Catalog) ListEnv(ctx context.Context) ([]EnvEntry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, value FROM env ORDER BY name`)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var entries []EnvEntry
	for rows.Next() {
		var e EnvEntry
		if err := rows.Scan(&e.Name, &e.Value); err != nil {
			return nil, trace.Wrap(err)
		}
		entries = append(entries, e)
	}
	return entries, trace.Wrap(rows.Err())
}

// GetEnv returns the env entry with the given name.
func (c *Catalog) GetEnv(ctx context.Context, name string) (*EnvEntry, error) {
	var e EnvEntry
	row := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT name, value FROM env WHERE name = ?`), name)
	if err := row.Scan(&e.Name, &e.Value); err != nil {
		if err == sql.ErrNoRows {
			return nil, trace.NotFound("env variable %q does not exist", name)
		}
		return nil, convertError(err)
	}
	return &e, nil
}

// UpsertEnv creates or replaces the value stored under name.
func (c *Catalog) UpsertEnv(ctx context.Context, name, value string) (*EnvEntry, error) {
	if name == "" {
		return nil, trace.BadParameter("env variable name must not be empty")
	}
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			c.rebind(`UPDATE env SET value = ? WHERE name = ?`), value, name)
		if err != nil {
			return convertError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return trace.Wrap(err)
		} else if n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			c.rebind(`INSERT INTO env (name, value) VALUES (?, ?)`), name, value)
		return convertError(err)
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &EnvEntry{Name: name, Value: value}, nil
}

// DeleteEnv removes the entry stored under name. Idempotent.
func (c *Catalog) DeleteEnv(ctx context.Context, name string) error {
	return trace.Wrap(c.inTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, c.rebind(`DELETE FROM env WHERE name = ?`), name)
		return convertError(err)
	}))
}
