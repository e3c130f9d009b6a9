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

// ListSeeds returns all seeds ordered by id.
func (c *Catalog) ListSeeds(ctx context.Context) ([]Seed, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, url FROM seeds ORDER BY id`)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var seeds []Seed
	for rows.Next() {
		var s Seed
		if err := rows.Scan(&s.ID, &s.URL); err != nil {
			return nil, trace.Wrap(err)
		}
		seeds = append(seeds, s)
	}
	return seeds, trace.Wrap(rows.Err())
}

// GetSeed returns one seed by id.
func (c *Catalog) GetSeed(ctx context.Context, id int64) (*Seed, error) {
	var s Seed
	row := c.db.QueryRowContext(ctx, c.rebind(`SELECT id, url FROM seeds WHERE id = ?`), id)
	if err := row.Scan(&s.ID, &s.URL); err != nil {
		if err == sql.ErrNoRows {
			return nil, trace.NotFound("seed %d does not exist", id)
		}
		return nil, convertError(err)
	}
	return &s, nil
}

// CreateSeed stores a new seed URL. Duplicate URLs yield AlreadyExists.
func (c *Catalog) CreateSeed(ctx context.Context, url string) (*Seed, error) {
	if url == "" {
		return nil, trace.BadParameter("seed url must not be empty")
	}
	var seed Seed
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		var existing int64
		row := tx.QueryRowContext(ctx, c.rebind(`SELECT id FROM seeds WHERE url = ?`), url)
		if err := row.Scan(&existing); err == nil {
			return trace.AlreadyExists("a seed with url %q already exists", url)
		} else if err != sql.ErrNoRows {
			return convertError(err)
		}
		id, err := insertRow(ctx, tx, c, `INSERT INTO seeds (url) VALUES (?)`, url)
		if err != nil {
			return trace.Wrap(err)
		}
		seed = Seed{ID: id, URL: url}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &seed, nil
}

// DeleteSeed removes a seed. Plugins keep existing; their seed reference is
// cleared by the schema. Deleting a missing seed is not an error so the
// operation is idempotent.
func (c *Catalog) DeleteSeed(ctx context.Context, id int64) error {
	return trace.Wrap(c.inTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, c.rebind(`DELETE FROM seeds WHERE id = ?`), id)
		return convertError(err)
	}))
}

// HasSeedWithURL reports whether the URL is a known seed.
func (c *Catalog) HasSeedWithURL(ctx context.Context, url string) (bool, error) {
	var id int64
	row := c.db.QueryRowContext(ctx, c.rebind(`SELECT id FROM seeds WHERE url = ?`), url)
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, convertError(err)
	}
	return true, nil
}

// CountSeeds returns the number of stored seeds.
func (c *Catalog) CountSeeds(ctx context.Context) (int64, error) {
	var n int64
	row := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seeds`)
	if err := row.Scan(&n); err != nil {
		return 0, convertError(err)
	}
	return n, nil
}
