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
	"strings"
	"time"

	"github.com/gravitational/trace"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/pluginfilter"
)

// querier is implemented by *sql.DB and *sql.Tx so loaders can run inside
// and outside transactions.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const pluginColumns = `id, identifier, version, sort_version, name, description,
	plugin_type, url, entry_url, ui_url, schema_json, last_available,
	COALESCE(seed_id, 0)`

func scanPlugin(row interface{ Scan(...interface{}) error }) (*Plugin, error) {
	var p Plugin
	var lastAvailable int64
	err := row.Scan(&p.ID, &p.Identifier, &p.Version, &p.SortVersion, &p.Name,
		&p.Description, &p.Type, &p.URL, &p.EntryURL, &p.UIURL, &p.Schema,
		&lastAvailable, &p.SeedID)
	if err != nil {
		return nil, convertError(err)
	}
	if lastAvailable != 0 {
		p.LastAvailable = time.Unix(lastAvailable, 0).UTC()
	}
	return &p, nil
}

// GetPlugin loads a plugin with its tags, IO data and dependencies.
func (c *Catalog) GetPlugin(ctx context.Context, id int64) (*Plugin, error) {
	row := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT `+pluginColumns+` FROM plugins WHERE id = ?`), id)
	p, err := scanPlugin(row)
	if err != nil {
		if trace.IsNotFound(err) {
			return nil, trace.NotFound("plugin %d does not exist", id)
		}
		return nil, trace.Wrap(err)
	}
	if err := c.loadPluginRelations(ctx, c.db, p); err != nil {
		return nil, trace.Wrap(err)
	}
	return p, nil
}

// GetPluginByIdentifier loads a plugin addressed by identifier and version.
func (c *Catalog) GetPluginByIdentifier(ctx context.Context, identifier, version string) (*Plugin, error) {
	row := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT `+pluginColumns+` FROM plugins WHERE identifier = ? AND version = ?`),
		identifier, version)
	p, err := scanPlugin(row)
	if err != nil {
		if trace.IsNotFound(err) {
			return nil, trace.NotFound("plugin %s@%s does not exist", identifier, version)
		}
		return nil, trace.Wrap(err)
	}
	if err := c.loadPluginRelations(ctx, c.db, p); err != nil {
		return nil, trace.Wrap(err)
	}
	return p, nil
}

// GetPlugins loads several plugins with relations, in the id order given.
func (c *Catalog) GetPlugins(ctx context.Context, ids []int64) ([]*Plugin, error) {
	plugins := make([]*Plugin, 0, len(ids))
	for _, id := range ids {
		p, err := c.GetPlugin(ctx, id)
		if err != nil {
			if trace.IsNotFound(err) {
				continue
			}
			return nil, trace.Wrap(err)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// ListPluginVersions returns all stored versions of an identifier in sort
// version order.
func (c *Catalog) ListPluginVersions(ctx context.Context, identifier string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		c.rebind(`SELECT version FROM plugins WHERE identifier = ? ORDER BY sort_version`),
		identifier)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, trace.Wrap(err)
		}
		versions = append(versions, v)
	}
	return versions, trace.Wrap(rows.Err())
}

// PluginBatch implements pluginfilter.BatchSource: plugins with their tags
// in stable id order, limit rows at a time.
func (c *Catalog) PluginBatch(ctx context.Context, afterID int64, limit int) ([]pluginfilter.Plugin, error) {
	rows, err := c.db.QueryContext(ctx, c.rebind(
		`SELECT id, identifier, version, name, plugin_type FROM plugins
		 WHERE id > ? ORDER BY id LIMIT ?`), afterID, limit)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var batch []pluginfilter.Plugin
	ids := make([]int64, 0, limit)
	for rows.Next() {
		var p pluginfilter.Plugin
		if err := rows.Scan(&p.ID, &p.Identifier, &p.Version, &p.Name, &p.Type); err != nil {
			return nil, trace.Wrap(err)
		}
		batch = append(batch, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, trace.Wrap(err)
	}
	tags, err := c.pluginTags(ctx, c.db, ids)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	for i := range batch {
		batch[i].Tags = tags[batch[i].ID]
	}
	return batch, nil
}

// IngestSpec is the payload of a plugin upsert derived from a crawled
// self-description.
type IngestSpec struct {
	Identifier  string
	Version     string
	Name        string
	Description string
	Type        string
	URL         string
	EntryURL    string
	UIURL       string
	Schema      string
	// SeedID is the discovering seed, zero when unknown.
	SeedID int64

	Tags         []string
	IOData       []IOData
	Dependencies []Dependency
}

// CreateOrUpdatePlugin upserts a plugin by (identifier, version). Tags, IO
// data and dependencies are replaced wholesale; last_available is refreshed
// from the clock. Returns the stored plugin and whether it was newly
// created.
func (c *Catalog) CreateOrUpdatePlugin(ctx context.Context, spec IngestSpec) (*Plugin, bool, error) {
	if spec.Identifier == "" {
		return nil, false, trace.BadParameter("plugin identifier must not be empty")
	}
	if spec.Version == "" {
		return nil, false, trace.BadParameter("plugin version must not be empty")
	}
	now := c.clock.Now().UTC()
	var pluginID int64
	created := false

	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		var seedID interface{}
		if spec.SeedID != 0 {
			seedID = spec.SeedID
		}
		row := tx.QueryRowContext(ctx,
			c.rebind(`SELECT id FROM plugins WHERE identifier = ? AND version = ?`),
			spec.Identifier, spec.Version)
		err := row.Scan(&pluginID)
		switch {
		case err == sql.ErrNoRows:
			created = true
			pluginID, err = insertRow(ctx, tx, c,
				`INSERT INTO plugins (identifier, version, sort_version, name,
					description, plugin_type, url, entry_url, ui_url,
					schema_json, last_available, seed_id)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				spec.Identifier, spec.Version, SortVersion(spec.Version),
				spec.Name, spec.Description, spec.Type, spec.URL,
				spec.EntryURL, spec.UIURL, spec.Schema, now.Unix(), seedID)
			if err != nil {
				return trace.Wrap(err)
			}
		case err != nil:
			return convertError(err)
		default:
			_, err := tx.ExecContext(ctx, c.rebind(
				`UPDATE plugins SET sort_version = ?, name = ?, description = ?,
					plugin_type = ?, url = ?, entry_url = ?, ui_url = ?,
					schema_json = ?, last_available = ?, seed_id = ?
				 WHERE id = ?`),
				SortVersion(spec.Version), spec.Name, spec.Description,
				spec.Type, spec.URL, spec.EntryURL, spec.UIURL, spec.Schema,
				now.Unix(), seedID, pluginID)
			if err != nil {
				return convertError(err)
			}
		}

		if err := c.replacePluginTags(ctx, tx, pluginID, spec.Tags); err != nil {
			return trace.Wrap(err)
		}
		if err := c.replaceIOData(ctx, tx, pluginID, spec.IOData); err != nil {
			return trace.Wrap(err)
		}
		if err := c.replaceDependencies(ctx, tx, pluginID, spec.Dependencies); err != nil {
			return trace.Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, false, trace.Wrap(err)
	}

	plugin, err := c.GetPlugin(ctx, pluginID)
	if err != nil {
		return nil, false, trace.Wrap(err)
	}
	return plugin, created, nil
}

// RefreshLastAvailable bumps the freshness timestamp of the plugin at the
// given URL, returning false when no plugin matches.
func (c *Catalog) RefreshLastAvailable(ctx context.Context, url string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		c.rebind(`UPDATE plugins SET last_available = ? WHERE url = ?`),
		c.clock.Now().UTC().Unix(), url)
	if err != nil {
		return false, convertError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, trace.Wrap(err)
	}
	return n > 0, nil
}

// DeletePlugin removes a plugin. IO data, content types, dependencies and
// tab memberships cascade; tags survive.
func (c *Catalog) DeletePlugin(ctx context.Context, id int64) error {
	return trace.Wrap(c.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, c.rebind(`DELETE FROM plugins WHERE id = ?`), id)
		if err != nil {
			return convertError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return trace.Wrap(err)
		}
		if n == 0 {
			return trace.NotFound("plugin %d does not exist", id)
		}
		return nil
	}))
}

// DeletePluginsByURL removes every plugin registered under the URL. Used by
// discovery when a previously known plugin endpoint disappears. Missing
// rows are not an error.
func (c *Catalog) DeletePluginsByURL(ctx context.Context, url string) (int64, error) {
	var deleted int64
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, c.rebind(`DELETE FROM plugins WHERE url = ?`), url)
		if err != nil {
			return convertError(err)
		}
		deleted, err = res.RowsAffected()
		return trace.Wrap(err)
	})
	return deleted, trace.Wrap(err)
}

// PurgeStale deletes plugins whose last_available lies more than threshold
// before the newest last_available in the table. The anchor is the table
// maximum, not the wall clock, so purging only progresses while discovery
// is actively refreshing timestamps. Plugins at exactly the boundary are
// kept.
func (c *Catalog) PurgeStale(ctx context.Context, threshold time.Duration) (int64, error) {
	var purged int64
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		var newest sql.NullInt64
		row := tx.QueryRowContext(ctx, `SELECT MAX(last_available) FROM plugins`)
		if err := row.Scan(&newest); err != nil {
			return convertError(err)
		}
		if !newest.Valid {
			return nil // empty catalog
		}
		cutoff := newest.Int64 - int64(threshold.Seconds())
		res, err := tx.ExecContext(ctx,
			c.rebind(`DELETE FROM plugins WHERE last_available < ?`), cutoff)
		if err != nil {
			return convertError(err)
		}
		purged, err = res.RowsAffected()
		return trace.Wrap(err)
	})
	return purged, trace.Wrap(err)
}

// insertRow runs an insert written with `?` placeholders and without a
// RETURNING clause, and returns the generated primary key. pgx does not
// support LastInsertId, so the postgres branch appends RETURNING id.
func insertRow(ctx context.Context, tx *sql.Tx, c *Catalog, query string, args ...interface{}) (int64, error) {
	var id int64
	if c.postgres {
		row := tx.QueryRowContext(ctx, c.rebind(query)+` RETURNING id`, args...)
		if err := row.Scan(&id); err != nil {
			return 0, convertError(err)
		}
		return id, nil
	}
	res, err := tx.ExecContext(ctx, c.rebind(query), args...)
	if err != nil {
		return 0, convertError(err)
	}
	id, err = res.LastInsertId()
	return id, trace.Wrap(err)
}

// loadPluginRelations populates tags, IO data and dependencies.
func (c *Catalog) loadPluginRelations(ctx context.Context, q querier, p *Plugin) error {
	tags, err := c.pluginTags(ctx, q, []int64{p.ID})
	if err != nil {
		return trace.Wrap(err)
	}
	p.Tags = tags[p.ID]

	p.IOData, err = c.pluginIOData(ctx, q, p.ID)
	if err != nil {
		return trace.Wrap(err)
	}
	p.Dependencies, err = c.pluginDependencies(ctx, q, p.ID)
	return trace.Wrap(err)
}

// pluginTags loads tag names per plugin id.
func (c *Catalog) pluginTags(ctx context.Context, q querier, ids []int64) (map[int64][]string, error) {
	out := map[int64][]string{}
	if len(ids) == 0 {
		return out, nil
	}
	query, args := inClause(
		`SELECT pt.plugin_id, t.name FROM plugin_tags pt
		 JOIN tags t ON t.id = pt.tag_id WHERE pt.plugin_id IN (%s)
		 ORDER BY t.name`, ids)
	rows, err := q.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, trace.Wrap(err)
		}
		out[id] = append(out[id], name)
	}
	return out, trace.Wrap(rows.Err())
}

func (c *Catalog) pluginIOData(ctx context.Context, q querier, pluginID int64) ([]IOData, error) {
	rows, err := q.QueryContext(ctx, c.rebind(
		`SELECT id, identifier, relation, required, data_type_start, data_type_end
		 FROM io_data WHERE plugin_id = ? ORDER BY id`), pluginID)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var list []IOData
	for rows.Next() {
		io := IOData{PluginID: pluginID}
		var relation string
		var required int
		if err := rows.Scan(&io.ID, &io.Identifier, &relation, &required,
			&io.DataType.Start, &io.DataType.End); err != nil {
			return nil, trace.Wrap(err)
		}
		io.Relation = IORelation(relation)
		io.Required = required != 0
		list = append(list, io)
	}
	if err := rows.Err(); err != nil {
		return nil, trace.Wrap(err)
	}
	for i := range list {
		ctRows, err := q.QueryContext(ctx, c.rebind(
			`SELECT content_type_start, content_type_end FROM content_types
			 WHERE io_data_id = ? ORDER BY id`), list[i].ID)
		if err != nil {
			return nil, convertError(err)
		}
		for ctRows.Next() {
			var v DataValue
			if err := ctRows.Scan(&v.Start, &v.End); err != nil {
				ctRows.Close()
				return nil, trace.Wrap(err)
			}
			list[i].ContentTypes = append(list[i].ContentTypes, v)
		}
		if err := ctRows.Err(); err != nil {
			ctRows.Close()
			return nil, trace.Wrap(err)
		}
		ctRows.Close()
	}
	return list, nil
}

func (c *Catalog) pluginDependencies(ctx context.Context, q querier, pluginID int64) ([]Dependency, error) {
	rows, err := q.QueryContext(ctx, c.rebind(
		`SELECT id, parameter, required, target_identifier, version_spec,
			target_type, COALESCE(best_match, 0)
		 FROM dependencies WHERE plugin_id = ? ORDER BY id`), pluginID)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var list []Dependency
	for rows.Next() {
		dep := Dependency{PluginID: pluginID}
		var required int
		if err := rows.Scan(&dep.ID, &dep.Parameter, &required,
			&dep.TargetIdentifier, &dep.VersionSpec, &dep.TargetType,
			&dep.BestMatch); err != nil {
			return nil, trace.Wrap(err)
		}
		dep.Required = required != 0
		list = append(list, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, trace.Wrap(err)
	}
	for i := range list {
		tagRows, err := q.QueryContext(ctx, c.rebind(
			`SELECT t.name, dt.exclude FROM dependency_tags dt
			 JOIN tags t ON t.id = dt.tag_id
			 WHERE dt.dependency_id = ? ORDER BY t.name`), list[i].ID)
		if err != nil {
			return nil, convertError(err)
		}
		for tagRows.Next() {
			var name string
			var exclude int
			if err := tagRows.Scan(&name, &exclude); err != nil {
				tagRows.Close()
				return nil, trace.Wrap(err)
			}
			if exclude != 0 {
				list[i].ForbiddenTags = append(list[i].ForbiddenTags, name)
			} else {
				list[i].RequiredTags = append(list[i].RequiredTags, name)
			}
		}
		if err := tagRows.Err(); err != nil {
			tagRows.Close()
			return nil, trace.Wrap(err)
		}
		tagRows.Close()
	}
	return list, nil
}

// replacePluginTags rewrites a plugin's tag set, creating unknown tags.
func (c *Catalog) replacePluginTags(ctx context.Context, tx *sql.Tx, pluginID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx,
		c.rebind(`DELETE FROM plugin_tags WHERE plugin_id = ?`), pluginID); err != nil {
		return convertError(err)
	}
	seen := map[string]bool{}
	for _, name := range tags {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tagID, err := c.getOrCreateTag(ctx, tx, name)
		if err != nil {
			return trace.Wrap(err)
		}
		if _, err := tx.ExecContext(ctx, c.rebind(
			`INSERT INTO plugin_tags (plugin_id, tag_id) VALUES (?, ?)`),
			pluginID, tagID); err != nil {
			return convertError(err)
		}
	}
	return nil
}

func (c *Catalog) getOrCreateTag(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	row := tx.QueryRowContext(ctx, c.rebind(`SELECT id FROM tags WHERE name = ?`), name)
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, convertError(err)
	}
	return insertRow(ctx, tx, c, `INSERT INTO tags (name) VALUES (?)`, name)
}

func (c *Catalog) replaceIOData(ctx context.Context, tx *sql.Tx, pluginID int64, list []IOData) error {
	// content_types cascade from io_data.
	if _, err := tx.ExecContext(ctx,
		c.rebind(`DELETE FROM io_data WHERE plugin_id = ?`), pluginID); err != nil {
		return convertError(err)
	}
	for _, io := range list {
		required := 0
		if io.Required {
			required = 1
		}
		ioID, err := insertRow(ctx, tx, c,
			`INSERT INTO io_data (plugin_id, identifier, relation, required,
				data_type_start, data_type_end)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			pluginID, io.Identifier, string(io.Relation), required,
			io.DataType.Start, io.DataType.End)
		if err != nil {
			return trace.Wrap(err)
		}
		for _, ct := range io.ContentTypes {
			if _, err := tx.ExecContext(ctx, c.rebind(
				`INSERT INTO content_types (io_data_id, content_type_start, content_type_end)
				 VALUES (?, ?, ?)`), ioID, ct.Start, ct.End); err != nil {
				return convertError(err)
			}
		}
	}
	return nil
}

func (c *Catalog) replaceDependencies(ctx context.Context, tx *sql.Tx, pluginID int64, list []Dependency) error {
	if _, err := tx.ExecContext(ctx,
		c.rebind(`DELETE FROM dependencies WHERE plugin_id = ?`), pluginID); err != nil {
		return convertError(err)
	}
	for _, dep := range list {
		required := 0
		if dep.Required {
			required = 1
		}
		depID, err := insertRow(ctx, tx, c,
			`INSERT INTO dependencies (plugin_id, parameter, required,
				target_identifier, version_spec, target_type)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			pluginID, dep.Parameter, required, dep.TargetIdentifier,
			dep.VersionSpec, dep.TargetType)
		if err != nil {
			return trace.Wrap(err)
		}
		for _, group := range []struct {
			names   []string
			exclude int
		}{
			{dep.RequiredTags, 0},
			{dep.ForbiddenTags, 1},
		} {
			for _, name := range group.names {
				tagID, err := c.getOrCreateTag(ctx, tx, name)
				if err != nil {
					return trace.Wrap(err)
				}
				if _, err := tx.ExecContext(ctx, c.rebind(
					`INSERT INTO dependency_tags (dependency_id, tag_id, exclude)
					 VALUES (?, ?, ?)`), depID, tagID, group.exclude); err != nil {
					return convertError(err)
				}
			}
		}
	}
	return nil
}
