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

	"github.com/gravitational/trace"
)

// schemaStatements creates the catalog tables. Statements are idempotent so
// InitSchema can run on every start. "{{SERIAL}}" is replaced per backend
// because SQLite and postgres spell auto-increment keys differently.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS seeds (
		id {{SERIAL}},
		url TEXT NOT NULL,
		CONSTRAINT uq_seeds_url UNIQUE (url)
	)`,
	`CREATE TABLE IF NOT EXISTS plugins (
		id {{SERIAL}},
		identifier TEXT NOT NULL,
		version TEXT NOT NULL,
		sort_version TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		plugin_type TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		entry_url TEXT NOT NULL DEFAULT '',
		ui_url TEXT NOT NULL DEFAULT '',
		schema_json TEXT NOT NULL DEFAULT '',
		last_available BIGINT NOT NULL DEFAULT 0,
		seed_id INTEGER REFERENCES seeds (id) ON DELETE SET NULL,
		CONSTRAINT uq_plugins_identifier_version UNIQUE (identifier, version)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_plugins_sort_version ON plugins (sort_version)`,
	`CREATE INDEX IF NOT EXISTS ix_plugins_last_available ON plugins (last_available)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id {{SERIAL}},
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		CONSTRAINT uq_tags_name UNIQUE (name)
	)`,
	`CREATE TABLE IF NOT EXISTS plugin_tags (
		plugin_id INTEGER NOT NULL REFERENCES plugins (id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags (id) ON DELETE CASCADE,
		CONSTRAINT pk_plugin_tags PRIMARY KEY (plugin_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS io_data (
		id {{SERIAL}},
		plugin_id INTEGER NOT NULL REFERENCES plugins (id) ON DELETE CASCADE,
		identifier TEXT NOT NULL DEFAULT '',
		relation TEXT NOT NULL,
		required INTEGER NOT NULL DEFAULT 0,
		data_type_start TEXT NOT NULL,
		data_type_end TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_io_data_plugin_id ON io_data (plugin_id)`,
	`CREATE INDEX IF NOT EXISTS ix_io_data_data_type ON io_data (data_type_start, data_type_end)`,
	`CREATE TABLE IF NOT EXISTS content_types (
		id {{SERIAL}},
		io_data_id INTEGER NOT NULL REFERENCES io_data (id) ON DELETE CASCADE,
		content_type_start TEXT NOT NULL,
		content_type_end TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_content_types_io_data_id ON content_types (io_data_id)`,
	`CREATE TABLE IF NOT EXISTS dependencies (
		id {{SERIAL}},
		plugin_id INTEGER NOT NULL REFERENCES plugins (id) ON DELETE CASCADE,
		parameter TEXT NOT NULL DEFAULT '',
		required INTEGER NOT NULL DEFAULT 0,
		target_identifier TEXT NOT NULL DEFAULT '',
		version_spec TEXT NOT NULL DEFAULT '',
		target_type TEXT NOT NULL DEFAULT '',
		best_match INTEGER REFERENCES plugins (id) ON DELETE SET NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_dependencies_plugin_id ON dependencies (plugin_id)`,
	`CREATE TABLE IF NOT EXISTS dependency_tags (
		dependency_id INTEGER NOT NULL REFERENCES dependencies (id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags (id) ON DELETE CASCADE,
		exclude INTEGER NOT NULL DEFAULT 0,
		CONSTRAINT pk_dependency_tags PRIMARY KEY (dependency_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		id {{SERIAL}},
		service_id TEXT NOT NULL,
		url TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		CONSTRAINT uq_services_service_id UNIQUE (service_id)
	)`,
	`CREATE TABLE IF NOT EXISTS env (
		name TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		CONSTRAINT pk_env PRIMARY KEY (name)
	)`,
	`CREATE TABLE IF NOT EXISTS templates (
		id {{SERIAL}},
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS template_tags (
		template_id INTEGER NOT NULL REFERENCES templates (id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags (id) ON DELETE CASCADE,
		CONSTRAINT pk_template_tags PRIMARY KEY (template_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS template_tabs (
		id {{SERIAL}},
		template_id INTEGER NOT NULL REFERENCES templates (id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sort_key INTEGER NOT NULL DEFAULT 0,
		location TEXT NOT NULL DEFAULT 'workspace',
		icon TEXT NOT NULL DEFAULT '',
		group_key TEXT NOT NULL DEFAULT '',
		filter_string TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS ix_template_tabs_template_id ON template_tabs (template_id)`,
	`CREATE TABLE IF NOT EXISTS tab_plugins (
		tab_id INTEGER NOT NULL REFERENCES template_tabs (id) ON DELETE CASCADE,
		plugin_id INTEGER NOT NULL REFERENCES plugins (id) ON DELETE CASCADE,
		CONSTRAINT pk_tab_plugins PRIMARY KEY (tab_id, plugin_id)
	)`,
}

// InitSchema creates all catalog tables if they do not exist yet.
func (c *Catalog) InitSchema(ctx context.Context) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if c.postgres {
		serial = "BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY"
	}
	return trace.Wrap(c.inTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			stmt = strings.ReplaceAll(stmt, "{{SERIAL}}", serial)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return trace.Wrap(err, "schema statement failed: %v", stmt)
			}
		}
		return nil
	}))
}
