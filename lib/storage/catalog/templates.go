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

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/pluginfilter"
)

// WorkspaceLocation is the location prefix reserved for leaf tabs.
const WorkspaceLocation = "workspace"

// GetTemplate loads a template with its tags and tabs.
func (c *Catalog) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	var t Template
	row := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT id, name, description FROM templates WHERE id = ?`), id)
	if err := row.Scan(&t.ID, &t.Name, &t.Description); err != nil {
		if err == sql.ErrNoRows {
			return nil, trace.NotFound("template %d does not exist", id)
		}
		return nil, convertError(err)
	}
	var err error
	if t.Tags, err = c.templateTags(ctx, id); err != nil {
		return nil, trace.Wrap(err)
	}
	if t.Tabs, err = c.ListTemplateTabs(ctx, id, ""); err != nil {
		return nil, trace.Wrap(err)
	}
	return &t, nil
}

// GetTemplateByName returns the first template with the given name. Names
// are not unique in the schema, but lookups assume they are.
func (c *Catalog) GetTemplateByName(ctx context.Context, name string) (*Template, error) {
	var id int64
	row := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT id FROM templates WHERE name = ? ORDER BY id LIMIT 1`), name)
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, trace.NotFound("template %q does not exist", name)
		}
		return nil, convertError(err)
	}
	return c.GetTemplate(ctx, id)
}

// CreateTemplate stores a new template with its tags.
func (c *Catalog) CreateTemplate(ctx context.Context, name, description string, tags []string) (*Template, error) {
	if name == "" {
		return nil, trace.BadParameter("template name must not be empty")
	}
	var id int64
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertRow(ctx, tx, c,
			`INSERT INTO templates (name, description) VALUES (?, ?)`, name, description)
		if err != nil {
			return trace.Wrap(err)
		}
		return trace.Wrap(c.replaceTemplateTags(ctx, tx, id, tags))
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return c.GetTemplate(ctx, id)
}

// UpdateTemplate replaces name, description and tags of a template.
func (c *Catalog) UpdateTemplate(ctx context.Context, id int64, name, description string, tags []string) (*Template, error) {
	if name == "" {
		return nil, trace.BadParameter("template name must not be empty")
	}
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, c.rebind(
			`UPDATE templates SET name = ?, description = ? WHERE id = ?`),
			name, description, id)
		if err != nil {
			return convertError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return trace.Wrap(err)
		} else if n == 0 {
			return trace.NotFound("template %d does not exist", id)
		}
		return trace.Wrap(c.replaceTemplateTags(ctx, tx, id, tags))
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return c.GetTemplate(ctx, id)
}

// DeleteTemplate removes a template. Tabs and their memberships cascade;
// tags survive. Idempotent.
func (c *Catalog) DeleteTemplate(ctx context.Context, id int64) error {
	return trace.Wrap(c.inTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, c.rebind(`DELETE FROM templates WHERE id = ?`), id)
		return convertError(err)
	}))
}

func (c *Catalog) templateTags(ctx context.Context, id int64) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, c.rebind(
		`SELECT t.name FROM template_tags tt JOIN tags t ON t.id = tt.tag_id
		 WHERE tt.template_id = ? ORDER BY t.name`), id)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, trace.Wrap(err)
		}
		tags = append(tags, name)
	}
	return tags, trace.Wrap(rows.Err())
}

func (c *Catalog) replaceTemplateTags(ctx context.Context, tx *sql.Tx, id int64, tags []string) error {
	if _, err := tx.ExecContext(ctx,
		c.rebind(`DELETE FROM template_tags WHERE template_id = ?`), id); err != nil {
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
			`INSERT INTO template_tags (template_id, tag_id) VALUES (?, ?)`),
			id, tagID); err != nil {
			return convertError(err)
		}
	}
	return nil
}

const tabColumns = `id, template_id, name, description, sort_key, location,
	icon, group_key, filter_string`

func scanTab(row interface{ Scan(...interface{}) error }) (*TemplateTab, error) {
	var t TemplateTab
	err := row.Scan(&t.ID, &t.TemplateID, &t.Name, &t.Description, &t.SortKey,
		&t.Location, &t.Icon, &t.GroupKey, &t.FilterString)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTemplateTabs returns the tabs of a template ordered by sort key. A
// non-empty location restricts the result to tabs at that location.
func (c *Catalog) ListTemplateTabs(ctx context.Context, templateID int64, location string) ([]TemplateTab, error) {
	query := `SELECT ` + tabColumns + ` FROM template_tabs WHERE template_id = ?`
	args := []interface{}{templateID}
	if location != "" {
		query += ` AND location = ?`
		args = append(args, location)
	}
	query += ` ORDER BY sort_key, id`
	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var tabs []TemplateTab
	for rows.Next() {
		t, err := scanTab(rows)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		tabs = append(tabs, *t)
	}
	return tabs, trace.Wrap(rows.Err())
}

// ListAllTabs returns every tab in the catalog, used when plugin changes
// require re-evaluating all filters.
func (c *Catalog) ListAllTabs(ctx context.Context) ([]TemplateTab, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+tabColumns+` FROM template_tabs ORDER BY id`)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var tabs []TemplateTab
	for rows.Next() {
		t, err := scanTab(rows)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		tabs = append(tabs, *t)
	}
	return tabs, trace.Wrap(rows.Err())
}

// GetTemplateTab loads one tab of a template.
func (c *Catalog) GetTemplateTab(ctx context.Context, templateID, tabID int64) (*TemplateTab, error) {
	row := c.db.QueryRowContext(ctx, c.rebind(
		`SELECT `+tabColumns+` FROM template_tabs WHERE id = ? AND template_id = ?`),
		tabID, templateID)
	t, err := scanTab(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, trace.NotFound("template %d has no tab %d", templateID, tabID)
		}
		return nil, convertError(err)
	}
	return t, nil
}

// checkTabInvariants validates the filter string and the group-key rules: a
// group tab must not carry a filter and must not sit in a workspace
// location.
func checkTabInvariants(tab TemplateTab) error {
	if tab.Name == "" {
		return trace.BadParameter("tab name must not be empty")
	}
	if tab.GroupKey != "" {
		if strings.TrimSpace(tab.FilterString) != "" {
			return trace.BadParameter("tabs with a group key must have an empty filter")
		}
		if strings.HasPrefix(tab.Location, WorkspaceLocation) {
			return trace.BadParameter("tabs with a group key must not be in a %q location", WorkspaceLocation)
		}
		return nil
	}
	return trace.Wrap(pluginfilter.Validate(tab.FilterString))
}

// CreateTemplateTab stores a new tab after validating its filter.
func (c *Catalog) CreateTemplateTab(ctx context.Context, tab TemplateTab) (*TemplateTab, error) {
	if err := checkTabInvariants(tab); err != nil {
		return nil, trace.Wrap(err)
	}
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		var exists int64
		row := tx.QueryRowContext(ctx,
			c.rebind(`SELECT id FROM templates WHERE id = ?`), tab.TemplateID)
		if err := row.Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				return trace.NotFound("template %d does not exist", tab.TemplateID)
			}
			return convertError(err)
		}
		id, err := insertRow(ctx, tx, c,
			`INSERT INTO template_tabs (template_id, name, description, sort_key,
				location, icon, group_key, filter_string)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tab.TemplateID, tab.Name, tab.Description, tab.SortKey,
			tab.Location, tab.Icon, tab.GroupKey, tab.FilterString)
		tab.ID = id
		return trace.Wrap(err)
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &tab, nil
}

// UpdateTemplateTab replaces a tab's attributes after validating its
// filter.
func (c *Catalog) UpdateTemplateTab(ctx context.Context, tab TemplateTab) (*TemplateTab, error) {
	if err := checkTabInvariants(tab); err != nil {
		return nil, trace.Wrap(err)
	}
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, c.rebind(
			`UPDATE template_tabs SET name = ?, description = ?, sort_key = ?,
				location = ?, icon = ?, group_key = ?, filter_string = ?
			 WHERE id = ? AND template_id = ?`),
			tab.Name, tab.Description, tab.SortKey, tab.Location, tab.Icon,
			tab.GroupKey, tab.FilterString, tab.ID, tab.TemplateID)
		if err != nil {
			return convertError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return trace.Wrap(err)
		} else if n == 0 {
			return trace.NotFound("template %d has no tab %d", tab.TemplateID, tab.ID)
		}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &tab, nil
}

// DeleteTemplateTab removes a tab and its memberships. Idempotent.
func (c *Catalog) DeleteTemplateTab(ctx context.Context, templateID, tabID int64) error {
	return trace.Wrap(c.inTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, c.rebind(
			`DELETE FROM template_tabs WHERE id = ? AND template_id = ?`),
			tabID, templateID)
		return convertError(err)
	}))
}

// TabPluginIDs returns the materialized membership of a tab in id order.
func (c *Catalog) TabPluginIDs(ctx context.Context, tabID int64) ([]int64, error) {
	rows, err := c.db.QueryContext(ctx, c.rebind(
		`SELECT plugin_id FROM tab_plugins WHERE tab_id = ? ORDER BY plugin_id`), tabID)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, trace.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, trace.Wrap(rows.Err())
}

// ReplaceTabPlugins rewrites the materialized membership of a tab in one
// transaction.
func (c *Catalog) ReplaceTabPlugins(ctx context.Context, tabID int64, pluginIDs []int64) error {
	return trace.Wrap(c.inTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			c.rebind(`DELETE FROM tab_plugins WHERE tab_id = ?`), tabID); err != nil {
			return convertError(err)
		}
		for _, pluginID := range pluginIDs {
			if _, err := tx.ExecContext(ctx, c.rebind(
				`INSERT INTO tab_plugins (tab_id, plugin_id) VALUES (?, ?)`),
				tabID, pluginID); err != nil {
				return convertError(err)
			}
		}
		return nil
	}))
}
