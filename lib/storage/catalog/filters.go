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

// PluginFilter holds the optional criteria of a plugin collection query.
// Zero values mean "no restriction".
type PluginFilter struct {
	// IDs restricts to a set of plugin ids.
	IDs []int64
	// URL restricts to plugins registered under the URL.
	URL string
	// NameLike substring-matches the human readable name.
	NameLike string
	// Type restricts the plugin type.
	Type string
	// LastAvailablePeriod keeps only plugins seen within the period.
	LastAvailablePeriod time.Duration
	// Identifier restricts the plugin identifier. Required when Version
	// holds a specifier set.
	Identifier string
	// Version is either a single exact version or a specifier set like
	// ">=1.0 <2.0".
	Version string
	// RequiredTags must all be present. An unknown tag name makes the
	// filter match nothing.
	RequiredTags []string
	// ForbiddenTags must all be absent. Unknown names are ignored.
	ForbiddenTags []string
	// InputDataType and InputContentType keep plugins with a matching
	// consumed IO data row; "*" is a wildcard on either side.
	InputDataType    string
	InputContentType string
	// TemplateTabID keeps plugins in the tab's materialized set.
	TemplateTabID int64
}

// Check validates filter criteria that can be malformed.
func (f *PluginFilter) Check() error {
	if f.LastAvailablePeriod < 0 {
		return trace.BadParameter("the last-available period must be a positive number of seconds")
	}
	if f.Version != "" && !isExactVersion(f.Version) && f.Identifier == "" {
		return trace.BadParameter("version specifiers can only be used together with a plugin name")
	}
	return nil
}

// isExactVersion reports whether the string is a plain version rather than
// a specifier set.
func isExactVersion(version string) bool {
	return !strings.ContainsAny(version, "=<>!~* ,")
}

// falsePredicate is the canonical impossible WHERE clause used when a
// criterion can never match (unknown required tag, empty version range).
const falsePredicate = `1 = 0`

// buildPluginWhere translates the filter into a WHERE clause over the
// plugins table.
func (c *Catalog) buildPluginWhere(ctx context.Context, f PluginFilter) (string, []interface{}, error) {
	conds := []string{}
	var args []interface{}

	if len(f.IDs) > 0 {
		cond, condArgs := inClause(`plugins.id IN (%s)`, f.IDs)
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}
	if f.URL != "" {
		conds = append(conds, `plugins.url = ?`)
		args = append(args, f.URL)
	}
	if f.NameLike != "" {
		conds = append(conds, `LOWER(plugins.name) LIKE ?`)
		args = append(args, "%"+strings.ToLower(f.NameLike)+"%")
	}
	if f.Type != "" {
		conds = append(conds, `plugins.plugin_type = ?`)
		args = append(args, f.Type)
	}
	if f.LastAvailablePeriod > 0 {
		cutoff := c.clock.Now().UTC().Add(-f.LastAvailablePeriod).Unix()
		conds = append(conds, `plugins.last_available >= ?`)
		args = append(args, cutoff)
	}
	if f.Identifier != "" {
		conds = append(conds, `plugins.identifier = ?`)
		args = append(args, f.Identifier)
	}

	if f.Version != "" {
		cond, condArgs, err := c.versionCondition(ctx, f)
		if err != nil {
			return "", nil, trace.Wrap(err)
		}
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}

	if len(f.RequiredTags) > 0 || len(f.ForbiddenTags) > 0 {
		cond, condArgs, err := c.tagConditions(ctx, f.RequiredTags, f.ForbiddenTags)
		if err != nil {
			return "", nil, trace.Wrap(err)
		}
		conds = append(conds, cond...)
		args = append(args, condArgs...)
	}

	if f.InputDataType != "" || f.InputContentType != "" {
		cond, condArgs := inputDataCondition(f.InputDataType, f.InputContentType, false)
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}

	if f.TemplateTabID != 0 {
		conds = append(conds, `plugins.id IN (SELECT plugin_id FROM tab_plugins WHERE tab_id = ?)`)
		args = append(args, f.TemplateTabID)
	}

	if len(conds) == 0 {
		return ``, nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

// versionCondition emits an equality for exact versions. A specifier set
// needs the candidate versions of the identifier: they are prefetched,
// matched in process and pinned with an IN list.
func (c *Catalog) versionCondition(ctx context.Context, f PluginFilter) (string, []interface{}, error) {
	if isExactVersion(f.Version) {
		return `plugins.version = ?`, []interface{}{f.Version}, nil
	}
	spec, err := pluginfilter.ParseSpecifier(f.Version)
	if err != nil {
		return "", nil, trace.Wrap(err)
	}
	candidates, err := c.ListPluginVersions(ctx, f.Identifier)
	if err != nil {
		return "", nil, trace.Wrap(err)
	}
	var matching []string
	for _, version := range candidates {
		if pluginfilter.VersionMatches(spec, version) {
			matching = append(matching, version)
		}
	}
	if len(matching) == 0 {
		return falsePredicate, nil, nil
	}
	cond, args := inClauseStrings(`plugins.version IN (%s)`, matching)
	return cond, args, nil
}

// tagConditions requires membership in every must-have tag and absence
// from all forbidden ones.
func (c *Catalog) tagConditions(ctx context.Context, required, forbidden []string) ([]string, []interface{}, error) {
	requiredIDs, missing, err := c.tagIDsByName(ctx, required)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	if len(missing) > 0 {
		// A required tag nothing carries: the result is empty by
		// definition.
		return []string{falsePredicate}, nil, nil
	}
	var conds []string
	var args []interface{}
	for _, tagID := range requiredIDs {
		conds = append(conds, `plugins.id IN (SELECT plugin_id FROM plugin_tags WHERE tag_id = ?)`)
		args = append(args, tagID)
	}
	forbiddenIDs, _, err := c.tagIDsByName(ctx, forbidden)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	if len(forbiddenIDs) > 0 {
		cond, condArgs := inClause(
			`plugins.id NOT IN (SELECT plugin_id FROM plugin_tags WHERE tag_id IN (%s))`,
			forbiddenIDs)
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}
	return conds, args, nil
}

// inputDataCondition matches plugins with a consumed IO data row
// compatible with the requested data type and content type. "*" on either
// side of either value matches everything.
func inputDataCondition(dataType, contentType string, requiredOnly bool) (string, []interface{}) {
	var args []interface{}

	wildcardMatch := func(column, value string) string {
		args = append(args, value, value)
		return `(` + column + ` = '*' OR ? = '*' OR ` + column + ` = ?)`
	}

	dt := SplitDataValue(dataType)
	if dataType == "" {
		dt = DataValue{Start: "*", End: "*"}
	}
	conds := []string{
		`io.plugin_id = plugins.id`,
		`io.relation = 'consumed'`,
		wildcardMatch(`io.data_type_start`, strings.ToLower(dt.Start)),
		wildcardMatch(`io.data_type_end`, strings.ToLower(dt.End)),
	}
	if requiredOnly {
		conds = append(conds, `io.required = 1`)
	}
	if contentType == "" {
		return `EXISTS (SELECT 1 FROM io_data io WHERE ` + strings.Join(conds, " AND ") + `)`, args
	}
	ct := SplitDataValue(contentType)
	conds = append(conds,
		`ct.io_data_id = io.id`,
		wildcardMatch(`ct.content_type_start`, strings.ToLower(ct.Start)),
		wildcardMatch(`ct.content_type_end`, strings.ToLower(ct.End)),
	)
	return `EXISTS (SELECT 1 FROM io_data io JOIN content_types ct ON ct.io_data_id = io.id WHERE ` +
		strings.Join(conds, " AND ") + `)`, args
}

// tagIDsByName resolves tag names to ids and reports the names that do not
// exist.
func (c *Catalog) tagIDsByName(ctx context.Context, names []string) (ids []int64, missing []string, err error) {
	found := map[string]int64{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var id int64
		row := c.db.QueryRowContext(ctx, c.rebind(`SELECT id FROM tags WHERE name = ?`), name)
		if err := row.Scan(&id); err != nil {
			if err == sql.ErrNoRows {
				missing = append(missing, name)
				continue
			}
			return nil, nil, convertError(err)
		}
		found[name] = id
	}
	for _, id := range found {
		ids = append(ids, id)
	}
	return ids, missing, nil
}

// ListPlugins returns one page of plugins under the filter, together with
// pagination info. Sort accepts "name", "-name", "id", "-id", "version",
// "-version"; the primary key is always appended as a tie breaker.
func (c *Catalog) ListPlugins(ctx context.Context, f PluginFilter, page PageRequest) ([]*Plugin, *Pagination, error) {
	if err := f.Check(); err != nil {
		return nil, nil, trace.Wrap(err)
	}
	where, args, err := c.buildPluginWhere(ctx, f)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	ids, info, err := c.paginate(ctx, pageQuery{
		table:       "plugins",
		where:       where,
		args:        args,
		sort:        page.Sort,
		sortColumns: pluginSortColumns,
		defaultSort: "name",
	}, page)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	plugins, err := c.GetPlugins(ctx, ids)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	return plugins, info, nil
}

// FindPluginIDs returns every plugin id under the filter in id order,
// without pagination. Used by internal consumers like the recommender.
func (c *Catalog) FindPluginIDs(ctx context.Context, f PluginFilter) ([]int64, error) {
	if err := f.Check(); err != nil {
		return nil, trace.Wrap(err)
	}
	where, args, err := c.buildPluginWhere(ctx, f)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if where == "" {
		where = "1 = 1"
	}
	rows, err := c.db.QueryContext(ctx,
		c.rebind(`SELECT id FROM plugins WHERE `+where+` ORDER BY id`), args...)
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

// pluginSortColumns maps API sort names onto allow-listed columns.
var pluginSortColumns = map[string]string{
	"id":      "id",
	"name":    "name",
	"version": "sort_version",
}
