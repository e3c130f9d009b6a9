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

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/pluginfilter"
)

// ResolveDependencies recomputes the best-match plugin of every dependency
// of the given plugin. A dependency matches a candidate when the candidate
// carries the pinned identifier, satisfies the version specifier, has the
// required type and carries every required tag and none of the forbidden
// ones. Among several candidates the highest sort version wins.
//
// A dependency whose required and forbidden tag sets overlap can never be
// satisfied; it is logged and its best match cleared.
func (c *Catalog) ResolveDependencies(ctx context.Context, pluginID int64) error {
	plugin, err := c.GetPlugin(ctx, pluginID)
	if err != nil {
		return trace.Wrap(err)
	}
	for _, dep := range plugin.Dependencies {
		bestMatch, err := c.matchDependency(ctx, dep)
		if err != nil {
			return trace.Wrap(err)
		}
		err = c.inTransaction(ctx, func(tx *sql.Tx) error {
			var match interface{}
			if bestMatch != 0 {
				match = bestMatch
			}
			_, err := tx.ExecContext(ctx,
				c.rebind(`UPDATE dependencies SET best_match = ? WHERE id = ?`),
				match, dep.ID)
			return convertError(err)
		})
		if err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

// matchDependency finds the best matching plugin id for a dependency, zero
// when nothing matches.
func (c *Catalog) matchDependency(ctx context.Context, dep Dependency) (int64, error) {
	if overlap := intersect(dep.RequiredTags, dep.ForbiddenTags); len(overlap) > 0 {
		c.log.WarnContext(ctx, "dependency requires and forbids the same tags, it can never be satisfied",
			"dependency_id", dep.ID, "tags", overlap)
		return 0, nil
	}
	spec, err := pluginfilter.ParseSpecifier(dep.VersionSpec)
	if err != nil {
		c.log.WarnContext(ctx, "dependency has an invalid version specifier",
			"dependency_id", dep.ID, "specifier", dep.VersionSpec, "error", err)
		return 0, nil
	}

	query := `SELECT ` + pluginColumns + ` FROM plugins WHERE 1 = 1`
	var args []interface{}
	if dep.TargetIdentifier != "" {
		query += ` AND identifier = ?`
		args = append(args, dep.TargetIdentifier)
	}
	if dep.TargetType != "" {
		query += ` AND plugin_type = ?`
		args = append(args, dep.TargetType)
	}
	query += ` ORDER BY sort_version DESC, id DESC`

	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return 0, convertError(err)
	}
	defer rows.Close()

	var candidates []*Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return 0, trace.Wrap(err)
		}
		if !pluginfilter.VersionMatches(spec, p.Version) {
			continue
		}
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return 0, trace.Wrap(err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	if len(dep.RequiredTags) == 0 && len(dep.ForbiddenTags) == 0 {
		return candidates[0].ID, nil
	}

	ids := make([]int64, len(candidates))
	for i, p := range candidates {
		ids[i] = p.ID
	}
	tags, err := c.pluginTags(ctx, c.db, ids)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	for _, p := range candidates {
		if tagsSatisfy(tags[p.ID], dep.RequiredTags, dep.ForbiddenTags) {
			return p.ID, nil
		}
	}
	return 0, nil
}

func tagsSatisfy(have, required, forbidden []string) bool {
	set := make(map[string]bool, len(have))
	for _, tag := range have {
		set[tag] = true
	}
	for _, tag := range required {
		if !set[tag] {
			return false
		}
	}
	for _, tag := range forbidden {
		if set[tag] {
			return false
		}
	}
	return true
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	var out []string
	for _, s := range b {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}
