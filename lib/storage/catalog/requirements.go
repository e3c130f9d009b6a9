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

	"github.com/gravitational/trace"
)

// PluginRequirements summarizes what a plugin needs as input, used by the
// recommendation engine for scoring and admissibility checks.
type PluginRequirements struct {
	PluginID int64
	Type     string
	// RequiredInputs are the consumed IO data rows marked required.
	RequiredInputs []IOData
}

// ListPluginRequirements loads the required consumed IO data of every
// plugin, including plugins with no requirements at all.
func (c *Catalog) ListPluginRequirements(ctx context.Context) ([]PluginRequirements, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, plugin_type FROM plugins ORDER BY id`)
	if err != nil {
		return nil, convertError(err)
	}
	byPlugin := map[int64]*PluginRequirements{}
	var order []int64
	for rows.Next() {
		var req PluginRequirements
		if err := rows.Scan(&req.PluginID, &req.Type); err != nil {
			rows.Close()
			return nil, trace.Wrap(err)
		}
		byPlugin[req.PluginID] = &req
		order = append(order, req.PluginID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, trace.Wrap(err)
	}
	rows.Close()

	ioRows, err := c.db.QueryContext(ctx, c.rebind(
		`SELECT id, plugin_id, identifier, data_type_start, data_type_end
		 FROM io_data WHERE relation = ? AND required = 1 ORDER BY id`),
		string(RelationConsumed))
	if err != nil {
		return nil, convertError(err)
	}
	ioByID := map[int64]*IOData{}
	var ioOrder []int64
	for ioRows.Next() {
		io := IOData{Relation: RelationConsumed, Required: true}
		if err := ioRows.Scan(&io.ID, &io.PluginID, &io.Identifier,
			&io.DataType.Start, &io.DataType.End); err != nil {
			ioRows.Close()
			return nil, trace.Wrap(err)
		}
		ioByID[io.ID] = &io
		ioOrder = append(ioOrder, io.ID)
	}
	if err := ioRows.Err(); err != nil {
		ioRows.Close()
		return nil, trace.Wrap(err)
	}
	ioRows.Close()

	ctRows, err := c.db.QueryContext(ctx,
		`SELECT io_data_id, content_type_start, content_type_end
		 FROM content_types ORDER BY id`)
	if err != nil {
		return nil, convertError(err)
	}
	defer ctRows.Close()
	for ctRows.Next() {
		var ioID int64
		var v DataValue
		if err := ctRows.Scan(&ioID, &v.Start, &v.End); err != nil {
			return nil, trace.Wrap(err)
		}
		if io, ok := ioByID[ioID]; ok {
			io.ContentTypes = append(io.ContentTypes, v)
		}
	}
	if err := ctRows.Err(); err != nil {
		return nil, trace.Wrap(err)
	}

	for _, ioID := range ioOrder {
		io := ioByID[ioID]
		if req, ok := byPlugin[io.PluginID]; ok {
			req.RequiredInputs = append(req.RequiredInputs, *io)
		}
	}
	out := make([]PluginRequirements, 0, len(order))
	for _, id := range order {
		out = append(out, *byPlugin[id])
	}
	return out, nil
}

// FindPluginsWithInput returns the ids of plugins with a consumed IO data
// row matching the data type and content type, "*" matching as a wildcard
// on either side.
func (c *Catalog) FindPluginsWithInput(ctx context.Context, dataType, contentType string, requiredOnly bool) ([]int64, error) {
	cond, args := inputDataCondition(dataType, contentType, requiredOnly)
	rows, err := c.db.QueryContext(ctx,
		c.rebind(`SELECT id FROM plugins WHERE `+cond+` ORDER BY id`), args...)
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
