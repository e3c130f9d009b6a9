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

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
)

// PageRequest selects one page of a collection.
type PageRequest struct {
	// Cursor is the id of the row strictly before the page. Zero means
	// the first page.
	Cursor int64
	// ItemCount is the page size, clamped to [1, MaxPageItemCount].
	// Zero selects the default.
	ItemCount int
	// Sort is the API sort string, e.g. "name" or "-version".
	Sort string
}

// PageCursor is the anchor of one reachable page.
type PageCursor struct {
	// Page is the 1-based page number.
	Page int
	// Cursor is the row anchor, zero for page one.
	Cursor int64
}

// Pagination describes the position of a page within its collection.
type Pagination struct {
	// CollectionSize is the total number of rows under the filter.
	CollectionSize int64
	// Page is the 1-based number of the current page.
	Page int
	// ItemCount is the effective page size.
	ItemCount int
	// Surrounding lists the reachable pages around the current one,
	// in page order and including the current page.
	Surrounding []PageCursor
	// Last is the anchor of the final page.
	Last PageCursor
}

// pageQuery names the table, filter and sort of a paginated collection.
// Sort columns are allow-listed per resource; unknown sort strings are
// rejected before any SQL is built.
type pageQuery struct {
	table       string
	where       string
	args        []interface{}
	sort        string
	sortColumns map[string]string
	defaultSort string
}

// orderBy resolves the API sort string into a validated ORDER BY clause.
// The primary key is appended as a tie breaker so the order is total.
func (q pageQuery) orderBy() (string, error) {
	sort := q.sort
	if sort == "" {
		sort = q.defaultSort
	}
	descending := strings.HasPrefix(sort, "-")
	sort = strings.TrimPrefix(sort, "-")
	column, ok := q.sortColumns[sort]
	if !ok {
		return "", trace.BadParameter("cannot sort by %q", sort)
	}
	direction := " ASC"
	if descending {
		direction = " DESC"
	}
	if column == "id" {
		return "id" + direction, nil
	}
	return column + direction + ", id" + direction, nil
}

// paginate computes one page of row ids plus the cursor geometry of the
// collection: total count, current page, the anchors of the surrounding
// pages and the last page.
//
// The page anchors are rows whose 1-based row number under the sort is
// congruent to the current cursor's row number modulo the page size, so
// following an emitted cursor always yields full, non-overlapping pages.
func (c *Catalog) paginate(ctx context.Context, q pageQuery, page PageRequest) ([]int64, *Pagination, error) {
	itemCount := page.ItemCount
	if itemCount <= 0 {
		itemCount = defaults.PageItemCount
	}
	if itemCount > defaults.MaxPageItemCount {
		itemCount = defaults.MaxPageItemCount
	}
	orderBy, err := q.orderBy()
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	where := q.where
	if where == "" {
		where = "1 = 1"
	}

	var count int64
	row := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT COUNT(*) FROM `+q.table+` WHERE `+where), q.args...)
	if err := row.Scan(&count); err != nil {
		return nil, nil, convertError(err)
	}

	numbered := `SELECT id, ROW_NUMBER() OVER (ORDER BY ` + orderBy + `) AS rn FROM ` +
		q.table + ` WHERE ` + where

	// Resolve the cursor to its row number; a vanished cursor row means
	// page one.
	var cursorRow int64
	if page.Cursor != 0 {
		args := append(append([]interface{}{}, q.args...), page.Cursor)
		row := c.db.QueryRowContext(ctx,
			c.rebind(`SELECT rn FROM (`+numbered+`) numbered WHERE id = ?`), args...)
		if err := row.Scan(&cursorRow); err != nil && err != sql.ErrNoRows {
			return nil, nil, convertError(err)
		}
	}

	info := &Pagination{
		CollectionSize: count,
		Page:           int(cursorRow/int64(itemCount)) + 1,
		ItemCount:      itemCount,
	}

	if count > 0 {
		pagesAfter := (count - cursorRow - 1) / int64(itemCount)
		lastRow := cursorRow + pagesAfter*int64(itemCount)
		firstRow := cursorRow - int64(defaults.SurroundingPages)*int64(itemCount)
		if firstRow < 0 {
			firstRow = cursorRow % int64(itemCount)
		}
		windowEnd := cursorRow + int64(defaults.SurroundingPages)*int64(itemCount)

		anchors, err := c.pageAnchors(ctx, numbered, q.args, anchorWindow{
			modulo:    int64(itemCount),
			remainder: cursorRow % int64(itemCount),
			from:      firstRow,
			to:        windowEnd,
			last:      lastRow,
		})
		if err != nil {
			return nil, nil, trace.Wrap(err)
		}
		for rn := firstRow; rn <= windowEnd && rn <= lastRow; rn += int64(itemCount) {
			info.Surrounding = append(info.Surrounding, PageCursor{
				Page:   int(rn/int64(itemCount)) + 1,
				Cursor: anchors[rn],
			})
		}
		info.Last = PageCursor{
			Page:   int(lastRow/int64(itemCount)) + 1,
			Cursor: anchors[lastRow],
		}
	} else {
		info.Page = 1
		info.Surrounding = []PageCursor{{Page: 1}}
		info.Last = PageCursor{Page: 1}
	}

	args := append(append([]interface{}{}, q.args...), itemCount, cursorRow)
	rows, err := c.db.QueryContext(ctx, c.rebind(
		`SELECT id FROM `+q.table+` WHERE `+where+
			` ORDER BY `+orderBy+` LIMIT ? OFFSET ?`), args...)
	if err != nil {
		return nil, nil, convertError(err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, nil, trace.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, info, trace.Wrap(rows.Err())
}

type anchorWindow struct {
	modulo    int64
	remainder int64
	from, to  int64
	last      int64
}

// pageAnchors maps anchor row numbers to the id of the row at that
// position. Row number zero anchors page one and has no cursor row.
func (c *Catalog) pageAnchors(ctx context.Context, numbered string, baseArgs []interface{}, w anchorWindow) (map[int64]int64, error) {
	anchors := map[int64]int64{}
	args := append(append([]interface{}{}, baseArgs...),
		w.modulo, w.remainder, w.from, w.to, w.last)
	rows, err := c.db.QueryContext(ctx, c.rebind(
		`SELECT id, rn FROM (`+numbered+`) numbered
		 WHERE rn % ? = ? AND (rn BETWEEN ? AND ? OR rn = ?)`), args...)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, rn int64
		if err := rows.Scan(&id, &rn); err != nil {
			return nil, trace.Wrap(err)
		}
		anchors[rn] = id
	}
	return anchors, trace.Wrap(rows.Err())
}

// templateSortColumns maps template API sort names onto columns.
var templateSortColumns = map[string]string{
	"id":   "id",
	"name": "name",
}

// ListTemplates returns one page of templates with pagination info.
func (c *Catalog) ListTemplates(ctx context.Context, page PageRequest) ([]*Template, *Pagination, error) {
	ids, info, err := c.paginate(ctx, pageQuery{
		table:       "templates",
		sort:        page.Sort,
		sortColumns: templateSortColumns,
		defaultSort: "name",
	}, page)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	templates := make([]*Template, 0, len(ids))
	for _, id := range ids {
		t, err := c.GetTemplate(ctx, id)
		if err != nil {
			if trace.IsNotFound(err) {
				continue
			}
			return nil, nil, trace.Wrap(err)
		}
		templates = append(templates, t)
	}
	return templates, info, nil
}
