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

package hypermedia

import (
	"net/url"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

func TestPageResponse(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	spec := PageSpec{
		ItemKind:       KindPlugin,
		CollectionHref: g.PluginCollectionHref(),
		Query:          url.Values{"type": []string{"processing"}},
		Pagination: &catalog.Pagination{
			CollectionSize: 45,
			Page:           2,
			ItemCount:      10,
			Surrounding: []catalog.PageCursor{
				{Page: 1, Cursor: 0},
				{Page: 2, Cursor: 10},
				{Page: 3, Cursor: 20},
				{Page: 4, Cursor: 30},
			},
			Last: catalog.PageCursor{Page: 5, Cursor: 40},
		},
	}
	items := []Resource{
		PluginResource(&catalog.Plugin{ID: 11, Identifier: "a", Version: "1.0.0"}),
		PluginResource(&catalog.Plugin{ID: 12, Identifier: "b", Version: "1.0.0"}),
	}

	response, err := g.PageResponse(spec, items)
	require.NoError(t, err)

	self := linkByRel(t, response.Links, RelSelf)
	assert.Contains(t, self.Href, "cursor=10")
	assert.Contains(t, self.Href, "item-count=10")
	assert.Contains(t, self.Href, "type=processing", "filter arguments survive in page links")
	assert.Contains(t, self.Rel, RelCollection)

	first := linkByRel(t, response.Links, RelFirst)
	assert.NotContains(t, first.Href, "cursor=", "page one needs no cursor")
	assert.Contains(t, first.Rel, "page-1")

	last := linkByRel(t, response.Links, RelLast)
	assert.Contains(t, last.Href, "cursor=40")
	assert.Contains(t, last.Rel, "page-5")

	prev := linkByRel(t, response.Links, RelPrev)
	assert.Contains(t, prev.Rel, "page-1")
	next := linkByRel(t, response.Links, RelNext)
	assert.Contains(t, next.Href, "cursor=20")
	assert.Contains(t, next.Rel, "page-3")
	// Page 4 is reachable but neither prev nor next.
	page4 := linkByRel(t, response.Links, "page-4")
	assert.Contains(t, page4.Href, "cursor=30")

	data, ok := response.Data.(CursorPageData)
	require.True(t, ok)
	assert.EqualValues(t, 45, data.CollectionSize)
	assert.Equal(t, 2, data.Page)
	require.Len(t, data.Items, 2)
	assert.Equal(t, "/api/plugins/11/", data.Items[0].Href)

	require.Len(t, response.Embedded, 2)
	embedded, ok := response.Embedded[0].Data.(PluginData)
	require.True(t, ok)
	assert.Equal(t, "a", embedded.Identifier)
}

func TestPageResponseRequiresPagination(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	_, err := g.PageResponse(PageSpec{ItemKind: KindPlugin}, nil)
	require.True(t, trace.IsBadParameter(err))
}

func TestPageResponseKeepsSort(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	response, err := g.PageResponse(PageSpec{
		ItemKind:       KindPlugin,
		CollectionHref: g.PluginCollectionHref(),
		Sort:           "-version",
		Pagination: &catalog.Pagination{
			CollectionSize: 1,
			Page:           1,
			ItemCount:      25,
			Surrounding:    []catalog.PageCursor{{Page: 1, Cursor: 0}},
			Last:           catalog.PageCursor{Page: 1, Cursor: 0},
		},
	}, nil)
	require.NoError(t, err)

	self := linkByRel(t, response.Links, RelSelf)
	assert.Contains(t, self.Href, "sort=-version")
}

func TestCollectionResponse(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	response, err := g.CollectionResponse(KindEnv, g.EnvCollectionHref(), []Resource{
		EnvResource(&catalog.EnvEntry{Name: "A", Value: "1"}),
		EnvResource(&catalog.EnvEntry{Name: "B", Value: "2"}),
	})
	require.NoError(t, err)

	self := linkByRel(t, response.Links, RelSelf)
	assert.Equal(t, "/api/env/", self.Href)

	data, ok := response.Data.(CollectionData)
	require.True(t, ok)
	assert.EqualValues(t, 2, data.CollectionSize)
	require.Len(t, data.Items, 2)
	assert.Equal(t, "/api/env/A/", data.Items[0].Href)
	require.Len(t, response.Embedded, 2)
}

func TestCollectionResponseEmpty(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	response, err := g.CollectionResponse(KindSeed, g.SeedCollectionHref(), nil)
	require.NoError(t, err)

	data, ok := response.Data.(CollectionData)
	require.True(t, ok)
	assert.Zero(t, data.CollectionSize)
	assert.NotNil(t, data.Items)
	assert.Empty(t, response.Embedded)
}
