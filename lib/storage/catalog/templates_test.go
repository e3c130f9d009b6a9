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
	"fmt"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	_, err := c.CreateTemplate(ctx, "", "", nil)
	require.True(t, trace.IsBadParameter(err))

	template, err := c.CreateTemplate(ctx, "Workspace", "Default workspace", []string{"default", "demo"})
	require.NoError(t, err)
	assert.NotZero(t, template.ID)
	assert.Equal(t, []string{"default", "demo"}, template.Tags)
	assert.Empty(t, template.Tabs)

	byName, err := c.GetTemplateByName(ctx, "Workspace")
	require.NoError(t, err)
	assert.Equal(t, template.ID, byName.ID)

	_, err = c.GetTemplateByName(ctx, "nope")
	require.True(t, trace.IsNotFound(err))

	updated, err := c.UpdateTemplate(ctx, template.ID, "Workspace 2", "", []string{"demo"})
	require.NoError(t, err)
	assert.Equal(t, "Workspace 2", updated.Name)
	assert.Equal(t, []string{"demo"}, updated.Tags)

	_, err = c.UpdateTemplate(ctx, template.ID+100, "x", "", nil)
	require.True(t, trace.IsNotFound(err))

	require.NoError(t, c.DeleteTemplate(ctx, template.ID))
	require.NoError(t, c.DeleteTemplate(ctx, template.ID))
	_, err = c.GetTemplate(ctx, template.ID)
	require.True(t, trace.IsNotFound(err))
}

func TestTemplateTabInvariants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	template, err := c.CreateTemplate(ctx, "Workspace", "", nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		tab  TemplateTab
	}{
		{
			name: "empty name",
			tab:  TemplateTab{TemplateID: template.ID},
		},
		{
			name: "group with filter",
			tab: TemplateTab{
				TemplateID:   template.ID,
				Name:         "Group",
				GroupKey:     "group-1",
				FilterString: `{"tag": "x"}`,
			},
		},
		{
			name: "group in workspace location",
			tab: TemplateTab{
				TemplateID: template.ID,
				Name:       "Group",
				GroupKey:   "group-1",
				Location:   "workspace.left",
			},
		},
		{
			name: "invalid filter",
			tab: TemplateTab{
				TemplateID:   template.ID,
				Name:         "Bad",
				Location:     "workspace",
				FilterString: `{"bogus": "x"}`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateTemplateTab(ctx, tt.tab)
			require.True(t, trace.IsBadParameter(err), "want BadParameter, got %v", err)
		})
	}

	_, err = c.CreateTemplateTab(ctx, TemplateTab{
		TemplateID: template.ID + 100,
		Name:       "Orphan",
		Location:   "workspace",
	})
	require.True(t, trace.IsNotFound(err))
}

func TestTemplateTabs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	template, err := c.CreateTemplate(ctx, "Workspace", "", nil)
	require.NoError(t, err)

	group, err := c.CreateTemplateTab(ctx, TemplateTab{
		TemplateID: template.ID,
		Name:       "Data",
		GroupKey:   "data",
		Location:   "sidebar",
		SortKey:    1,
	})
	require.NoError(t, err)
	assert.True(t, group.IsGroup())

	leaf, err := c.CreateTemplateTab(ctx, TemplateTab{
		TemplateID:   template.ID,
		Name:         "ML plugins",
		Location:     "workspace",
		SortKey:      2,
		FilterString: `{"tag": "ml"}`,
	})
	require.NoError(t, err)
	assert.False(t, leaf.IsGroup())

	tabs, err := c.ListTemplateTabs(ctx, template.ID, "")
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	assert.Equal(t, group.ID, tabs[0].ID, "sort key order")

	tabs, err = c.ListTemplateTabs(ctx, template.ID, "workspace")
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.Equal(t, leaf.ID, tabs[0].ID)

	got, err := c.GetTemplateTab(ctx, template.ID, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"tag": "ml"}`, got.FilterString)

	// A tab cannot be addressed through a different template.
	other, err := c.CreateTemplate(ctx, "Other", "", nil)
	require.NoError(t, err)
	_, err = c.GetTemplateTab(ctx, other.ID, leaf.ID)
	require.True(t, trace.IsNotFound(err))

	leaf.Name = "ML"
	leaf.SortKey = 0
	updated, err := c.UpdateTemplateTab(ctx, *leaf)
	require.NoError(t, err)
	assert.Equal(t, "ML", updated.Name)

	tabs, err = c.ListTemplateTabs(ctx, template.ID, "")
	require.NoError(t, err)
	assert.Equal(t, leaf.ID, tabs[0].ID, "re-sorted after update")

	missing := *leaf
	missing.ID = leaf.ID + 100
	_, err = c.UpdateTemplateTab(ctx, missing)
	require.True(t, trace.IsNotFound(err))

	require.NoError(t, c.DeleteTemplateTab(ctx, template.ID, leaf.ID))
	require.NoError(t, c.DeleteTemplateTab(ctx, template.ID, leaf.ID))
	_, err = c.GetTemplateTab(ctx, template.ID, leaf.ID)
	require.True(t, trace.IsNotFound(err))
}

func TestTabPlugins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	template, err := c.CreateTemplate(ctx, "Workspace", "", nil)
	require.NoError(t, err)
	tab, err := c.CreateTemplateTab(ctx, TemplateTab{
		TemplateID:   template.ID,
		Name:         "All",
		Location:     "workspace",
		FilterString: "{}",
	})
	require.NoError(t, err)

	a := ingest(t, c, "a", "v1")
	b := ingest(t, c, "b", "v1")

	require.NoError(t, c.ReplaceTabPlugins(ctx, tab.ID, []int64{b.ID, a.ID}))
	ids, err := c.TabPluginIDs(ctx, tab.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, ids)

	// Membership follows plugin deletion.
	require.NoError(t, c.DeletePlugin(ctx, a.ID))
	ids, err = c.TabPluginIDs(ctx, tab.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids)

	// Replacing with an empty set clears the tab.
	require.NoError(t, c.ReplaceTabPlugins(ctx, tab.ID, nil))
	ids, err = c.TabPluginIDs(ctx, tab.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// The plugin filter can restrict to a tab's membership.
	require.NoError(t, c.ReplaceTabPlugins(ctx, tab.ID, []int64{b.ID}))
	plugins, _, err := c.ListPlugins(ctx, PluginFilter{TemplateTabID: tab.ID}, PageRequest{})
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, b.ID, plugins[0].ID)

	// Deleting the template cascades to tabs and memberships.
	require.NoError(t, c.DeleteTemplate(ctx, template.ID))
	tabs, err := c.ListTemplateTabs(ctx, template.ID, "")
	require.NoError(t, err)
	assert.Empty(t, tabs)
}

func TestListTemplatesPagination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	for i := 1; i <= 7; i++ {
		_, err := c.CreateTemplate(ctx, fmt.Sprintf("template-%02d", i), "", nil)
		require.NoError(t, err)
	}

	templates, info, err := c.ListTemplates(ctx, PageRequest{ItemCount: 3})
	require.NoError(t, err)
	require.Len(t, templates, 3)
	assert.Equal(t, "template-01", templates[0].Name)
	assert.EqualValues(t, 7, info.CollectionSize)
	assert.Equal(t, 3, info.Last.Page)

	templates, info, err = c.ListTemplates(ctx,
		PageRequest{ItemCount: 3, Cursor: info.Last.Cursor})
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "template-07", templates[0].Name)
	assert.Equal(t, 3, info.Page)
}
