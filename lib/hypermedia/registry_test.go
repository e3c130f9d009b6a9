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
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

func linkByRel(t *testing.T, links []ApiLink, rel string) ApiLink {
	t.Helper()
	for _, link := range links {
		for _, r := range link.Rel {
			if r == rel {
				return link
			}
		}
	}
	t.Fatalf("no link with rel %q in %v", rel, links)
	return ApiLink{}
}

func TestRootResponse(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	response, err := g.Response(RootResource())
	require.NoError(t, err)

	self := linkByRel(t, response.Links, RelSelf)
	assert.Equal(t, "/api/", self.Href)
	assert.Equal(t, string(KindRoot), self.ResourceType)

	// Every top level collection is linked from the root.
	for _, name := range []string{"plugins", "seeds", "services", "env", "templates", "recommendations"} {
		link := linkByRel(t, response.Links, name)
		assert.Equal(t, "/api/"+name+"/", link.Href)
		assert.Contains(t, link.Rel, "api")
	}

	data, ok := response.Data.(RootData)
	require.True(t, ok)
	assert.Equal(t, "/api/", data.Self.Href)
}

func TestPluginResponse(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	plugin := &catalog.Plugin{
		ID:          42,
		Identifier:  "hello-world",
		Version:     "1.0.0",
		Name:        "Hello World",
		Description: "Demo plugin",
		Type:        "processing",
		URL:         "http://plugins.example/hello-world/",
		EntryURL:    "http://plugins.example/hello-world/process/",
		UIURL:       "http://plugins.example/hello-world/ui/",
		Tags:        []string{"demo"},
		SeedID:      7,
		IOData: []catalog.IOData{
			{
				Relation:     catalog.RelationConsumed,
				Identifier:   "data",
				DataType:     catalog.SplitDataValue("entity/list"),
				ContentTypes: []catalog.DataValue{catalog.SplitDataValue("application/json")},
				Required:     true,
			},
			{
				Relation: catalog.RelationProduced,
				DataType: catalog.SplitDataValue("entity/stream"),
			},
		},
		Dependencies: []catalog.Dependency{{
			Parameter:        "helper",
			TargetIdentifier: "entity-loader",
			VersionSpec:      ">=1.0",
			RequiredTags:     []string{"data"},
			Required:         true,
			BestMatch:        13,
		}},
	}

	response, err := g.Response(PluginResource(plugin))
	require.NoError(t, err)

	self := linkByRel(t, response.Links, RelSelf)
	assert.Equal(t, "/api/plugins/42/", self.Href)
	assert.Equal(t, "hello-world@1.0.0", self.Name)
	assert.Equal(t, ApiKey{"pluginId": "42"}, self.ResourceKey)

	up := linkByRel(t, response.Links, RelUp)
	assert.Equal(t, "/api/plugins/", up.Href)
	assert.Contains(t, up.Rel, RelCollection)
	assert.Equal(t, self.Href, linkByRel(t, response.Links, RelDelete).Href)

	data, ok := response.Data.(PluginData)
	require.True(t, ok)
	assert.Equal(t, "Hello World", data.Title)
	require.NotNil(t, data.Seed)
	assert.Equal(t, "/api/seeds/7/", data.Seed.Href)

	require.NotNil(t, data.EntryPoint)
	assert.Equal(t, plugin.EntryURL, data.EntryPoint.Href)
	require.Len(t, data.EntryPoint.DataInput, 1)
	assert.Equal(t, "entity/list", data.EntryPoint.DataInput[0].DataType)
	assert.Equal(t, []string{"application/json"}, data.EntryPoint.DataInput[0].ContentType)
	require.Len(t, data.EntryPoint.DataOutput, 1)
	assert.Equal(t, "entity/stream", data.EntryPoint.DataOutput[0].DataType)

	wantDeps := []DependencyData{{
		Parameter: "helper",
		Required:  true,
		Name:      "entity-loader",
		Version:   ">=1.0",
		Tags:      []string{"data"},
		BestMatch: &ApiLink{
			Href:         "/api/plugins/13/",
			ResourceType: string(KindPlugin),
		},
	}}
	assert.Empty(t, cmp.Diff(wantDeps, data.EntryPoint.Dependencies))
}

func TestPluginResponseWithoutEntryPoint(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	response, err := g.Response(PluginResource(&catalog.Plugin{
		ID: 1, Identifier: "bare", Version: "1.0.0",
	}))
	require.NoError(t, err)

	data, ok := response.Data.(PluginData)
	require.True(t, ok)
	assert.Nil(t, data.EntryPoint)
	assert.Nil(t, data.Seed)
	assert.NotNil(t, data.Tags, "tags serialize as [] instead of null")
}

func TestTabResponseInheritsTemplateKey(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	tab := &catalog.TemplateTab{
		ID:           5,
		TemplateID:   3,
		Name:         "ML",
		SortKey:      10,
		Location:     "workspace",
		FilterString: `{"tag": "ml"}`,
	}
	response, err := g.Response(TabResource(tab))
	require.NoError(t, err)

	self := linkByRel(t, response.Links, RelSelf)
	assert.Equal(t, "/api/templates/3/tabs/5/", self.Href)
	assert.Equal(t, ApiKey{"templateId": "3", "tabId": "5"}, self.ResourceKey)
	assert.Equal(t, "/api/templates/3/", linkByRel(t, response.Links, RelUp).Href)

	data, ok := response.Data.(TabData)
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`{"tag": "ml"}`), data.FilterString)
	assert.Equal(t, "/api/plugins/?template-tab=5", data.Plugins.Href)
}

func TestTemplateResponseListsGroups(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	template := &catalog.Template{
		ID:   3,
		Name: "workspace",
		Tabs: []catalog.TemplateTab{
			{ID: 1, TemplateID: 3, Name: "group", GroupKey: "left"},
			{ID: 2, TemplateID: 3, Name: "leaf", FilterString: "{}"},
		},
	}
	response, err := g.Response(TemplateResource(template))
	require.NoError(t, err)

	create := linkByRel(t, response.Links, RelCreate)
	assert.Equal(t, "/api/templates/3/tabs/", create.Href)

	data, ok := response.Data.(TemplateData)
	require.True(t, ok)
	require.Len(t, data.Groups, 1, "only group tabs appear as groups")
	assert.Equal(t, "/api/templates/3/tabs/1/", data.Groups[0].Href)
}

func TestLifecycleResponses(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")
	seed := SeedResource(&catalog.Seed{ID: 7, URL: "http://runner:8080"})

	created, err := g.NewObjectResponse(seed)
	require.NoError(t, err)
	self := linkByRel(t, created.Links, RelSelf)
	assert.Contains(t, self.Rel, RelNew)
	assert.Equal(t, "/api/seeds/7/", self.Href)

	changed, err := g.ChangedObjectResponse(seed)
	require.NoError(t, err)
	assert.Contains(t, linkByRel(t, changed.Links, RelSelf).Rel, RelChanged)

	redirect := FirstPageLink(KindSeed, g.SeedCollectionHref())
	deleted, err := g.DeletedObjectResponse(seed, &redirect)
	require.NoError(t, err)
	assert.Contains(t, linkByRel(t, deleted.Links, RelSelf).Rel, RelDeleted)
	data, ok := deleted.Data.(DeletedApiObject)
	require.True(t, ok)
	require.NotNil(t, data.RedirectTo)
	assert.Equal(t, "/api/seeds/", data.RedirectTo.Href)
}

func TestUnknownKind(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	_, err := g.Response(Resource{Kind: ResourceKind("bogus")})
	require.True(t, trace.IsNotFound(err))

	_, err = g.NavLink(RootResource(), "no-such-rel")
	require.True(t, trace.IsNotFound(err))
}

func TestEnvelopeSerialization(t *testing.T) {
	t.Parallel()
	g := NewRegistry("/api")

	response, err := g.Response(EnvResource(&catalog.EnvEntry{Name: "BACKEND_URL", Value: "http://backend:9090"}))
	require.NoError(t, err)

	raw, err := json.Marshal(response)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"href":"/api/env/BACKEND_URL/"`)
	assert.Contains(t, string(raw), `"value":"http://backend:9090"`)
	assert.NotContains(t, string(raw), `"embedded"`, "empty embedded list is omitted")
}
