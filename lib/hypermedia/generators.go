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
	"strconv"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// RootData is the data object of the API root.
type RootData struct {
	Self  ApiLink `json:"self"`
	Title string  `json:"title"`
}

// PluginData is the serialized form of one plugin.
type PluginData struct {
	Self        ApiLink         `json:"self"`
	ID          int64           `json:"id"`
	Identifier  string          `json:"identifier"`
	Version     string          `json:"version"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	PluginType  string          `json:"pluginType"`
	URL         string          `json:"url"`
	Tags        []string        `json:"tags"`
	EntryPoint  *EntryPointData `json:"entryPoint,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Seed        *ApiLink        `json:"seed,omitempty"`
}

// EntryPointData describes how to invoke a plugin.
type EntryPointData struct {
	Href         string           `json:"href"`
	UIHref       string           `json:"uiHref,omitempty"`
	DataInput    []IODataData     `json:"dataInput"`
	DataOutput   []IODataData     `json:"dataOutput"`
	Dependencies []DependencyData `json:"pluginDependencies,omitempty"`
}

// IODataData is one declared input or output.
type IODataData struct {
	Parameter   string   `json:"parameter,omitempty"`
	DataType    string   `json:"dataType"`
	ContentType []string `json:"contentType"`
	Required    bool     `json:"required"`
}

// DependencyData is one declared plugin dependency.
type DependencyData struct {
	Parameter     string   `json:"parameter"`
	Required      bool     `json:"required"`
	Name          string   `json:"name,omitempty"`
	Version       string   `json:"version,omitempty"`
	PluginType    string   `json:"pluginType,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ForbiddenTags []string `json:"forbiddenTags,omitempty"`
	BestMatch     *ApiLink `json:"bestMatch,omitempty"`
}

// SeedData is the serialized form of one discovery seed.
type SeedData struct {
	Self ApiLink `json:"self"`
	ID   int64   `json:"id"`
	URL  string  `json:"url"`
}

// ServiceData is the serialized form of one external service.
type ServiceData struct {
	Self        ApiLink `json:"self"`
	ServiceID   string  `json:"serviceId"`
	URL         string  `json:"url"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
}

// EnvData is one environment variable.
type EnvData struct {
	Self  ApiLink `json:"self"`
	Name  string  `json:"name"`
	Value string  `json:"value"`
}

// TemplateData is the serialized form of one UI template. Tab details are
// embedded as separate resources; here only their links appear as groups.
type TemplateData struct {
	Self        ApiLink   `json:"self"`
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Groups      []ApiLink `json:"groups"`
}

// TabData is the serialized form of one template tab.
type TabData struct {
	Self         ApiLink         `json:"self"`
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	SortKey      int             `json:"sortKey"`
	Location     string          `json:"location"`
	Icon         string          `json:"icon,omitempty"`
	GroupKey     string          `json:"groupKey,omitempty"`
	FilterString json.RawMessage `json:"filterString"`
	Plugins      ApiLink         `json:"plugins"`
}

func (g *Registry) registerRoot() {
	g.registerKey(KindRoot, func(Resource) ApiKey { return ApiKey{} })
	g.registerSelf(KindRoot, func(Resource) ApiLink {
		return ApiLink{Href: g.href(), ResourceType: string(KindRoot)}
	})
	g.registerObject(KindRoot, func(r Resource) interface{} {
		self, _ := g.SelfLink(r)
		return RootData{Self: self, Title: "plugin-registry"}
	})
	collections := []struct {
		name string
		kind ResourceKind
		href string
	}{
		{"plugins", KindPlugin, g.PluginCollectionHref()},
		{"seeds", KindSeed, g.SeedCollectionHref()},
		{"services", KindService, g.ServiceCollectionHref()},
		{"env", KindEnv, g.EnvCollectionHref()},
		{"templates", KindTemplate, g.TemplateCollectionHref()},
		{"recommendations", KindRecommendation, g.RecommendationCollectionHref()},
	}
	for _, collection := range collections {
		collection := collection
		g.registerNav(KindRoot, collection.name, func(Resource) ApiLink {
			return ApiLink{
				Href:         collection.href,
				ResourceType: string(collection.kind),
				Name:         collection.name,
				Rel:          []string{"api"},
			}
		})
	}
}

// Collection hrefs are the entry points of the top level collections.

func (g *Registry) PluginCollectionHref() string   { return g.href("plugins") }
func (g *Registry) SeedCollectionHref() string     { return g.href("seeds") }
func (g *Registry) ServiceCollectionHref() string  { return g.href("services") }
func (g *Registry) EnvCollectionHref() string      { return g.href("env") }
func (g *Registry) TemplateCollectionHref() string { return g.href("templates") }
func (g *Registry) TabCollectionHref(templateID int64) string {
	return g.href("templates", templateID, "tabs")
}
func (g *Registry) RecommendationCollectionHref() string { return g.href("recommendations") }

func (g *Registry) registerPlugins() {
	g.registerKey(KindPlugin, func(r Resource) ApiKey {
		return ApiKey{"pluginId": strconv.FormatInt(r.Plugin.ID, 10)}
	})
	g.registerSelf(KindPlugin, func(r Resource) ApiLink {
		key, _ := g.Key(r)
		return ApiLink{
			Href:         g.href("plugins", r.Plugin.ID),
			ResourceType: string(KindPlugin),
			Name:         r.Plugin.FullID(),
			ResourceKey:  key,
		}
	})
	g.registerNav(KindPlugin, RelUp, func(Resource) ApiLink {
		return ApiLink{Href: g.PluginCollectionHref(), ResourceType: string(KindPlugin), Rel: []string{RelCollection}}
	})
	g.registerNav(KindPlugin, RelDelete, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerObject(KindPlugin, func(r Resource) interface{} {
		return g.pluginData(r.Plugin)
	})
}

func (g *Registry) pluginData(p *catalog.Plugin) PluginData {
	self, _ := g.SelfLink(PluginResource(p))
	data := PluginData{
		Self:        self.WithRels(RelSelf),
		ID:          p.ID,
		Identifier:  p.Identifier,
		Version:     p.Version,
		Title:       p.Name,
		Description: p.Description,
		PluginType:  p.Type,
		URL:         p.URL,
		Tags:        stringsOrEmpty(p.Tags),
	}
	if p.Schema != "" {
		data.Schema = json.RawMessage(p.Schema)
	}
	if p.SeedID != 0 {
		seed := ApiLink{
			Href:         g.href("seeds", p.SeedID),
			ResourceType: string(KindSeed),
		}
		data.Seed = &seed
	}
	if p.EntryURL != "" || len(p.IOData) > 0 || len(p.Dependencies) > 0 {
		entry := &EntryPointData{
			Href:       p.EntryURL,
			UIHref:     p.UIURL,
			DataInput:  g.ioDataList(p.IOData, catalog.RelationConsumed),
			DataOutput: g.ioDataList(p.IOData, catalog.RelationProduced),
		}
		for _, dep := range p.Dependencies {
			entry.Dependencies = append(entry.Dependencies, g.dependencyData(dep))
		}
		data.EntryPoint = entry
	}
	return data
}

func (g *Registry) ioDataList(ioData []catalog.IOData, relation catalog.IORelation) []IODataData {
	out := []IODataData{}
	for _, io := range ioData {
		if io.Relation != relation {
			continue
		}
		contentTypes := []string{}
		for _, ct := range io.ContentTypes {
			contentTypes = append(contentTypes, ct.String())
		}
		out = append(out, IODataData{
			Parameter:   io.Identifier,
			DataType:    io.DataType.String(),
			ContentType: contentTypes,
			Required:    io.Required,
		})
	}
	return out
}

func (g *Registry) dependencyData(dep catalog.Dependency) DependencyData {
	data := DependencyData{
		Parameter:     dep.Parameter,
		Required:      dep.Required,
		Name:          dep.TargetIdentifier,
		Version:       dep.VersionSpec,
		PluginType:    dep.TargetType,
		Tags:          dep.RequiredTags,
		ForbiddenTags: dep.ForbiddenTags,
	}
	if dep.BestMatch != 0 {
		link := ApiLink{
			Href:         g.href("plugins", dep.BestMatch),
			ResourceType: string(KindPlugin),
		}
		data.BestMatch = &link
	}
	return data
}

func (g *Registry) registerSeeds() {
	g.registerKey(KindSeed, func(r Resource) ApiKey {
		return ApiKey{"seedId": strconv.FormatInt(r.Seed.ID, 10)}
	})
	g.registerSelf(KindSeed, func(r Resource) ApiLink {
		key, _ := g.Key(r)
		return ApiLink{
			Href:         g.href("seeds", r.Seed.ID),
			ResourceType: string(KindSeed),
			ResourceKey:  key,
		}
	})
	g.registerNav(KindSeed, RelUp, func(Resource) ApiLink {
		return ApiLink{Href: g.SeedCollectionHref(), ResourceType: string(KindSeed), Rel: []string{RelCollection}}
	})
	g.registerNav(KindSeed, RelDelete, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerObject(KindSeed, func(r Resource) interface{} {
		self, _ := g.SelfLink(r)
		return SeedData{Self: self.WithRels(RelSelf), ID: r.Seed.ID, URL: r.Seed.URL}
	})
}

func (g *Registry) registerServices() {
	g.registerKey(KindService, func(r Resource) ApiKey {
		return ApiKey{"serviceId": r.Service.ServiceID}
	})
	g.registerSelf(KindService, func(r Resource) ApiLink {
		key, _ := g.Key(r)
		return ApiLink{
			Href:         g.href("services", r.Service.ServiceID),
			ResourceType: string(KindService),
			Name:         r.Service.Name,
			ResourceKey:  key,
		}
	})
	g.registerNav(KindService, RelUp, func(Resource) ApiLink {
		return ApiLink{Href: g.ServiceCollectionHref(), ResourceType: string(KindService), Rel: []string{RelCollection}}
	})
	g.registerNav(KindService, RelUpdate, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerNav(KindService, RelDelete, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerObject(KindService, func(r Resource) interface{} {
		self, _ := g.SelfLink(r)
		return ServiceData{
			Self:        self.WithRels(RelSelf),
			ServiceID:   r.Service.ServiceID,
			URL:         r.Service.URL,
			Name:        r.Service.Name,
			Description: r.Service.Description,
		}
	})
}

func (g *Registry) registerEnv() {
	g.registerKey(KindEnv, func(r Resource) ApiKey {
		return ApiKey{"envVar": r.Env.Name}
	})
	g.registerSelf(KindEnv, func(r Resource) ApiLink {
		key, _ := g.Key(r)
		return ApiLink{
			Href:         g.href("env", r.Env.Name),
			ResourceType: string(KindEnv),
			Name:         r.Env.Name,
			ResourceKey:  key,
		}
	})
	g.registerNav(KindEnv, RelUp, func(Resource) ApiLink {
		return ApiLink{Href: g.EnvCollectionHref(), ResourceType: string(KindEnv), Rel: []string{RelCollection}}
	})
	g.registerNav(KindEnv, RelUpdate, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerNav(KindEnv, RelDelete, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerObject(KindEnv, func(r Resource) interface{} {
		self, _ := g.SelfLink(r)
		return EnvData{Self: self.WithRels(RelSelf), Name: r.Env.Name, Value: r.Env.Value}
	})
}

func (g *Registry) registerTemplates() {
	g.registerKey(KindTemplate, func(r Resource) ApiKey {
		return ApiKey{"templateId": strconv.FormatInt(r.Template.ID, 10)}
	})
	g.registerSelf(KindTemplate, func(r Resource) ApiLink {
		key, _ := g.Key(r)
		return ApiLink{
			Href:         g.href("templates", r.Template.ID),
			ResourceType: string(KindTemplate),
			Name:         r.Template.Name,
			ResourceKey:  key,
		}
	})
	g.registerNav(KindTemplate, RelUp, func(Resource) ApiLink {
		return ApiLink{Href: g.TemplateCollectionHref(), ResourceType: string(KindTemplate), Rel: []string{RelCollection}}
	})
	g.registerNav(KindTemplate, RelUpdate, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerNav(KindTemplate, RelDelete, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerNav(KindTemplate, RelCreate, func(r Resource) ApiLink {
		return ApiLink{
			Href:         g.TabCollectionHref(r.Template.ID),
			ResourceType: string(KindTemplateTab),
			Rel:          []string{RelCollection},
		}
	})
	g.registerObject(KindTemplate, func(r Resource) interface{} {
		return g.templateData(r.Template)
	})
}

func (g *Registry) templateData(t *catalog.Template) TemplateData {
	self, _ := g.SelfLink(TemplateResource(t))
	groups := []ApiLink{}
	for i := range t.Tabs {
		tab := &t.Tabs[i]
		if !tab.IsGroup() {
			continue
		}
		link, _ := g.SelfLink(TabResource(tab))
		groups = append(groups, link.WithRels(RelCollection))
	}
	return TemplateData{
		Self:        self.WithRels(RelSelf),
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Tags:        stringsOrEmpty(t.Tags),
		Groups:      groups,
	}
}

func (g *Registry) registerTabs() {
	g.registerKey(KindTemplateTab, func(r Resource) ApiKey {
		// Nested resources inherit the key of their parent.
		parent, _ := g.Key(TemplateResource(&catalog.Template{ID: r.Tab.TemplateID}))
		key := ApiKey{"tabId": strconv.FormatInt(r.Tab.ID, 10)}
		for name, value := range parent {
			key[name] = value
		}
		return key
	})
	g.registerSelf(KindTemplateTab, func(r Resource) ApiLink {
		key, _ := g.Key(r)
		return ApiLink{
			Href:         g.href("templates", r.Tab.TemplateID, "tabs", r.Tab.ID),
			ResourceType: string(KindTemplateTab),
			Name:         r.Tab.Name,
			ResourceKey:  key,
		}
	})
	g.registerNav(KindTemplateTab, RelUp, func(r Resource) ApiLink {
		return ApiLink{
			Href:         g.href("templates", r.Tab.TemplateID),
			ResourceType: string(KindTemplate),
		}
	})
	g.registerNav(KindTemplateTab, RelUpdate, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerNav(KindTemplateTab, RelDelete, func(r Resource) ApiLink {
		self, _ := g.SelfLink(r)
		return self
	})
	g.registerObject(KindTemplateTab, func(r Resource) interface{} {
		return g.tabData(r.Tab)
	})
}

func (g *Registry) tabData(t *catalog.TemplateTab) TabData {
	self, _ := g.SelfLink(TabResource(t))
	filter := t.FilterString
	if filter == "" {
		filter = "{}"
	}
	return TabData{
		Self:         self.WithRels(RelSelf),
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		SortKey:      t.SortKey,
		Location:     t.Location,
		Icon:         t.Icon,
		GroupKey:     t.GroupKey,
		FilterString: json.RawMessage(filter),
		Plugins: ApiLink{
			Href:         g.PluginCollectionHref() + "?template-tab=" + strconv.FormatInt(t.ID, 10),
			ResourceType: string(KindPlugin),
			Rel:          []string{RelCollection},
		},
	}
}

// stringsOrEmpty keeps empty slices serializing as [] instead of null.
func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
