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

// Package hypermedia builds the self-describing JSON envelopes of the
// registry API: resource keys, typed links, data objects and responses
// with embedded resources.
//
// Generators are registered per resource kind (and link relation) in a
// static registry populated at startup; there is no runtime registration.
package hypermedia

import (
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// ResourceKind tags the resource types the API serves. Generator lookup
// dispatches on this tag.
type ResourceKind string

const (
	KindRoot           ResourceKind = "api-root"
	KindPlugin         ResourceKind = "plugin"
	KindSeed           ResourceKind = "seed"
	KindService        ResourceKind = "service"
	KindEnv            ResourceKind = "env"
	KindTemplate       ResourceKind = "ui-template"
	KindTemplateTab    ResourceKind = "ui-template-tab"
	KindRecommendation ResourceKind = "recommendation"
)

// Link relations with special handling.
const (
	RelSelf    = "self"
	RelUp      = "up"
	RelCreate  = "create"
	RelUpdate  = "update"
	RelDelete  = "delete"
	RelFirst   = "first"
	RelLast    = "last"
	RelPrev    = "prev"
	RelNext    = "next"
	RelNew     = "new"
	RelChanged = "changed"
	RelDeleted = "deleted"

	// RelCollection marks links pointing at collection resources.
	RelCollection = "collection"
	// RelPage marks links pointing at pages of a collection.
	RelPage = "page"
)

// ApiKey are the routing parameters identifying one resource, e.g.
// {"pluginId": "42"}.
type ApiKey map[string]string

// ApiLink is a typed link to another resource.
type ApiLink struct {
	Href         string   `json:"href"`
	Rel          []string `json:"rel"`
	ResourceType string   `json:"resourceType"`
	Doc          string   `json:"doc,omitempty"`
	Schema       string   `json:"schema,omitempty"`
	Name         string   `json:"name,omitempty"`
	ResourceKey  ApiKey   `json:"resourceKey,omitempty"`
}

// WithRels returns a copy of the link with extra rel tokens appended.
func (l ApiLink) WithRels(rels ...string) ApiLink {
	l.Rel = append(append([]string{}, l.Rel...), rels...)
	return l
}

// ApiResponse is the envelope of every API reply.
type ApiResponse struct {
	Links    []ApiLink     `json:"links"`
	Embedded []ApiResponse `json:"embedded,omitempty"`
	Data     interface{}   `json:"data"`
}

// CursorPageData is the data object of one page of a cursor paginated
// collection.
type CursorPageData struct {
	Self           ApiLink   `json:"self"`
	CollectionSize int64     `json:"collectionSize"`
	Page           int       `json:"page"`
	Items          []ApiLink `json:"items"`
}

// CollectionData is the data object of an unpaginated collection.
type CollectionData struct {
	Self           ApiLink   `json:"self"`
	CollectionSize int64     `json:"collectionSize"`
	Items          []ApiLink `json:"items"`
}

// NewApiObject announces a freshly created resource.
type NewApiObject struct {
	Self ApiLink `json:"self"`
	New  ApiLink `json:"new"`
}

// ChangedApiObject announces an updated resource.
type ChangedApiObject struct {
	Self    ApiLink `json:"self"`
	Changed ApiLink `json:"changed"`
}

// DeletedApiObject announces a deleted resource. RedirectTo guides clients
// to a surviving resource, usually the collection's first page.
type DeletedApiObject struct {
	Self       ApiLink  `json:"self"`
	Deleted    ApiLink  `json:"deleted"`
	RedirectTo *ApiLink `json:"redirectTo,omitempty"`
}

// Resource is the tagged union the generators dispatch on. Exactly the
// field matching Kind is set.
type Resource struct {
	Kind ResourceKind

	Plugin   *catalog.Plugin
	Seed     *catalog.Seed
	Service  *catalog.Service
	Env      *catalog.EnvEntry
	Template *catalog.Template
	Tab      *catalog.TemplateTab
}

// PluginResource wraps a plugin for generator dispatch.
func PluginResource(p *catalog.Plugin) Resource {
	return Resource{Kind: KindPlugin, Plugin: p}
}

// SeedResource wraps a seed.
func SeedResource(s *catalog.Seed) Resource {
	return Resource{Kind: KindSeed, Seed: s}
}

// ServiceResource wraps a service.
func ServiceResource(s *catalog.Service) Resource {
	return Resource{Kind: KindService, Service: s}
}

// EnvResource wraps an env entry.
func EnvResource(e *catalog.EnvEntry) Resource {
	return Resource{Kind: KindEnv, Env: e}
}

// TemplateResource wraps a template.
func TemplateResource(t *catalog.Template) Resource {
	return Resource{Kind: KindTemplate, Template: t}
}

// TabResource wraps a template tab.
func TabResource(t *catalog.TemplateTab) Resource {
	return Resource{Kind: KindTemplateTab, Tab: t}
}

// RootResource is the API root.
func RootResource() Resource {
	return Resource{Kind: KindRoot}
}
