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
	"fmt"

	"github.com/gravitational/trace"
)

// KeyGenerator produces the routing key of a resource. Keys of nested
// resources include the keys of their parents.
type KeyGenerator func(r Resource) ApiKey

// LinkGenerator produces one link for a resource.
type LinkGenerator func(r Resource) ApiLink

// ObjectGenerator produces the serializable data object of a resource.
type ObjectGenerator func(r Resource) interface{}

// navKey addresses one navigation link generator.
type navKey struct {
	kind ResourceKind
	rel  string
}

// Registry holds the static generator tables the response builder
// dispatches on. All registrations happen in NewRegistry; the tables are
// immutable afterwards.
type Registry struct {
	prefix string

	keys    map[ResourceKind]KeyGenerator
	selfs   map[ResourceKind]LinkGenerator
	objects map[ResourceKind]ObjectGenerator
	// navs holds the navigation links emitted next to the self link,
	// keyed by resource kind and link relation.
	navs map[navKey]LinkGenerator
	// navRels preserves registration order per kind.
	navRels map[ResourceKind][]string
}

// NewRegistry builds the generator registry for an API mounted under
// prefix (e.g. "/api").
func NewRegistry(prefix string) *Registry {
	g := &Registry{
		prefix:  prefix,
		keys:    map[ResourceKind]KeyGenerator{},
		selfs:   map[ResourceKind]LinkGenerator{},
		objects: map[ResourceKind]ObjectGenerator{},
		navs:    map[navKey]LinkGenerator{},
		navRels: map[ResourceKind][]string{},
	}
	g.registerRoot()
	g.registerPlugins()
	g.registerSeeds()
	g.registerServices()
	g.registerEnv()
	g.registerTemplates()
	g.registerTabs()
	return g
}

func (g *Registry) registerKey(kind ResourceKind, gen KeyGenerator) {
	g.keys[kind] = gen
}

func (g *Registry) registerSelf(kind ResourceKind, gen LinkGenerator) {
	g.selfs[kind] = gen
}

func (g *Registry) registerObject(kind ResourceKind, gen ObjectGenerator) {
	g.objects[kind] = gen
}

func (g *Registry) registerNav(kind ResourceKind, rel string, gen LinkGenerator) {
	key := navKey{kind: kind, rel: rel}
	if _, dup := g.navs[key]; !dup {
		g.navRels[kind] = append(g.navRels[kind], rel)
	}
	g.navs[key] = gen
}

// Key returns the routing key of a resource.
func (g *Registry) Key(r Resource) (ApiKey, error) {
	gen, ok := g.keys[r.Kind]
	if !ok {
		return nil, trace.NotFound("no key generator for resource kind %q", r.Kind)
	}
	return gen(r), nil
}

// SelfLink returns the resource's self link.
func (g *Registry) SelfLink(r Resource) (ApiLink, error) {
	gen, ok := g.selfs[r.Kind]
	if !ok {
		return ApiLink{}, trace.NotFound("no link generator for resource kind %q", r.Kind)
	}
	return gen(r), nil
}

// NavLink returns the resource's navigation link with the relation, e.g.
// its "up" link.
func (g *Registry) NavLink(r Resource, rel string) (ApiLink, error) {
	gen, ok := g.navs[navKey{kind: r.Kind, rel: rel}]
	if !ok {
		return ApiLink{}, trace.NotFound("resource kind %q has no %q link", r.Kind, rel)
	}
	return gen(r), nil
}

// Object returns the serializable data object of a resource.
func (g *Registry) Object(r Resource) (interface{}, error) {
	gen, ok := g.objects[r.Kind]
	if !ok {
		return nil, trace.NotFound("no object generator for resource kind %q", r.Kind)
	}
	return gen(r), nil
}

// Response assembles the full envelope of a single resource: the self
// link, every registered navigation link and the data object.
func (g *Registry) Response(r Resource, extraLinks ...ApiLink) (*ApiResponse, error) {
	self, err := g.SelfLink(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	links := []ApiLink{self.WithRels(RelSelf)}
	for _, rel := range g.navRels[r.Kind] {
		links = append(links, g.navs[navKey{kind: r.Kind, rel: rel}](r).WithRels(rel))
	}
	links = append(links, extraLinks...)
	data, err := g.Object(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &ApiResponse{Links: links, Data: data}, nil
}

// NewObjectResponse announces a created resource.
func (g *Registry) NewObjectResponse(r Resource) (*ApiResponse, error) {
	self, err := g.SelfLink(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &ApiResponse{
		Links: []ApiLink{self.WithRels(RelSelf, RelNew)},
		Data: NewApiObject{
			Self: self.WithRels(RelSelf),
			New:  self.WithRels(RelNew),
		},
	}, nil
}

// ChangedObjectResponse announces an updated resource.
func (g *Registry) ChangedObjectResponse(r Resource) (*ApiResponse, error) {
	self, err := g.SelfLink(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &ApiResponse{
		Links: []ApiLink{self.WithRels(RelSelf, RelChanged)},
		Data: ChangedApiObject{
			Self:    self.WithRels(RelSelf),
			Changed: self.WithRels(RelChanged),
		},
	}, nil
}

// DeletedObjectResponse announces a deleted resource. The self link still
// names the vanished resource; redirectTo points clients at a surviving
// one, usually the collection.
func (g *Registry) DeletedObjectResponse(r Resource, redirectTo *ApiLink) (*ApiResponse, error) {
	self, err := g.SelfLink(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	links := []ApiLink{self.WithRels(RelSelf, RelDeleted)}
	if redirectTo != nil {
		links = append(links, *redirectTo)
	}
	return &ApiResponse{
		Links: links,
		Data: DeletedApiObject{
			Self:       self.WithRels(RelSelf),
			Deleted:    self.WithRels(RelDeleted),
			RedirectTo: redirectTo,
		},
	}, nil
}

// href joins path segments under the API prefix, always with a trailing
// slash.
func (g *Registry) href(segments ...interface{}) string {
	href := g.prefix
	for _, segment := range segments {
		href += fmt.Sprintf("/%v", segment)
	}
	return href + "/"
}
