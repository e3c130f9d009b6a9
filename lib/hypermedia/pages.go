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
	"net/url"
	"strconv"

	"github.com/gravitational/trace"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// PageSpec describes one page of a cursor paginated collection.
type PageSpec struct {
	// ItemKind is the resource kind of the collection's items.
	ItemKind ResourceKind
	// CollectionHref is the base href of the collection, without query
	// arguments.
	CollectionHref string
	// Query holds the filter arguments to preserve in every page link.
	// Cursor, item-count and sort are managed by the builder.
	Query url.Values
	// Pagination is the cursor geometry computed by the catalog.
	Pagination *catalog.Pagination
	// Sort is the requested sort string, empty for the default.
	Sort string
}

// pageHref renders the href of the page behind a cursor, preserving
// filter arguments.
func (p PageSpec) pageHref(cursor int64) string {
	query := url.Values{}
	for name, values := range p.Query {
		query[name] = values
	}
	if cursor != 0 {
		query.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	if p.Pagination != nil {
		query.Set("item-count", strconv.Itoa(p.Pagination.ItemCount))
	}
	if p.Sort != "" {
		query.Set("sort", p.Sort)
	}
	if len(query) == 0 {
		return p.CollectionHref
	}
	return p.CollectionHref + "?" + query.Encode()
}

// pageLink renders a typed link to the page behind a cursor.
func (p PageSpec) pageLink(cursor int64, rels ...string) ApiLink {
	return ApiLink{
		Href:         p.pageHref(cursor),
		Rel:          append([]string{RelPage}, rels...),
		ResourceType: string(p.ItemKind),
	}
}

// PageResponse assembles the envelope of one collection page: the page's
// self link, navigation links to the first, last, previous, next and
// surrounding pages, the item links as data and the full item responses
// embedded.
func (g *Registry) PageResponse(spec PageSpec, items []Resource) (*ApiResponse, error) {
	if spec.Pagination == nil {
		return nil, trace.BadParameter("a page response requires pagination info")
	}
	info := spec.Pagination

	var selfCursor int64
	for _, anchor := range info.Surrounding {
		if anchor.Page == info.Page {
			selfCursor = anchor.Cursor
		}
	}
	self := spec.pageLink(selfCursor, RelSelf, RelCollection)
	links := []ApiLink{
		self,
		spec.pageLink(0, RelFirst, fmt.Sprintf("page-%d", 1)),
		spec.pageLink(info.Last.Cursor, RelLast, fmt.Sprintf("page-%d", info.Last.Page)),
	}
	for _, anchor := range info.Surrounding {
		rels := []string{fmt.Sprintf("page-%d", anchor.Page)}
		switch anchor.Page {
		case info.Page:
			continue
		case info.Page - 1:
			rels = append(rels, RelPrev)
		case info.Page + 1:
			rels = append(rels, RelNext)
		}
		links = append(links, spec.pageLink(anchor.Cursor, rels...))
	}

	itemLinks := []ApiLink{}
	embedded := []ApiResponse{}
	for _, item := range items {
		link, err := g.SelfLink(item)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		itemLinks = append(itemLinks, link)
		response, err := g.Response(item)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		embedded = append(embedded, *response)
	}

	return &ApiResponse{
		Links:    links,
		Embedded: embedded,
		Data: CursorPageData{
			Self:           self,
			CollectionSize: info.CollectionSize,
			Page:           info.Page,
			Items:          itemLinks,
		},
	}, nil
}

// CollectionResponse assembles the envelope of an unpaginated collection
// like the env variables.
func (g *Registry) CollectionResponse(itemKind ResourceKind, collectionHref string, items []Resource) (*ApiResponse, error) {
	self := ApiLink{
		Href:         collectionHref,
		Rel:          []string{RelSelf, RelCollection},
		ResourceType: string(itemKind),
	}
	itemLinks := []ApiLink{}
	embedded := []ApiResponse{}
	for _, item := range items {
		link, err := g.SelfLink(item)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		itemLinks = append(itemLinks, link)
		response, err := g.Response(item)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		embedded = append(embedded, *response)
	}
	return &ApiResponse{
		Links:    []ApiLink{self},
		Embedded: embedded,
		Data: CollectionData{
			Self:           self,
			CollectionSize: int64(len(items)),
			Items:          itemLinks,
		},
	}, nil
}

// FirstPageLink points at page one of a collection, used as the redirect
// target of deleted resources.
func FirstPageLink(itemKind ResourceKind, collectionHref string) ApiLink {
	return ApiLink{
		Href:         collectionHref,
		Rel:          []string{RelCollection, RelFirst},
		ResourceType: string(itemKind),
	}
}
