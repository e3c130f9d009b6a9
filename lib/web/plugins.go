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

package web

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/discovery"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/hypermedia"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// pluginFilterArgs are the query arguments preserved in page links.
var pluginFilterArgs = []string{
	"plugin-id", "name", "type", "url", "version", "tags",
	"input-data-type", "input-content-type", "template-tab", "last-available-period",
}

func (h *Handler) pluginFilterFromQuery(r *http.Request) (catalog.PluginFilter, error) {
	query := r.URL.Query()
	filter := catalog.PluginFilter{
		NameLike:         query.Get("name"),
		Type:             query.Get("type"),
		URL:              query.Get("url"),
		Identifier:       query.Get("plugin-id"),
		Version:          query.Get("version"),
		InputDataType:    query.Get("input-data-type"),
		InputContentType: query.Get("input-content-type"),
	}
	filter.RequiredTags, filter.ForbiddenTags = splitTags(query.Get("tags"))
	period, err := querySeconds(r, "last-available-period")
	if err != nil {
		return catalog.PluginFilter{}, trace.Wrap(err)
	}
	filter.LastAvailablePeriod = period
	tabID, err := queryInt64(r, "template-tab")
	if err != nil {
		return catalog.PluginFilter{}, trace.Wrap(err)
	}
	filter.TemplateTabID = tabID
	return filter, trace.Wrap(filter.Check())
}

func (h *Handler) listPlugins(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	filter, err := h.pluginFilterFromQuery(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	page, err := pageRequest(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	plugins, info, err := h.cfg.Catalog.ListPlugins(r.Context(), filter, page)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	items := make([]hypermedia.Resource, 0, len(plugins))
	for _, plugin := range plugins {
		items = append(items, hypermedia.PluginResource(plugin))
	}
	query := url.Values{}
	for _, name := range pluginFilterArgs {
		if value := r.URL.Query().Get(name); value != "" {
			query.Set(name, value)
		}
	}
	response, err := h.media.PageResponse(hypermedia.PageSpec{
		ItemKind:       hypermedia.KindPlugin,
		CollectionHref: h.media.PluginCollectionHref(),
		Query:          query,
		Pagination:     info,
		Sort:           page.Sort,
	}, items)
	return response, trace.Wrap(err)
}

// triggerPluginDiscovery crawls one plugin URL in the background. The
// crawl removes the plugin again if the URL no longer serves one.
func (h *Handler) triggerPluginDiscovery(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	target := r.URL.Query().Get("url")
	if target == "" {
		return nil, trace.BadParameter("The url query argument is required!")
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, trace.BadParameter("The url query argument is not a valid URL!")
	}
	if h.cfg.Discovery == nil {
		return nil, trace.NotFound("plugin discovery is not available")
	}
	h.submit("crawl-url-"+target, "crawl-plugin-url", func(ctx context.Context) error {
		h.cfg.Discovery.CrawlSeed(ctx, discovery.CrawlRequest{
			URL:             target,
			DeleteOnMissing: true,
		})
		return nil
	})
	return nil, nil
}

func (h *Handler) getPlugin(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	id, err := pathID(p, "pluginId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	plugin, err := h.cfg.Catalog.GetPlugin(r.Context(), id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.Response(hypermedia.PluginResource(plugin))
	return response, trace.Wrap(err)
}

func (h *Handler) deletePlugin(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	id, err := pathID(p, "pluginId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	plugin, err := h.cfg.Catalog.GetPlugin(r.Context(), id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := h.cfg.Catalog.DeletePlugin(r.Context(), id); err != nil {
		return nil, trace.Wrap(err)
	}
	redirect := hypermedia.FirstPageLink(hypermedia.KindPlugin, h.media.PluginCollectionHref())
	response, err := h.media.DeletedObjectResponse(hypermedia.PluginResource(plugin), &redirect)
	return response, trace.Wrap(err)
}
