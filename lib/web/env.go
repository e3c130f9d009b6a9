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
	"net/http"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/httplib"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/hypermedia"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

func (h *Handler) listEnv(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	entries, err := h.cfg.Catalog.ListEnv(r.Context())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	items := make([]hypermedia.Resource, 0, len(entries))
	for i := range entries {
		items = append(items, hypermedia.EnvResource(&entries[i]))
	}
	response, err := h.media.CollectionResponse(
		hypermedia.KindEnv, h.media.EnvCollectionHref(), items)
	return response, trace.Wrap(err)
}

func (h *Handler) getEnv(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	entry, err := h.cfg.Catalog.GetEnv(r.Context(), p.ByName("envVar"))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.Response(hypermedia.EnvResource(entry))
	return response, trace.Wrap(err)
}

type envRequest struct {
	Name  string `json:"name,omitempty"`
	Value string `json:"value"`
}

// createEnv upserts one env variable named in the request body.
func (h *Handler) createEnv(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	var req envRequest
	if err := httplib.ReadJSON(r, &req); err != nil {
		return nil, trace.Wrap(err)
	}
	if req.Name == "" {
		return nil, trace.BadParameter("The name must not be empty!")
	}
	entry, err := h.cfg.Catalog.UpsertEnv(r.Context(), req.Name, req.Value)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.ChangedObjectResponse(hypermedia.EnvResource(entry))
	return response, trace.Wrap(err)
}

// putEnv creates or replaces one env variable.
func (h *Handler) putEnv(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	var req envRequest
	if err := httplib.ReadJSON(r, &req); err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err := h.cfg.Catalog.UpsertEnv(r.Context(), p.ByName("envVar"), req.Value)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.ChangedObjectResponse(hypermedia.EnvResource(entry))
	return response, trace.Wrap(err)
}

func (h *Handler) deleteEnv(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	name := p.ByName("envVar")
	if err := h.cfg.Catalog.DeleteEnv(r.Context(), name); err != nil {
		return nil, trace.Wrap(err)
	}
	redirect := hypermedia.FirstPageLink(hypermedia.KindEnv, h.media.EnvCollectionHref())
	response, err := h.media.DeletedObjectResponse(
		hypermedia.EnvResource(&catalog.EnvEntry{Name: name}), &redirect)
	return response, trace.Wrap(err)
}
