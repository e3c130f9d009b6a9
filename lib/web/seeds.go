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
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/httplib"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/hypermedia"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

func (h *Handler) listSeeds(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	seeds, err := h.cfg.Catalog.ListSeeds(r.Context())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	items := make([]hypermedia.Resource, 0, len(seeds))
	for i := range seeds {
		items = append(items, hypermedia.SeedResource(&seeds[i]))
	}
	response, err := h.media.CollectionResponse(
		hypermedia.KindSeed, h.media.SeedCollectionHref(), items)
	return response, trace.Wrap(err)
}

type seedRequest struct {
	URL string `json:"url"`
}

// createSeed stores a new seed and crawls it right away so its plugins
// appear without waiting for the next discovery run.
func (h *Handler) createSeed(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	var req seedRequest
	if err := httplib.ReadJSON(r, &req); err != nil {
		return nil, trace.Wrap(err)
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return nil, trace.BadParameter("The seed url is not a valid URL!")
	}
	seed, err := h.cfg.Catalog.CreateSeed(r.Context(), req.URL)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if h.cfg.Discovery != nil {
		seedID, seedURL := seed.ID, seed.URL
		h.submit("crawl-seed-"+seedURL, "crawl-seed", func(ctx context.Context) error {
			h.cfg.Discovery.CrawlSeed(ctx, discovery.CrawlRequest{
				URL:    seedURL,
				SeedID: seedID,
			})
			return nil
		})
	}
	response, err := h.media.NewObjectResponse(hypermedia.SeedResource(seed))
	return response, trace.Wrap(err)
}

func (h *Handler) getSeed(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	id, err := pathID(p, "seedId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	seed, err := h.cfg.Catalog.GetSeed(r.Context(), id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.Response(hypermedia.SeedResource(seed))
	return response, trace.Wrap(err)
}

// deleteSeed removes a seed. Deleting an unknown seed succeeds so retried
// deletes stay safe; the reply then carries a placeholder resource.
func (h *Handler) deleteSeed(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	id, err := pathID(p, "seedId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	seed, err := h.cfg.Catalog.GetSeed(r.Context(), id)
	if err != nil {
		if !trace.IsNotFound(err) {
			return nil, trace.Wrap(err)
		}
		seed = &catalog.Seed{ID: id}
	}
	if err := h.cfg.Catalog.DeleteSeed(r.Context(), id); err != nil {
		return nil, trace.Wrap(err)
	}
	redirect := hypermedia.FirstPageLink(hypermedia.KindSeed, h.media.SeedCollectionHref())
	response, err := h.media.DeletedObjectResponse(hypermedia.SeedResource(seed), &redirect)
	return response, trace.Wrap(err)
}
