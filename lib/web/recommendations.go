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

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/hypermedia"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/recommend"
)

// recommendationData is the data object of the recommendation collection.
// Weights runs parallel to Items and carries each plugin's score.
type recommendationData struct {
	Self           hypermedia.ApiLink   `json:"self"`
	CollectionSize int64                `json:"collectionSize"`
	Items          []hypermedia.ApiLink `json:"items"`
	Weights        []float64            `json:"weights"`
}

func (h *Handler) getRecommendations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	if h.cfg.Recommender == nil {
		return nil, trace.NotFound("plugin recommendations are not available")
	}
	rc, req, err := h.recommendationArgs(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	recommendations, err := h.cfg.Recommender.Recommend(r.Context(), rc, req)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	self := hypermedia.ApiLink{
		Href:         h.media.RecommendationCollectionHref() + "?" + r.URL.RawQuery,
		Rel:          []string{hypermedia.RelSelf, hypermedia.RelCollection},
		ResourceType: string(hypermedia.KindRecommendation),
	}
	data := recommendationData{
		Self:           self,
		CollectionSize: int64(len(recommendations)),
		Items:          []hypermedia.ApiLink{},
		Weights:        []float64{},
	}
	embedded := []hypermedia.ApiResponse{}
	for _, rec := range recommendations {
		resource := hypermedia.PluginResource(rec.Plugin)
		link, err := h.media.SelfLink(resource)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		data.Items = append(data.Items, link)
		data.Weights = append(data.Weights, rec.Score)
		response, err := h.media.Response(resource)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		embedded = append(embedded, *response)
	}
	return &hypermedia.ApiResponse{
		Links:    []hypermedia.ApiLink{self},
		Embedded: embedded,
		Data:     data,
	}, nil
}

// recommendationArgs parses the recommendation context from query
// arguments. The timeout is clamped to the configured maximum.
func (h *Handler) recommendationArgs(r *http.Request) (*recommend.Context, recommend.Request, error) {
	rc := &recommend.Context{}

	pluginID, err := queryInt64(r, "plugin-id")
	if err != nil {
		return nil, recommend.Request{}, trace.Wrap(err)
	}
	rc.CurrentPluginID = pluginID

	experiment, err := queryInt64(r, "experiment")
	if err != nil {
		return nil, recommend.Request{}, trace.Wrap(err)
	}
	rc.ExperimentID = experiment

	if r.URL.Query().Get("step") != "" {
		step, err := queryInt64(r, "step")
		if err != nil {
			return nil, recommend.Request{}, trace.Wrap(err)
		}
		rc.CurrentStep = step
		rc.HasStep = true
	}

	query := r.URL.Query()
	if dataType := query.Get("data-type"); dataType != "" || query.Get("content-type") != "" {
		rc.CurrentData = []recommend.DataItem{{
			DataType:    dataType,
			ContentType: query.Get("content-type"),
			Name:        query.Get("data-name"),
		}}
	}

	timeout, err := querySeconds(r, "timeout")
	if err != nil {
		return nil, recommend.Request{}, trace.Wrap(err)
	}
	if timeout < 0 {
		return nil, recommend.Request{}, trace.BadParameter("The timeout query argument may not be negative!")
	}
	if timeout == 0 {
		timeout = h.cfg.Config.RecommendationTimeout
	}
	if timeout > defaults.RecommendationMaxTimeout {
		timeout = defaults.RecommendationMaxTimeout
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return nil, recommend.Request{}, trace.Wrap(err)
	}
	if limit < 0 {
		return nil, recommend.Request{}, trace.BadParameter("The limit query argument may not be negative!")
	}
	if limit == 0 {
		limit = h.cfg.Config.RecommendationLimit
	}
	return rc, recommend.Request{Timeout: timeout, Limit: limit}, nil
}
