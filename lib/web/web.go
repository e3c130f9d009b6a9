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

// Package web implements the registry's HTTP API: the plugin catalog,
// discovery seeds, external services, environment variables, UI templates
// with their tabs and the plugin recommendations, all served as
// self-describing hypermedia resources.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/config"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/discovery"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/httplib"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/hypermedia"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/recommend"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/tabs"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/tasks"
)

// HandlerConfig holds the dependencies of the API handler.
type HandlerConfig struct {
	Catalog *catalog.Catalog
	Config  *config.Config
	// Discovery crawls plugin URLs on demand. Optional; without it the
	// crawl-triggering endpoints degrade to plain CRUD.
	Discovery *discovery.Server
	// Tabs rebuilds tab memberships after tab changes. Optional.
	Tabs *tabs.Materializer
	// Recommender serves the recommendation endpoint. Optional; without
	// it the endpoint replies 404.
	Recommender *recommend.Engine
	// Tasks runs crawl and materialization jobs in the background.
	// Optional; without it those jobs run inline.
	Tasks *tasks.Queue
	Log   *slog.Logger
}

// Handler is the HTTP API of the registry.
type Handler struct {
	httprouter.Router

	cfg   HandlerConfig
	media *hypermedia.Registry
	log   *slog.Logger
}

// NewHandler builds the API router.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Catalog == nil {
		return nil, trace.BadParameter("web handler requires a catalog")
	}
	if cfg.Config == nil {
		return nil, trace.BadParameter("web handler requires a config")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	h := &Handler{
		cfg:   cfg,
		media: hypermedia.NewRegistry(cfg.Config.URLPrefix),
		log:   cfg.Log.With("component", "web"),
	}
	h.RedirectTrailingSlash = true
	h.bind()
	return h, nil
}

func (h *Handler) bind() {
	prefix := h.cfg.Config.URLPrefix

	h.GET(prefix+"/", httplib.MakeHandler(h.getRoot))

	h.GET(prefix+"/plugins/", httplib.MakeHandler(h.listPlugins))
	h.POST(prefix+"/plugins/", httplib.MakeHandler(h.triggerPluginDiscovery))
	h.GET(prefix+"/plugins/:pluginId/", httplib.MakeHandler(h.getPlugin))
	h.DELETE(prefix+"/plugins/:pluginId/", httplib.MakeHandler(h.deletePlugin))

	h.GET(prefix+"/seeds/", httplib.MakeHandler(h.listSeeds))
	h.POST(prefix+"/seeds/", httplib.MakeHandler(h.createSeed))
	h.GET(prefix+"/seeds/:seedId/", httplib.MakeHandler(h.getSeed))
	h.DELETE(prefix+"/seeds/:seedId/", httplib.MakeHandler(h.deleteSeed))

	h.GET(prefix+"/services/", httplib.MakeHandler(h.listServices))
	h.POST(prefix+"/services/", httplib.MakeHandler(h.createService))
	h.GET(prefix+"/services/:serviceId/", httplib.MakeHandler(h.getService))
	h.PUT(prefix+"/services/:serviceId/", httplib.MakeHandler(h.updateService))
	h.DELETE(prefix+"/services/:serviceId/", httplib.MakeHandler(h.deleteService))

	h.GET(prefix+"/env/", httplib.MakeHandler(h.listEnv))
	h.POST(prefix+"/env/", httplib.MakeHandler(h.createEnv))
	h.GET(prefix+"/env/:envVar/", httplib.MakeHandler(h.getEnv))
	h.PUT(prefix+"/env/:envVar/", httplib.MakeHandler(h.putEnv))
	h.DELETE(prefix+"/env/:envVar/", httplib.MakeHandler(h.deleteEnv))

	h.GET(prefix+"/templates/", httplib.MakeHandler(h.listTemplates))
	h.POST(prefix+"/templates/", httplib.MakeHandler(h.createTemplate))
	h.GET(prefix+"/templates/:templateId/", httplib.MakeHandler(h.getTemplate))
	h.PUT(prefix+"/templates/:templateId/", httplib.MakeHandler(h.updateTemplate))
	h.DELETE(prefix+"/templates/:templateId/", httplib.MakeHandler(h.deleteTemplate))

	h.GET(prefix+"/templates/:templateId/tabs/", httplib.MakeHandler(h.listTemplateTabs))
	h.POST(prefix+"/templates/:templateId/tabs/", httplib.MakeHandler(h.createTemplateTab))
	h.GET(prefix+"/templates/:templateId/tabs/:tabId/", httplib.MakeHandler(h.getTemplateTab))
	h.PUT(prefix+"/templates/:templateId/tabs/:tabId/", httplib.MakeHandler(h.updateTemplateTab))
	h.DELETE(prefix+"/templates/:templateId/tabs/:tabId/", httplib.MakeHandler(h.deleteTemplateTab))

	h.GET(prefix+"/recommendations/", httplib.MakeHandler(h.getRecommendations))
}

func (h *Handler) getRoot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	response, err := h.media.Response(hypermedia.RootResource())
	return response, trace.Wrap(err)
}

// submit runs a background job on the task queue, or inline when no queue
// is configured. Handler responses never wait for the job.
func (h *Handler) submit(key, name string, fn tasks.Func) {
	if h.cfg.Tasks != nil {
		if _, err := h.cfg.Tasks.SubmitUnique(key, name, fn); err != nil {
			h.log.Warn("failed to submit background task", "task", name, "error", err)
		}
		return
	}
	go func() {
		if err := fn(context.Background()); err != nil {
			h.log.Warn("background task failed", "task", name, "error", err)
		}
	}()
}
