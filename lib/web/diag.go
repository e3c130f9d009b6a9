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

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/httplib"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// NewDiagHandler builds the diagnostics endpoints served on the separate
// diagnostics listener: Prometheus metrics and a health check probing the
// catalog database.
func NewDiagHandler(c *catalog.Catalog) http.Handler {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	router.GET("/healthz", httplib.MakeHandler(
		func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
			if err := healthCheck(r.Context(), c); err != nil {
				return nil, err
			}
			return map[string]string{"status": "ok"}, nil
		}))
	return router
}

func healthCheck(ctx context.Context, c *catalog.Catalog) error {
	_, err := c.CountSeeds(ctx)
	return err
}
