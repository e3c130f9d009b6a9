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

type serviceRequest struct {
	ServiceID   string `json:"serviceId"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	services, err := h.cfg.Catalog.ListServices(r.Context())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	items := make([]hypermedia.Resource, 0, len(services))
	for i := range services {
		items = append(items, hypermedia.ServiceResource(&services[i]))
	}
	response, err := h.media.CollectionResponse(
		hypermedia.KindService, h.media.ServiceCollectionHref(), items)
	return response, trace.Wrap(err)
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	var req serviceRequest
	if err := httplib.ReadJSON(r, &req); err != nil {
		return nil, trace.Wrap(err)
	}
	service, err := h.cfg.Catalog.CreateService(r.Context(), catalog.Service{
		ServiceID:   req.ServiceID,
		URL:         req.URL,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.NewObjectResponse(hypermedia.ServiceResource(service))
	return response, trace.Wrap(err)
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	service, err := h.cfg.Catalog.GetService(r.Context(), p.ByName("serviceId"))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.Response(hypermedia.ServiceResource(service))
	return response, trace.Wrap(err)
}

// updateService replaces the record stored under the service id in the
// path. A serviceId in the body must match the path.
func (h *Handler) updateService(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	serviceID := p.ByName("serviceId")
	var req serviceRequest
	if err := httplib.ReadJSON(r, &req); err != nil {
		return nil, trace.Wrap(err)
	}
	if req.ServiceID != "" && req.ServiceID != serviceID {
		return nil, trace.BadParameter("The serviceId in the body does not match the URL!")
	}
	service, err := h.cfg.Catalog.UpsertService(r.Context(), catalog.Service{
		ServiceID:   serviceID,
		URL:         req.URL,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.ChangedObjectResponse(hypermedia.ServiceResource(service))
	return response, trace.Wrap(err)
}

func (h *Handler) deleteService(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	serviceID := p.ByName("serviceId")
	service, err := h.cfg.Catalog.GetService(r.Context(), serviceID)
	if err != nil {
		if !trace.IsNotFound(err) {
			return nil, trace.Wrap(err)
		}
		service = &catalog.Service{ServiceID: serviceID}
	}
	if err := h.cfg.Catalog.DeleteService(r.Context(), serviceID); err != nil {
		return nil, trace.Wrap(err)
	}
	redirect := hypermedia.FirstPageLink(hypermedia.KindService, h.media.ServiceCollectionHref())
	response, err := h.media.DeletedObjectResponse(hypermedia.ServiceResource(service), &redirect)
	return response, trace.Wrap(err)
}
