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
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/httplib"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/hypermedia"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

type templateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	page, err := pageRequest(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	templates, info, err := h.cfg.Catalog.ListTemplates(r.Context(), page)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	items := make([]hypermedia.Resource, 0, len(templates))
	for _, template := range templates {
		items = append(items, hypermedia.TemplateResource(template))
	}
	response, err := h.media.PageResponse(hypermedia.PageSpec{
		ItemKind:       hypermedia.KindTemplate,
		CollectionHref: h.media.TemplateCollectionHref(),
		Pagination:     info,
		Sort:           page.Sort,
	}, items)
	return response, trace.Wrap(err)
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (interface{}, error) {
	var req templateRequest
	if err := httplib.ReadJSON(r, &req); err != nil {
		return nil, trace.Wrap(err)
	}
	template, err := h.cfg.Catalog.CreateTemplate(r.Context(), req.Name, req.Description, req.Tags)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.NewObjectResponse(hypermedia.TemplateResource(template))
	return response, trace.Wrap(err)
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	id, err := pathID(p, "templateId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	template, err := h.cfg.Catalog.GetTemplate(r.Context(), id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.Response(hypermedia.TemplateResource(template))
	return response, trace.Wrap(err)
}

func (h *Handler) updateTemplate(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	id, err := pathID(p, "templateId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var req templateRequest
	if err := httplib.ReadJSON(r, &req); err != nil {
		return nil, trace.Wrap(err)
	}
	template, err := h.cfg.Catalog.UpdateTemplate(r.Context(), id, req.Name, req.Description, req.Tags)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.ChangedObjectResponse(hypermedia.TemplateResource(template))
	return response, trace.Wrap(err)
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	id, err := pathID(p, "templateId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	template, err := h.cfg.Catalog.GetTemplate(r.Context(), id)
	if err != nil {
		if !trace.IsNotFound(err) {
			return nil, trace.Wrap(err)
		}
		template = &catalog.Template{ID: id}
	}
	if err := h.cfg.Catalog.DeleteTemplate(r.Context(), id); err != nil {
		return nil, trace.Wrap(err)
	}
	redirect := hypermedia.FirstPageLink(hypermedia.KindTemplate, h.media.TemplateCollectionHref())
	response, err := h.media.DeletedObjectResponse(hypermedia.TemplateResource(template), &redirect)
	return response, trace.Wrap(err)
}

type tabRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SortKey     int    `json:"sortKey"`
	Location    string `json:"location"`
	Icon        string `json:"icon"`
	GroupKey    string `json:"groupKey"`
	// FilterString accepts the filter either as a JSON object or as a
	// pre-serialized string.
	FilterString json.RawMessage `json:"filterString"`
}

// filterString normalizes the two accepted filter encodings into the
// serialized form stored in the catalog.
func (t *tabRequest) filterString() (string, error) {
	if len(t.FilterString) == 0 {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(t.FilterString, &asString); err == nil {
		return asString, nil
	}
	var asObject map[string]interface{}
	if err := json.Unmarshal(t.FilterString, &asObject); err != nil {
		return "", trace.BadParameter("The filterString must be a filter object or a JSON string!")
	}
	return string(t.FilterString), nil
}

func (h *Handler) listTemplateTabs(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	templateID, err := pathID(p, "templateId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if _, err := h.cfg.Catalog.GetTemplate(r.Context(), templateID); err != nil {
		return nil, trace.Wrap(err)
	}
	location := r.URL.Query().Get("group")
	tabList, err := h.cfg.Catalog.ListTemplateTabs(r.Context(), templateID, location)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	items := make([]hypermedia.Resource, 0, len(tabList))
	for i := range tabList {
		items = append(items, hypermedia.TabResource(&tabList[i]))
	}
	response, err := h.media.CollectionResponse(
		hypermedia.KindTemplateTab, h.media.TabCollectionHref(templateID), items)
	return response, trace.Wrap(err)
}

func (h *Handler) createTemplateTab(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	templateID, err := pathID(p, "templateId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var req tabRequest
	if err := httplib.ReadJSON(r, &req); err != nil {
		return nil, trace.Wrap(err)
	}
	filter, err := req.filterString()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	tab, err := h.cfg.Catalog.CreateTemplateTab(r.Context(), catalog.TemplateTab{
		TemplateID:   templateID,
		Name:         req.Name,
		Description:  req.Description,
		SortKey:      req.SortKey,
		Location:     req.Location,
		Icon:         req.Icon,
		GroupKey:     req.GroupKey,
		FilterString: filter,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	h.scheduleTabMaterialization(tab.TemplateID, tab.ID)
	response, err := h.media.NewObjectResponse(hypermedia.TabResource(tab))
	return response, trace.Wrap(err)
}

func (h *Handler) getTemplateTab(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	templateID, err := pathID(p, "templateId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	tabID, err := pathID(p, "tabId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	tab, err := h.cfg.Catalog.GetTemplateTab(r.Context(), templateID, tabID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, err := h.media.Response(hypermedia.TabResource(tab))
	return response, trace.Wrap(err)
}

func (h *Handler) updateTemplateTab(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	templateID, err := pathID(p, "templateId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	tabID, err := pathID(p, "tabId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var req tabRequest
	if err := httplib.ReadJSON(r, &req); err != nil {
		return nil, trace.Wrap(err)
	}
	filter, err := req.filterString()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	tab, err := h.cfg.Catalog.UpdateTemplateTab(r.Context(), catalog.TemplateTab{
		ID:           tabID,
		TemplateID:   templateID,
		Name:         req.Name,
		Description:  req.Description,
		SortKey:      req.SortKey,
		Location:     req.Location,
		Icon:         req.Icon,
		GroupKey:     req.GroupKey,
		FilterString: filter,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	h.scheduleTabMaterialization(tab.TemplateID, tab.ID)
	response, err := h.media.ChangedObjectResponse(hypermedia.TabResource(tab))
	return response, trace.Wrap(err)
}

func (h *Handler) deleteTemplateTab(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	templateID, err := pathID(p, "templateId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	tabID, err := pathID(p, "tabId")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	tab, err := h.cfg.Catalog.GetTemplateTab(r.Context(), templateID, tabID)
	if err != nil {
		if !trace.IsNotFound(err) {
			return nil, trace.Wrap(err)
		}
		tab = &catalog.TemplateTab{ID: tabID, TemplateID: templateID}
	}
	if err := h.cfg.Catalog.DeleteTemplateTab(r.Context(), templateID, tabID); err != nil {
		return nil, trace.Wrap(err)
	}
	redirect := hypermedia.FirstPageLink(
		hypermedia.KindTemplateTab, h.media.TabCollectionHref(templateID))
	response, err := h.media.DeletedObjectResponse(hypermedia.TabResource(tab), &redirect)
	return response, trace.Wrap(err)
}

// scheduleTabMaterialization rebuilds the tab's plugin membership in the
// background after the filter changed.
func (h *Handler) scheduleTabMaterialization(templateID, tabID int64) {
	if h.cfg.Tabs == nil {
		return
	}
	h.submit(fmt.Sprintf("materialize-tab-%d", tabID), "materialize-tab",
		func(ctx context.Context) error {
			return trace.Wrap(h.cfg.Tabs.ApplyFilterForTab(ctx, templateID, tabID))
		})
}
