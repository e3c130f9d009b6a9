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

package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/gravitational/trace"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// preload pushes the configured env variables, seeds, services and UI
// templates into the catalog before the process starts serving.
func (r *Registry) preload(ctx context.Context) error {
	for name, value := range r.cfg.CurrentEnv {
		if _, err := r.catalog.UpsertEnv(ctx, name, value); err != nil {
			return trace.Wrap(err)
		}
	}

	if err := r.preloadSeeds(ctx); err != nil {
		return trace.Wrap(err)
	}

	for _, record := range r.cfg.PreconfiguredServices {
		_, err := r.catalog.UpsertService(ctx, catalog.Service{
			ServiceID:   record.ServiceID,
			URL:         record.URL,
			Name:        record.Name,
			Description: record.Description,
		})
		if err != nil {
			return trace.Wrap(err)
		}
	}

	return trace.Wrap(r.preloadTemplates(ctx))
}

// preloadSeeds loads the configured seed URLs, but only into an empty
// seed table. Seeds are user managed afterwards; reloading them on every
// start would resurrect deleted ones.
func (r *Registry) preloadSeeds(ctx context.Context) error {
	if len(r.cfg.InitialPluginSeeds) == 0 {
		return nil
	}
	count, err := r.catalog.CountSeeds(ctx)
	if err != nil {
		return trace.Wrap(err)
	}
	if count > 0 {
		return nil
	}
	for _, url := range r.cfg.InitialPluginSeeds {
		if _, err := r.catalog.CreateSeed(ctx, url); err != nil {
			if trace.IsAlreadyExists(err) {
				continue
			}
			return trace.Wrap(err)
		}
	}
	r.log.InfoContext(ctx, "loaded initial plugin seeds",
		"count", len(r.cfg.InitialPluginSeeds))
	return nil
}

// templateFile is the JSON layout of a preloaded UI template.
type templateFile struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Tabs        []struct {
		Name         string          `json:"name"`
		Description  string          `json:"description"`
		SortKey      int             `json:"sortKey"`
		Location     string          `json:"location"`
		Icon         string          `json:"icon"`
		GroupKey     string          `json:"groupKey"`
		FilterString json.RawMessage `json:"filterString"`
	} `json:"tabs"`
}

// preloadTemplates loads template JSON files from the configured paths.
// A path may name a single file or a folder of *.json files. Templates
// are matched by name; existing ones are updated in place.
func (r *Registry) preloadTemplates(ctx context.Context) error {
	for _, path := range r.cfg.UITemplatePaths {
		files, err := templateFiles(path)
		if err != nil {
			return trace.Wrap(err)
		}
		for _, file := range files {
			if err := r.loadTemplateFile(ctx, file); err != nil {
				return trace.Wrap(err, "failed to load template file %q", file)
			}
		}
	}
	return nil
}

func templateFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return matches, nil
}

func (r *Registry) loadTemplateFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	var file templateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return trace.BadParameter("not a valid template file: %v", err)
	}
	if file.Name == "" {
		return trace.BadParameter("the template has no name")
	}

	template, err := r.catalog.GetTemplateByName(ctx, file.Name)
	switch {
	case trace.IsNotFound(err):
		template, err = r.catalog.CreateTemplate(ctx, file.Name, file.Description, file.Tags)
		if err != nil {
			return trace.Wrap(err)
		}
	case err != nil:
		return trace.Wrap(err)
	default:
		template, err = r.catalog.UpdateTemplate(ctx, template.ID, file.Name, file.Description, file.Tags)
		if err != nil {
			return trace.Wrap(err)
		}
	}

	// Existing tabs are matched by name and updated; extra tabs from
	// earlier loads stay untouched.
	existing := map[string]catalog.TemplateTab{}
	for _, tab := range template.Tabs {
		existing[tab.Name] = tab
	}
	for _, tab := range file.Tabs {
		filter := strings.TrimSpace(string(tab.FilterString))
		if filter == "null" {
			filter = ""
		}
		next := catalog.TemplateTab{
			TemplateID:   template.ID,
			Name:         tab.Name,
			Description:  tab.Description,
			SortKey:      tab.SortKey,
			Location:     tab.Location,
			Icon:         tab.Icon,
			GroupKey:     tab.GroupKey,
			FilterString: filter,
		}
		if prev, ok := existing[tab.Name]; ok {
			next.ID = prev.ID
			if _, err := r.catalog.UpdateTemplateTab(ctx, next); err != nil {
				return trace.Wrap(err)
			}
			continue
		}
		if _, err := r.catalog.CreateTemplateTab(ctx, next); err != nil {
			return trace.Wrap(err)
		}
	}
	r.log.InfoContext(ctx, "loaded ui template", "template", file.Name, "tabs", len(file.Tabs))
	return nil
}
