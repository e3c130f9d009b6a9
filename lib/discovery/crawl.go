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

package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// pluginSignatureKeys identify a JSON document as a plugin
// self-description. A document carrying all of them is ingested as a
// plugin; anything else is treated as a plugin runner index.
var pluginSignatureKeys = []string{
	"name", "version", "title", "description", "type", "tags", "entryPoint",
}

// CrawlRequest is one unit of discovery work.
type CrawlRequest struct {
	// URL is the endpoint to fetch.
	URL string
	// SeedID is the root seed this crawl descends from.
	SeedID int64
	// Depth is the current runner nesting depth.
	Depth int
	// DeleteOnMissing removes the plugin registered under URL when the
	// endpoint has vanished. Set for re-checks of known plugins.
	DeleteOnMissing bool
}

// dataDescription mirrors the dataInput/dataOutput entries of a
// self-description.
type dataDescription struct {
	Parameter   string   `json:"parameter"`
	Name        string   `json:"name"`
	DataType    string   `json:"dataType"`
	ContentType []string `json:"contentType"`
	Required    bool     `json:"required"`
}

// dependencyDescription mirrors the pluginDependencies entries.
type dependencyDescription struct {
	Parameter string   `json:"parameter"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Type      string   `json:"type"`
	Tags      []string `json:"tags"`
	Required  bool     `json:"required"`
}

// selfDescription is the ingested shape served by plugins.
type selfDescription struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Tags        []string        `json:"tags"`
	EntryPoint  struct {
		Href               string                  `json:"href"`
		UIHref             string                  `json:"uiHref"`
		DataInput          []dataDescription       `json:"dataInput"`
		DataOutput         []dataDescription       `json:"dataOutput"`
		PluginDependencies []dependencyDescription `json:"pluginDependencies"`
	} `json:"entryPoint"`
}

// runnerListing is the shape served by plugin runners under /plugins.
type runnerListing struct {
	Plugins []struct {
		APIRoot string `json:"apiRoot"`
		URL     string `json:"url"`
	} `json:"plugins"`
}

// CrawlSeed fetches one URL and either ingests the plugin self-description
// behind it or descends into the plugin runner listing. Network errors are
// logged and swallowed so one bad seed never aborts a crawl run.
func (s *Server) CrawlSeed(ctx context.Context, req CrawlRequest) {
	if req.Depth > defaults.DiscoveryMaxNesting {
		crawlErrors.Inc()
		s.log.ErrorContext(ctx, "plugin runner nesting exceeds the cycle guard, aborting branch",
			"url", req.URL, "depth", req.Depth)
		return
	}
	seedsCrawled.Inc()

	fetchURL := s.cfg.URLMapToLocalhost.Apply(req.URL)
	resp, err := s.client.R().SetContext(ctx).Get(fetchURL)
	if err != nil {
		crawlErrors.Inc()
		if req.DeleteOnMissing {
			s.deleteVanished(ctx, req.URL)
		} else {
			s.log.WarnContext(ctx, "failed to fetch seed", "url", req.URL, "error", err)
		}
		return
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		if req.DeleteOnMissing {
			s.deleteVanished(ctx, req.URL)
		}
		return
	case resp.IsError():
		crawlErrors.Inc()
		s.log.WarnContext(ctx, "seed responded with an error",
			"url", req.URL, "status", resp.StatusCode())
		return
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		crawlErrors.Inc()
		s.log.WarnContext(ctx, "seed did not return a JSON document",
			"url", req.URL, "error", err)
		return
	}

	if hasPluginSignature(doc) {
		var description selfDescription
		if err := json.Unmarshal(resp.Body(), &description); err != nil {
			crawlErrors.Inc()
			s.log.WarnContext(ctx, "malformed plugin self-description",
				"url", req.URL, "error", err)
			return
		}
		s.ingestPlugin(ctx, req, description)
		return
	}
	s.crawlRunner(ctx, req)
}

func hasPluginSignature(doc map[string]json.RawMessage) bool {
	for _, key := range pluginSignatureKeys {
		if _, ok := doc[key]; !ok {
			return false
		}
	}
	return true
}

// deleteVanished removes the plugin registered under a URL whose endpoint
// no longer responds.
func (s *Server) deleteVanished(ctx context.Context, url string) {
	deleted, err := s.catalog.DeletePluginsByURL(ctx, url)
	if err != nil {
		s.log.WarnContext(ctx, "failed to delete vanished plugin", "url", url, "error", err)
		return
	}
	if deleted > 0 {
		s.log.InfoContext(ctx, "deleted vanished plugin", "url", url)
	}
}

// ingestPlugin upserts a crawled self-description into the catalog.
func (s *Server) ingestPlugin(ctx context.Context, req CrawlRequest, d selfDescription) {
	// URLs in self-descriptions point at wherever the plugin believes it
	// lives; rewrite rules translate them into the registry's network
	// view before they are persisted.
	pluginURL := s.cfg.URLMapFromLocalhost.Apply(req.URL)

	spec := catalog.IngestSpec{
		Identifier:  d.Name,
		Version:     d.Version,
		Name:        d.Title,
		Description: d.Description,
		Type:        d.Type,
		URL:         pluginURL,
		EntryURL:    s.resolveURL(pluginURL, d.EntryPoint.Href),
		UIURL:       s.resolveURL(pluginURL, d.EntryPoint.UIHref),
		SeedID:      req.SeedID,
		Tags:        d.Tags,
	}
	if spec.Identifier == "" {
		spec.Identifier = pluginURL
	}
	if spec.Version == "" {
		spec.Version = defaults.DefaultPluginVersion
	}
	if spec.Type == "" {
		spec.Type = defaults.DefaultPluginType
	}
	if spec.Name == "" {
		spec.Name = defaults.UnnamedPlugin
	}

	for _, input := range d.EntryPoint.DataInput {
		spec.IOData = append(spec.IOData, ingestIOData(input, catalog.RelationConsumed))
	}
	for _, output := range d.EntryPoint.DataOutput {
		spec.IOData = append(spec.IOData, ingestIOData(output, catalog.RelationProduced))
	}
	for _, dep := range d.EntryPoint.PluginDependencies {
		spec.Dependencies = append(spec.Dependencies, ingestDependency(dep))
	}

	plugin, created, err := s.catalog.CreateOrUpdatePlugin(ctx, spec)
	if err != nil {
		s.log.WarnContext(ctx, "failed to ingest plugin",
			"url", req.URL, "plugin", spec.Identifier, "error", err)
		return
	}
	pluginsIngested.Inc()
	if created {
		s.log.InfoContext(ctx, "discovered new plugin",
			"plugin", plugin.FullID(), "url", pluginURL)
		if err := s.catalog.ResolveDependencies(ctx, plugin.ID); err != nil {
			s.log.WarnContext(ctx, "failed to resolve plugin dependencies",
				"plugin", plugin.FullID(), "error", err)
		}
		if s.onPluginCreated != nil {
			s.onPluginCreated(ctx, plugin.ID)
		}
	}
}

func ingestIOData(d dataDescription, relation catalog.IORelation) catalog.IOData {
	identifier := d.Parameter
	if identifier == "" {
		identifier = d.Name
	}
	io := catalog.IOData{
		Identifier: identifier,
		Relation:   relation,
		Required:   d.Required,
		DataType:   catalog.SplitDataValue(strings.ToLower(d.DataType)),
	}
	for _, ct := range d.ContentType {
		io.ContentTypes = append(io.ContentTypes, catalog.SplitDataValue(strings.ToLower(ct)))
	}
	return io
}

// ingestDependency maps a declared dependency; tag entries prefixed with
// "!" become forbidden tags.
func ingestDependency(d dependencyDescription) catalog.Dependency {
	dep := catalog.Dependency{
		Parameter:        d.Parameter,
		Required:         d.Required,
		TargetIdentifier: d.Name,
		VersionSpec:      d.Version,
		TargetType:       d.Type,
	}
	for _, tag := range d.Tags {
		if name, found := strings.CutPrefix(tag, "!"); found {
			dep.ForbiddenTags = append(dep.ForbiddenTags, name)
			continue
		}
		dep.RequiredTags = append(dep.RequiredTags, tag)
	}
	return dep
}

// crawlRunner lists the plugins of a runner index and descends into each
// entry one nesting level deeper.
func (s *Server) crawlRunner(ctx context.Context, req CrawlRequest) {
	listingURL := strings.TrimRight(req.URL, "/") + "/plugins"
	resp, err := s.client.R().
		SetContext(ctx).
		Get(s.cfg.URLMapToLocalhost.Apply(listingURL))
	if err != nil || resp.IsError() {
		crawlErrors.Inc()
		s.log.WarnContext(ctx, "failed to list plugins of runner",
			"url", listingURL, "error", err)
		return
	}
	var listing runnerListing
	if err := json.Unmarshal(resp.Body(), &listing); err != nil {
		crawlErrors.Inc()
		s.log.WarnContext(ctx, "malformed plugin listing", "url", listingURL, "error", err)
		return
	}
	// Children are crawled in listing order within this seed; there is no
	// ordering across seeds.
	for _, entry := range listing.Plugins {
		child := entry.APIRoot
		if child == "" {
			child = entry.URL
		}
		if child == "" {
			continue
		}
		s.CrawlSeed(ctx, CrawlRequest{
			URL:    child,
			SeedID: req.SeedID,
			Depth:  req.Depth + 1,
		})
	}
}

// resolveURL resolves href relative to base, returning href unchanged when
// it is absolute or the base does not parse.
func (s *Server) resolveURL(base, href string) string {
	if href == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return s.cfg.URLMapFromLocalhost.Apply(baseURL.ResolveReference(ref).String())
}
