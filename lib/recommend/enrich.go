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

package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/gravitational/trace"
	gocache "github.com/patrickmn/go-cache"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/utils"
)

// Enricher fetches experiment context from the backend service before
// voting: the experiment's data summary and the details of the current
// timeline step. Fetches are memoized for a short TTL because consecutive
// recommendation requests usually target the same step.
type Enricher struct {
	catalog *catalog.Catalog
	client  *resty.Client
	cache   *gocache.Cache
	urlMap  utils.URLMap
	log     *slog.Logger
}

// NewEnricher creates an enricher. client may be nil.
func NewEnricher(c *catalog.Catalog, client *resty.Client, urlMap utils.URLMap, log *slog.Logger) *Enricher {
	if client == nil {
		client = resty.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{
		catalog: c,
		client:  client,
		cache:   gocache.New(defaults.EnrichmentCacheTTL, 2*defaults.EnrichmentCacheTTL),
		urlMap:  urlMap,
		log:     log.With("component", "recommend"),
	}
}

// dataSummary is the backend's experiment data summary response.
type dataSummary map[string][]string

// timelineStep is the backend's step detail response.
type timelineStep struct {
	Status        string `json:"status"`
	ResultQuality string `json:"resultQuality"`
	Processor     struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"processor"`
	InputData  []DataItem `json:"inputData"`
	OutputData []DataItem `json:"outputData"`
	Error      string     `json:"error"`
}

// Enrich fills missing context fields from the backend service. Both
// fetches run in parallel under the caller's deadline; only successful
// fetches are merged, and explicitly provided fields always win.
func (e *Enricher) Enrich(ctx context.Context, rc *Context) {
	if rc.ExperimentID == 0 {
		return
	}
	backend, err := e.catalog.GetService(ctx, defaults.BackendServiceID)
	if err != nil {
		e.log.WarnContext(ctx, "cannot enrich recommendation context, backend service is not registered",
			"service", defaults.BackendServiceID, "error", err)
		return
	}
	base := strings.TrimRight(e.urlMap.Apply(backend.URL), "/")

	var wg sync.WaitGroup
	var summary dataSummary
	var step *timelineStep

	wg.Add(1)
	go func() {
		defer wg.Done()
		s, err := e.fetchDataSummary(ctx, base, rc.ExperimentID)
		if err != nil {
			e.log.WarnContext(ctx, "failed to fetch experiment data summary", "error", err)
			return
		}
		summary = s
	}()
	if rc.HasStep {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := e.fetchStep(ctx, base, rc.ExperimentID, rc.CurrentStep)
			if err != nil {
				e.log.WarnContext(ctx, "failed to fetch timeline step", "error", err)
				return
			}
			step = s
		}()
	}
	wg.Wait()

	if summary != nil && rc.AvailableData == nil {
		rc.AvailableData = summary
	}
	if step != nil {
		e.mergeStep(ctx, rc, step)
	}
}

func (e *Enricher) fetchDataSummary(ctx context.Context, base string, experiment int64) (dataSummary, error) {
	url := fmt.Sprintf("%s/experiments/%d/data-summary", base, experiment)
	body, err := e.fetch(ctx, url)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var summary dataSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, trace.BadParameter("malformed data summary: %v", err)
	}
	return summary, nil
}

func (e *Enricher) fetchStep(ctx context.Context, base string, experiment, step int64) (*timelineStep, error) {
	url := fmt.Sprintf("%s/experiments/%d/timeline/%d", base, experiment, step)
	body, err := e.fetch(ctx, url)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var details timelineStep
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, trace.BadParameter("malformed timeline step: %v", err)
	}
	return &details, nil
}

// fetch GETs a URL with short-TTL memoization.
func (e *Enricher) fetch(ctx context.Context, url string) ([]byte, error) {
	if cached, ok := e.cache.Get(url); ok {
		return cached.([]byte), nil
	}
	resp, err := e.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, trace.ConnectionProblem(err, "backend fetch failed")
	}
	if resp.IsError() {
		return nil, trace.ConnectionProblem(nil, "backend responded with status %d", resp.StatusCode())
	}
	body := resp.Body()
	e.cache.Set(url, body, gocache.DefaultExpiration)
	return body, nil
}

// mergeStep folds fetched step details into the context, never overriding
// fields the caller set explicitly.
func (e *Enricher) mergeStep(ctx context.Context, rc *Context, step *timelineStep) {
	switch StepStatus(step.Status) {
	case StepPending, StepUnknown, "":
		// Nothing useful to merge from an unfinished step.
		return
	case StepFailure:
		if rc.StepError == "" {
			rc.StepError = step.Error
			if rc.StepError == "" {
				rc.StepError = "step failed"
			}
		}
	case StepSuccess:
		if !rc.StepSuccess {
			rc.StepSuccess = true
		}
	}
	if rc.StepInputData == nil {
		rc.StepInputData = step.InputData
	}
	if rc.StepOutputData == nil {
		rc.StepOutputData = step.OutputData
	}
	if rc.StepDataQuality == "" {
		rc.StepDataQuality = DataQuality(step.ResultQuality)
	}
	if rc.CurrentPluginID == 0 && step.Processor.Name != "" {
		// The processor's identifier and version name the plugin that
		// ran the step.
		plugin, err := e.catalog.GetPluginByIdentifier(ctx, step.Processor.Name, step.Processor.Version)
		if err != nil {
			if !trace.IsNotFound(err) {
				e.log.WarnContext(ctx, "failed to resolve step processor", "error", err)
			}
			return
		}
		rc.CurrentPluginID = plugin.ID
	}
}
