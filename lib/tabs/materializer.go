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

// Package tabs keeps the materialized tab/plugin memberships in sync with
// the declarative tab filters as the catalog or the filters change.
package tabs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/pluginfilter"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/utils"
)

var materializations = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "registry_tab_materializations_total",
	Help: "Number of tab membership rewrites.",
})

func init() {
	_ = utils.RegisterCollectors(materializations)
}

// Materializer recomputes tab memberships from tab filter expressions.
type Materializer struct {
	catalog *catalog.Catalog
	log     *slog.Logger
	// group collapses duplicate materialization requests for the same
	// tab while one is already running.
	group singleflight.Group
	// batchSize is the catalog batch size of filter evaluation.
	batchSize int
}

// NewMaterializer creates a materializer over the given catalog.
func NewMaterializer(c *catalog.Catalog, log *slog.Logger) *Materializer {
	if log == nil {
		log = slog.Default()
	}
	return &Materializer{
		catalog:   c,
		log:       log.With("component", "tabs"),
		batchSize: defaults.FilterBatchSize,
	}
}

// ApplyFilterForTab re-evaluates the filter of one tab over the whole
// catalog and replaces the tab's membership set. Group tabs and tabs with
// an empty filter get an empty membership. Concurrent requests for the
// same tab are collapsed.
func (m *Materializer) ApplyFilterForTab(ctx context.Context, templateID, tabID int64) error {
	_, err, _ := m.group.Do(fmt.Sprintf("tab-%d", tabID), func() (interface{}, error) {
		return nil, m.applyFilter(ctx, templateID, tabID)
	})
	return trace.Wrap(err)
}

func (m *Materializer) applyFilter(ctx context.Context, templateID, tabID int64) error {
	tab, err := m.catalog.GetTemplateTab(ctx, templateID, tabID)
	if err != nil {
		return trace.Wrap(err)
	}
	ids, err := m.evaluateTab(ctx, tab)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := m.catalog.ReplaceTabPlugins(ctx, tab.ID, ids); err != nil {
		return trace.Wrap(err)
	}
	materializations.Inc()
	m.log.DebugContext(ctx, "materialized tab filter",
		"tab", tab.ID, "template", tab.TemplateID, "plugins", len(ids))
	return nil
}

// UpdatePluginLists refreshes every tab whose filter matches the given
// plugin. Correctness baseline is re-evaluating all tabs; memberships are
// only rewritten for tabs whose current membership actually changes.
func (m *Materializer) UpdatePluginLists(ctx context.Context, pluginID int64) error {
	key := fmt.Sprintf("plugin-%d", pluginID)
	_, err, _ := m.group.Do(key, func() (interface{}, error) {
		return nil, m.updatePluginLists(ctx, pluginID)
	})
	return trace.Wrap(err)
}

func (m *Materializer) updatePluginLists(ctx context.Context, pluginID int64) error {
	tabs, err := m.catalog.ListAllTabs(ctx)
	if err != nil {
		return trace.Wrap(err)
	}
	var errs []error
	for _, tab := range tabs {
		ids, err := m.evaluateTab(ctx, &tab)
		if err != nil {
			// A malformed filter in one tab must not block refreshing
			// the others.
			m.log.WarnContext(ctx, "failed to evaluate tab filter",
				"tab", tab.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if err := m.catalog.ReplaceTabPlugins(ctx, tab.ID, ids); err != nil {
			errs = append(errs, err)
			continue
		}
		materializations.Inc()
	}
	return trace.NewAggregate(errs...)
}

// evaluateTab streams the catalog through the tab's filter. The serialized
// filter string is the source of truth and re-parsed on every evaluation.
func (m *Materializer) evaluateTab(ctx context.Context, tab *catalog.TemplateTab) ([]int64, error) {
	if tab.IsGroup() || tab.FilterString == "" {
		return nil, nil
	}
	expr, err := pluginfilter.Parse(tab.FilterString)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var ids []int64
	err = pluginfilter.Evaluate(ctx, expr, m.catalog, m.batchSize, func(batch []int64) error {
		ids = append(ids, batch...)
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return ids, nil
}
