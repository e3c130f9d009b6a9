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
	"sort"
	"strings"

	"github.com/gravitational/trace"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// RulePattern matches the plugin of a successfully finished step, either
// by identifier (with or without a pinned version) or by a tag set the
// plugin must fully carry.
type RulePattern struct {
	PluginID string
	Tags     []string
}

// RuleRecommendation names what to recommend after a matching step: a
// plugin identifier or every plugin carrying the tag set, with an integer
// vote weight.
type RuleRecommendation struct {
	PluginID string
	Tags     []string
	Weight   int
}

// Rule is one entry of the static follow-up table.
type Rule struct {
	Pattern    RulePattern
	Recommends []RuleRecommendation
}

// builtinRules is the static follow-up rule table, covering the costume
// and MUSE4Music distance calculation pipelines. The pattern language is
// deliberately closed until rules become an API resource.
var builtinRules = []Rule{
	{
		Pattern: RulePattern{PluginID: "costume-loader"},
		Recommends: []RuleRecommendation{
			{PluginID: "wu-palmer", Weight: 5},
			{Tags: []string{"data-cleaning"}},
		},
	},
	{
		Pattern: RulePattern{PluginID: "muse-for-music-loader"},
		Recommends: []RuleRecommendation{
			{PluginID: "wu-palmer", Weight: 5},
			{Tags: []string{"data-cleaning"}},
		},
	},
	{
		Pattern: RulePattern{Tags: []string{"data-cleaning"}},
		Recommends: []RuleRecommendation{
			{PluginID: "wu-palmer", Weight: 5},
		},
	},
	{
		Pattern: RulePattern{PluginID: "wu-palmer"},
		Recommends: []RuleRecommendation{
			{PluginID: "sym-max-mean", Weight: 5},
		},
	},
	{
		Pattern: RulePattern{PluginID: "sym-max-mean"},
		Recommends: []RuleRecommendation{
			{PluginID: "sim-to-dist-transformers", Weight: 5},
		},
	},
	{
		Pattern: RulePattern{PluginID: "sim-to-dist-transformers"},
		Recommends: []RuleRecommendation{
			{PluginID: "distance-aggregator", Weight: 5},
		},
	},
	{
		Pattern: RulePattern{PluginID: "distance-aggregator"},
		Recommends: []RuleRecommendation{
			{PluginID: "mds", Weight: 5},
		},
	},
	{
		Pattern: RulePattern{PluginID: "mds"},
		Recommends: []RuleRecommendation{
			{Tags: []string{"clustering"}, Weight: 2},
		},
	},
}

// RuleBasedVoter recommends follow-up plugins after a successful step by
// walking a static rule table.
type RuleBasedVoter struct {
	catalog *catalog.Catalog
	rules   []Rule
}

func (v *RuleBasedVoter) Name() string { return defaults.VoterRuleBased }

func (v *RuleBasedVoter) Votes(ctx context.Context, rc *Context) ([]Vote, error) {
	if !rc.StepSuccess || rc.CurrentPluginID == 0 {
		return nil, nil
	}
	current, err := v.catalog.GetPlugin(ctx, rc.CurrentPluginID)
	if err != nil {
		if trace.IsNotFound(err) {
			return nil, nil
		}
		return nil, trace.Wrap(err)
	}

	// Weights accumulate across matching rules, per recommended identifier
	// and per recommended tag set. A plugin reachable through both
	// channels keeps the larger of the two totals.
	byIdentifier := map[string]int{}
	tagSetWeights := map[string]int{}
	tagSetTags := map[string][]string{}
	for _, rule := range v.rules {
		if !v.patternMatches(rule.Pattern, current) {
			continue
		}
		for _, rec := range rule.Recommends {
			weight := rec.Weight
			if weight <= 0 {
				weight = 1
			}
			if rec.PluginID != "" {
				byIdentifier[rec.PluginID] += weight
			}
			if len(rec.Tags) > 0 {
				key := tagSetKey(rec.Tags)
				tagSetWeights[key] += weight
				tagSetTags[key] = rec.Tags
			}
		}
	}

	byTags := map[int64]int{}
	for key, weight := range tagSetWeights {
		ids, err := v.pluginsWithTags(ctx, tagSetTags[key])
		if err != nil {
			return nil, trace.Wrap(err)
		}
		for _, id := range ids {
			byTags[id] += weight
		}
	}

	merged := map[int64]int{}
	for identifier, weight := range byIdentifier {
		ids, err := v.pluginsWithIdentifier(ctx, identifier)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		for _, id := range ids {
			if weight > merged[id] {
				merged[id] = weight
			}
		}
	}
	for id, weight := range byTags {
		if weight > merged[id] {
			merged[id] = weight
		}
	}

	votes := make([]Vote, 0, len(merged))
	for id, weight := range merged {
		votes = append(votes, Vote{PluginID: id, Weight: float64(weight)})
	}
	return votes, nil
}

// tagSetKey derives a stable map key for a recommended tag set.
func tagSetKey(tags []string) string {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\n")
}

// patternMatches checks a rule pattern against the current plugin. A
// plugin id pattern matches the full id or the bare identifier; a tag
// pattern requires every listed tag.
func (v *RuleBasedVoter) patternMatches(pattern RulePattern, current *catalog.Plugin) bool {
	if pattern.PluginID != "" {
		if pattern.PluginID != current.FullID() && pattern.PluginID != current.Identifier {
			return false
		}
	}
	if len(pattern.Tags) > 0 {
		have := map[string]bool{}
		for _, tag := range current.Tags {
			have[tag] = true
		}
		for _, tag := range pattern.Tags {
			if !have[tag] {
				return false
			}
		}
	}
	return pattern.PluginID != "" || len(pattern.Tags) > 0
}

// pluginsWithIdentifier resolves a recommendation plugin id, with or
// without a pinned version, to catalog ids.
func (v *RuleBasedVoter) pluginsWithIdentifier(ctx context.Context, identifier string) ([]int64, error) {
	name := identifier
	version := ""
	if i := strings.LastIndex(identifier, "@"); i > 0 {
		name, version = identifier[:i], identifier[i+1:]
	}
	ids, err := v.catalog.FindPluginIDs(ctx, catalog.PluginFilter{
		Identifier: name,
		Version:    version,
	})
	return ids, trace.Wrap(err)
}

// pluginsWithTags returns plugins carrying every one of the tags.
func (v *RuleBasedVoter) pluginsWithTags(ctx context.Context, tags []string) ([]int64, error) {
	ids, err := v.catalog.FindPluginIDs(ctx, catalog.PluginFilter{RequiredTags: tags})
	return ids, trace.Wrap(err)
}
