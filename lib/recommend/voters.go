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

	"github.com/gravitational/trace"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// Vote is one voter's opinion about one plugin, weight in [0, 1] for the
// built-in voters.
type Vote struct {
	PluginID int64
	Weight   float64
}

// Voter produces votes for plugins fitting the given context. Voters run
// concurrently under the engine's deadline; a voter that cannot contribute
// returns no votes and no error.
type Voter interface {
	Name() string
	Votes(ctx context.Context, rc *Context) ([]Vote, error)
}

// BuiltinVoters returns the standard voter ensemble over the catalog.
func BuiltinVoters(c *catalog.Catalog) []Voter {
	return []Voter{
		&CurrentDataVoter{catalog: c},
		&AvailableDataVoter{catalog: c},
		&StepDataVoter{catalog: c},
		&RuleBasedVoter{catalog: c, rules: builtinRules},
	}
}

// CurrentDataVoter scores plugins by how many of their required inputs the
// user's current data selection can serve.
type CurrentDataVoter struct {
	catalog *catalog.Catalog
}

func (v *CurrentDataVoter) Name() string { return defaults.VoterCurrentData }

func (v *CurrentDataVoter) Votes(ctx context.Context, rc *Context) ([]Vote, error) {
	return votesForDataItems(ctx, v.catalog, rc.CurrentData)
}

// votesForDataItems matches the items against required consumed IO data.
// The vote for a plugin is matched/required, capped at 1; plugins without
// required inputs are skipped since any data suits them.
func votesForDataItems(ctx context.Context, c *catalog.Catalog, items []DataItem) ([]Vote, error) {
	if len(items) == 0 {
		return nil, nil
	}
	candidates := map[int64]bool{}
	for _, item := range items {
		ids, err := c.FindPluginsWithInput(ctx, item.DataType, item.ContentType, true)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		for _, id := range ids {
			candidates[id] = true
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	requirements, err := c.ListPluginRequirements(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var votes []Vote
	for _, req := range requirements {
		if !candidates[req.PluginID] || len(req.RequiredInputs) == 0 {
			continue
		}
		matched := 0
		for _, io := range req.RequiredInputs {
			for _, item := range items {
				if item.Matches(io) {
					matched++
					break
				}
			}
		}
		weight := float64(matched) / float64(len(req.RequiredInputs))
		if weight > 1 {
			weight = 1
		}
		if weight > 0 {
			votes = append(votes, Vote{PluginID: req.PluginID, Weight: weight})
		}
	}
	return votes, nil
}

// AvailableDataVoter votes for every plugin whose required inputs can all
// be fulfilled from the experiment's available data. It stays silent when
// more specific data context is present.
type AvailableDataVoter struct {
	catalog *catalog.Catalog
}

func (v *AvailableDataVoter) Name() string { return defaults.VoterAvailableData }

func (v *AvailableDataVoter) Votes(ctx context.Context, rc *Context) ([]Vote, error) {
	if len(rc.CurrentData) > 0 || len(rc.StepOutputData) > 0 {
		return nil, nil
	}
	if len(rc.AvailableData) == 0 {
		return nil, nil
	}
	items := rc.AvailableDataItems()
	requirements, err := v.catalog.ListPluginRequirements(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var votes []Vote
	for _, req := range requirements {
		if len(req.RequiredInputs) == 0 {
			continue
		}
		if satisfiable(req.RequiredInputs, items) {
			votes = append(votes, Vote{PluginID: req.PluginID, Weight: 1})
		}
	}
	return votes, nil
}

// StepDataVoter votes on the data surrounding the current experiment step:
// its inputs always, its outputs when the step succeeded and produced data
// of acceptable quality.
type StepDataVoter struct {
	catalog *catalog.Catalog
}

func (v *StepDataVoter) Name() string { return defaults.VoterStepData }

func (v *StepDataVoter) Votes(ctx context.Context, rc *Context) ([]Vote, error) {
	if !rc.HasStep {
		return nil, nil
	}
	items := append([]DataItem{}, rc.StepInputData...)
	if rc.StepSuccess && rc.StepError == "" && rc.StepDataQuality.Acceptable() {
		items = append(items, rc.StepOutputData...)
	}
	return votesForDataItems(ctx, v.catalog, items)
}
