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

package pluginfilter

import (
	"context"
	"strings"

	"github.com/gravitational/trace"
)

// NameSimilarityThreshold is the minimum similarity ratio for the "name"
// leaf to consider two plugin names equal.
const NameSimilarityThreshold = 0.8

// DefaultBatchSize is the number of plugins evaluated per catalog batch.
const DefaultBatchSize = 500

// Plugin carries the plugin attributes the filter language can reference.
type Plugin struct {
	ID         int64
	Identifier string
	Version    string
	Name       string
	Type       string
	Tags       []string
}

// FullID is the "identifier@version" form the id leaf matches against.
func (p Plugin) FullID() string {
	return p.Identifier + "@" + p.Version
}

// Matches evaluates the expression against a single plugin.
func (e *Expr) Matches(p Plugin) bool {
	switch e.Kind {
	case KindAll:
		return true
	case KindAnd:
		if len(e.Children) == 0 {
			return false
		}
		for _, child := range e.Children {
			if !child.Matches(p) {
				return false
			}
		}
		return true
	case KindOr:
		for _, child := range e.Children {
			if child.Matches(p) {
				return true
			}
		}
		return false
	case KindNot:
		return !e.Children[0].Matches(p)
	case KindID:
		return e.Value == p.FullID() || e.Value == p.Identifier
	case KindName:
		return Similarity(p.Name, e.Value) > NameSimilarityThreshold
	case KindTag:
		for _, tag := range p.Tags {
			if tag == e.Value {
				return true
			}
		}
		return false
	case KindType:
		return strings.EqualFold(p.Type, e.Value)
	case KindVersion:
		return VersionMatches(e.Spec, p.Version)
	default:
		return false
	}
}

// MatchBatch returns the ids of the plugins in the batch matching the
// expression, preserving batch order.
func (e *Expr) MatchBatch(batch []Plugin) []int64 {
	var matched []int64
	for _, p := range batch {
		if e.Matches(p) {
			matched = append(matched, p.ID)
		}
	}
	return matched
}

// BatchSource streams plugins in stable id order. Implemented by the
// catalog.
type BatchSource interface {
	// PluginBatch returns up to limit plugins with ids greater than
	// afterID, ordered by id. An empty result ends the stream.
	PluginBatch(ctx context.Context, afterID int64, limit int) ([]Plugin, error)
}

// Evaluate streams the catalog through the expression batch by batch and
// calls yield with the matching ids of each batch. The full plugin table is
// never held in memory.
func Evaluate(ctx context.Context, expr *Expr, source BatchSource, batchSize int, yield func(ids []int64) error) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	afterID := int64(0)
	for {
		batch, err := source.PluginBatch(ctx, afterID, batchSize)
		if err != nil {
			return trace.Wrap(err)
		}
		if len(batch) == 0 {
			return nil
		}
		if matched := expr.MatchBatch(batch); len(matched) > 0 {
			if err := yield(matched); err != nil {
				return trace.Wrap(err)
			}
		}
		afterID = batch[len(batch)-1].ID
		if len(batch) < batchSize {
			return nil
		}
	}
}
