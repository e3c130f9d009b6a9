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

// Package pluginfilter implements the declarative filter language template
// tabs use to select plugins.
//
// A filter is a recursive tagged JSON expression:
//
//	{}                       matches every plugin
//	{"and": [F, ...]}        all children match (empty list matches nothing)
//	{"or":  [F, ...]}        any child matches (empty list matches nothing)
//	{"not": F}               child does not match
//	{"id": "name@version"}   full id or bare identifier equality
//	{"name": "..."}          fuzzy name match (similarity ratio > 0.8)
//	{"tag": "..."}           exact tag name
//	{"type": "..."}          case-insensitive plugin type
//	{"version": ">=1,<2"}    version specifier set
//
// The serialized filter string stored on a tab is the source of truth and
// is re-parsed on every use.
package pluginfilter

import (
	"encoding/json"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gravitational/trace"
)

// Kind enumerates filter expression node types.
type Kind int

const (
	// KindAll is the empty filter {} matching every plugin.
	KindAll Kind = iota
	// KindAnd intersects its children.
	KindAnd
	// KindOr unites its children.
	KindOr
	// KindNot complements its child.
	KindNot
	// KindID matches the full "identifier@version" id or the bare
	// identifier.
	KindID
	// KindName fuzzy-matches the human readable plugin name.
	KindName
	// KindTag matches plugins carrying the tag.
	KindTag
	// KindType matches the plugin type case-insensitively.
	KindType
	// KindVersion matches plugin versions against a specifier set.
	KindVersion
)

// Expr is one parsed filter expression node.
type Expr struct {
	Kind     Kind
	Children []*Expr
	// Value holds the leaf argument for id/name/tag/type and the raw
	// specifier string for version.
	Value string
	// Spec is the parsed version constraint of a KindVersion leaf.
	Spec *semver.Constraints
}

// Parse parses and validates a serialized filter expression. An empty
// string is the match-all filter.
func Parse(filter string) (*Expr, error) {
	if strings.TrimSpace(filter) == "" {
		return &Expr{Kind: KindAll}, nil
	}
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(filter), &raw); err != nil {
		return nil, trace.BadParameter("filter is not valid JSON: %v", err)
	}
	expr, err := parseNode(raw)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return expr, nil
}

// Validate checks a serialized filter without keeping the parsed form.
func Validate(filter string) error {
	_, err := Parse(filter)
	return trace.Wrap(err)
}

func parseNode(raw json.RawMessage) (*Expr, error) {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, trace.BadParameter("filter expressions must be JSON objects: %v", err)
	}
	if len(node) == 0 {
		return &Expr{Kind: KindAll}, nil
	}
	if len(node) > 1 {
		keys := make([]string, 0, len(node))
		for key := range node {
			keys = append(keys, key)
		}
		return nil, trace.BadParameter("filter expressions must have exactly one key (got %v)", strings.Join(keys, ", "))
	}

	for key, value := range node {
		switch key {
		case "and", "or":
			kind := KindAnd
			if key == "or" {
				kind = KindOr
			}
			var children []json.RawMessage
			if err := json.Unmarshal(value, &children); err != nil {
				return nil, trace.BadParameter("the value of %q must be a list of filters: %v", key, err)
			}
			expr := &Expr{Kind: kind, Children: make([]*Expr, 0, len(children))}
			for _, child := range children {
				parsed, err := parseNode(child)
				if err != nil {
					return nil, trace.Wrap(err)
				}
				expr.Children = append(expr.Children, parsed)
			}
			return expr, nil
		case "not":
			child, err := parseNode(value)
			if err != nil {
				return nil, trace.Wrap(err)
			}
			return &Expr{Kind: KindNot, Children: []*Expr{child}}, nil
		case "id", "name", "tag", "type":
			var leaf string
			if err := json.Unmarshal(value, &leaf); err != nil {
				return nil, trace.BadParameter("the value of %q must be a string: %v", key, err)
			}
			kind := map[string]Kind{"id": KindID, "name": KindName, "tag": KindTag, "type": KindType}[key]
			return &Expr{Kind: kind, Value: leaf}, nil
		case "version":
			var leaf string
			if err := json.Unmarshal(value, &leaf); err != nil {
				return nil, trace.BadParameter(`the value of "version" must be a specifier string: %v`, err)
			}
			spec, err := ParseSpecifier(leaf)
			if err != nil {
				return nil, trace.Wrap(err)
			}
			return &Expr{Kind: KindVersion, Value: leaf, Spec: spec}, nil
		default:
			return nil, trace.BadParameter("unknown filter key %q", key)
		}
	}
	// Unreachable, the map has exactly one entry.
	return nil, trace.BadParameter("empty filter node")
}
