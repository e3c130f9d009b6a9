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

package catalog

import (
	"strings"
	"time"
)

// IORelation distinguishes consumed from produced IO data.
type IORelation string

const (
	// RelationConsumed marks data a plugin accepts as input.
	RelationConsumed IORelation = "consumed"
	// RelationProduced marks data a plugin emits as output.
	RelationProduced IORelation = "produced"
)

// DataValue is a data-type or content-type split at the first "/". The "*"
// wildcard matches anything on its side.
type DataValue struct {
	Start string
	End   string
}

// SplitDataValue splits "entity/list" into {entity, list}. A missing slash
// leaves the end as the wildcard.
func SplitDataValue(value string) DataValue {
	start, end, found := strings.Cut(value, "/")
	if !found {
		end = "*"
	}
	return DataValue{Start: start, End: end}
}

// String reassembles the value, e.g. "entity/list".
func (v DataValue) String() string {
	return v.Start + "/" + v.End
}

// Matches reports whether the two values are compatible, treating "*" as a
// wildcard on either side.
func (v DataValue) Matches(other DataValue) bool {
	matchPart := func(a, b string) bool {
		return a == "*" || b == "*" || strings.EqualFold(a, b)
	}
	return matchPart(v.Start, other.Start) && matchPart(v.End, other.End)
}

// Tag is a shared label attached to plugins and templates.
type Tag struct {
	ID          int64
	Name        string
	Description string
}

// IOData is one declared input or output of a plugin.
type IOData struct {
	ID         int64
	PluginID   int64
	Identifier string
	Relation   IORelation
	Required   bool
	DataType   DataValue
	// ContentTypes lists the accepted or produced content types.
	ContentTypes []DataValue
}

// Dependency is a plugin's declared reference to another plugin.
type Dependency struct {
	ID       int64
	PluginID int64
	// Parameter is the name under which the dependency is passed to the
	// plugin.
	Parameter string
	Required  bool
	// TargetIdentifier pins the dependency to a plugin identifier.
	// Empty means any identifier.
	TargetIdentifier string
	// VersionSpec constrains acceptable versions. Empty means any.
	VersionSpec string
	// TargetType constrains the plugin type. Empty means any.
	TargetType string
	// RequiredTags must all be present on a matching plugin.
	RequiredTags []string
	// ForbiddenTags must all be absent.
	ForbiddenTags []string
	// BestMatch is the id of the resolved plugin, zero when unresolved.
	BestMatch int64
}

// Plugin is one catalog entry describing a remote computational service.
type Plugin struct {
	ID          int64
	Identifier  string
	Version     string
	SortVersion string
	Name        string
	Description string
	Type        string
	URL         string
	EntryURL    string
	UIURL       string
	// Schema is the raw JSON parameter schema of the plugin.
	Schema string
	// LastAvailable is the time discovery last saw the plugin.
	LastAvailable time.Time
	// SeedID references the seed that discovered the plugin, zero when
	// unknown or when the seed was deleted.
	SeedID int64

	Tags         []string
	IOData       []IOData
	Dependencies []Dependency
}

// FullID is the "identifier@version" form used in filter expressions and
// API arguments.
func (p *Plugin) FullID() string {
	return p.Identifier + "@" + p.Version
}

// ConsumedData returns the plugin's consumed IO data rows, optionally only
// the required ones.
func (p *Plugin) ConsumedData(requiredOnly bool) []IOData {
	var out []IOData
	for _, io := range p.IOData {
		if io.Relation != RelationConsumed {
			continue
		}
		if requiredOnly && !io.Required {
			continue
		}
		out = append(out, io)
	}
	return out
}

// Seed is a URL where plugin discovery starts.
type Seed struct {
	ID  int64
	URL string
}

// Service is an external service record, looked up by its well known
// service id (e.g. "qhana-backend").
type Service struct {
	ID          int64
	ServiceID   string
	URL         string
	Name        string
	Description string
}

// EnvEntry is one name/value pair exposed to crawled plugins.
type EnvEntry struct {
	Name  string
	Value string
}

// Template is a UI grouping of plugins presented as a set of tabs.
type Template struct {
	ID          int64
	Name        string
	Description string
	Tags        []string
	Tabs        []TemplateTab
}

// TemplateTab is one tab of a template. Its filter string selects the
// plugins shown in the tab; the materialized membership is kept in the
// tab_plugins table.
type TemplateTab struct {
	ID          int64
	TemplateID  int64
	Name        string
	Description string
	SortKey     int
	// Location places the tab in the UI. Locations starting with
	// "workspace" are reserved for leaf tabs.
	Location string
	Icon     string
	// GroupKey marks the tab as a group header. Group tabs carry no
	// filter.
	GroupKey string
	// FilterString is the serialized filter expression. It is the source
	// of truth and re-parsed on every use.
	FilterString string
}

// IsGroup reports whether the tab is a group header rather than a plugin
// list.
func (t *TemplateTab) IsGroup() bool {
	return t.GroupKey != ""
}
