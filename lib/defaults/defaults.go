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

// Package defaults contains default constants used in various parts
// of the plugin registry.
package defaults

import "time"

const (
	// HTTPListenAddr is the default address the API server binds to.
	HTTPListenAddr = "0.0.0.0:5000"

	// URLPrefix is the default base path of the API.
	URLPrefix = "/api"

	// DatabaseURI is the default catalog database. A plain sqlite file
	// next to the working directory keeps single-node setups zero-config.
	DatabaseURI = "sqlite://qhana-plugin-registry.db"

	// DiscoveryInterval is how often the seed crawl runs.
	DiscoveryInterval = 15 * time.Minute

	// DiscoveryBatchSize is the number of seeds crawled in parallel
	// within a single discovery run.
	DiscoveryBatchSize = 50

	// DiscoveryRequestTimeout bounds a single plugin self-description
	// fetch.
	DiscoveryRequestTimeout = 5 * time.Second

	// DiscoveryListingTimeout bounds a registry plugin-list fetch, which
	// can be substantially larger than a single self-description.
	DiscoveryListingTimeout = 10 * time.Second

	// DiscoveryMaxNesting is the maximum registry-in-registry depth the
	// crawler follows before assuming a cycle.
	DiscoveryMaxNesting = 3

	// MinTaskInterval is the shortest interval accepted for the periodic
	// discovery and purge tasks.
	MinTaskInterval = 5 * time.Second

	// PurgeInterval is how often stale plugins are purged.
	PurgeInterval = 15 * time.Minute

	// PurgeAfter is the default purge policy. Plugins are never purged
	// unless configured otherwise.
	PurgeAfter = "never"

	// PurgeAutoFactor computes the purge threshold from the discovery
	// interval when PLUGIN_PURGE_AFTER is set to "auto".
	PurgeAutoFactor = 10

	// RecommendationTimeout is the default deadline for the voter
	// ensemble.
	RecommendationTimeout = 5 * time.Second

	// RecommendationMaxTimeout caps client supplied recommendation
	// deadlines.
	RecommendationMaxTimeout = 20 * time.Second

	// RecommendationLimit is the default number of recommended plugins
	// returned.
	RecommendationLimit = 5

	// FilterBatchSize is the number of plugins a tab filter evaluates
	// per catalog batch.
	FilterBatchSize = 500

	// PageItemCount is the default page size of paginated collections.
	PageItemCount = 25

	// MaxPageItemCount is the largest allowed page size.
	MaxPageItemCount = 100

	// SurroundingPages is how many page links are generated around the
	// current page of a paginated collection.
	SurroundingPages = 5

	// NameSimilarityThreshold is the minimum similarity ratio for the
	// "name" filter leaf to consider two plugin names equal.
	NameSimilarityThreshold = 0.8

	// EnrichmentCacheTTL is how long fetched experiment context from the
	// backend service is reused between recommendation requests.
	EnrichmentCacheTTL = 30 * time.Second

	// BackendServiceID is the well-known service id of the experiment
	// backend used for recommendation context enrichment.
	BackendServiceID = "qhana-backend"

	// DefaultPluginVersion is assumed when a self-description carries no
	// version.
	DefaultPluginVersion = "v0"

	// DefaultPluginType is assumed when a self-description carries no
	// plugin type.
	DefaultPluginType = "processing"

	// UnnamedPlugin is the display name used when a self-description has
	// neither a title nor a usable identifier.
	UnnamedPlugin = "UNNAMED"
)

// Recommender voter names. The weights config refers to voters by these
// names.
const (
	VoterAvailableData = "AvailableDataRecommender"
	VoterCurrentData   = "CurrentDataRecommender"
	VoterStepData      = "StepDataRecommender"
	VoterRuleBased     = "RuleBasedRecommender"
)

// VoterWeights returns the default voter weight multipliers.
func VoterWeights() map[string]float64 {
	return map[string]float64{
		VoterAvailableData: 1,
		VoterCurrentData:   5,
		VoterStepData:      3,
	}
}
