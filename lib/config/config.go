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

// Package config loads and validates the registry configuration.
//
// Values are merged from, in ascending precedence: compiled-in defaults,
// config.toml / config.json in the instance folder, the file named by the
// REGISTRY_CONFIG_FILE environment variable, and individual environment
// variables. The resulting Config is immutable after Load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/utils"
)

// ServiceRecord describes one preconfigured service loaded into the
// catalog at startup.
type ServiceRecord struct {
	ServiceID   string `json:"serviceId" mapstructure:"serviceId"`
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description" mapstructure:"description"`
	URL         string `json:"url" mapstructure:"url"`
}

// PurgePolicy controls when stale plugins are deleted.
type PurgePolicy struct {
	// Never disables purging entirely.
	Never bool
	// Auto derives the threshold from the discovery interval.
	Auto bool
	// After is the explicit threshold. Only meaningful when neither
	// Never nor Auto is set.
	After time.Duration
}

// Threshold resolves the policy against the configured discovery interval.
// The boolean is false when purging must be skipped.
func (p PurgePolicy) Threshold(discoveryInterval time.Duration) (time.Duration, bool) {
	switch {
	case p.Never:
		return 0, false
	case p.Auto:
		if discoveryInterval < defaults.MinTaskInterval {
			return 0, false
		}
		return defaults.PurgeAutoFactor * discoveryInterval, true
	case p.After > 0:
		return p.After, true
	default:
		return 0, false
	}
}

func (p PurgePolicy) String() string {
	switch {
	case p.Never:
		return "never"
	case p.Auto:
		return "auto"
	default:
		return p.After.String()
	}
}

// Config holds every setting of the registry process.
type Config struct {
	// DatabaseURI selects the catalog backend, e.g.
	// "sqlite://registry.db" or "postgres://user@host/db".
	DatabaseURI string
	// ListenAddr is the HTTP bind address of the API.
	ListenAddr string
	// DiagAddr is the bind address for /metrics and /healthz. Empty
	// disables the diagnostics listener.
	DiagAddr string
	// URLPrefix is the base path of the API, default "/api".
	URLPrefix string

	// DiscoveryInterval is the period of the seed crawl. Zero disables
	// the periodic crawl.
	DiscoveryInterval time.Duration
	// DiscoveryBatchSize caps the crawl fan-out per run.
	DiscoveryBatchSize int
	// PurgeInterval is the period of the purge task. Zero disables it.
	PurgeInterval time.Duration
	// PurgeAfter is the purge threshold policy.
	PurgeAfter PurgePolicy

	// RecommenderWeights multiplies each voter's votes by name.
	RecommenderWeights map[string]float64
	// RecommendationTimeout is the default ensemble deadline.
	RecommendationTimeout time.Duration
	// RecommendationLimit is the default result count.
	RecommendationLimit int

	// CurrentEnv is preloaded into the env table at startup.
	CurrentEnv map[string]string
	// InitialPluginSeeds is loaded into an empty seed table at startup.
	InitialPluginSeeds []string
	// PreconfiguredServices are upserted into the services table at
	// startup.
	PreconfiguredServices []ServiceRecord
	// UITemplatePaths lists template JSON files or folders loaded at
	// startup.
	UITemplatePaths []string

	// URLMapFromLocalhost rewrites URLs received from plugins before
	// they are persisted.
	URLMapFromLocalhost utils.URLMap
	// URLMapToLocalhost rewrites URLs before outgoing requests.
	URLMapToLocalhost utils.URLMap

	// BrokerURL, ResultBackend and TaskQueue name an external task
	// transport. The registry runs its tasks in-process; the values are
	// accepted for deployment compatibility and logged when set.
	BrokerURL     string
	ResultBackend string
	TaskQueue     string
}

// Defaults returns the compiled-in configuration.
func Defaults() *Config {
	return &Config{
		DatabaseURI:           defaults.DatabaseURI,
		ListenAddr:            defaults.HTTPListenAddr,
		URLPrefix:             defaults.URLPrefix,
		DiscoveryInterval:     defaults.DiscoveryInterval,
		DiscoveryBatchSize:    defaults.DiscoveryBatchSize,
		PurgeInterval:         defaults.PurgeInterval,
		PurgeAfter:            PurgePolicy{Never: true},
		RecommenderWeights:    defaults.VoterWeights(),
		RecommendationTimeout: defaults.RecommendationTimeout,
		RecommendationLimit:   defaults.RecommendationLimit,
		CurrentEnv:            map[string]string{},
	}
}

// Load builds the effective configuration. instanceDir is searched for
// config.toml / config.json; pass "" to skip the instance folder.
func Load(instanceDir string) (*Config, error) {
	cfg := Defaults()

	if instanceDir != "" {
		for _, name := range []string{"config.toml", "config.json"} {
			path := filepath.Join(instanceDir, name)
			if _, err := os.Stat(path); err == nil {
				if err := applyFile(cfg, path); err != nil {
					return nil, trace.Wrap(err)
				}
			}
		}
	}

	if path := os.Getenv("REGISTRY_CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, trace.Wrap(err)
		}
	}

	if err := applyEnviron(cfg, os.Environ()); err != nil {
		return nil, trace.Wrap(err)
	}

	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return cfg, nil
}

// CheckAndSetDefaults validates the configuration and fills gaps.
func (c *Config) CheckAndSetDefaults() error {
	if c.DatabaseURI == "" {
		c.DatabaseURI = defaults.DatabaseURI
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaults.HTTPListenAddr
	}
	if c.URLPrefix == "" {
		c.URLPrefix = defaults.URLPrefix
	}
	if !strings.HasPrefix(c.URLPrefix, "/") {
		return trace.BadParameter("URL_PREFIX must start with a slash (got %q)", c.URLPrefix)
	}
	if c.DiscoveryBatchSize < 1 {
		return trace.BadParameter("PLUGIN_BATCH_SIZE may not be smaller than 1 (got %d)", c.DiscoveryBatchSize)
	}
	for _, interval := range []struct {
		name  string
		value time.Duration
	}{
		{"PLUGIN_DISCOVERY_INTERVAL", c.DiscoveryInterval},
		{"PLUGIN_PURGE_INTERVAL", c.PurgeInterval},
	} {
		if interval.value == 0 {
			continue // disabled
		}
		if interval.value < defaults.MinTaskInterval {
			return trace.BadParameter("the shortest allowed %s is %v (got %v)",
				interval.name, defaults.MinTaskInterval, interval.value)
		}
	}
	if c.RecommendationTimeout < 0 {
		return trace.BadParameter("RECOMMENDATION_TIMEOUT may not be negative")
	}
	if c.RecommendationTimeout > defaults.RecommendationMaxTimeout {
		c.RecommendationTimeout = defaults.RecommendationMaxTimeout
	}
	if c.RecommendationLimit < 1 {
		c.RecommendationLimit = defaults.RecommendationLimit
	}
	if c.RecommenderWeights == nil {
		c.RecommenderWeights = defaults.VoterWeights()
	}
	if c.CurrentEnv == nil {
		c.CurrentEnv = map[string]string{}
	}
	return nil
}

// applyFile merges a TOML or JSON config file into cfg. Keys mirror the
// environment variable names.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	values := map[string]interface{}{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &values); err != nil {
			return trace.BadParameter("failed to parse %v: %v", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &values); err != nil {
			return trace.BadParameter("failed to parse %v: %v", path, err)
		}
	default:
		return trace.BadParameter("unsupported config file type %q (want .toml or .json)", path)
	}
	return trace.Wrap(applyValues(cfg, values))
}

// applyValues merges loosely typed key/value pairs into cfg.
func applyValues(cfg *Config, values map[string]interface{}) error {
	for key, value := range values {
		var err error
		switch key {
		case "SQLALCHEMY_DATABASE_URI":
			err = decodeString(key, value, &cfg.DatabaseURI)
		case "LISTEN_ADDR":
			err = decodeString(key, value, &cfg.ListenAddr)
		case "DIAG_ADDR":
			err = decodeString(key, value, &cfg.DiagAddr)
		case "URL_PREFIX":
			err = decodeString(key, value, &cfg.URLPrefix)
		case "BROKER_URL":
			err = decodeString(key, value, &cfg.BrokerURL)
		case "RESULT_BACKEND":
			err = decodeString(key, value, &cfg.ResultBackend)
		case "CELERY_QUEUE":
			err = decodeString(key, value, &cfg.TaskQueue)
		case "PLUGIN_DISCOVERY_INTERVAL":
			cfg.DiscoveryInterval, err = decodeIntervalSeconds(key, value)
		case "PLUGIN_PURGE_INTERVAL":
			cfg.PurgeInterval, err = decodeIntervalSeconds(key, value)
		case "PLUGIN_BATCH_SIZE":
			err = mapstructure.WeakDecode(value, &cfg.DiscoveryBatchSize)
		case "PLUGIN_PURGE_AFTER":
			cfg.PurgeAfter, err = parsePurgeAfter(fmt.Sprintf("%v", value))
		case "PLUGIN_RECOMMENDER_WEIGHTS":
			err = mapstructure.WeakDecode(value, &cfg.RecommenderWeights)
		case "RECOMMENDATION_TIMEOUT":
			var seconds float64
			if err = mapstructure.WeakDecode(value, &seconds); err == nil {
				cfg.RecommendationTimeout = time.Duration(seconds * float64(time.Second))
			}
		case "RECOMMENDATION_LIMIT":
			err = mapstructure.WeakDecode(value, &cfg.RecommendationLimit)
		case "CURRENT_ENV":
			err = mapstructure.WeakDecode(value, &cfg.CurrentEnv)
		case "INITIAL_PLUGIN_SEEDS":
			err = mapstructure.WeakDecode(value, &cfg.InitialPluginSeeds)
		case "PRECONFIGURED_SERVICES":
			err = mapstructure.Decode(value, &cfg.PreconfiguredServices)
		case "UI_TEMPLATE_PATHS":
			err = mapstructure.WeakDecode(value, &cfg.UITemplatePaths)
		case "URL_MAP_FROM_LOCALHOST":
			cfg.URLMapFromLocalhost, err = decodeURLMap(key, value)
		case "URL_MAP_TO_LOCALHOST":
			cfg.URLMapToLocalhost, err = decodeURLMap(key, value)
		default:
			// Unknown keys are ignored so one config file can serve
			// several tools.
		}
		if err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

func decodeString(key string, value interface{}, out *string) error {
	s, ok := value.(string)
	if !ok {
		return trace.BadParameter("%s must be a string (got %T)", key, value)
	}
	*out = s
	return nil
}

// decodeIntervalSeconds parses integer seconds where -1 means disabled.
func decodeIntervalSeconds(key string, value interface{}) (time.Duration, error) {
	var seconds int64
	if err := mapstructure.WeakDecode(value, &seconds); err != nil {
		return 0, trace.BadParameter("%s must be an integer number of seconds: %v", key, err)
	}
	if seconds == -1 {
		return 0, nil
	}
	if seconds < 1 {
		return 0, trace.BadParameter("%s may not be smaller than 1 (got %d); use -1 to disable", key, seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// decodeURLMap accepts either a key/value object or an ordered list of
// [pattern, replacement] pairs.
func decodeURLMap(key string, value interface{}) (utils.URLMap, error) {
	var pairs [][2]string
	switch v := value.(type) {
	case map[string]interface{}:
		for pattern, replacement := range v {
			repl, ok := replacement.(string)
			if !ok {
				return nil, trace.BadParameter("%s values must be strings", key)
			}
			pairs = append(pairs, [2]string{pattern, repl})
		}
	case []interface{}:
		for _, item := range v {
			var pair []string
			if err := mapstructure.WeakDecode(item, &pair); err != nil || len(pair) != 2 {
				return nil, trace.BadParameter("%s entries must be [pattern, replacement] pairs", key)
			}
			pairs = append(pairs, [2]string{pair[0], pair[1]})
		}
	default:
		return nil, trace.BadParameter("%s must be an object or a list of pairs (got %T)", key, value)
	}
	m, err := utils.CompileURLMap(pairs)
	return m, trace.Wrap(err)
}

// parsePurgeAfter understands "never", "auto", -1 and positive seconds.
func parsePurgeAfter(raw string) (PurgePolicy, error) {
	switch strings.TrimSpace(raw) {
	case "never", "-1":
		return PurgePolicy{Never: true}, nil
	case "auto":
		return PurgePolicy{Auto: true}, nil
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return PurgePolicy{}, trace.BadParameter(
			`PLUGIN_PURGE_AFTER must be "auto", "never", -1 or seconds (got %q)`, raw)
	}
	if seconds < 1 {
		return PurgePolicy{}, trace.BadParameter(
			`PLUGIN_PURGE_AFTER may not be smaller than 1 (got %d); use -1 or "never" to never purge`, seconds)
	}
	return PurgePolicy{After: time.Duration(seconds) * time.Second}, nil
}
