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

package config

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/mitchellh/mapstructure"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/utils"
)

// currentEnvPrefix marks process environment variables that are folded
// into the CURRENT_ENV map (with the prefix removed).
const currentEnvPrefix = "QHANA_ENV_"

// keyValueLine matches one "key value" line of the plain-text weights
// syntax. The key may not contain separators; the value runs to the end of
// the line.
var keyValueLine = regexp.MustCompile(`^(?P<key>[^\s:=,;]+)\s*[:=,;\s]\s*(?P<value>[^\n]+)$`)

// applyEnviron merges process environment variables into cfg. environ uses
// the os.Environ "KEY=value" form so tests can inject their own.
func applyEnviron(cfg *Config, environ []string) error {
	env := map[string]string{}
	for _, kv := range environ {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		if strings.HasPrefix(key, currentEnvPrefix) {
			cfg.CurrentEnv[strings.TrimPrefix(key, currentEnvPrefix)] = value
			continue
		}
		env[key] = value
	}

	for key, value := range env {
		var err error
		switch key {
		case "SQLALCHEMY_DATABASE_URI":
			cfg.DatabaseURI = value
		case "LISTEN_ADDR":
			cfg.ListenAddr = value
		case "DIAG_ADDR":
			cfg.DiagAddr = value
		case "URL_PREFIX":
			cfg.URLPrefix = value
		case "BROKER_URL":
			cfg.BrokerURL = value
		case "RESULT_BACKEND":
			cfg.ResultBackend = value
		case "CELERY_QUEUE":
			cfg.TaskQueue = value
		case "PLUGIN_DISCOVERY_INTERVAL":
			cfg.DiscoveryInterval, err = decodeIntervalSeconds(key, value)
		case "PLUGIN_PURGE_INTERVAL":
			cfg.PurgeInterval, err = decodeIntervalSeconds(key, value)
		case "PLUGIN_BATCH_SIZE":
			err = mapstructure.WeakDecode(value, &cfg.DiscoveryBatchSize)
		case "PLUGIN_PURGE_AFTER":
			cfg.PurgeAfter, err = parsePurgeAfter(value)
		case "PLUGIN_RECOMMENDER_WEIGHTS":
			cfg.RecommenderWeights, err = parseWeights(value)
		case "RECOMMENDATION_TIMEOUT":
			var seconds float64
			if err = mapstructure.WeakDecode(value, &seconds); err == nil {
				cfg.RecommendationTimeout = secondsToDuration(seconds)
			}
		case "RECOMMENDATION_LIMIT":
			err = mapstructure.WeakDecode(value, &cfg.RecommendationLimit)
		case "INITIAL_PLUGIN_SEEDS":
			cfg.InitialPluginSeeds = parseStringList(value)
		case "PRECONFIGURED_SERVICES":
			err = parseJSONInto(key, value, &cfg.PreconfiguredServices)
		case "UI_TEMPLATE_PATHS":
			cfg.UITemplatePaths = parseStringList(value)
		case "URL_MAP_FROM_LOCALHOST":
			cfg.URLMapFromLocalhost, err = parseURLMapJSON(key, value)
		case "URL_MAP_TO_LOCALHOST":
			cfg.URLMapToLocalhost, err = parseURLMapJSON(key, value)
		}
		if err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

// parseStringList accepts a JSON array or a newline separated list.
func parseStringList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return list
		}
	}
	var list []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			list = append(list, line)
		}
	}
	return list
}

// parseWeights accepts a JSON object or "name value" lines.
func parseWeights(raw string) (map[string]float64, error) {
	raw = strings.TrimSpace(raw)
	weights := map[string]float64{}
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &weights); err != nil {
			return nil, trace.BadParameter("PLUGIN_RECOMMENDER_WEIGHTS is not valid JSON: %v", err)
		}
		return weights, nil
	}
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		match := keyValueLine.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			return nil, trace.BadParameter("PLUGIN_RECOMMENDER_WEIGHTS line %q is not a key/value pair", line)
		}
		var weight float64
		if err := mapstructure.WeakDecode(match[2], &weight); err != nil {
			return nil, trace.BadParameter("PLUGIN_RECOMMENDER_WEIGHTS value %q is not a number", match[2])
		}
		weights[match[1]] = weight
	}
	return weights, nil
}

// secondsToDuration converts fractional seconds to a Duration.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func parseJSONInto(key, raw string, out interface{}) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return trace.BadParameter("%s is not valid JSON: %v", key, err)
	}
	return nil
}

func parseURLMapJSON(key, raw string) (utils.URLMap, error) {
	var values interface{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, trace.BadParameter("%s is not valid JSON: %v", key, err)
	}
	return decodeURLMap(key, values)
}
