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

package utils

import (
	"regexp"

	"github.com/gravitational/trace"
)

// RewriteRule is a single compiled URL rewrite rule.
type RewriteRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// URLMap is an ordered list of rewrite rules. Deployments that place the
// registry and its plugins in containers use these to translate between
// localhost URLs and container network names.
type URLMap []RewriteRule

// CompileURLMap compiles pattern/replacement pairs into a URLMap. The
// input order is preserved because rules are applied in sequence.
func CompileURLMap(pairs [][2]string) (URLMap, error) {
	m := make(URLMap, 0, len(pairs))
	for _, pair := range pairs {
		re, err := regexp.Compile(pair[0])
		if err != nil {
			return nil, trace.BadParameter("invalid URL rewrite pattern %q: %v", pair[0], err)
		}
		m = append(m, RewriteRule{Pattern: re, Replacement: pair[1]})
	}
	return m, nil
}

// Apply runs every rule over the URL in order and returns the result.
func (m URLMap) Apply(url string) string {
	for _, rule := range m {
		url = rule.Pattern.ReplaceAllString(url, rule.Replacement)
	}
	return url
}
