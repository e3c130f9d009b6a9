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
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gravitational/trace"
)

// Plugin versions follow the Python packaging conventions, so specifier
// strings arrive in PEP-440 syntax ("==1.2.3", "~=1.4", ">=1,<2", parts
// separated by commas or whitespace). They are normalized into semver
// constraint syntax before parsing.
var specifierReplacer = strings.NewReplacer(
	"===", "=",
	"==", "=",
	"~=", "~",
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ParseSpecifier parses a version specifier set. The empty specifier
// matches every version.
func ParseSpecifier(spec string) (*semver.Constraints, error) {
	normalized := strings.TrimSpace(spec)
	if normalized == "" {
		return nil, nil
	}
	// ">=1.0 <2.0" and ">=1.0,<2.0" are both accepted; semver
	// wants commas.
	normalized = whitespaceRun.ReplaceAllString(normalized, ",")
	normalized = specifierReplacer.Replace(normalized)
	constraints, err := semver.NewConstraint(normalized)
	if err != nil {
		return nil, trace.BadParameter("invalid version specifier %q: %v", spec, err)
	}
	return constraints, nil
}

// VersionMatches reports whether the version satisfies the constraint. A
// nil constraint matches everything; unparsable versions match nothing.
func VersionMatches(spec *semver.Constraints, version string) bool {
	if spec == nil {
		return true
	}
	v, err := semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(version), "v"))
	if err != nil {
		return false
	}
	return spec.Check(v)
}
