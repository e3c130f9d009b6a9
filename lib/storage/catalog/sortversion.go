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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// versionPattern recognizes the common "[epoch!]N(.N)*[{a|b|rc}N][.postN]
// [.devN][+local]" version form. Versions outside this shape fall back to
// their raw string for sorting.
var versionPattern = regexp.MustCompile(`^v?` +
	`(?:(?P<epoch>\d+)!)?` +
	`(?P<release>\d+(?:\.\d+)*)` +
	`(?:[-._]?(?P<prekind>a|alpha|b|beta|rc|c|pre|preview)[-._]?(?P<pre>\d*))?` +
	`(?:[-._]?(?P<postkind>post|rev|r)[-._]?(?P<post>\d*))?` +
	`(?:[-._]?(?P<devkind>dev)[-._]?(?P<dev>\d*))?` +
	`(?:\+(?P<local>[a-zA-Z0-9._-]+))?$`)

const (
	versionSegmentWidth = 8
	versionSegmentCount = 5
)

// Phase markers chosen so plain byte comparison yields the version order
// dev < pre-release < final < post-release.
const (
	phaseDev   = "0"
	phaseAlpha = "1"
	phaseBeta  = "2"
	phaseRC    = "3"
	phaseFinal = "5"
	phasePost  = "7"
)

// SortVersion derives a lexicographically sortable key from a version
// string. The key zero-pads every numeric release segment, prefixes the
// epoch and appends canonical pre/post/dev markers, so an ORDER BY on the
// column yields version order without sorting in the application.
func SortVersion(version string) string {
	match := versionPattern.FindStringSubmatch(strings.TrimSpace(strings.ToLower(version)))
	if match == nil {
		return version
	}
	group := func(name string) string {
		return match[versionPattern.SubexpIndex(name)]
	}

	var b strings.Builder

	epoch := 0
	if e := group("epoch"); e != "" {
		epoch, _ = strconv.Atoi(e)
	}
	fmt.Fprintf(&b, "%04d!", epoch)

	// The release is padded to a fixed segment count so "1.0" and "1.0.1"
	// compare digit against digit, never digit against a phase marker.
	segments := strings.Split(group("release"), ".")
	if len(segments) > versionSegmentCount {
		return version
	}
	for i := 0; i < versionSegmentCount; i++ {
		if i > 0 {
			b.WriteByte('.')
		}
		n := 0
		if i < len(segments) {
			var err error
			n, err = strconv.Atoi(segments[i])
			if err != nil || len(segments[i]) > versionSegmentWidth {
				// Oversized segments cannot be padded into the fixed
				// width; keep the raw version comparable to itself.
				return version
			}
		}
		fmt.Fprintf(&b, "%0*d", versionSegmentWidth, n)
	}

	// Three fixed-width phase segments encode the pre/post/dev suffixes so
	// that plain string comparison yields
	// dev < alpha < beta < rc < final < post, with a dev marker demoting
	// whichever phase it is attached to.
	isPre := group("prekind") != ""
	isPost := group("postkind") != ""
	isDev := group("devkind") != ""
	segment := func(phase, number string) {
		n, _ := strconv.Atoi(number)
		fmt.Fprintf(&b, ".%s%0*d", phase, versionSegmentWidth, n)
	}

	switch {
	case isPre:
		phase := phaseRC
		switch group("prekind") {
		case "a", "alpha":
			phase = phaseAlpha
		case "b", "beta":
			phase = phaseBeta
		}
		segment(phase, group("pre"))
	case isDev && !isPost:
		segment(phaseDev, group("dev"))
	default:
		segment(phaseFinal, "0")
	}
	switch {
	case isPost:
		segment(phasePost, group("post"))
	case isPre && isDev:
		segment(phaseDev, group("dev"))
	default:
		segment(phaseFinal, "0")
	}
	if isPost && isDev {
		segment(phaseDev, group("dev"))
	} else {
		segment(phaseFinal, "0")
	}

	if local := group("local"); local != "" {
		b.WriteByte('+')
		b.WriteString(local)
	}
	return b.String()
}
