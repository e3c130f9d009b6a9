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

package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

// pathID parses a decimal resource id from the route parameters.
func pathID(p httprouter.Params, name string) (int64, error) {
	raw := p.ByName(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, trace.BadParameter("The %s is in the wrong format!", name)
	}
	return id, nil
}

// queryInt64 parses an optional integer query argument.
func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, trace.BadParameter("The %s query argument must be an integer!", name)
	}
	return value, nil
}

// queryInt parses an optional integer query argument.
func queryInt(r *http.Request, name string) (int, error) {
	value, err := queryInt64(r, name)
	return int(value), trace.Wrap(err)
}

// querySeconds parses an optional number of seconds into a duration.
func querySeconds(r *http.Request, name string) (time.Duration, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, trace.BadParameter("The %s query argument must be a number of seconds!", name)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// pageRequest parses the cursor, item-count and sort arguments shared by
// all paginated collections.
func pageRequest(r *http.Request) (catalog.PageRequest, error) {
	cursor, err := queryInt64(r, "cursor")
	if err != nil {
		return catalog.PageRequest{}, trace.Wrap(err)
	}
	itemCount, err := queryInt(r, "item-count")
	if err != nil {
		return catalog.PageRequest{}, trace.Wrap(err)
	}
	if itemCount < 0 || itemCount > defaults.MaxPageItemCount {
		return catalog.PageRequest{}, trace.BadParameter(
			"The item-count query argument must be between 1 and %d!", defaults.MaxPageItemCount)
	}
	return catalog.PageRequest{
		Cursor:    cursor,
		ItemCount: itemCount,
		Sort:      r.URL.Query().Get("sort"),
	}, nil
}

// splitTags splits a comma separated tag list into required and forbidden
// tags, the latter marked by a leading "!".
func splitTags(raw string) (required, forbidden []string) {
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if negated := strings.TrimPrefix(tag, "!"); negated != tag {
			forbidden = append(forbidden, negated)
			continue
		}
		required = append(required, tag)
	}
	return required, forbidden
}
