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

package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/config"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

const helloWorldDescription = `{
	"name": "hello-world",
	"version": "1.0.0",
	"title": "Hello World",
	"description": "Demo plugin",
	"type": "processing",
	"tags": ["demo", "ml"],
	"entryPoint": {
		"href": "./process/",
		"uiHref": "./ui/",
		"dataInput": [{
			"parameter": "data",
			"dataType": "entity/list",
			"contentType": ["application/json"],
			"required": true
		}],
		"dataOutput": [{
			"parameter": "out",
			"dataType": "entity/stream",
			"contentType": ["application/json"]
		}],
		"pluginDependencies": [{
			"parameter": "helper",
			"name": "entity-loader",
			"version": ">=1.0",
			"tags": ["data", "!broken"],
			"required": true
		}]
	}
}`

func newTestServer(t *testing.T, mutate ...func(*ServerConfig)) (*Server, *catalog.Catalog) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := catalog.Open(context.Background(), catalog.Config{
		DatabaseURI: "sqlite://" + filepath.Join(t.TempDir(), "registry.db"),
		Log:         log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := ServerConfig{
		Catalog: store,
		Config:  config.Defaults(),
		Log:     log,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	server, err := NewServer(cfg)
	require.NoError(t, err)
	return server, store
}

func TestNewServerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewServer(ServerConfig{Config: config.Defaults()})
	require.True(t, trace.IsBadParameter(err))

	_, err = NewServer(ServerConfig{Catalog: &catalog.Catalog{}})
	require.True(t, trace.IsBadParameter(err))

	cfg := config.Defaults()
	cfg.DiscoveryInterval = time.Second
	_, err = NewServer(ServerConfig{Catalog: &catalog.Catalog{}, Config: cfg})
	require.True(t, trace.IsBadParameter(err), "interval below the minimum")
}

func TestCrawlSeedIngestsPlugin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, helloWorldDescription)
	}))
	t.Cleanup(ts.Close)

	server, store := newTestServer(t)
	seed, err := store.CreateSeed(ctx, ts.URL)
	require.NoError(t, err)

	server.CrawlSeed(ctx, CrawlRequest{URL: ts.URL, SeedID: seed.ID})

	plugin, err := store.GetPluginByIdentifier(ctx, "hello-world", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", plugin.Name)
	assert.Equal(t, ts.URL, plugin.URL)
	assert.Equal(t, ts.URL+"/process/", plugin.EntryURL)
	assert.Equal(t, ts.URL+"/ui/", plugin.UIURL)
	assert.Equal(t, seed.ID, plugin.SeedID)
	assert.Equal(t, []string{"demo", "ml"}, plugin.Tags)

	require.Len(t, plugin.IOData, 2)
	input := plugin.ConsumedData(true)
	require.Len(t, input, 1)
	assert.Equal(t, "entity/list", input[0].DataType.String())

	require.Len(t, plugin.Dependencies, 1)
	dep := plugin.Dependencies[0]
	assert.Equal(t, "entity-loader", dep.TargetIdentifier)
	assert.Equal(t, ">=1.0", dep.VersionSpec)
	assert.Equal(t, []string{"data"}, dep.RequiredTags)
	assert.Equal(t, []string{"broken"}, dep.ForbiddenTags)
}

func TestCrawlSeedDescendsIntoRunner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"title": "plugin runner"}`)
	})
	mux.HandleFunc("/plugins", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"plugins": [{"apiRoot": %q}, {"url": %q}]}`,
			ts.URL+"/plugins/hello-world/", ts.URL+"/plugins/broken/")
	})
	mux.HandleFunc("/plugins/hello-world/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, helloWorldDescription)
	})
	mux.HandleFunc("/plugins/broken/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	server, store := newTestServer(t)
	server.CrawlSeed(ctx, CrawlRequest{URL: ts.URL})

	// The broken child is skipped, the healthy one is ingested.
	plugin, err := store.GetPluginByIdentifier(ctx, "hello-world", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/plugins/hello-world/", plugin.URL)
}

func TestCrawlSeedNestingGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// A runner whose listing points back at itself would recurse forever
	// without the depth cap.
	var requests atomic.Int64
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"title": "cyclic runner"}`)
	})
	mux.HandleFunc("/plugins", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprintf(w, `{"plugins": [{"apiRoot": %q}]}`, ts.URL)
	})

	server, _ := newTestServer(t)
	server.CrawlSeed(ctx, CrawlRequest{URL: ts.URL})
	assert.Less(t, requests.Load(), int64(20), "depth cap must bound the recursion")
}

func TestCrawlSeedDeleteOnMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ts := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(ts.Close)

	server, store := newTestServer(t)
	url := ts.URL + "/plugins/gone/"
	_, _, err := store.CreateOrUpdatePlugin(ctx, catalog.IngestSpec{
		Identifier: "gone", Version: "1.0.0", URL: url,
	})
	require.NoError(t, err)

	// A plain crawl leaves the catalog alone.
	server.CrawlSeed(ctx, CrawlRequest{URL: url})
	_, err = store.GetPluginByIdentifier(ctx, "gone", "1.0.0")
	require.NoError(t, err)

	// A re-check removes the vanished plugin.
	server.CrawlSeed(ctx, CrawlRequest{URL: url, DeleteOnMissing: true})
	_, err = store.GetPluginByIdentifier(ctx, "gone", "1.0.0")
	require.True(t, trace.IsNotFound(err))
}

func TestCrawlSeedFillsDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name": "", "version": "", "title": "", "description": "",
			"type": "", "tags": [], "entryPoint": {}}`)
	}))
	t.Cleanup(ts.Close)

	server, store := newTestServer(t)
	server.CrawlSeed(ctx, CrawlRequest{URL: ts.URL})

	plugins, _, err := store.ListPlugins(ctx, catalog.PluginFilter{}, catalog.PageRequest{})
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, ts.URL, plugins[0].Identifier, "identifier falls back to the URL")
	assert.Equal(t, "v0", plugins[0].Version)
	assert.Equal(t, "processing", plugins[0].Type)
	assert.Equal(t, "UNNAMED", plugins[0].Name)
}

func TestOnPluginCreatedFiresOncePerPlugin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, helloWorldDescription)
	}))
	t.Cleanup(ts.Close)

	var created atomic.Int64
	server, _ := newTestServer(t, func(cfg *ServerConfig) {
		cfg.OnPluginCreated = func(ctx context.Context, pluginID int64) {
			created.Add(1)
		}
	})

	server.CrawlSeed(ctx, CrawlRequest{URL: ts.URL})
	server.CrawlSeed(ctx, CrawlRequest{URL: ts.URL})
	assert.EqualValues(t, 1, created.Load(), "updates do not re-fire the callback")
}

func TestCrawlAllSeeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, helloWorldDescription)
	}))
	t.Cleanup(ts.Close)

	server, store := newTestServer(t)
	_, err := store.CreateSeed(ctx, ts.URL)
	require.NoError(t, err)
	_, err = store.CreateSeed(ctx, "http://127.0.0.1:1/unreachable")
	require.NoError(t, err)

	// The unreachable seed must not abort the crawl of the healthy one.
	require.NoError(t, server.CrawlAllSeeds(ctx))
	_, err = store.GetPluginByIdentifier(ctx, "hello-world", "1.0.0")
	require.NoError(t, err)
}
