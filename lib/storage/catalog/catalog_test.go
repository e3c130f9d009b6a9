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
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCatalog opens a throwaway sqlite catalog with a fake clock.
func newTestCatalog(t *testing.T) (*Catalog, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	c, err := Open(context.Background(), Config{
		DatabaseURI: "sqlite://" + filepath.Join(t.TempDir(), "registry.db"),
		Clock:       clock,
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, clock
}

// ingest stores a minimal plugin and returns it.
func ingest(t *testing.T, c *Catalog, identifier, version string, mutate ...func(*IngestSpec)) *Plugin {
	t.Helper()
	spec := IngestSpec{
		Identifier: identifier,
		Version:    version,
		Name:       identifier,
		Type:       "processing",
		URL:        "http://plugins.example/" + identifier + "/" + version,
	}
	for _, fn := range mutate {
		fn(&spec)
	}
	plugin, _, err := c.CreateOrUpdatePlugin(context.Background(), spec)
	require.NoError(t, err)
	return plugin
}

func TestSplitDatabaseURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		uri     string
		driver  string
		wantErr bool
	}{
		{uri: "sqlite://registry.db", driver: "sqlite3"},
		{uri: "sqlite://:memory:", driver: "sqlite3"},
		{uri: "postgres://user@host/registry", driver: "pgx"},
		{uri: "postgresql://user@host/registry", driver: "pgx"},
		{uri: "", wantErr: true},
		{uri: "mysql://nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			t.Parallel()
			driver, _, _, err := splitDatabaseURI(tt.uri)
			if tt.wantErr {
				require.True(t, trace.IsBadParameter(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
		})
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	sqlite := &Catalog{postgres: false}
	assert.Equal(t, `SELECT * FROM t WHERE a = ? AND b = ?`,
		sqlite.rebind(`SELECT * FROM t WHERE a = ? AND b = ?`))

	postgres := &Catalog{postgres: true}
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2`,
		postgres.rebind(`SELECT * FROM t WHERE a = ? AND b = ?`))
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	// Open already ran InitSchema once.
	require.NoError(t, c.InitSchema(context.Background()))
}

func TestSeeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	seed, err := c.CreateSeed(ctx, "http://plugin-runner:8080")
	require.NoError(t, err)
	assert.NotZero(t, seed.ID)

	_, err = c.CreateSeed(ctx, "http://plugin-runner:8080")
	require.True(t, trace.IsAlreadyExists(err), "want AlreadyExists, got %v", err)

	_, err = c.CreateSeed(ctx, "")
	require.True(t, trace.IsBadParameter(err))

	ok, err := c.HasSeedWithURL(ctx, "http://plugin-runner:8080")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := c.GetSeed(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, seed.URL, got.URL)

	_, err = c.GetSeed(ctx, seed.ID+100)
	require.True(t, trace.IsNotFound(err))

	seeds, err := c.ListSeeds(ctx)
	require.NoError(t, err)
	require.Len(t, seeds, 1)

	require.NoError(t, c.DeleteSeed(ctx, seed.ID))
	// Deleting again is fine.
	require.NoError(t, c.DeleteSeed(ctx, seed.ID))

	count, err := c.CountSeeds(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSeedDeletionKeepsPlugins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	seed, err := c.CreateSeed(ctx, "http://runner:8080")
	require.NoError(t, err)
	plugin := ingest(t, c, "hello-world", "v1", func(s *IngestSpec) {
		s.SeedID = seed.ID
	})
	require.Equal(t, seed.ID, plugin.SeedID)

	require.NoError(t, c.DeleteSeed(ctx, seed.ID))

	got, err := c.GetPlugin(ctx, plugin.ID)
	require.NoError(t, err)
	assert.Zero(t, got.SeedID)
}

func TestServices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	_, err := c.CreateService(ctx, Service{ServiceID: "", URL: "http://x"})
	require.True(t, trace.IsBadParameter(err))

	created, err := c.CreateService(ctx, Service{
		ServiceID: "qhana-backend",
		URL:       "http://backend:9090",
		Name:      "QHAna backend",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = c.CreateService(ctx, Service{ServiceID: "qhana-backend", URL: "http://other"})
	require.True(t, trace.IsAlreadyExists(err))

	updated, err := c.UpsertService(ctx, Service{
		ServiceID: "qhana-backend",
		URL:       "http://backend:9191",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	got, err := c.GetService(ctx, "qhana-backend")
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9191", got.URL)

	services, err := c.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 1)

	require.NoError(t, c.DeleteService(ctx, "qhana-backend"))
	require.NoError(t, c.DeleteService(ctx, "qhana-backend"))
	_, err = c.GetService(ctx, "qhana-backend")
	require.True(t, trace.IsNotFound(err))
}

func TestEnv(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	_, err := c.UpsertEnv(ctx, "", "x")
	require.True(t, trace.IsBadParameter(err))

	_, err = c.UpsertEnv(ctx, "BACKEND_URL", "http://backend:9090")
	require.NoError(t, err)
	_, err = c.UpsertEnv(ctx, "BACKEND_URL", "http://backend:9191")
	require.NoError(t, err)

	got, err := c.GetEnv(ctx, "BACKEND_URL")
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9191", got.Value)

	entries, err := c.ListEnv(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, c.DeleteEnv(ctx, "BACKEND_URL"))
	require.NoError(t, c.DeleteEnv(ctx, "BACKEND_URL"))
	_, err = c.GetEnv(ctx, "BACKEND_URL")
	require.True(t, trace.IsNotFound(err))
}
