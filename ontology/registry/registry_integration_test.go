//go:build integration

package registry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"oms.heartbeat.dev/db"
	"oms.heartbeat.dev/ontology/model"
)

// setupPostgresContainer starts a disposable PostgreSQL container and
// returns a DSN reachable from the test process.
func setupPostgresContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "oms",
			"POSTGRES_PASSWORD": "oms",
			"POSTGRES_DB":       "oms",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start postgres container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=oms password=oms dbname=oms sslmode=disable", host, port.Port())
	return dsn, func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
}

func newTestRegistry(t *testing.T) *Registry {
	dsn, cleanup := setupPostgresContainer(t)
	t.Cleanup(cleanup)

	gdb, err := db.OpenGorm(dsn, db.DefaultGormConfig())
	require.NoError(t, err)

	reg := New(gdb)
	require.NoError(t, reg.Migrate())
	return reg
}

func sampleDoc(version string) *model.SchemaDocument {
	return &model.SchemaDocument{
		Version:   version,
		Namespace: "hockey",
		Metadata:  map[string]interface{}{"author": "rink-team", "created": "2026-01-01", "status": "draft"},
		ObjectTypes: []model.ObjectTypeDocument{
			{
				Name:            "player",
				PrimaryKey:      "id",
				Properties:      []model.PropertyDocument{{Name: "id", Type: "string"}},
				ResolverBackend: "bigquery",
				ResolverConfig:  map[string]interface{}{"table": "players"},
			},
		},
	}
}

func TestRegistry_LoadAndPublish_Integration(t *testing.T) {
	reg := newTestRegistry(t)

	sv, err := reg.LoadFromDocument(sampleDoc("v1.0.0"), "tester")
	require.NoError(t, err)
	require.Equal(t, model.StatusDraft, sv.Status)

	published, err := reg.Publish("v1.0.0", "tester")
	require.NoError(t, err)
	require.True(t, published.IsActive)
	require.Equal(t, model.StatusPublished, published.Status)

	active, err := reg.GetActive()
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "v1.0.0", active.Version)
}

func TestRegistry_Publish_DeactivatesPreviousVersion(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.LoadFromDocument(sampleDoc("v1.0.0"), "tester")
	require.NoError(t, err)
	_, err = reg.Publish("v1.0.0", "tester")
	require.NoError(t, err)

	_, err = reg.LoadFromDocument(sampleDoc("v2.0.0"), "tester")
	require.NoError(t, err)
	_, err = reg.Publish("v2.0.0", "tester")
	require.NoError(t, err)

	active, err := reg.GetActive()
	require.NoError(t, err)
	require.Equal(t, "v2.0.0", active.Version)

	versions, err := reg.ListVersions()
	require.NoError(t, err)
	var foundOldInactive bool
	for _, v := range versions {
		if v.Version == "v1.0.0" {
			foundOldInactive = !v.IsActive
		}
	}
	require.True(t, foundOldInactive)
}

func TestRegistry_LoadFromDocument_RejectsDuplicateVersion(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.LoadFromDocument(sampleDoc("v1.0.0"), "tester")
	require.NoError(t, err)

	_, err = reg.LoadFromDocument(sampleDoc("v1.0.0"), "tester")
	require.Error(t, err)
}

func TestRegistry_LoadFromDocument_RejectsInvalidDocument(t *testing.T) {
	reg := newTestRegistry(t)

	doc := sampleDoc("v1.0.0")
	doc.ObjectTypes = nil

	_, err := reg.LoadFromDocument(doc, "tester")
	require.Error(t, err)
}
