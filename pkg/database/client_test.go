package database

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/calliq/qaengine/pkg/models"
)

// newTestClient starts a throwaway PostgreSQL container, runs every
// embedded migration against it through the production NewClient path,
// and tears the container down on test cleanup.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
			Host: host, Port: portNum, User: "test", Password: "test", Database: "test", SSLMode: "disable",
			MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	err := client.DB().PingContext(ctx)
	require.NoError(t, err)

	health, err := Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxOpenConns, 0)
}

func TestBlueprints_NameSearchUsesGINIndex(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, client.CreateBlueprint(ctx, &models.Blueprint{
				ID: "bp-1", CompanyID: "acme", Name: "Collections Call Greeting", Description: "opening and verification",
				Status: models.BlueprintStatusDraft, VersionNumber: 1, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, client.CreateBlueprint(ctx, &models.Blueprint{
				ID: "bp-2", CompanyID: "acme", Name: "Warranty Upsell", Description: "closing pitch",
				Status: models.BlueprintStatusDraft, VersionNumber: 1, CreatedAt: now, UpdatedAt: now,
	}))

	rows, err := client.DB().QueryContext(ctx,
		`SELECT id FROM blueprints WHERE to_tsvector('english', name || ' ' || description) @@ to_tsquery('english', $1)`,
	"greeting")
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"bp-1"}, ids)
}

func TestBlueprintRepository_CreateGetUpdate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	now := time.Now().UTC()
	bp := &models.Blueprint{
		ID: "bp-3", CompanyID: "acme", Name: "Standard Call", Status: models.BlueprintStatusDraft,
		VersionNumber: 1,
		Stages: []*models.Stage{
			{ID: "stage-1", BlueprintID: "bp-3", StageName: "Opening", OrderingIndex: 0},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, client.CreateBlueprint(ctx, bp))

	loaded, err := client.GetBlueprint(ctx, "bp-3")
	require.NoError(t, err)
	assert.Equal(t, "Standard Call", loaded.Name)
	require.Len(t, loaded.Stages, 1)
	assert.Equal(t, "Opening", loaded.Stages[0].StageName)

	loaded.Name = "Standard Call v2"
	require.NoError(t, client.UpdateBlueprint(ctx, loaded))

	reloaded, err := client.GetBlueprint(ctx, "bp-3")
	require.NoError(t, err)
	assert.Equal(t, "Standard Call v2", reloaded.Name)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "test", Database: "test",
				SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
			},
			wantErr: false,
		},
		{
			name: "missing password",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "", Database: "test",
				MaxOpenConns: 10, MaxIdleConns: 5,
			},
			wantErr: true,
		},
		{
			name: "idle conns exceed max conns",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "test", Database: "test",
				MaxOpenConns: 5, MaxIdleConns: 10,
			},
			wantErr: true,
		},
		{
			name: "zero max open conns",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "test", Database: "test",
				MaxOpenConns: 0, MaxIdleConns: 0,
			},
			wantErr: true,
		},
		{
			name: "negative idle conns",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "test", Database: "test",
				MaxOpenConns: 10, MaxIdleConns: -1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
				err := tt.cfg.Validate()
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
		})
	}
}
