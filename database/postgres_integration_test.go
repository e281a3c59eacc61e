//go:build integration

package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"exceptionforms/config"
	"exceptionforms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresMigrateAndScopes(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "forms",
				"POSTGRES_PASSWORD": "forms",
				"POSTGRES_DB":       "exception_forms",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.Config{
		DBType:         "postgres",
		DatabaseURL:    fmt.Sprintf("postgresql://forms:forms@%s:%s/exception_forms?sslmode=disable", host, port.Port()),
		DBMaxOpenConns: 4,
		DBLogLevel:     "warn",
		AdminPassword:  "admin",
	}
	require.NoError(t, Init(cfg))
	t.Cleanup(func() { _ = Close() })

	require.NoError(t, DB.Create(&models.FormRecord{
		FormType:       models.FormTypeSupervisor,
		Status:         models.StatusProcessed,
		ExtractionMode: models.ModeCombined,
	}).Error)

	var n int64
	require.NoError(t, DB.Model(&models.FormRecord{}).Scopes(ModeScope(models.ModeMapped)).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
