package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/health"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	defer deps.closeFn()

	assert.NotNil(t, deps.store)
	assert.NotNil(t, deps.idempotencyRepo)
	assert.Equal(t, health.StatusHealthy, deps.storageChecker.Check(context.Background()).Status)
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverPostgres}, log.WithField("test", "postgres-missing-dsn"))
	assert.ErrorContains(t, err, "dsn is required")
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: "sqlite"}, log.WithField("test", "unsupported-driver"))
	assert.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitSearchIndex(t *testing.T) {
	t.Parallel()
	logger := log.WithField("test", "search")

	deps, err := initSearchIndex(context.Background(), Config{SearchDriver: SearchDriverMemory}, logger)
	require.NoError(t, err)
	defer deps.closeFn()
	assert.NotNil(t, deps.index)
	assert.Equal(t, health.StatusHealthy, deps.checker.Check(context.Background()).Status)

	_, err = initSearchIndex(context.Background(), Config{SearchDriver: SearchDriverMongo}, logger)
	assert.ErrorContains(t, err, "mongo uri is required")

	_, err = initSearchIndex(context.Background(), Config{SearchDriver: "elastic"}, logger)
	assert.ErrorContains(t, err, "unsupported search driver")
}
