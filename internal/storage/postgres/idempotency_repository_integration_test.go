package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestIdempotencyRepository_PostgresCreateGetAndMarkDone(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()

	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)
	created, err := repo.CreateProcessing(ctx, "idem-done", "req-hash-1", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	require.NoError(t, repo.MarkDone(ctx, "idem-done", []byte(`{"id":"o-1"}`), 201))

	got, err := repo.Get(ctx, "idem-done")
	require.NoError(t, err)
	require.Equal(t, "req-hash-1", got.RequestHash)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.HTTPStatus)
	require.JSONEq(t, `{"id":"o-1"}`, string(got.ResponseBody))
	require.True(t, got.TTLAt.Equal(ttl), "ttl mismatch: expected %s, got %s", ttl, got.TTLAt)
	require.True(t, got.Replayable())
}

func TestIdempotencyRepository_PostgresConflictAndHashMismatch(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "idem-conflict", "hash-a", ttl)
	require.NoError(t, err)

	_, err = repo.CreateProcessing(ctx, "idem-conflict", "hash-a", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)

	existing, err := repo.CreateProcessing(ctx, "idem-conflict", "hash-b", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	require.Equal(t, "hash-a", existing.RequestHash)

	require.ErrorIs(t, repo.MarkFailed(ctx, "idem-missing", nil, 500), domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_PostgresExpiredKeyReuseAndCleanup(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.CreateProcessing(ctx, "idem-reuse", "hash-old", now.Add(-time.Minute))
	require.NoError(t, err)
	reused, err := repo.CreateProcessing(ctx, "idem-reuse", "hash-new", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "hash-new", reused.RequestHash)

	for _, key := range []string{"idem-exp-1", "idem-exp-2", "idem-exp-3"} {
		_, err := repo.CreateProcessing(ctx, key, "hash", now.Add(-time.Minute))
		require.NoError(t, err)
	}

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "idem-reuse")
	require.NoError(t, err, "live key survives cleanup")
}
