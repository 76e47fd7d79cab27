package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := store.Outbox()
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := repo.Enqueue(ctx, domain.NewProjectionMessage(domain.AggregateOrder, "o-1", false, now))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: domain.AggregateProduct,
		AggregateID:   "p-1",
		EventType:     domain.EventProjectionDelete,
		Payload:       []byte(`{"aggregate_type":"product","aggregate_id":"p-1","delete":true}`),
	})
	require.NoError(t, err)
	require.Equal(t, "outbox-fixed-id", second.ID)

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID, "messages come back in write order")

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	require.NoError(t, repo.MarkFailed(ctx, second.ID))

	after, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, after)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.IsZero())

	require.ErrorIs(t, repo.MarkSent(ctx, "missing-id"), domain.ErrOutboxPublish)
}
