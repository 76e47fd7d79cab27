package app

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/search"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestOutboxBacklogChecker(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	checker := outboxBacklogChecker(store.Outbox(), 2)

	assert.Equal(t, health.StatusHealthy, checker.Check(ctx).Status)

	_, err := domain.EnqueueProjection(ctx, store.Outbox(), time.Now(),
		domain.ProjectionRef{AggregateType: domain.AggregateProduct, AggregateID: "p-1"},
		domain.ProjectionRef{AggregateType: domain.AggregateProduct, AggregateID: "p-2"},
	)
	require.NoError(t, err)

	check := checker.Check(ctx)
	assert.Equal(t, health.StatusDegraded, check.Status)
	assert.Equal(t, "2 pending messages", check.Message)
}

func TestBreakerChecker(t *testing.T) {
	ctx := context.Background()
	breaker := search.NewBreaker(1, time.Hour, nil, log.WithField("test", "breaker"))
	checker := breakerChecker(breaker)

	assert.Equal(t, health.StatusHealthy, checker.Check(ctx).Status)

	_ = breaker.Execute(ctx, "upsert", func(context.Context) error { return errors.New("search down") })

	check := checker.Check(ctx)
	assert.Equal(t, health.StatusDegraded, check.Status)
	assert.Equal(t, "circuit open", check.Message)
}

func TestBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	logger := log.WithField("test", "bootstrap")
	svc := users.NewService(memory.NewStore().Users(), logger)

	created, err := bootstrapAdmin(ctx, svc, "root", logger)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, created.Role)

	again, err := bootstrapAdmin(ctx, svc, "root", logger)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	_, err = svc.Create(ctx, users.Input{Username: "alice"})
	require.NoError(t, err)
	_, err = bootstrapAdmin(ctx, svc, "alice", logger)
	assert.ErrorContains(t, err, "exists with role USER")
}
