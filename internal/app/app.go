// Package app собирает сервис магазина: хранилища, доставку проекции, воркеры и серверы.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/i18n"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/search"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// runtime: собранное приложение до запуска серверов.
type runtime struct {
	cfg    Config
	logger *log.Entry

	storage  *runtimeDependencies
	search   *searchDependencies
	delivery *delivery

	services  httpapi.Services
	projector *search.Projector
	outbox    *outbox.Worker
	cleanup   *idempotency.KeySweeper

	health     *health.Handler
	router     http.Handler
	metricsSrv *http.Server
	grpcServer *grpc.Server
	grpcHealth *grpchealth.Server
}

// Run запускает сервис и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.WithField("component", "app")

	rt, err := newRuntime(ctx, cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer, logger)
	if err != nil {
		return err
	}
	defer rt.close()
	return rt.serve(ctx)
}

func newRuntime(ctx context.Context, cfg Config, registerer prometheus.Registerer, gatherer prometheus.Gatherer, logger *log.Entry) (_ *runtime, err error) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	tokens, err := auth.NewHSProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		return nil, err
	}

	if rt.storage, err = initRuntimeDependencies(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if rt.search, err = initSearchIndex(ctx, cfg, logger); err != nil {
		return nil, err
	}
	store := rt.storage.store
	localizer := i18n.New()

	rt.projector = search.NewProjector(store, rt.search.index,
		search.WithLogger(logger.WithField("component", "search-projector")),
		search.WithMetrics(metrics.NewProjectionMetrics(registerer)),
		search.WithStatusLabels(localizer.Labeler(i18n.DefaultLanguage)),
	)
	rt.delivery = initDelivery(cfg, rt.projector, logger)

	rt.outbox = outbox.NewWorker(store.Outbox(), rt.delivery.publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(registerer)),
		outbox.WithDLQPublisher(rt.delivery.dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	idempotencyMetrics := metrics.NewIdempotencyMetrics(registerer)
	rt.cleanup = idempotency.NewKeySweeper(rt.storage.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "checkout-key-sweeper")),
		idempotency.WithMetrics(idempotencyMetrics),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	rt.services = httpapi.Services{
		Users:   users.NewService(store.Users(), logger.WithField("layer", "users")),
		Catalog: catalog.NewService(store, logger.WithField("layer", "catalog")),
		Carts:   cart.NewService(store, logger.WithField("layer", "cart")),
		Orders: orders.NewService(store, inventory.NewLedger(logger.WithField("layer", "inventory")),
			orders.WithLogger(logger.WithField("layer", "orders")),
			orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registerer)),
			orders.WithLocalizer(localizer),
		),
		Search:      rt.search.index,
		Idempotency: idempotency.NewGuard(rt.storage.idempotencyRepo, cfg.IdempotencyTTL, idempotencyMetrics, logger.WithField("component", "idempotency-guard")),
		Tokens:      tokens,
		Localizer:   localizer,
	}

	if cfg.BootstrapAdmin != "" {
		if _, err := bootstrapAdmin(ctx, rt.services.Users, cfg.BootstrapAdmin, logger); err != nil {
			return nil, err
		}
	}

	rt.health = health.NewHandler(version.GetVersion())
	rt.health.RegisterChecker("storage", rt.storage.storageChecker)
	rt.health.RegisterChecker("search", rt.search.checker)
	rt.health.RegisterChecker("search-breaker", breakerChecker(rt.projector.Breaker()))
	rt.health.RegisterChecker("outbox", outboxBacklogChecker(store.Outbox(), cfg.OutboxMaxPending))

	rt.router = httpapi.NewRouter(rt.services, httpapi.Options{
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     metrics.NewHTTPMetrics(registerer),
		Logger:      logger.WithField("component", "http"),
	})
	rt.metricsSrv = newMetricsServer(gatherer, rt.health)
	rt.grpcServer, rt.grpcHealth = newGRPCServer(registerer, logger.WithField("component", "grpc"))
	return rt, nil
}

// serve открывает порты, запускает воркеры и ждёт остановки.
func (rt *runtime) serve(ctx context.Context) error {
	listeners, err := listenAll(rt.cfg.HTTPAddr, rt.cfg.GRPCAddr, rt.cfg.MetricsAddr)
	if err != nil {
		return err
	}
	return rt.serveListeners(ctx, listeners[0], listeners[1], listeners[2])
}

func (rt *runtime) serveListeners(ctx context.Context, apiLis, grpcLis, metricsLis net.Listener) error {
	apiSrv := &http.Server{Handler: rt.router, ReadHeaderTimeout: readHeaderTimeout}
	errCh := make(chan error, 3)
	go serveHTTP(apiSrv, apiLis, "api", rt.logger, errCh)
	go serveHTTP(rt.metricsSrv, metricsLis, "metrics", rt.logger, errCh)
	go func() {
		rt.logger.WithField("addr", grpcLis.Addr().String()).Info("grpc server listening")
		if err := rt.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var wg sync.WaitGroup
	rt.startWorkers(workerCtx, &wg)

	var runErr error
	select {
	case <-ctx.Done():
		rt.logger.Info("shutdown signal received, stopping servers")
		runErr = ctx.Err()
	case runErr = <-errCh:
		rt.logger.WithError(runErr).Error("server failed, stopping")
	}

	rt.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, rt.cfg.ShutdownTimeout, rt.logger)
	stopGRPC(rt.grpcServer, rt.cfg.ShutdownTimeout, rt.logger)
	stopWorkers()
	wg.Wait()
	stopKafkaConsumer(rt.delivery.consumer, rt.logger)
	shutdownHTTP(rt.metricsSrv, rt.cfg.ShutdownTimeout, rt.logger)
	return runErr
}

func (rt *runtime) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	run(rt.outbox.Run)
	run(rt.cleanup.Run)
	run(func(ctx context.Context) { syncGRPCHealth(ctx, rt.health, rt.grpcHealth, grpcHealthPeriod) })

	if rt.delivery.consumer != nil {
		if err := rt.delivery.consumer.Start(ctx); err != nil {
			rt.logger.WithError(err).Error("failed to start kafka consumer")
		}
	}
}

// close освобождает хранилища и producer. Вызывается один раз после остановки серверов.
func (rt *runtime) close() {
	if rt.delivery != nil {
		closeKafkaProducer(rt.delivery.producer, rt.logger)
	}
	if rt.search != nil {
		rt.search.closeFn()
	}
	if rt.storage != nil {
		rt.storage.closeFn()
	}
}

func listenAll(addrs ...string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			for _, opened := range listeners {
				_ = opened.Close()
			}
			return nil, err
		}
		listeners = append(listeners, lis)
	}
	return listeners, nil
}
