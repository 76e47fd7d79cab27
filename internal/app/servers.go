package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/storefront/internal/health"
)

const (
	readHeaderTimeout = 5 * time.Second
	grpcHealthPeriod  = 5 * time.Second
)

// newMetricsServer собирает HTTP-сервер для /metrics и проб.
func newMetricsServer(gatherer prometheus.Gatherer, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
}

// serveHTTP обслуживает lis до остановки сервера. ErrServerClosed не считается ошибкой.
func serveHTTP(srv *http.Server, lis net.Listener, name string, logger *log.Entry, errCh chan<- error) {
	logger.WithField("addr", lis.Addr().String()).Infof("%s server listening", name)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- err
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// newGRPCServer создаёт gRPC-сервер с grpc.health.v1, reflection и метриками.
func newGRPCServer(registerer prometheus.Registerer, logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return server, healthServer
}

// syncGRPCHealth переносит итог /healthz в статус grpc.health.v1, пока ctx не отменён.
func syncGRPCHealth(ctx context.Context, handler *health.Handler, server *grpchealth.Server, period time.Duration) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if handler.Run(ctx).Status == health.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		server.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// stopGRPC ждёт завершения активных вызовов не дольше timeout.
func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop timed out, forcing grpc server stop")
		server.Stop()
	}
}
