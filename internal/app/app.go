// Package app собирает сервис магазина: хранилище, бизнес-сервисы, gRPC health,
// HTTP-метрики и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

const outboxMaxPendingAge = 5 * time.Minute

// App содержит собранный сервис.
type App struct {
	cfg      Config
	logger   *log.Entry
	deps     *Dependencies
	producer *kafka.Producer
	health   *healthcheck.Handler

	Services *Services
}

// New открывает хранилище, подключается к Kafka и связывает сервисы.
func New(ctx context.Context, cfg Config, logger *log.Entry) (*App, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ShutdownGracePeriod <= 0 {
		cfg.ShutdownGracePeriod = defaultShutdownGrace
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	m := metrics.NewShopMetrics()
	producer := initKafkaProducer(cfg.KafkaBrokers, logger)
	services, err := buildServices(cfg, deps.Storage, producer, m, logger)
	if err != nil {
		closeKafka(producer, logger)
		_ = deps.Close()
		return nil, err
	}

	handler := healthcheck.NewHandler(version.Get())
	handler.RegisterChecker("storage", healthcheck.CheckFunc(deps.Ping))
	handler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.Storage, cfg.OutboxMaxPending, outboxMaxPendingAge))

	return &App{
		cfg:      cfg,
		logger:   logger,
		deps:     deps,
		producer: producer,
		health:   handler,
		Services: services,
	}, nil
}

// Run поднимает сервис с адресами из cfg и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg, nil)
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	grpcLis, err := lc.Listen(ctx, "tcp", cfg.GRPCAddr)
	if err != nil {
		a.shutdown()
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	httpLis, err := lc.Listen(ctx, "tcp", cfg.MetricsAddr)
	if err != nil {
		_ = grpcLis.Close()
		a.shutdown()
		return fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
	}
	return a.Serve(ctx, grpcLis, httpLis)
}

// Serve обслуживает готовые listener'ы: gRPC health и reflection, HTTP /metrics
// и пробы, outbox worker. После остановки дожидается фоновых уведомлений и
// закрывает Kafka и хранилище.
func (a *App) Serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	defer a.shutdown()

	grpcServer, healthServer := a.newGRPCServer()
	httpServer := &http.Server{Handler: a.httpHandler(), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.logger.Infof("метрики доступны по адресу %s/metrics", httpLis.Addr())
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.Services.Outbox.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.Shutdown()
		a.stopGRPC(grpcServer)
		a.shutdownHTTP(httpServer)
		return nil
	})

	return g.Wait()
}

func (a *App) newGRPCServer() (*grpc.Server, *health.Server) {
	grpcMetrics := registerGRPCMetrics(a.logger)
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)
	return server, healthServer
}

// registerGRPCMetrics переиспользует уже зарегистрированные метрики при повторном запуске в тестах.
func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

func (a *App) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", a.health)
	mux.HandleFunc("/readyz", a.health.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	return mux
}

func (a *App) stopGRPC(server *grpc.Server) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(a.cfg.ShutdownGracePeriod):
		a.logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

func (a *App) shutdownHTTP(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.WithError(err).Warn("metrics shutdown with error")
	}
}

// shutdown дожидается отправки уведомлений и закрывает внешние ресурсы.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := a.Services.Notifier.Close(ctx); err != nil {
		a.logger.WithError(err).Warn("pending notifications were not delivered before shutdown")
	}
	closeKafka(a.producer, a.logger)
	if err := a.deps.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close storage")
	}
}
