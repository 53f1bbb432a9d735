package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/api"
	"github.com/SARVESHVARADKAR123/notifier/internal/config"
	"github.com/SARVESHVARADKAR123/notifier/internal/dispatcher"
	"github.com/SARVESHVARADKAR123/notifier/internal/kafka"
	"github.com/SARVESHVARADKAR123/notifier/internal/notify"
	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"github.com/SARVESHVARADKAR123/notifier/internal/presence"
	"github.com/SARVESHVARADKAR123/notifier/internal/server"
	"github.com/SARVESHVARADKAR123/notifier/internal/sse"
	"github.com/SARVESHVARADKAR123/notifier/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const presenceQueueSize = 1024

func main() {
	cfg := config.Load()

	// Observability
	observability.InitLogger(cfg.ServiceName, cfg.LogLevel, cfg.LogFile)
	log := observability.Log
	defer log.Sync() //nolint:errcheck

	if cfg.TracingEnabled {
		tp, err := observability.InitTracer(cfg.ServiceName, cfg.JaegerURL)
		if err != nil {
			log.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer tp.Shutdown(context.Background())
	}

	ctx, cancel := setupSignalHandler(log)
	defer cancel()

	var regOpts []notify.Option
	var tracker *presence.Tracker
	if cfg.PresenceEnabled {
		redisClient := initRedis(ctx, cfg.RedisAddr, log)
		defer redisClient.Close()

		tracker = presence.NewTracker(presence.NewRedisStore(redisClient, cfg.PresenceTTL), presenceQueueSize, cfg.PresenceTTL/2)
		regOpts = append(regOpts, notify.WithObserver(tracker))
	}

	reg := notify.New(regOpts...)
	if tracker != nil {
		go tracker.Run(ctx, reg)
	}

	disp := dispatcher.New(reg)

	// Kafka Consumer
	var consumer *kafka.Consumer
	if cfg.KafkaEnabled {
		consumer = initKafka(ctx, cfg, disp, log)
	}

	// Servers
	var ready atomic.Bool
	obsSrv := initObservabilityServer(cfg, &ready)
	mainSrv := server.New(cfg.ReqHTTPAddr, initMainRouter(cfg, reg))
	grpcSrv := initHealthGRPC(cfg, log)

	startServers(obsSrv, mainSrv, log)
	ready.Store(true)
	grpcSrv.SetServing(true)

	<-ctx.Done()
	ready.Store(false)
	performGracefulShutdown(obsSrv, mainSrv, grpcSrv, consumer, reg, log)
}

func setupSignalHandler(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}

func initRedis(ctx context.Context, addr string, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	return client
}

func initKafka(ctx context.Context, cfg *config.Config, disp *dispatcher.Dispatcher, log *zap.Logger) *kafka.Consumer {
	consumer, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaTopics, cfg.KafkaGroup, disp)
	if err != nil {
		log.Fatal("failed to create kafka consumer", zap.Error(err))
	}
	consumer.Start(ctx)
	return consumer
}

func initObservabilityServer(cfg *config.Config, ready *atomic.Bool) *server.Server {
	mux := chi.NewRouter()
	mux.Use(observability.MetricsMiddleware(cfg.ServiceName))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/health/live", observability.HealthLiveHandler)
	mux.Get("/health/ready", observability.HealthReadyHandler(ready))
	return server.New(cfg.ObsHTTPAddr, mux)
}

func initMainRouter(cfg *config.Config, reg *notify.Registry) http.Handler {
	return api.NewRouter(
		api.NewHandler(reg),
		sse.NewHandler(reg, cfg.StreamQueueSize, cfg.HeartbeatInterval),
		websocket.NewHandler(reg, cfg.StreamQueueSize),
		api.RouterConfig{
			ServiceName:       cfg.ServiceName,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
		},
	)
}

func initHealthGRPC(cfg *config.Config, log *zap.Logger) *server.HealthServer {
	srv := server.NewHealthServer(cfg.ServiceName)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("failed to listen for grpc", zap.Error(err))
	}
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Error("grpc health server error", zap.Error(err))
		}
	}()
	return srv
}

func startServers(obsSrv, mainSrv *server.Server, log *zap.Logger) {
	go func() {
		if err := obsSrv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("observability server error", zap.Error(err))
		}
	}()
	go func() {
		if err := mainSrv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()
}

func performGracefulShutdown(obs, mainSrv *server.Server, grpcSrv *server.HealthServer, consumer *kafka.Consumer, reg *notify.Registry, log *zap.Logger) {
	log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcSrv.Stop()
	if consumer != nil {
		consumer.Close()
	}

	// Streams never go idle on their own.
	reg.CloseAll()

	if err := mainSrv.Shutdown(ctx); err != nil {
		log.Error("error during main server shutdown", zap.Error(err))
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error("error during observability server shutdown", zap.Error(err))
	}
	log.Info("shutdown complete, exiting")
}
