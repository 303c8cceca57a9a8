package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/logstream/internal/config"
	"github.com/benvon/logstream/internal/handlers"
	"github.com/benvon/logstream/internal/logger"
	"github.com/benvon/logstream/internal/source"
	"github.com/benvon/logstream/internal/sse"
	"github.com/benvon/logstream/internal/telemetry"
	"github.com/benvon/logstream/internal/webconfig"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("event_source", cfg.EventSource),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// The web configuration is fixed before the server accepts connections.
	webCfg, err := webconfig.Load(cfg.WebConfigFile)
	if err != nil {
		zapLogger.Fatal("failed_to_load_web_config", zap.String("file", cfg.WebConfigFile), zap.Error(err))
	}

	var tracerProvider *sdktrace.TracerProvider
	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.ServiceName, version, cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracerProvider = tp
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tracerProvider); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	broker := sse.NewBroker(cfg.SSEBufferSize, zapLogger)

	redisClient, src, err := newEventSource(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_event_source", zap.String("event_source", cfg.EventSource), zap.Error(err))
	}

	checks := map[string]handlers.Pinger{}
	if src != nil {
		checks[src.Name()] = src
	}

	deps := handlers.RouterDeps{
		WebConfig:       webCfg,
		Broker:          broker,
		StringConverter: webconfig.NewStringConverter(),
		Converters:      webconfig.MessageConverters(),
		Health:          handlers.NewHealthChecker(checks),
		Version:         handlers.VersionInfo{Version: version, Commit: commit},
		RedisClient:     redisClient,
		RateLimit:       cfg.RateLimit,
		MaxRequestBytes: cfg.MaxRequestBytes,
		Heartbeat:       time.Duration(cfg.SSEHeartbeatSecs) * time.Second,
		EnableHSTS:      cfg.EnableHSTS,
		Logger:          zapLogger,
	}
	if tracerProvider != nil {
		deps.TracerProvider = tracerProvider
	}
	handler, err := handlers.NewRouter(deps)
	if err != nil {
		zapLogger.Fatal("failed_to_build_router", zap.Error(err))
	}

	// No WriteTimeout: SSE responses stay open for the life of the client.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB max header size
	}
	// Open streams end when the broker closes, so Shutdown does not wait on them.
	srv.RegisterOnShutdown(broker.Close)

	sourceCtx, sourceCancel := context.WithCancel(context.Background())
	defer sourceCancel()
	sourceDone := make(chan struct{})
	if src != nil {
		go func() {
			defer close(sourceDone)
			if err := src.Run(sourceCtx, broker); err != nil {
				zapLogger.Error("event_source_stopped_with_error", zap.String("source", src.Name()), zap.Error(err))
			}
		}()
	} else {
		close(sourceDone)
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	sourceCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	<-sourceDone
	if src != nil {
		if err := src.Close(); err != nil {
			zapLogger.Warn("failed_to_close_event_source", zap.Error(err))
		}
	}

	zapLogger.Info("server_exited")
}

// newEventSource builds the configured event source. The Redis client is returned
// separately so the rate limiter can share it.
func newEventSource(cfg *config.Config, zapLogger *zap.Logger) (*redis.Client, source.Source, error) {
	streams := sse.StreamNames()

	switch cfg.EventSource {
	case config.EventSourceRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := source.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		zapLogger.Info("connected_to_redis")
		return client, source.NewRedisSource(client, cfg.RedisChannelPrefix, streams, zapLogger), nil
	case config.EventSourceRabbitMQ:
		return nil, source.NewRabbitMQSource(cfg.RabbitMQURL, cfg.RabbitMQExchange, streams, zapLogger), nil
	default:
		return nil, nil, nil
	}
}
