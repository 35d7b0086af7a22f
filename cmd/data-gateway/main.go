package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/digiklausur/data-gateway/pkg/answers"
	"github.com/digiklausur/data-gateway/pkg/auth"
	"github.com/digiklausur/data-gateway/pkg/config"
	"github.com/digiklausur/data-gateway/pkg/gateway"
	"github.com/digiklausur/data-gateway/pkg/httpapi"
	"github.com/digiklausur/data-gateway/pkg/observability"
	"github.com/digiklausur/data-gateway/pkg/rbac"
	"github.com/digiklausur/data-gateway/pkg/storage"
	"github.com/digiklausur/data-gateway/pkg/tenancy"
)

func main() {
	bootLog := logrus.New()
	bootLog.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		bootLog.WithError(err).Fatal("failed to load configuration")
	}
	bootLog.SetLevel(logrusLevel(cfg.Observability.LogLevel))

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, cleanup, err := newBackend(ctx, cfg.Storage)
	if err != nil {
		bootLog.WithError(err).Fatal("failed to initialize storage backend")
	}
	defer cleanup()
	bootLog.WithField("type", cfg.Storage.Type).Info("storage backend initialized")

	policy, err := loadPolicy(cfg.Gateway.PolicyFile)
	if err != nil {
		bootLog.WithError(err).Fatal("failed to load permission policy")
	}
	engine, err := rbac.NewEngine(policy, log)
	if err != nil {
		bootLog.WithError(err).Fatal("failed to compile permission policy")
	}
	if cfg.Gateway.PolicyFile != "" && cfg.Gateway.WatchPolicy {
		if err := rbac.WatchPolicyFile(ctx, cfg.Gateway.PolicyFile, engine, log); err != nil {
			bootLog.WithError(err).Fatal("failed to watch permission policy file")
		}
	}

	store := storage.NewStore(backend, log)
	catalog := tenancy.NewCatalog(store, log)
	resolver := auth.NewResolver(store, auth.NewCredentialManager(), catalog,
		engine.DefaultRole(), cfg.Gateway.LegacyCredentials, log)

	var metrics *gateway.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = gateway.NewMetrics(nil)
	}

	pipeline := gateway.NewPipeline(gateway.Dependencies{
		Store:      store,
		Catalog:    catalog,
		Binder:     tenancy.NewBinder(catalog, log),
		Resolver:   resolver,
		Engine:     engine,
		Aggregator: answers.NewAggregator(store, log),
		Metrics:    metrics,
		Logger:     log,
	}, gateway.Options{
		CourseScoping:     cfg.Gateway.CourseScoping,
		AnswerAggregation: cfg.Gateway.AnswerAggregation,
	})

	var limiter *httpapi.RateLimiter
	if cfg.RateLimit.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisURL,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			// The limiter fails open, so a cold redis delays rather than
			// blocks startup.
			bootLog.WithError(err).Warn("redis unreachable, rate limiting will fail open")
		}
		limiter = httpapi.NewRateLimiter(client, cfg.RateLimit.Limit, cfg.RateLimit.Window, log)
		defer client.Close()
	}

	server := httpapi.NewServer(pipeline, httpapi.Options{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Limiter:      limiter,
		Metrics:      cfg.Observability.MetricsEnabled,
	}, log)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		bootLog.WithField("addr", addr).Info("data gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		bootLog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		bootLog.WithError(err).Fatal("server terminated")
	}
	bootLog.Info("shutdown complete")
}

// newBackend builds the configured storage backend and returns a cleanup
// function for its resources.
func newBackend(ctx context.Context, cfg storage.Config) (storage.Backend, func(), error) {
	switch cfg.Type {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
		defer cancel()
		backend, err := storage.NewMongoBackend(connectCtx, cfg)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = backend.Close(closeCtx)
		}
		return backend, cleanup, nil
	default:
		return storage.NewMemoryBackend(), func() {}, nil
	}
}

func loadPolicy(path string) (*rbac.Policy, error) {
	if path == "" {
		return rbac.DefaultPolicy(), nil
	}
	return rbac.LoadPolicyFile(path)
}

func logrusLevel(level observability.LogLevel) logrus.Level {
	switch level {
	case observability.DebugLevel:
		return logrus.DebugLevel
	case observability.WarnLevel:
		return logrus.WarnLevel
	case observability.ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
