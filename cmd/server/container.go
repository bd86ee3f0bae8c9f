package main

import (
	"context"
	"fmt"
	"time"

	"ccfolio/infrastructure/cache"
	"ccfolio/infrastructure/db"
	"ccfolio/infrastructure/ws"
	"ccfolio/internal/config"
	httpDelivery "ccfolio/internal/delivery/http"
	wsDelivery "ccfolio/internal/delivery/websocket"
	"ccfolio/internal/metrics"
	"ccfolio/internal/network"
	"ccfolio/internal/repository"
	"ccfolio/internal/usecase"
	"ccfolio/pkg/apikey"
	"ccfolio/pkg/jwt"
	"ccfolio/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// closers collects shutdown hooks from providers, run in reverse order.
type closers struct {
	fns []func(context.Context) error
}

func (c *closers) add(fn func(context.Context) error) {
	c.fns = append(c.fns, fn)
}

func (c *closers) run(ctx context.Context, log *zap.Logger) {
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](ctx); err != nil {
			log.Warn("shutdown hook", zap.Error(err))
		}
	}
}

// buildContainer wires the persistence, domain and delivery layers. Nothing
// connects until a constructor is first resolved through Invoke.
func buildContainer(ctx context.Context, envFile string) (*dig.Container, error) {
	c := dig.New()

	providers := []any{
		func() (config.Config, error) { return config.Load(envFiles(envFile)...) },
		func(cfg config.Config) (*zap.Logger, error) { return logger.New(cfg.LogLevel, cfg.LogJSON) },
		func() *closers { return &closers{} },
		newRegistry,
		func(reg *prometheus.Registry) *metrics.Metrics { return metrics.New(reg) },
		func(cfg config.Config, cl *closers, log *zap.Logger) (*db.MongoStore, error) {
			return newMongo(ctx, cfg, cl, log)
		},
		func(store *db.MongoStore) *mongo.Database { return store.DB },
		repository.NewUserRepository,
		repository.NewRefreshTokenRepository,
		repository.NewAPIKeyRepository,
		func(cfg config.Config) *jwt.JWTManager {
			return jwt.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
		},
		func(cfg config.Config) (*apikey.Hasher, error) {
			return apikey.NewHasher(cfg.APIKeyPepper, apikey.DefaultParams)
		},
		usecase.NewAuthUsecase,
		usecase.NewUserUseCase,
		usecase.NewAPIKeyUsecase,
		func(cfg config.Config, cl *closers, log *zap.Logger, m *metrics.Metrics) (ws.Hub, error) {
			return newHub(ctx, cfg, cl, log, m)
		},
		func(cl *closers) *cache.MemCache[bool] {
			mc := cache.NewMemCache[bool](time.Minute)
			cl.add(func(context.Context) error { mc.Close(); return nil })
			return mc
		},
		func(keys usecase.APIKeyUsecase, c *cache.MemCache[bool], log *zap.Logger) *wsDelivery.APIKeyVerifier {
			return wsDelivery.NewAPIKeyVerifier(keys, c, log.Named("admission"))
		},
		func(hub ws.Hub, log *zap.Logger) *wsDelivery.CommandProcessor {
			return wsDelivery.NewCommandProcessor(hub, log.Named("commands"))
		},
		func(users usecase.UserUsecase, hub ws.Hub, store *db.MongoStore, log *zap.Logger) *httpDelivery.HttpHandler {
			return httpDelivery.NewHttpHandler(users, hub, store.Ping, log.Named("http"))
		},
		func(auth usecase.AuthUsecase, cfg config.Config, log *zap.Logger) *httpDelivery.AuthHandler {
			return httpDelivery.NewAuthHandler(auth, cfg.RefreshTokenTTL, log.Named("auth"))
		},
		func(keys usecase.APIKeyUsecase, log *zap.Logger) *httpDelivery.APIKeyHandler {
			return httpDelivery.NewAPIKeyHandler(keys, log.Named("apikeys"))
		},
		func(auth usecase.AuthUsecase) *httpDelivery.AuthMiddleware {
			return httpDelivery.NewAuthMiddleware(auth)
		},
		newRouter,
	}

	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, fmt.Errorf("provide: %w", err)
		}
	}
	return c, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMongo(ctx context.Context, cfg config.Config, cl *closers, log *zap.Logger) (*db.MongoStore, error) {
	store, err := db.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	cl.add(store.Close)
	log.Info("connected to mongodb", zap.String("database", cfg.MongoDatabase))
	return store, nil
}

// newHub returns the in-memory hub, or a RedisHub when REDIS_ADDR is set so
// broadcasts reach peers connected to other nodes.
func newHub(ctx context.Context, cfg config.Config, cl *closers, log *zap.Logger, m *metrics.Metrics) (ws.Hub, error) {
	if cfg.RedisAddr == "" {
		log.Info("using in-memory hub (single node)")
		return ws.NewHub(log.Named("hub"), m), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	hub := ws.NewRedisHub(client, cfg.ServerID, log.Named("hub"), m)
	if err := hub.Start(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	cl.add(func(context.Context) error {
		err := hub.Close()
		if cerr := client.Close(); err == nil {
			err = cerr
		}
		return err
	})

	log.Info("using redis hub", zap.String("addr", cfg.RedisAddr), zap.String("server_id", cfg.ServerID))
	return hub, nil
}

func newRouter(
	log *zap.Logger,
	m *metrics.Metrics,
	httpHandler *httpDelivery.HttpHandler,
	authHandler *httpDelivery.AuthHandler,
	apiKeyHandler *httpDelivery.APIKeyHandler,
	authMiddleware *httpDelivery.AuthMiddleware,
) *network.Router {
	router := network.NewRouter(log.Named("router"))
	router.Instrument(m)
	httpDelivery.MapHttpRoutes(router, httpHandler, authHandler, apiKeyHandler, authMiddleware)
	return router
}

func networkConfig(cfg config.Config) network.Config {
	nc := network.DefaultConfig()
	nc.MaxBodyBytes = cfg.MaxBodyBytes
	nc.ReadTimeout = cfg.ReadTimeout
	nc.WriteTimeout = cfg.WriteTimeout
	nc.SendQueueSize = cfg.SendQueueSize
	nc.FrameRate = cfg.FrameRate
	nc.FrameBurst = cfg.FrameBurst
	return nc
}
