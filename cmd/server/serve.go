package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ccfolio/infrastructure/db"
	"ccfolio/infrastructure/ws"
	"ccfolio/internal/config"
	wsDelivery "ccfolio/internal/delivery/websocket"
	"ccfolio/internal/metrics"
	"ccfolio/internal/network"
	"ccfolio/internal/ops"
	"ccfolio/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

const (
	shutdownTimeout    = 10 * time.Second
	tokenSweepInterval = time.Hour
)

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept connections until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *envFile)
		},
	}
}

type serveDeps struct {
	dig.In

	Config    config.Config
	Log       *zap.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Store     *db.MongoStore
	Router    *network.Router
	Hub       ws.Hub
	Verifier  *wsDelivery.APIKeyVerifier
	Processor *wsDelivery.CommandProcessor
	Auth      usecase.AuthUsecase
	Closers   *closers
}

func runServe(parent context.Context, envFile string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := buildContainer(ctx, envFile)
	if err != nil {
		return err
	}
	return container.Invoke(func(d serveDeps) error {
		return serve(ctx, d)
	})
}

func serve(ctx context.Context, d serveDeps) error {
	log := d.Log
	defer func() { _ = log.Sync() }()

	if d.Config.UsingDefaultJWTSecret() {
		log.Warn("using default JWT secret; set JWT_SECRET in production")
	}

	endpoint := network.Endpoint{Address: d.Config.ServerAddress, Port: d.Config.ServerPort}
	listener, err := network.NewListener(endpoint, d.Router, d.Hub, networkConfig(d.Config),
		network.WithLogger(log.Named("network")),
		network.WithMetrics(d.Metrics),
		network.WithVerifier(d.Verifier),
		network.WithFrameHandler(d.Processor),
	)
	if err != nil {
		d.Closers.run(context.Background(), log)
		return err
	}

	opsServer := ops.NewServer(d.Config.MetricsAddr,
		ops.NewRouter(d.Registry, []ops.Check{{Name: "mongo", Fn: d.Store.Ping}}, log.Named("ops")),
		log.Named("ops"))

	errs := make(chan error, 2)
	go func() { errs <- opsServer.Run() }()
	go func() { errs <- listener.Run(ctx) }()
	go sweepTokens(ctx, d.Auth, tokenSweepInterval, log.Named("sweep"))

	log.Info("listening", zap.String("addr", listener.Addr().String()))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errs:
		if runErr != nil {
			log.Error("server stopped", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := listener.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn("listener shutdown", zap.Error(err))
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("ops shutdown", zap.Error(err))
	}
	d.Closers.run(shutdownCtx, log)

	return runErr
}

func sweepTokens(ctx context.Context, auth usecase.AuthUsecase, every time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := auth.PurgeExpiredTokens(ctx)
			if err != nil {
				log.Warn("purge expired refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
