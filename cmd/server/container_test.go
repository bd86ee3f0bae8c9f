package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"ccfolio/infrastructure/ws"
	"ccfolio/internal/config"
	wsDelivery "ccfolio/internal/delivery/websocket"
	"ccfolio/internal/usecase"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"
)

func TestContainerResolvesWithoutDatabase(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SERVER_PORT", "8080")

	c, err := buildContainer(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}

	err = c.Invoke(func(cfg config.Config, hub ws.Hub, p *wsDelivery.CommandProcessor, cl *closers) {
		defer cl.run(context.Background(), zaptest.NewLogger(t))
		if cfg.ServerPort != 8080 {
			t.Errorf("ServerPort = %d", cfg.ServerPort)
		}
		if _, ok := hub.(*ws.BroadcastHub); !ok {
			t.Errorf("hub is %T, want in-memory hub", hub)
		}
		if p == nil {
			t.Error("nil command processor")
		}
	})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
}

func TestContainerFailsOnMissingEnvFile(t *testing.T) {
	c, err := buildContainer(context.Background(), "/nonexistent/prod.env")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Invoke(func(config.Config) {}); err == nil {
		t.Fatal("expected Invoke to fail when --env-file does not exist")
	}
}

func TestNewHubUsesRedisWhenConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{RedisAddr: mr.Addr(), ServerID: "node-a"}
	cl := &closers{}
	log := zaptest.NewLogger(t)

	hub, err := newHub(context.Background(), cfg, cl, log, nil)
	if err != nil {
		t.Fatalf("newHub() error: %v", err)
	}
	if _, ok := hub.(*ws.RedisHub); !ok {
		t.Fatalf("hub is %T, want *ws.RedisHub", hub)
	}
	if len(cl.fns) != 1 {
		t.Errorf("registered %d shutdown hooks, want 1", len(cl.fns))
	}
	cl.run(context.Background(), log)
}

func TestNewHubFailsOnUnreachableRedis(t *testing.T) {
	cfg := config.Config{RedisAddr: "127.0.0.1:1", ServerID: "node-a"}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := newHub(ctx, cfg, &closers{}, zaptest.NewLogger(t), nil); err == nil {
		t.Error("expected an error for an unreachable redis")
	}
}

func TestNetworkConfigCarriesLimits(t *testing.T) {
	nc := networkConfig(config.Config{
		MaxBodyBytes:  512,
		ReadTimeout:   time.Second,
		WriteTimeout:  2 * time.Second,
		SendQueueSize: 8,
		FrameRate:     5,
		FrameBurst:    10,
	})
	if nc.MaxBodyBytes != 512 || nc.SendQueueSize != 8 || nc.FrameBurst != 10 {
		t.Errorf("networkConfig() = %+v", nc)
	}
	if nc.PingPeriod == 0 || nc.PongWait <= nc.PingPeriod {
		t.Errorf("keepalive defaults lost: %+v", nc)
	}
}

type purgeCounter struct {
	usecase.AuthUsecase
	calls atomic.Int32
}

func (p *purgeCounter) PurgeExpiredTokens(context.Context) (int64, error) {
	p.calls.Add(1)
	return 1, nil
}

func TestSweepTokensRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	auth := &purgeCounter{}

	done := make(chan struct{})
	go func() {
		sweepTokens(ctx, auth, 10*time.Millisecond, zaptest.NewLogger(t))
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for auth.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweepTokens did not return after cancel")
	}
	if auth.calls.Load() < 2 {
		t.Errorf("purge ran %d times, want at least 2", auth.calls.Load())
	}
}
