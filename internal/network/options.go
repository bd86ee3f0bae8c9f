package network

import (
	"context"
	"net/http"
	"time"

	"ccfolio/infrastructure/ws"
	"ccfolio/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Config struct {
	MaxBodyBytes  int64
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	SendQueueSize int

	// FrameRate of zero disables inbound frame rate limiting.
	FrameRate  float64
	FrameBurst int64

	PingPeriod time.Duration
	PongWait   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:  10000,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  10 * time.Second,
		SendQueueSize: 256,
		FrameRate:     20,
		FrameBurst:    40,
		PingPeriod:    54 * time.Second,
		PongWait:      60 * time.Second,
	}
}

// AdmissionVerifier gates the upgrade to a push session.
type AdmissionVerifier interface {
	Verify(ctx context.Context, credential string) bool
}

type VerifierFunc func(ctx context.Context, credential string) bool

func (f VerifierFunc) Verify(ctx context.Context, credential string) bool {
	return f(ctx, credential)
}

// FrameHandler receives every complete inbound frame of a push session. It
// runs on the session's read goroutine, so a slow handler delays that
// session's reads only.
type FrameHandler interface {
	HandleFrame(ctx context.Context, sender ws.Peer, frame []byte)
}

type FrameHandlerFunc func(ctx context.Context, sender ws.Peer, frame []byte)

func (f FrameHandlerFunc) HandleFrame(ctx context.Context, sender ws.Peer, frame []byte) {
	f(ctx, sender, frame)
}

type Option func(*fabric)

func WithLogger(log *zap.Logger) Option {
	return func(f *fabric) { f.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *fabric) { f.metrics = m }
}

// WithVerifier enables admission control. Without it every upgrade is admitted.
func WithVerifier(v AdmissionVerifier) Option {
	return func(f *fabric) { f.verifier = v }
}

func WithFrameHandler(h FrameHandler) Option {
	return func(f *fabric) { f.frames = h }
}

// fabric is what every session spawned by one Listener shares.
type fabric struct {
	cfg      Config
	router   *Router
	hub      ws.Hub
	verifier AdmissionVerifier
	frames   FrameHandler
	upgrader websocket.Upgrader
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func newFabric(cfg Config, router *Router, hub ws.Hub, opts ...Option) *fabric {
	f := &fabric{
		cfg:    cfg,
		router: router,
		hub:    hub,
		log:    zap.NewNop(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.WriteTimeout,
			// the transport layer in front of us owns origin policy
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}
