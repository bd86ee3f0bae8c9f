package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"ccfolio/infrastructure/ws"

	"go.uber.org/zap"
)

type Endpoint struct {
	Address string
	Port    int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Listener owns the accept loop. Every accepted connection gets its own
// Session sharing the Listener's router and hub.
type Listener struct {
	ln     net.Listener
	fabric *fabric
	log    *zap.Logger

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewListener binds endpoint immediately; a bind failure is returned to the
// caller and never retried.
func NewListener(endpoint Endpoint, router *Router, hub ws.Hub, cfg Config, opts ...Option) (*Listener, error) {
	ln, err := net.Listen("tcp", endpoint.String())
	if err != nil {
		return nil, fmt.Errorf("network: listen %s: %w", endpoint, err)
	}

	f := newFabric(cfg, router, hub, opts...)
	return &Listener{
		ln:     ln,
		fabric: f,
		log:    f.log,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Run accepts until Close is called or ctx is done, which both return nil.
// Transient accept errors are logged and retried with backoff; if the
// listening socket itself fails, Run returns ErrListenerDown.
func (l *Listener) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-stop:
		}
	}()

	var backoff time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.isClosing() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				l.log.Error("listener closed unexpectedly", zap.Error(err))
				return fmt.Errorf("%w: %v", ErrListenerDown, err)
			}

			l.fabric.metrics.AcceptError()
			backoff = nextBackoff(backoff)
			l.log.Warn("accept", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !l.track(conn) {
			_ = conn.Close()
			return nil
		}
		l.fabric.metrics.ConnectionAccepted()

		go func() {
			defer l.wg.Done()
			defer l.untrack(conn)
			newSession(conn, l.fabric).Serve(ctx)
		}()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// Close stops accepting and closes every live connection, push sessions
// included. It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return nil
	}
	l.closing = true
	conns := make([]net.Conn, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	err := l.ln.Close()
	for _, c := range conns {
		_ = c.Close()
	}
	return err
}

// Shutdown closes the listener and waits for sessions to finish or ctx to end.
func (l *Listener) Shutdown(ctx context.Context) error {
	if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) isClosing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closing
}

// track registers c and counts its session under the same lock that Close
// takes, so a Shutdown already waiting never races a new Add.
func (l *Listener) track(c net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return false
	}
	l.conns[c] = struct{}{}
	l.wg.Add(1)
	return true
}

func (l *Listener) untrack(c net.Conn) {
	l.mu.Lock()
	delete(l.conns, c)
	l.mu.Unlock()
}
