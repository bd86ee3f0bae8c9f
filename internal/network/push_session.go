package network

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juju/ratelimit"
	"go.uber.org/zap"
)

// PushSession is a connection after upgrade. It has exactly one reader (run)
// and one writer (writePump); every outbound message goes through the send
// queue, so frames leave in the order Send accepted them.
type PushSession struct {
	id     string
	conn   *websocket.Conn
	fabric *fabric
	log    *zap.Logger
	bucket *ratelimit.Bucket

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPushSession(conn *websocket.Conn, f *fabric) *PushSession {
	id := uuid.NewString()
	s := &PushSession{
		id:     id,
		conn:   conn,
		fabric: f,
		log:    f.log.With(zap.String("peer", id), zap.String("remote", conn.RemoteAddr().String())),
		send:   make(chan []byte, f.cfg.SendQueueSize),
		done:   make(chan struct{}),
	}
	if f.cfg.FrameRate > 0 {
		burst := f.cfg.FrameBurst
		if burst <= 0 {
			burst = 1
		}
		s.bucket = ratelimit.NewBucketWithRate(f.cfg.FrameRate, burst)
	}
	return s
}

func (s *PushSession) ID() string {
	return s.id
}

// Send queues message for delivery. It never blocks: a closed session returns
// false, and a full queue marks the peer as a slow consumer and disconnects it.
func (s *PushSession) Send(message []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- message:
		return true
	case <-s.done:
		return false
	default:
		s.fabric.metrics.SlowConsumer()
		s.log.Warn("send queue full, disconnecting slow consumer",
			zap.Int("queue", cap(s.send)))
		go s.Close()
		return false
	}
}

// Done is closed once the session has begun shutting down.
func (s *PushSession) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent; the hub registration is dropped exactly once.
func (s *PushSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.fabric.hub.Leave(s)
		s.fabric.metrics.PushClosed()

		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		if err := s.conn.Close(); err != nil && !isBenign(err) {
			s.log.Debug("close", zap.Error(err))
		}
		s.log.Debug("push session closed")
	})
}

// run registers with the hub and then reads until the peer goes away.
func (s *PushSession) run(ctx context.Context) {
	s.fabric.hub.Join(s)
	s.fabric.metrics.PushOpened()
	s.log.Debug("push session open")

	go s.writePump()
	s.readPump(ctx)
}

func (s *PushSession) readPump(ctx context.Context) {
	defer s.Close()

	pongWait := s.fabric.cfg.PongWait
	s.conn.SetReadLimit(s.fabric.cfg.MaxBodyBytes)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.fail(err, "read")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.fail(err, "read")
			return
		}

		if s.bucket != nil && s.bucket.TakeAvailable(1) == 0 {
			s.fabric.metrics.FrameRateLimited()
			s.log.Debug("inbound frame rate exceeded, frame discarded")
			continue
		}

		if s.fabric.frames != nil {
			s.fabric.frames.HandleFrame(ctx, s, frame)
		}
	}
}

func (s *PushSession) handleReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		s.fabric.metrics.ProtocolViolation("frame_too_large")
		s.log.Warn("frame exceeds limit", zap.Int64("limit", s.fabric.cfg.MaxBodyBytes))
		return
	}
	select {
	case <-s.done:
		// closed locally; the read error is just the echo of that
		return
	default:
	}
	s.fail(err, "read")
}

func (s *PushSession) writePump() {
	ticker := time.NewTicker(s.fabric.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case message := <-s.send:
			if err := s.write(websocket.TextMessage, message); err != nil {
				s.fail(err, "write")
				s.Close()
				return
			}

		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.fail(err, "ping")
				s.Close()
				return
			}
		}
	}
}

func (s *PushSession) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.fabric.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *PushSession) fail(err error, what string) {
	if isBenign(err) {
		s.log.Debug(what, zap.Error(err))
		return
	}
	s.log.Warn(what, zap.Error(err))
}
