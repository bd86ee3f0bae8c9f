package network

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	lingerTimeout  = 500 * time.Millisecond
	maxLingerBytes = 256 << 10
)

type SessionState int32

const (
	StateIdle SessionState = iota
	StateReadingRequest
	StateDispatching
	StateWritingResponse
	StateUpgrading
	StateHandedOff
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	"idle", "reading", "dispatching", "writing", "upgrading", "handed-off", "closing", "closed",
}

func (s SessionState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Session serves one connection in request/response mode. Serve runs on a
// single goroutine and performs one read or one write at a time; nothing else
// touches the connection until Serve returns or hands it to a PushSession.
type Session struct {
	conn   net.Conn
	br     *bufio.Reader
	bw     *bufio.Writer
	fabric *fabric
	log    *zap.Logger

	state     atomic.Int32
	closeOnce sync.Once
}

func newSession(conn net.Conn, f *fabric) *Session {
	return &Session{
		conn:   conn,
		br:     bufio.NewReader(conn),
		bw:     bufio.NewWriter(conn),
		fabric: f,
		log:    f.log.With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Serve loops read, dispatch, write until the peer leaves, a response asks
// for close, an error occurs, or the connection is upgraded.
func (s *Session) Serve(ctx context.Context) {
	for {
		s.setState(StateReadingRequest)
		httpReq, req, err := s.readRequest(ctx)
		if err != nil {
			s.handleReadError(httpReq, err)
			s.close()
			return
		}

		if websocket.IsWebSocketUpgrade(httpReq) {
			s.setState(StateUpgrading)
			s.upgrade(ctx, httpReq)
			return
		}

		s.setState(StateDispatching)
		res := NewResponse()
		if !s.fabric.router.Dispatch(req, res) {
			res.Text(http.StatusNotFound, "Not Found")
		}

		s.setState(StateWritingResponse)
		closeAfter := httpReq.Close || res.Close
		if err := s.writeResponse(httpReq, res, closeAfter); err != nil {
			s.fail(err, "write")
			s.close()
			return
		}
		s.fabric.metrics.RequestServed(req.Method, res.Status)

		if closeAfter {
			s.close()
			return
		}
	}
}

func (s *Session) readRequest(ctx context.Context) (*http.Request, *Request, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.fabric.cfg.ReadTimeout)); err != nil {
		return nil, nil, err
	}

	httpReq, err := http.ReadRequest(s.br)
	if err != nil {
		return nil, nil, err
	}

	limit := s.fabric.cfg.MaxBodyBytes
	if httpReq.ContentLength > limit {
		return httpReq, nil, ErrBodyTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(httpReq.Body, limit+1))
	if err != nil {
		return httpReq, nil, err
	}
	if int64(len(body)) > limit {
		return httpReq, nil, ErrBodyTooLarge
	}

	req := &Request{
		Method:     httpReq.Method,
		Path:       httpReq.URL.Path,
		Query:      httpReq.URL.Query(),
		Header:     httpReq.Header,
		Body:       body,
		RemoteAddr: s.conn.RemoteAddr().String(),
		ctx:        ctx,
	}
	return httpReq, req, nil
}

func (s *Session) handleReadError(httpReq *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		s.fabric.metrics.ProtocolViolation("body_too_large")
		s.log.Warn("request body too large", zap.Int64("limit", s.fabric.cfg.MaxBodyBytes))
		s.reject(httpReq, http.StatusRequestEntityTooLarge, "Payload Too Large")
	case isTimeout(err):
		s.log.Debug("closing idle connection")
	case isBenign(err):
		// peer closed between requests
	default:
		s.fabric.metrics.ProtocolViolation("malformed_request")
		s.log.Warn("read request", zap.Error(err))
		s.reject(httpReq, http.StatusBadRequest, "Bad Request")
	}
}

// reject writes a best-effort error response before the connection closes.
func (s *Session) reject(httpReq *http.Request, status int, text string) {
	res := NewResponse()
	res.Text(status, text)
	if err := s.writeResponse(httpReq, res, true); err != nil {
		s.log.Debug("write rejection", zap.Error(err))
	}
}

func (s *Session) writeResponse(httpReq *http.Request, res *Response, closeAfter bool) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.fabric.cfg.WriteTimeout)); err != nil {
		return err
	}

	header := res.Header
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Server", "ccfolio")

	resp := &http.Response{
		StatusCode:    res.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Request:       httpReq,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(res.Body)),
		ContentLength: int64(len(res.Body)),
		Close:         closeAfter,
	}
	if httpReq != nil && httpReq.ProtoMajor == 1 && httpReq.ProtoMinor == 0 {
		resp.ProtoMinor = 0
		if !closeAfter {
			header.Set("Connection", "keep-alive")
		}
	}

	if err := resp.Write(s.bw); err != nil {
		return err
	}
	return s.bw.Flush()
}

// upgrade hands the connection to a PushSession. From here on this Session
// never reads or writes the connection again.
func (s *Session) upgrade(ctx context.Context, httpReq *http.Request) {
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		s.fail(err, "upgrade")
		s.close()
		return
	}

	if !s.admit(ctx, httpReq) {
		s.fabric.metrics.PushRejected()
		s.reject(httpReq, http.StatusUnauthorized, "Unauthorized")
		s.close()
		return
	}

	w := newHijackWriter(s.conn, s.br, s.bw)
	conn, err := s.fabric.upgrader.Upgrade(w, httpReq, nil)
	if err != nil {
		s.fabric.metrics.ProtocolViolation("bad_upgrade")
		s.log.Warn("upgrade", zap.Error(err))
		if res, ok := w.rejection(); ok {
			if werr := s.writeResponse(httpReq, res, true); werr != nil {
				s.log.Debug("write upgrade rejection", zap.Error(werr))
			}
		}
		s.close()
		return
	}

	s.setState(StateHandedOff)
	newPushSession(conn, s.fabric).run(ctx)
}

func (s *Session) admit(ctx context.Context, httpReq *http.Request) bool {
	if s.fabric.verifier == nil {
		return true
	}
	credential := httpReq.URL.Query().Get("api_key")
	if credential == "" {
		s.log.Info("push upgrade without api key")
		return false
	}
	if !s.fabric.verifier.Verify(ctx, credential) {
		s.log.Info("push upgrade with invalid api key")
		return false
	}
	return true
}

func (s *Session) fail(err error, what string) {
	if isBenign(err) {
		return
	}
	s.log.Warn(what, zap.Error(err))
}

// linger drains unread input for a short while after the write side is shut,
// so the kernel does not answer leftover request bytes with a reset that
// would destroy the response still in flight.
func (s *Session) linger() {
	if err := s.conn.SetReadDeadline(time.Now().Add(lingerTimeout)); err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(s.br, maxLingerBytes))
}

// close is safe to reach from every exit path.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		if tc, ok := s.conn.(interface{ CloseWrite() error }); ok {
			if tc.CloseWrite() == nil {
				s.linger()
			}
		}
		if err := s.conn.Close(); err != nil && !isBenign(err) {
			s.log.Debug("close", zap.Error(err))
		}
		s.setState(StateClosed)
	})
}
