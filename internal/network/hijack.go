package network

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
)

// hijackWriter lets websocket.Upgrader run on a connection the session has
// been reading by hand. Rejections written before the hijack are captured so
// the session can send them itself; after Hijack the upgrader owns the wire.
type hijackWriter struct {
	conn     net.Conn
	rw       *bufio.ReadWriter
	header   http.Header
	status   int
	body     bytes.Buffer
	hijacked bool
}

func newHijackWriter(conn net.Conn, br *bufio.Reader, bw *bufio.Writer) *hijackWriter {
	return &hijackWriter{
		conn:   conn,
		rw:     bufio.NewReadWriter(br, bw),
		header: make(http.Header),
	}
}

func (w *hijackWriter) Header() http.Header {
	return w.header
}

func (w *hijackWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *hijackWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return w.conn, w.rw, nil
}

// rejection returns the response the upgrader tried to write, if any.
func (w *hijackWriter) rejection() (*Response, bool) {
	if w.hijacked || w.status == 0 {
		return nil, false
	}
	return &Response{
		Status: w.status,
		Header: w.header,
		Body:   w.body.Bytes(),
		Close:  true,
	}, true
}
