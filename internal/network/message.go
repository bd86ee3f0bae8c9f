package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Request is one fully read request. Body has already been drained from the
// connection and is bounded by the session's body limit.
type Request struct {
	Method     string
	Path       string
	Query      url.Values
	Header     http.Header
	Body       []byte
	RemoteAddr string

	ctx context.Context
}

func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r carrying ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// Response is the sink a Handler fills. Setting Close asks the session to
// drop the connection after the response is written.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Close  bool
}

func NewResponse() *Response {
	return &Response{
		Status: http.StatusOK,
		Header: make(http.Header),
	}
}

// Handler writes its response into res. A returned error is converted into a
// generic failure response by the Router.
type Handler func(req *Request, res *Response) error

func (r *Response) Text(status int, body string) {
	r.Status = status
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	r.Body = []byte(body)
}

func (r *Response) JSON(status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Status = status
	r.Header.Set("Content-Type", "application/json")
	r.Body = body
	return nil
}

func (r *Response) reset() {
	r.Status = http.StatusOK
	r.Header = make(http.Header)
	r.Body = nil
}
