package network

import (
	"fmt"
	"net/http"

	"ccfolio/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Router is an exact-match (method, path) dispatch table. There is no pattern
// matching: "/users/:id" only ever matches the literal string "/users/:id".
//
// Routes are registered at startup; registering while sessions are being
// served is not supported.
type Router struct {
	routes  map[string]Handler
	log     *zap.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

func NewRouter(log *zap.Logger) *Router {
	return &Router{
		routes: make(map[string]Handler),
		log:    log,
		tracer: otel.Tracer("ccfolio/internal/network"),
	}
}

// Instrument counts handler failures in m.
func (r *Router) Instrument(m *metrics.Metrics) {
	r.metrics = m
}

func routeKey(method, path string) string {
	return method + ":" + path
}

// Handle registers h for the exact key. A second registration for the same key
// replaces the first; that is logged since it is usually a wiring mistake.
func (r *Router) Handle(method, path string, h Handler) {
	key := routeKey(method, path)
	if _, exists := r.routes[key]; exists {
		r.log.Warn("route registered twice, last registration wins",
			zap.String("method", method), zap.String("path", path))
	}
	r.routes[key] = h
}

func (r *Router) Get(path string, h Handler)  { r.Handle(http.MethodGet, path, h) }
func (r *Router) Post(path string, h Handler) { r.Handle(http.MethodPost, path, h) }

// Dispatch runs the handler registered for req and reports whether one was
// found. Handler errors and panics are contained here and turned into a 500.
func (r *Router) Dispatch(req *Request, res *Response) bool {
	h, ok := r.routes[routeKey(req.Method, req.Path)]
	if !ok {
		return false
	}

	ctx, span := r.tracer.Start(req.Context(), req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.Path),
		))
	defer span.End()

	if err := r.invoke(h, req.WithContext(ctx), res); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.HandlerError()

		r.log.Error("handler failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err))

		res.reset()
		_ = res.JSON(http.StatusInternalServerError, map[string]string{"message": "internal server error"})
	}

	span.SetAttributes(attribute.Int("http.status_code", res.Status))
	return true
}

func (r *Router) invoke(h Handler, req *Request, res *Response) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("network: handler panic: %v", p)
		}
	}()
	return h(req, res)
}
