package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	perrors "github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/metrics"
	"github.com/xraph/puzzle/internal/route"
)

const tracerName = "github.com/xraph/puzzle/internal/server"

// Handler serves one route.
type Handler func(req *Request, reply *Reply) error

// ErrorHandler writes the response for an error returned by a Handler.
type ErrorHandler func(err error, req *Request, reply *Reply)

// Server accepts route registrations and serves them over HTTP.
type Server struct {
	adapter      RouterAdapter
	logger       logger.Logger
	metrics      *metrics.Collector
	metricsPath  string
	tracer       trace.Tracer
	errorHandler ErrorHandler
	readTimeout  time.Duration
	writeTimeout time.Duration

	routes     []RouteInfo
	registered map[string]struct{}
	uses       []scopedMiddleware
	global Middleware

	httpServer *http.Server
	addr       net.Addr
	mu         sync.RWMutex
}

type scopedMiddleware struct {
	prefix     string
	middleware Middleware
}

// Option configures a Server.
type Option func(*Server)

// WithAdapter sets the routing backend.
func WithAdapter(adapter RouterAdapter) Option {
	return func(s *Server) {
		if adapter != nil {
			s.adapter = adapter
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records request metrics on c and, when path is not empty,
// serves the registry there.
func WithMetrics(c *metrics.Collector, path string) Option {
	return func(s *Server) {
		s.metrics = c
		s.metricsPath = path
	}
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithErrorHandler replaces the default error responder.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Server) {
		if h != nil {
			s.errorHandler = h
		}
	}
}

// WithTimeouts sets the HTTP read and write timeouts.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// New creates a server. Without options it routes with bunrouter and traces
// with the global tracer provider.
func New(opts ...Option) *Server {
	s := &Server{
		adapter:      NewBunRouterAdapter(),
		logger:       logger.NewNoopLogger(),
		tracer:       otel.GetTracerProvider().Tracer(tracerName),
		errorHandler: DefaultErrorHandler,
		registered:   make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.global = Chain(Recovery(s.logger), RequestID())

	if s.metrics != nil && s.metricsPath != "" {
		s.adapter.Handle(http.MethodGet, s.metricsPath, s.metrics.Handler())
		s.registered[routeKey(http.MethodGet, s.metricsPath)] = struct{}{}
	}

	return s
}

// DefaultErrorHandler replies with the error's HTTP status and a JSON body.
func DefaultErrorHandler(err error, _ *Request, reply *Reply) {
	status := perrors.GetHTTPStatusCode(err)

	_ = reply.Status(status).Send(map[string]any{
		"error": err.Error(),
	})
}

// AddRoute registers h for method under every path.
func (s *Server) AddRoute(paths []*route.Path, method string, h Handler, schema *Schema) error {
	if !route.ValidMethod(method) {
		return fmt.Errorf("unsupported method %q", method)
	}

	if h == nil {
		return fmt.Errorf("nil handler for %s %v", method, route.Strings(paths))
	}

	if len(paths) == 0 {
		return fmt.Errorf("no paths for %s route", method)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, len(paths))
	for i, p := range paths {
		key := routeKey(method, p.String())
		if _, exists := s.registered[key]; exists || slices.Contains(keys[:i], key) {
			return fmt.Errorf("%w: %s", perrors.ErrRouteConflict, key)
		}

		keys[i] = key
	}

	for i, p := range paths {
		pattern := p.String()

		if err := s.handle(method, pattern, instrument(s.tracer, s.metrics, method, pattern)(s.serve(h))); err != nil {
			return err
		}

		s.registered[keys[i]] = struct{}{}
		s.routes = append(s.routes, RouteInfo{Method: method, Path: pattern, Schema: schema})

		s.logger.Debug("route added",
			logger.String("method", method),
			logger.String("path", pattern),
		)
	}

	return nil
}

// handle registers on the adapter. Backends panic on conflicting
// patterns; the panic is returned as an error.
func (s *Server) handle(method, pattern string, h http.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", perrors.ErrRouteConflict, routeKey(method, pattern), r)
		}
	}()

	s.adapter.Handle(method, pattern, h)

	return nil
}

func routeKey(method, pattern string) string {
	return method + " " + pattern
}

// AddUse applies middleware to every request whose path starts with one of
// paths.
func (s *Server) AddUse(paths []*route.Path, mw Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range paths {
		s.uses = append(s.uses, scopedMiddleware{prefix: p.String(), middleware: mw})
	}
}

func (s *Server) serve(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := newRequest(r)
		reply := newReply(w)

		if err := h(req, reply); err != nil {
			if reply.Sent() {
				s.logger.Warn("handler failed after reply was sent",
					logger.String("path", r.URL.Path),
					logger.Error(err),
				)

				return
			}

			s.errorHandler(err, req, reply)

			return
		}

		reply.End()
	})
}

// ServeHTTP runs global and path-scoped middleware, then routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	var scoped []Middleware
	for _, use := range s.uses {
		if strings.HasPrefix(r.URL.Path, use.prefix) {
			scoped = append(scoped, use.middleware)
		}
	}
	s.mu.RUnlock()

	s.global(Chain(scoped...)(s.adapter)).ServeHTTP(w, r)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s
}

// Routes returns the registered routes in registration order.
func (s *Server) Routes() []RouteInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]RouteInfo(nil), s.routes...)
}

// Listen binds port and serves in the background. Bind errors are returned;
// port 0 picks a free port, see Addr.
func (s *Server) Listen(ctx context.Context, port int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()

		return perrors.ErrLifecycleError("listen", errors.New("server already listening"))
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		s.mu.Unlock()

		return err
	}

	srv := &http.Server{
		Handler:      s,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	s.httpServer = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("server listening", logger.String("addr", ln.Addr().String()))

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", logger.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.addr
}

// Shutdown gracefully stops serving.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	if srv == nil {
		return s.adapter.Close()
	}

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	return s.adapter.Close()
}
