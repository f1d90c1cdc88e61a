// Package server exposes canvas sessions over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /version
//	GET  /metrics
//	GET  /canvases/{id}
//	POST /canvases/{id}/nodes
//	DELETE /canvases/{id}/nodes/{nodeID}
//	PUT  /canvases/{id}/nodes/{nodeID}/position
//	PUT  /canvases/{id}/nodes/{nodeID}/size
//	POST /canvases/{id}/nodes/{nodeID}/relayout
//	POST /canvases/{id}/edges
//	POST /canvases/{id}/layout
//	PUT  /canvases/{id}/selection
//	GET  /canvases/{id}/render.{format}
//	GET  /canvases/{id}/ws
//
// Every canvas request goes through the session registry, so a canvas is
// loaded from the store on first access and all requests for it share one
// document.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/canvasgraph/pkg/collab"
	"github.com/matzehuels/canvasgraph/pkg/layout"
	"github.com/matzehuels/canvasgraph/pkg/pipeline"
	"github.com/matzehuels/canvasgraph/pkg/placement"
)

// Config holds listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the canvas API.
type Server struct {
	cfg       Config
	registry  *collab.Registry
	transport collab.Transport
	runner    *pipeline.Runner
	layout    layout.Options
	spacing   placement.Spacing
	gatherer  prometheus.Gatherer
	logger    *log.Logger
	validate  *validator.Validate
	upgrader  websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer selects the registry served on /metrics. Defaults to the
// global Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithLayoutOptions sets the options of full layouts.
func WithLayoutOptions(o layout.Options) Option { return func(s *Server) { s.layout = o } }

// WithSpacing sets the spacing of branch relayouts.
func WithSpacing(sp placement.Spacing) Option { return func(s *Server) { s.spacing = sp } }

// WithCheckOrigin replaces the websocket origin check, which by default
// only accepts same-host requests.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// New creates a server. The transport must be the one the registry's
// sessions publish on; websocket clients subscribe to it directly.
func New(cfg Config, registry *collab.Registry, transport collab.Transport, runner *pipeline.Runner, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		transport: transport,
		runner:    runner,
		layout:    layout.DefaultOptions(),
		spacing:   placement.DefaultSpacing(),
		gatherer:  prometheus.DefaultGatherer,
		logger:    log.Default(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.layout.Logger == nil {
		s.layout.Logger = s.logger
	}
	return s
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)
	r.Get("/version", s.version)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/canvases/{id}", func(r chi.Router) {
		r.Get("/", s.getCanvas)
		r.Post("/nodes", s.addNode)
		r.Delete("/nodes/{nodeID}", s.deleteNode)
		r.Put("/nodes/{nodeID}/position", s.moveNode)
		r.Put("/nodes/{nodeID}/size", s.updateSize)
		r.Post("/nodes/{nodeID}/relayout", s.relayoutBranch)
		r.Post("/edges", s.connect)
		r.Post("/layout", s.layoutCanvas)
		r.Put("/selection", s.setSelection)
		r.Get("/render.{format}", s.render)
		r.Get("/ws", s.stream)
	})
	return r
}

// Run serves until ctx is done, then shuts the listener down and closes
// every session so their state is persisted.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		s.logger.Info("shutting down")
		return errors.Join(srv.Shutdown(shutdownCtx), s.registry.Close(shutdownCtx))
	})
	return g.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
			"requestId", chimiddleware.GetReqID(r.Context()))
	})
}
