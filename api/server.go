// Package api is the HTTP/WebSocket ingress: a thin translation layer from
// REST requests and WS subscriptions onto the matching engine, the
// settlement store, and the event bus. It owns no domain state of its own.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"kwh-exchange/config"
	"kwh-exchange/domain"
	"kwh-exchange/eventbus"
	"kwh-exchange/journal"
	"kwh-exchange/matching"
	"kwh-exchange/metrics"
)

// Server wires the core (matching engine, durable store, event bus) to a
// chi router and a WebSocket hub.
type Server struct {
	engine      *matching.Engine
	store       *journal.Store
	bus         *eventbus.Bus
	cfg         config.APIConfig
	bookCfg     config.BookConfig
	wsCfg       config.WSConfig
	metrics     *metrics.Collector
	hub         *wsHub
	httpServer  *http.Server
}

// NewServer builds the router and HTTP server but does not start listening.
func NewServer(engine *matching.Engine, store *journal.Store, bus *eventbus.Bus, cfg config.APIConfig, bookCfg config.BookConfig, wsCfg config.WSConfig) *Server {
	s := &Server{
		engine:  engine,
		store:   store,
		bus:     bus,
		cfg:     cfg,
		bookCfg: bookCfg,
		wsCfg:   wsCfg,
		metrics: metrics.GetCollector(),
		hub:     newWSHub(bus, wsCfg.QueueCapacity),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "X-Owner-ID", "X-Admin-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", s.submitOrder)
		r.Get("/", s.listMyOrders)
		r.Get("/{id}", s.getOrder)
		r.Delete("/{id}", s.cancelOrder)
	})
	r.Route("/market", func(r chi.Router) {
		r.Get("/depth", s.getDepth)
		r.Get("/stats", s.getMarketStats)
		r.Get("/clearing-price", s.getClearingPrice)
		r.Get("/trades/recent", s.listRecentTrades)
	})
	r.Post("/admin/control", s.adminControl)
	r.Get("/ws", s.serveWS)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the hub's dispatch loop and begins serving HTTP, blocking until
// the server stops or the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("api listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.RecordAPIRequest(r.Method, route, http.StatusText(ww.Status()), timer.ElapsedMs())
	})
}

// ownerFromRequest reads the trusted owner-identity header. This process
// does no authentication itself; the HTTP boundary is assumed to run behind
// a layer that sets this header after verifying the caller.
func ownerFromRequest(r *http.Request) string {
	return r.Header.Get("X-Owner-ID")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusForDomainError maps a core error kind to its HTTP status.
// Unrecognized errors are treated as internal.
func statusForDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidExpiry),
		errors.Is(err, domain.ErrUnknownSide),
		errors.Is(err, domain.ErrExpired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoTrades):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDuplicateID),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrMarketPaused),
		errors.Is(err, domain.ErrNoLiquidity):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEngineHalted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
