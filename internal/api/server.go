// Package api provides the HTTP surface of the PingUp backend: the
// SSE stream endpoint, the message/story/connection routes, and the
// operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/pingup/pingup/internal/api/middleware"
	"github.com/pingup/pingup/internal/core"
	"github.com/pingup/pingup/internal/metrics"
	"github.com/pingup/pingup/internal/stream"
	"github.com/pingup/pingup/internal/workflow"
)

// Server wires the core components behind a Chi router.
type Server struct {
	router   chi.Router
	storage  core.Storage
	identity core.Identity
	registry *stream.Registry
	broker   *stream.Broker
	engine   *workflow.Engine
	limiter  *middleware.SubjectLimiter
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	webhookSecret string
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithRateLimiter sets the per-subject limiter applied to mutating
// endpoints.
func WithRateLimiter(l *middleware.SubjectLimiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// WithGatherer sets the Prometheus gatherer served on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithMetrics sets the metrics bundle used by the stream endpoint.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithWebhookSecret enables the identity webhook endpoint, which
// rejects calls not bearing the secret.
func WithWebhookSecret(secret string) ServerOption {
	return func(s *Server) { s.webhookSecret = secret }
}

// NewServer creates the API server.
func NewServer(
	storage core.Storage,
	identity core.Identity,
	registry *stream.Registry,
	broker *stream.Broker,
	engine *workflow.Engine,
	opts ...ServerOption,
) *Server {
	s := &Server{
		storage:  storage,
		identity: identity,
		registry: registry,
		broker:   broker,
		engine:   engine,
		logger:   slog.Default(),
		metrics:  metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	auth := middleware.Auth(s.identity)
	limited := middleware.RateLimit(s.limiter)

	r.Route("/api", func(r chi.Router) {
		r.Route("/message", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.With(limited).Post("/send", s.handleSendMessage)
				r.Get("/chat-messages", s.handleChatMessages)
				r.Get("/recent", s.handleRecentMessages)
				// SSE stream; auth falls back to ?token= for EventSource.
				r.Get("/{userID}", s.handleStream)
			})
		})

		r.Route("/story", func(r chi.Router) {
			r.Use(auth)
			r.With(limited).Post("/create", s.handleCreateStory)
			r.Get("/feed", s.handleStoriesFeed)
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(auth)
			r.With(limited).Post("/connect", s.handleConnect)
			r.Post("/accept", s.handleAccept)
			r.Get("/connections", s.handleConnections)
		})
	})

	if s.webhookSecret != "" {
		r.Post("/webhooks/identity", s.handleIdentityWebhook)
	}

	return r
}

// loggingMiddleware logs HTTP requests. The stream endpoint is logged
// on disconnect, which for healthy clients is hours after connect.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// decodeJSON decodes a request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe starts the HTTP server and shuts it down gracefully
// when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	return srv.ListenAndServe()
}
