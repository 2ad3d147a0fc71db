package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"tableside/internal/auth"
	"tableside/internal/config"
	"tableside/internal/events"
	"tableside/internal/metrics"
	"tableside/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Services bundles what the HTTP handlers call into.
type Services struct {
	Credentials *service.CredentialService
	Sessions    *service.SessionService
	Orders      *service.OrderService
	StaffAuth   *service.StaffAuthService
	Resolver    *auth.Resolver
	Hub         *events.Hub

	// Health reports whether backing stores are reachable. Optional.
	Health func(ctx context.Context) error
}

// HTTPServer exposes the guest and staff API plus the staff websocket.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      Services
	limiter  *rateLimiter
	upgrader websocket.Upgrader
	logger   *zerolog.Logger
	server   *http.Server
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	s.route(mux, "GET /healthz", s.handleHealth)
	s.route(mux, "GET /session", s.handleSession)
	s.route(mux, "POST /session/leave", s.handleLeave)
	s.route(mux, "POST /session/call-staff", s.handleCallStaff)
	s.route(mux, "POST /auth/login", s.handleLogin)
	s.route(mux, "POST /orders", s.handleCreateOrder)
	s.route(mux, "GET /orders/{id}", s.handleGetOrder)
	s.route(mux, "PATCH /orders/{id}/status", s.handleOrderStatus)
	s.route(mux, "GET /tables/{id}/orders", s.handleTableOrders)
	s.route(mux, "POST /tables/{id}/salt", s.handleRegenerateSalt)
	s.route(mux, "PATCH /tables/{id}/status", s.handleTableStatus)
	s.route(mux, "PATCH /tables/{id}/disabled", s.handleTableDisabled)
	s.route(mux, "GET /ws", s.handleWS)

	handler := s.loggingMiddleware(s.limiter.Wrap(s.identityMiddleware(mux)))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		h(w, r)
	})
}

func (s *HTTPServer) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := s.svc.Resolver.Resolve(bearerToken(r))
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter browsers use for websockets.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.HTTP.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.HTTP.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
