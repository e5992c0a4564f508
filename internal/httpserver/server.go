package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ultima-ai/ultima-broker/internal/auth"
	"github.com/ultima-ai/ultima-broker/internal/broker"
	"github.com/ultima-ai/ultima-broker/internal/generator"
	"github.com/ultima-ai/ultima-broker/internal/pricing"
)

// Server exposes the broker's REST endpoints.
type Server struct {
	broker       *broker.Broker
	auth         *auth.Manager
	authDisabled bool
	logger       *log.Logger
	logLevel     string
}

// New creates an HTTP server around the broker. auth may be nil when
// authDisabled is true; then the caller identity is taken from the request
// body or query string.
func New(b *broker.Broker, authManager *auth.Manager, authDisabled bool) *Server {
	return &Server{
		broker:       b,
		auth:         authManager,
		authDisabled: authDisabled,
		logger:       log.New(os.Stdout, "[broker/http] ", log.LstdFlags|log.Lmicroseconds),
		logLevel:     "info",
	}
}

// SetLogger overrides the default logger.
func (s *Server) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetLogLevel adjusts verbosity ("debug" enables per-request detail).
func (s *Server) SetLogLevel(level string) {
	if strings.TrimSpace(level) != "" {
		s.logLevel = strings.ToLower(strings.TrimSpace(level))
	}
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }

func (s *Server) debugf(format string, args ...any) {
	if s.isDebug() {
		s.logger.Printf(format, args...)
	}
}

// Router builds the chi handler with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Post("/auth/session", s.handleAuthSession)

		api.Group(func(private chi.Router) {
			if s.auth != nil && !s.authDisabled {
				private.Use(s.sessionMiddleware)
			}
			private.Post("/chat", s.handleChat)
			private.Post("/code/suggest", s.handleCodeSuggest)
			private.Post("/tool/suggest", s.handleToolSuggest)
			private.Get("/prompt/get", s.handlePromptGet)
			private.Get("/prompt/suggest", s.handlePromptSuggest)
			private.Get("/token/balance", s.handleBalance)
			private.Get("/token/pricing", s.handlePricing)
			private.Post("/token/purchase", s.handlePurchase)
			private.Get("/token/history", s.handleHistory)
		})
	})

	return r
}

type sessionContextKey struct{}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.respondError(w, http.StatusUnauthorized, errors.New("missing session token"))
			return
		}
		userID, err := s.auth.VerifyToken(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// userID resolves the caller identity. A verified session always wins;
// otherwise the explicit value is accepted (auth disabled mode).
func (s *Server) userID(r *http.Request, explicit string) string {
	if v, ok := r.Context().Value(sessionContextKey{}).(string); ok && v != "" {
		return v
	}
	if strings.TrimSpace(explicit) != "" {
		return strings.TrimSpace(explicit)
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

// respondBrokerError maps broker errors onto HTTP statuses. Insufficient
// balance gets 402 with both amounts so the client can prompt a purchase.
func (s *Server) respondBrokerError(w http.ResponseWriter, err error) {
	var insufficient *broker.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		s.respondJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     insufficient.Error(),
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
		return
	}
	if errors.Is(err, pricing.ErrUnknownOperation) || errors.Is(err, pricing.ErrUnknownPackage) {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	var reqErr *generator.RequestError
	if errors.As(err, &reqErr) {
		s.respondError(w, http.StatusBadGateway, err)
		return
	}
	if errors.Is(err, generator.ErrNotConfigured) {
		s.respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.respondError(w, http.StatusInternalServerError, err)
}
