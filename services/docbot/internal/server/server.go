package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docbot/internal/ratelimit"
	"docbot/internal/readiness"
	"docbot/internal/util"
	"docbot/pkg/vectorstore"
	"docbot/services/docbot/internal/app"
)

const (
	// SessionCookieName carries the dashboard session token.
	SessionCookieName = "docbot_session"
	serviceName       = "docbot"
	genericChatError  = "Sorry, something went wrong. Please try again."
	notReadyMessage   = "The embedding model is still loading. Please try again shortly."
	maxJSONBodyBytes  = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	RedisAddr                string
	RedisPassword            string
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	ChatRateLimitPerMinute   int
	MaxUploadBytes           int64
	TrustedProxyCIDRs        []string
	CookieSecure             bool
	SessionTTL               time.Duration
}

// Server exposes the docbot HTTP API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	trusted        *util.TrustedProxies
	cookieSecure   bool
	sessionTTL     time.Duration
	signupLimiter  ratelimit.Limiter
	loginLimiter   ratelimit.Limiter
	chatLimiter    ratelimit.Limiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	newLimiter := func(name string, limit, def int) (ratelimit.Limiter, error) {
		if limit <= 0 {
			limit = def
		}
		limiter, err := ratelimit.New(ratelimit.Config{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			Prefix:        "docbot:ratelimit:" + name,
			Limit:         limit,
			Window:        time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", cfg.SignupRateLimitPerMinute, 5)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", cfg.LoginRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	chatLimiter, err := newLimiter("chat", cfg.ChatRateLimitPerMinute, 30)
	if err != nil {
		return nil, err
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		trusted:        trusted,
		cookieSecure:   cfg.CookieSecure,
		sessionTTL:     ttl,
		signupLimiter:  signupLimiter,
		loginLimiter:   loginLimiter,
		chatLimiter:    chatLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = util.WithSecurityHeaders(util.WithCORS(s.mux))
	h = util.WithRequestLog(serviceName, h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/dashboard", s.handleDashboard)

	// bots (session required)
	s.mux.Handle("/api/bots", s.authenticated(s.handleBots))
	s.mux.Handle("/api/bots/", s.authenticated(s.handleBotByID))

	// widget
	s.mux.HandleFunc("/api/widget/chat", s.handleWidgetChat)
	s.mux.HandleFunc("/api/widget/", s.handleWidgetConfig)

	// single-tenant endpoints
	s.mux.HandleFunc("/upload", s.handleLegacyUpload)
	s.mux.HandleFunc("/chat", s.handleLegacyChat)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Health())
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: util.RequestIDFromRequest(r)})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// writeAppError maps application errors to status codes. Anything unrecognised
// is logged and answered with a generic message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrPasswordMismatch):
		writeError(w, r, http.StatusBadRequest, "Passwords do not match")
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "Email already registered")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrUnsupportedFile):
		writeError(w, r, http.StatusBadRequest, "Only PDF files are allowed")
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, inputMessage(err))
	case errors.Is(err, app.ErrBotNotFound):
		writeError(w, r, http.StatusNotFound, "Bot not found")
	case errors.Is(err, app.ErrDocumentNotFound):
		writeError(w, r, http.StatusNotFound, "Document not found")
	case errors.Is(err, app.ErrTenantNotFound), errors.Is(err, vectorstore.ErrCollectionNotFound):
		writeError(w, r, http.StatusNotFound, "Tenant not found")
	case errors.Is(err, readiness.ErrNotReady):
		util.LoggerFromContext(r.Context()).Warn("embeddings_not_ready", "path", r.URL.Path, "err", err)
		w.Header().Set("Retry-After", "5")
		writeError(w, r, http.StatusServiceUnavailable, notReadyMessage)
	default:
		util.LoggerFromContext(r.Context()).Error("request_failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, genericChatError)
	}
}

// inputMessage strips the sentinel prefix so clients see only the detail.
func inputMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), app.ErrInvalidInput.Error()+": ")
	if msg == "" || msg == app.ErrInvalidInput.Error() {
		return "invalid input"
	}
	return msg
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 20 << 20
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, msg string) bool {
	key := r.URL.Path + "|" + s.clientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, r, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trusted)
}
