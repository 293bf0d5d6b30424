// Package http is the JSON API surface of the dashboard backend.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kovara/internal/log"
	"kovara/internal/services"
)

const sessionCookieName = "kovara-session"

type Server struct {
	http.Server
	users       *services.UserService
	accounts    *services.AccountService
	transfers   *services.TransferService
	financials  *services.FinancialsService
	rateLimiter *rateLimiter

	secureCookies bool
	now           func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires the routes and middleware, returning a ready-to-run server.
func NewServer(
	addr string,
	users *services.UserService,
	accounts *services.AccountService,
	transfers *services.TransferService,
	financials *services.FinancialsService,
	secureCookies bool,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		users:         users,
		accounts:      accounts,
		transfers:     transfers,
		financials:    financials,
		rateLimiter:   newRateLimiter(),
		secureCookies: secureCookies,
		now:           time.Now,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/auth/sign-up", s.withSecurityHeaders(s.handleSignUp))
	mux.HandleFunc("POST /api/auth/sign-in", s.withSecurityHeaders(s.handleSignIn))
	mux.HandleFunc("POST /api/auth/sign-out", s.withSecurityHeaders(s.handleSignOut))
	mux.HandleFunc("GET /api/auth/me", s.withSecurityHeaders(s.withSession(s.handleMe)))

	mux.HandleFunc("POST /api/link/token", s.withSecurityHeaders(s.withSession(s.handleCreateLinkToken)))
	mux.HandleFunc("POST /api/link/exchange", s.withSecurityHeaders(s.withSession(s.handleExchangePublicToken)))

	mux.HandleFunc("GET /api/accounts", s.withSecurityHeaders(s.withSession(s.handleListAccounts)))
	mux.HandleFunc("GET /api/accounts/{id}", s.withSecurityHeaders(s.withSession(s.handleGetAccount)))
	mux.HandleFunc("GET /api/transactions", s.withSecurityHeaders(s.withSession(s.handleListTransactions)))

	mux.HandleFunc("POST /api/transfers", s.withSecurityHeaders(s.withSession(s.handleCreateTransfer)))

	mux.HandleFunc("GET /api/financials/current-month", s.withSecurityHeaders(s.withSession(s.handleCurrentMonthFinancials)))

	return s
}

// Shutdown stops the rate limiter's cleanup goroutine and then the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting on writes, and
// request logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP,
			log.FieldUserAgent, r.Header.Get("User-Agent"),
			log.FieldComponent, log.ComponentHTTP)

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path,
				log.FieldComponent, log.ComponentRateLimit)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later.")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP,
			log.FieldComponent, log.ComponentHTTP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
