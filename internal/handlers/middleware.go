package handlers

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/auth"
	"github.com/sdko-org/portfolio-backend/internal/intake"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/ratelimit"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	bytesSent  int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesSent += n
	return n, err
}

// ClientMiddleware stores the caller's address and user agent in the request
// context for the security log and the rate limiters.
func ClientMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := audit.Client{IP: getClientIP(r, trustProxy), UserAgent: r.UserAgent()}
			next.ServeHTTP(w, r.WithContext(audit.WithClient(r.Context(), client)))
		})
	}
}

// LoggingMiddleware logs every request and, when db is non-nil, stores an
// access log row in the background.
func LoggingMiddleware(logger *logrus.Logger, db *gorm.DB) func(http.Handler) http.Handler {
	logEntry := logger.WithField("component", "http_middleware")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()
			w.Header().Set("X-Request-ID", requestID)
			lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			client := audit.ClientFrom(r.Context())

			defer func() {
				if p := recover(); p != nil {
					logEntry.WithFields(logrus.Fields{
						"request_id": requestID,
						"panic":      p,
					}).Error("Handler panicked")
					if lrw.bytesSent == 0 {
						writeJSON(lrw, http.StatusInternalServerError, response{Success: false, Message: internalErrorMessage})
					}
				}

				duration := time.Since(start)
				logEntry.WithFields(logrus.Fields{
					"request_id": requestID,
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     lrw.statusCode,
					"duration":   duration,
					"client_ip":  client.IP,
					"bytes":      lrw.bytesSent,
					"user_agent": client.UserAgent,
				}).Info("Request processed")

				if db == nil {
					return
				}
				entry := models.AccessLog{
					Timestamp: start,
					Method:    r.Method,
					Path:      r.URL.Path,
					Status:    lrw.statusCode,
					Duration:  duration,
					ClientIP:  client.IP,
					UserAgent: client.UserAgent,
					BytesSent: lrw.bytesSent,
					RequestID: requestID,
				}
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()

					if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
						logEntry.WithError(err).Warn("Failed to save access log")
					}
				}()
			}()

			next.ServeHTTP(lrw, r)
		})
	}
}

// CORSMiddleware sets the CORS and JSON content type headers on every
// response and answers preflight requests directly.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(origins, strings.ToLower(origin)):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Content-Type", "application/json")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RateLimitMiddleware(logger *logrus.Logger, limiters *ratelimit.ClientLimiters) func(http.Handler) http.Handler {
	logEntry := logger.WithField("component", "http_middleware")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := audit.ClientFrom(r.Context())
			if !limiters.Allow(client.IP) {
				logEntry.WithFields(logrus.Fields{
					"client_ip": client.IP,
					"path":      r.URL.Path,
				}).Warn("Rate limit exceeded")
				writeJSON(w, http.StatusTooManyRequests, response{Success: false, Message: intake.RateLimitMessage})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects requests without a valid admin bearer token and
// attaches the verified Principal to the request context.
func (h *Handler) RequireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := h.auth.Verify(auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			h.writeError(w, r, unauthorized(err))
			return
		}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, header := range []string{"X-Forwarded-For", "X-Real-IP"} {
			first, _, _ := strings.Cut(r.Header.Get(header), ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}
