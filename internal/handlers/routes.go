package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sdko-org/portfolio-backend/internal/ratelimit"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ChainOptions struct {
	CORSOrigins []string
	TrustProxy  bool
	// AccessLogDB receives one access_logs row per request; nil disables it.
	AccessLogDB *gorm.DB
}

// RegisterRoutes wires the public and admin API onto r. Preflight requests
// never reach r; CORSMiddleware answers them.
func RegisterRoutes(r *mux.Router, logger *logrus.Logger, h *Handler, limiters *ratelimit.ClientLimiters) {
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	throttled := RateLimitMiddleware(logger, limiters)

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/contact", h.Contact).Methods(http.MethodPost)
	r.Handle("/analytics", throttled(http.HandlerFunc(h.RecordEvent))).Methods(http.MethodPost)
	r.Handle("/analytics", h.RequireAdmin(h.AnalyticsQuery)).Methods(http.MethodGet)
	r.Handle("/track", throttled(http.HandlerFunc(h.Track))).Methods(http.MethodPost)

	r.Handle("/admin/login", throttled(http.HandlerFunc(h.Login))).Methods(http.MethodPost)
	r.Handle("/admin/dashboard", h.RequireAdmin(h.Dashboard)).Methods(http.MethodGet)
	r.Handle("/admin/submissions", h.RequireAdmin(h.ListSubmissions)).Methods(http.MethodGet)
	r.Handle("/admin/submissions/{id:[0-9]+}", h.RequireAdmin(h.GetSubmission)).Methods(http.MethodGet)
	r.Handle("/admin/submissions/{id:[0-9]+}/status", h.RequireAdmin(h.UpdateStatus)).Methods(http.MethodPost)
	r.Handle("/admin/submissions/{id:[0-9]+}/resume", h.RequireAdmin(h.DownloadResume)).Methods(http.MethodGet)
}

// Chain wraps the router with the middleware every request passes through,
// outermost first.
func Chain(r http.Handler, logger *logrus.Logger, opts ChainOptions) http.Handler {
	var handler http.Handler = r
	handler = CORSMiddleware(opts.CORSOrigins)(handler)
	handler = LoggingMiddleware(logger, opts.AccessLogDB)(handler)
	handler = ClientMiddleware(opts.TrustProxy)(handler)
	return handler
}
