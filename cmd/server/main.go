package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sdko-org/portfolio-backend/internal/analytics"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/auth"
	"github.com/sdko-org/portfolio-backend/internal/config"
	"github.com/sdko-org/portfolio-backend/internal/database"
	"github.com/sdko-org/portfolio-backend/internal/handlers"
	httpserver "github.com/sdko-org/portfolio-backend/internal/http"
	"github.com/sdko-org/portfolio-backend/internal/intake"
	"github.com/sdko-org/portfolio-backend/internal/notify"
	"github.com/sdko-org/portfolio-backend/internal/ratelimit"
	"github.com/sdko-org/portfolio-backend/internal/storage"
	"github.com/sdko-org/portfolio-backend/internal/submissions"
	"github.com/sdko-org/portfolio-backend/internal/sweeper"
	"github.com/sdko-org/portfolio-backend/internal/upload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	db, err := database.Open(logger, database.Config{
		Driver:     cfg.DBDriver,
		SQLitePath: cfg.SQLitePath,
		User:       cfg.PostgresUser,
		Password:   cfg.PostgresPassword,
		Host:       cfg.PostgresHost,
		Port:       cfg.PostgresPort,
		DBName:     cfg.PostgresDatabase,
		SSLMode:    cfg.PostgresSSLMode,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	files, err := newStorage(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize upload storage")
	}

	auditLog := audit.NewLogger(logger, db, cfg.StoreTimeout)
	recorder := submissions.NewRecorder(db)

	var sender notify.Sender
	if cfg.MailEnabled() {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			TLS:      cfg.SMTPTLS,
		})
	} else {
		logger.Warn("SMTP is not configured, contact notifications are disabled")
	}
	notifier := notify.NewNotifier(logger, sender, files, auditLog, notify.Config{
		AppName:       cfg.AppName,
		AdminEmail:    cfg.AdminEmail,
		From:          cfg.MailFrom,
		Timeout:       cfg.MailTimeout,
		MaxAttachment: cfg.MaxFileSize,
	})

	memoryLimiter := ratelimit.NewMemoryLimiter(cfg.ContactRateLimit, cfg.ContactRateWindow)
	clientLimiters := ratelimit.NewClientLimiters(cfg.RateLimit, cfg.RateLimitWindow)
	var contactLimiter ratelimit.Limiter = memoryLimiter
	var hits sweeper.Purger
	if cfg.RateLimitBackend == "database" {
		storeLimiter := ratelimit.NewStoreLimiter(db, cfg.ContactRateLimit, cfg.ContactRateWindow)
		contactLimiter = storeLimiter
		hits = storeLimiter
	}

	pipeline := intake.NewPipeline(logger, intake.Options{
		Limiter: contactLimiter,
		Uploads: upload.NewHandler(logger, files, auditLog, upload.Config{
			MaxFileSize:  cfg.MaxFileSize,
			AllowedTypes: cfg.AllowedFileTypes,
		}),
		Store:        recorder,
		Notifier:     notifier,
		Audit:        auditLog,
		StoreTimeout: cfg.StoreTimeout,
	})

	authenticator := auth.NewAuthenticator(cfg.AdminPasswordHash, cfg.AdminSessionSecret, cfg.SessionLifetime)
	if !authenticator.Enabled() {
		logger.Warn("ADMIN_PASSWORD_HASH is not set, admin API is disabled")
	}

	h := handlers.NewHandler(logger, handlers.Options{
		Debug:         cfg.Debug,
		MaxUploadSize: cfg.MaxFileSize,
		Pipeline:      pipeline,
		Analytics:     analytics.NewService(db),
		Submissions:   recorder,
		Audit:         auditLog,
		Auth:          authenticator,
		Files:         files,
		DB:            db,
	})

	r := mux.NewRouter()
	handlers.RegisterRoutes(r, logger, h, clientLimiters)
	handler := handlers.Chain(r, logger, handlers.ChainOptions{
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxyHeaders,
		AccessLogDB: db,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sw := sweeper.NewSweeper(logger, db, sweeper.Options{
		Interval:           cfg.SweepInterval,
		OrphanGrace:        cfg.OrphanGrace,
		AccessLogRetention: cfg.AccessLogRetention,
		Files:              files,
		References:         recorder,
		Audit:              auditLog,
		Hits:               hits,
		Limiters:           []sweeper.Forgetter{memoryLimiter, clientLimiters},
	})
	go sw.Start(ctx)

	servers, errc, err := httpserver.StartServers(logger, httpserver.Config{
		Addr:         cfg.ListenAddr,
		TLSAddr:      cfg.TLSListenAddr,
		TLSCertFile:  cfg.TLSCertFile,
		TLSKeyFile:   cfg.TLSKeyFile,
		Organization: cfg.AppName,
	}, handler)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start servers")
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errc:
		logger.WithError(err).Error("Server stopped unexpectedly")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := servers.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	logger.Info("Server stopped")
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.UploadBackend == "s3" {
		return storage.NewS3Storage(storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
	}
	return storage.NewLocalStorage(cfg.UploadDir)
}

