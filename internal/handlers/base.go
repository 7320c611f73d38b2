package handlers

import (
	"github.com/sdko-org/portfolio-backend/internal/analytics"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/auth"
	"github.com/sdko-org/portfolio-backend/internal/intake"
	"github.com/sdko-org/portfolio-backend/internal/storage"
	"github.com/sdko-org/portfolio-backend/internal/submissions"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	dashboardSubmissions = 10
	dashboardEvents      = 20

	// multipart bodies may carry one resume plus the text fields
	formOverhead = 1 << 20
)

type Options struct {
	Debug         bool
	MaxUploadSize int64

	Pipeline    *intake.Pipeline
	Analytics   *analytics.Service
	Submissions *submissions.Recorder
	Audit       *audit.Logger
	Auth        *auth.Authenticator
	Files       storage.Storage
	DB          *gorm.DB
}

type Handler struct {
	log           *logrus.Entry
	debug         bool
	maxUploadSize int64

	pipeline    *intake.Pipeline
	analytics   *analytics.Service
	submissions *submissions.Recorder
	audit       *audit.Logger
	auth        *auth.Authenticator
	files       storage.Storage
	db          *gorm.DB
}

func NewHandler(logger *logrus.Logger, opts Options) *Handler {
	return &Handler{
		log:           logger.WithField("component", "api_handler"),
		debug:         opts.Debug,
		maxUploadSize: opts.MaxUploadSize,
		pipeline:      opts.Pipeline,
		analytics:     opts.Analytics,
		submissions:   opts.Submissions,
		audit:         opts.Audit,
		auth:          opts.Auth,
		files:         opts.Files,
		db:            opts.DB,
	}
}
