package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sdko-org/portfolio-backend/internal/analytics"
	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/auth"
	"github.com/sdko-org/portfolio-backend/internal/database"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/storage"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type statusRequest struct {
	Status models.SubmissionStatus `json:"status"`
}

type dashboard struct {
	Summary           *analytics.Summary     `json:"summary"`
	RecentSubmissions []models.Submission    `json:"recent_submissions"`
	SecurityEvents    []models.SecurityEvent `json:"security_events"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	token, expires, err := h.auth.Login(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.audit.Log(r.Context(), audit.EventAdminLoginFailed, "Failed admin login attempt", nil)
		}
		h.writeError(w, r, unauthorized(err))
		return
	}

	h.audit.Log(r.Context(), audit.EventAdminLogin, "Admin logged in", nil)
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: token, ExpiresAt: expires})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.analytics.Summary(ctx)
	if err != nil {
		h.writeError(w, r, apperr.Storage("Failed to load dashboard", err))
		return
	}
	recent, err := h.submissions.Recent(ctx, dashboardSubmissions)
	if err != nil {
		h.writeError(w, r, apperr.Storage("Failed to load dashboard", err))
		return
	}
	events, err := h.audit.Recent(ctx, dashboardEvents)
	if err != nil {
		h.writeError(w, r, apperr.Storage("Failed to load dashboard", err))
		return
	}

	if recent == nil {
		recent = []models.Submission{}
	}
	if events == nil {
		events = []models.SecurityEvent{}
	}
	writeSuccess(w, "", dashboard{Summary: summary, RecentSubmissions: recent, SecurityEvents: events})
}

// GetSubmission returns one submission and marks it read if it was new.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := submissionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.submissions.View(r.Context(), id)
	if err != nil {
		h.writeError(w, r, storageUnlessKnown(err, "Failed to load submission"))
		return
	}
	writeSuccess(w, "", sub)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := submissionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
	var in statusRequest
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.Status == "" {
		h.writeError(w, r, apperr.Validation("Status is required"))
		return
	}

	sub, err := h.submissions.SetStatus(r.Context(), id, in.Status)
	if err != nil {
		h.writeError(w, r, storageUnlessKnown(err, "Failed to update submission"))
		return
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	h.audit.Log(r.Context(), audit.EventStatusChanged, "Submission status changed", map[string]any{
		"submission_id": sub.ID,
		"status":        sub.Status,
		"changed_by":    principal.Subject,
	})
	writeSuccess(w, "Status updated successfully", sub)
}

// DownloadResume streams the resume attached to a submission.
func (h *Handler) DownloadResume(w http.ResponseWriter, r *http.Request) {
	id, err := submissionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.submissions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, storageUnlessKnown(err, "Failed to load submission"))
		return
	}
	if sub.ResumeFilename == nil {
		h.writeError(w, r, apperr.NotFound("No resume attached"))
		return
	}

	name := *sub.ResumeFilename
	rc, err := h.files.Open(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, r, apperr.NotFound("Resume not found"))
		return
	}
	if err != nil {
		h.writeError(w, r, apperr.Storage("Failed to open resume", err))
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.WithError(err).WithField("file", name).Warn("Resume download interrupted")
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := database.Ping(ctx, h.db); err != nil {
		h.log.WithError(err).Error("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, response{Success: false, Message: "Database unavailable"})
		return
	}
	writeSuccess(w, "", nil)
}

func submissionID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.NotFound("Submission not found")
	}
	return uint(id), nil
}

func unauthorized(err error) error {
	switch {
	case errors.Is(err, auth.ErrDisabled):
		return apperr.Unauthorized("Admin access is disabled")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperr.Unauthorized("Invalid password")
	case errors.Is(err, auth.ErrExpiredToken):
		return apperr.Unauthorized("Session expired")
	default:
		return apperr.Unauthorized("Unauthorized")
	}
}

// storageUnlessKnown keeps typed errors from the recorder and treats the
// rest as store failures.
func storageUnlessKnown(err error, msg string) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Storage(msg, err)
}
