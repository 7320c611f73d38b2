package handlers

import (
	"net/http"
	"strconv"

	"github.com/sdko-org/portfolio-backend/internal/analytics"
	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/submissions"
)

type submissionPage struct {
	Submissions []models.Submission `json:"submissions"`
	Pagination  submissions.Page    `json:"pagination"`
}

func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
	var in analytics.EventInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.analytics.RecordEvent(r.Context(), in, audit.ClientFrom(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, "Analytics event recorded", nil)
}

func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
	var in analytics.PageViewInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.analytics.RecordPageView(r.Context(), in, audit.ClientFrom(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, "Page view tracked", nil)
}

// AnalyticsQuery serves GET /analytics. A missing action means summary.
func (h *Handler) AnalyticsQuery(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "", "summary":
		summary, err := h.analytics.Summary(r.Context())
		if err != nil {
			h.writeError(w, r, apperr.Storage("Failed to load analytics", err))
			return
		}
		writeSuccess(w, "", summary)
	case "contact_submissions":
		h.ListSubmissions(w, r)
	default:
		h.writeError(w, r, apperr.Validation("Invalid action"))
	}
}

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := submissions.NewPage(queryInt(q.Get("page")), queryInt(q.Get("limit")))

	list, page, err := h.submissions.List(r.Context(), page)
	if err != nil {
		h.writeError(w, r, apperr.Storage("Failed to load submissions", err))
		return
	}
	if list == nil {
		list = []models.Submission{}
	}
	writeSuccess(w, "", submissionPage{Submissions: list, Pagination: page})
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
