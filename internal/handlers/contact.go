package handlers

import (
	"errors"
	"mime"
	"net/http"

	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/intake"
	"github.com/sdko-org/portfolio-backend/internal/sanitize"
	"github.com/sdko-org/portfolio-backend/internal/upload"
)

type contactResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SubmissionID uint   `json:"submission_id,omitempty"`
}

// Contact accepts the contact form as JSON, urlencoded or multipart data.
// Multipart requests may carry a resume in the "resume" field.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	client := audit.ClientFrom(r.Context())
	if err := h.pipeline.Admit(r.Context(), client); err != nil {
		h.writeError(w, r, err)
		return
	}

	req, cleanup, err := h.readContact(w, r)
	defer cleanup()
	req.Client = client
	if err != nil {
		h.writeError(w, r, h.pipeline.Reject(r.Context(), req, err))
		return
	}

	res, err := h.pipeline.Process(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contactResponse{
		Success:      true,
		Message:      res.Message,
		SubmissionID: res.SubmissionID,
	})
}

func (h *Handler) readContact(w http.ResponseWriter, r *http.Request) (intake.Request, func(), error) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+formOverhead)
		if err := r.ParseMultipartForm(formOverhead); err != nil {
			return intake.Request{}, noop, formError(err)
		}
		cleanup := func() { r.MultipartForm.RemoveAll() }
		req := intake.Request{Form: formInput(r)}

		file, header, err := r.FormFile("resume")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return req, cleanup, apperr.Validation("File upload error")
		default:
			cleanup = func() {
				file.Close()
				r.MultipartForm.RemoveAll()
			}
			req.Resume = &upload.File{
				Name:        header.Filename,
				Size:        header.Size,
				ContentType: header.Header.Get("Content-Type"),
				Content:     file,
			}
		}
		return req, cleanup, nil

	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
		if err := r.ParseForm(); err != nil {
			return intake.Request{}, noop, formError(err)
		}
		return intake.Request{Form: formInput(r)}, noop, nil

	default:
		r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
		var in sanitize.ContactInput
		if err := decodeJSON(r, &in); err != nil {
			return intake.Request{}, noop, err
		}
		return intake.Request{Form: in}, noop, nil
	}
}

func formInput(r *http.Request) sanitize.ContactInput {
	return sanitize.ContactInput{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Subject: r.PostFormValue("subject"),
		Message: r.PostFormValue("message"),
		Website: r.PostFormValue("website"),
	}
}

func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Validation("Request body too large")
	}
	return apperr.Validation("Invalid form data")
}
