package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/sdko-org/portfolio-backend/internal/intake"
	"github.com/sirupsen/logrus"
)

const internalErrorMessage = "An error occurred while processing your request. Please try again later."

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, response{Success: true, Message: message, Data: data})
}

// writeError maps err onto a status code. Messages of user-correctable
// errors are returned as is; anything else is logged and replaced with a
// generic message unless debug is on.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	var rl *intake.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds()+0.5)))
	}

	message := apperr.Message(err)
	if !apperr.Public(err) {
		h.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"kind":   kind.String(),
			"error":  err,
		}).Error("Request failed")
		if !h.debug {
			message = internalErrorMessage
		} else {
			message = err.Error()
		}
	}

	writeJSON(w, status, response{Success: false, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("Invalid JSON data")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, response{Success: false, Message: apperr.Message(apperr.MethodNotAllowed())})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, response{Success: false, Message: "Not found"})
}
