package httpx

import (
	"encoding/json"
	"net/http"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

type errorBody struct {
	Code      string               `json:"code"`
	Message   string               `json:"message"`
	RequestID string               `json:"request_id,omitempty"`
	Shortages []inventory.Shortage `json:"shortages,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to its status. Only hints reach the client.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := ierr.HTTPStatusFromErr(err)
	body := errorBody{
		Code:      ierr.Code(err),
		Message:   ierr.Hint(err),
		RequestID: middleware.GetReqID(r.Context()),
	}
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}
	var se *inventory.ShortageError
	if ierr.As(err, &se) {
		body.Shortages = se.Shortages
	}
	if ierr.IsLockTimeout(err) {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		log.Errorw("request failed", "path", r.URL.Path, "request_id", body.RequestID, "error", err)
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// decode reads a JSON body and runs struct validation on it.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ierr.WithError(err).WithHint("invalid json").Mark(ierr.ErrValidation)
	}
	if err := validate.Struct(v); err != nil {
		return ierr.WithError(err).WithHint(err.Error()).Mark(ierr.ErrValidation)
	}
	return nil
}
