package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"habitcore/pkg/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	var (
		validation domain.ValidationError
		outOfRange domain.OutOfRangeError
		forbidden  domain.EditForbiddenError
		notFound   domain.NotFoundError
		persist    domain.PersistenceError
		violation  domain.RuleViolationError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation"
	case errors.As(err, &outOfRange):
		return http.StatusUnprocessableEntity, "out_of_range"
	case errors.As(err, &forbidden):
		return http.StatusConflict, "edit_forbidden"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &violation):
		return http.StatusConflict, "rule_violation"
	case errors.As(err, &persist):
		return http.StatusServiceUnavailable, "persistence"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ValidationError{Field: name, Reason: "must be an integer, got " + strconv.Quote(raw)}
	}
	return n, nil
}
