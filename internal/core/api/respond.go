package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/reachpoint/reachpoint/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// apiHandler is a handler that reports failures as errors; handle maps
// them to HTTP responses in one place.
type apiHandler func(w http.ResponseWriter, r *http.Request) error

func (s *Service) handle(h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

// httpError carries an explicit status code from a handler.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error   { return &httpError{status: http.StatusBadRequest, msg: msg} }
func notFound(msg string) error     { return &httpError{status: http.StatusNotFound, msg: msg} }
func forbidden(msg string) error    { return &httpError{status: http.StatusForbidden, msg: msg} }
func conflict(msg string) error     { return &httpError{status: http.StatusConflict, msg: msg} }
func unauthorized(msg string) error { return &httpError{status: http.StatusUnauthorized, msg: msg} }

// writeError maps an error to a JSON error response. Sentinels from the
// store and types packages get their natural status; everything unmapped
// becomes an opaque 500.
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var he *httpError
	var verrs validator.ValidationErrors

	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.As(err, &he):
		status, msg = he.status, he.msg
	case errors.As(err, &verrs):
		status, msg = http.StatusBadRequest, "validation failed: "+verrs.Error()
	case errors.Is(err, types.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, types.ErrInvalidID):
		status, msg = http.StatusBadRequest, "invalid id"
	case errors.Is(err, types.ErrInvalidRule):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, types.ErrDuplicate):
		status, msg = http.StatusConflict, "already exists"
	case errors.Is(err, types.ErrQueueFull):
		status, msg = http.StatusServiceUnavailable, "write queue full, retry later"
	case errors.Is(err, types.ErrStopped):
		status, msg = http.StatusServiceUnavailable, "shutting down"
	}

	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// decode reads the JSON body into v and runs struct validation.
func (s *Service) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON body")
	}
	if err := s.validate.Struct(v); err != nil {
		return err
	}
	return nil
}
