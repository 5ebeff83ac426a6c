package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"wheel-screener/alerts"
	"wheel-screener/database"
	"wheel-screener/gateway"
	"wheel-screener/jobs"
	"wheel-screener/positions"
)

const maxBodyBytes = 1 << 20

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

func intPtr(v int) *int { return &v }

// pathID parses a numeric path value.
func pathID(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil || id == 0 {
		return 0, database.NewInvalidParameterWithValue(name, "must be a positive integer", r.PathValue(name))
	}
	return uint(id), nil
}

func pathTicker(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.PathValue("ticker")))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return database.NewInvalidParameter("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var validation *database.InvalidParameterError
	var notFound *database.NotFoundError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, positions.ErrInvalidTransition), errors.Is(err, alerts.ErrAlertNotActive),
		errors.Is(err, jobs.ErrRefreshRunning):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrNotConnected), errors.Is(err, gateway.ErrCooldown),
		errors.Is(err, positions.ErrNoBroker), errors.Is(err, database.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError logs the error and sends a JSON error response.
// Internal errors are logged but not exposed.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.log.Error("❌ API error", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal server error"
	} else {
		s.log.Debug("API request rejected", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func errNotFound(resource string, id interface{}) error {
	return database.NewNotFound(resource, id)
}
