package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/logger"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string   `json:"error"`
	Code  string   `json:"code"`
	Hints []string `json:"hints,omitempty"`

	// Request is the approval request when the decision was recorded but
	// its dispatch failed
	Request interface{} `json:"request,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error body with an explicit code
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeErr maps err to a code and status and writes it. State conflicts and
// internal failures are logged; validation errors are not.
func writeErr(w http.ResponseWriter, log *zap.SugaredLogger, err error) {
	writeErrWith(w, log, err, nil)
}

// writeErrWith is writeErr with the affected record attached
func writeErrWith(w http.ResponseWriter, log *zap.SugaredLogger, err error, record interface{}) {
	code, status := errorCode(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", logger.FieldErrorCode, code, logger.FieldError, err)
	} else if status == http.StatusConflict || status == http.StatusLocked || status == http.StatusGone {
		log.Infow("Request refused", logger.FieldErrorCode, code, logger.FieldError, err)
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Hints:   errors.GetAllHints(err),
		Request: record,
	})
}

// readJSON decodes a JSON request body, writing a 400 on failure
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// queryLimit parses ?limit=, returning def when absent
func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.NewInvalidRequest("limit must be a positive integer, got %q", raw)
	}
	return n, nil
}
