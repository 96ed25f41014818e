package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"vidpipe/internal/jobs"
	"vidpipe/internal/logging"
	"vidpipe/internal/pipeline"
	"vidpipe/internal/provider"
	"vidpipe/internal/services"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind,omitempty"`
	Hint   string   `json:"hint,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

func writeError(logger *slog.Logger, w http.ResponseWriter, status int, message string) {
	writeJSON(logger, w, status, ErrorResponse{Error: message})
}

// writeFailure maps err onto an HTTP status and a classified body.
func writeFailure(logger *slog.Logger, w http.ResponseWriter, err error) {
	kind, hint := jobs.Classify(err)
	body := ErrorResponse{Error: err.Error(), Kind: kind, Hint: hint}
	status := http.StatusInternalServerError
	var verr *pipeline.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrCopyrightRejected):
		status = http.StatusUnprocessableEntity
		var gate *pipeline.CopyrightGateError
		if errors.As(err, &gate) {
			body.Issues = gate.Issues
		}
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, provider.ErrUnknownBackend):
		status = http.StatusNotFound
		body.Kind = "not_found"
	case errors.Is(err, jobs.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	writeJSON(logger, w, status, body)
}
