package httpapi

import (
	"encoding/json"
	"net/http"

	"adapterd/internal/compose"
	"adapterd/internal/engine"
	"adapterd/internal/experiment"
	"adapterd/internal/metrics"
	"adapterd/internal/registry"
	"adapterd/internal/router"
	"adapterd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps well-known domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case registry.IsAdapterNotFound(err),
		experiment.IsExperimentNotFound(err),
		experiment.IsVariantNotFound(err),
		router.IsNoAdapterMatch(err):
		return http.StatusNotFound
	case registry.IsDuplicateAdapter(err),
		registry.IsAdapterInUse(err),
		experiment.IsInvalidState(err):
		return http.StatusConflict
	case registry.IsInvalidDescriptor(err),
		experiment.IsInvalidConfig(err),
		compose.IsInvalidStrategy(err),
		metrics.IsInvalidMetric(err):
		return http.StatusBadRequest
	case compose.IsBackpressure(err):
		return http.StatusTooManyRequests
	case compose.IsBuildTimeout(err):
		return http.StatusGatewayTimeout
	case compose.IsBuildFailed(err):
		return http.StatusBadGateway
	case engine.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeDomainError maps err to a status code and writes the JSON payload,
// bumping the backpressure counter on 429s.
func writeDomainError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("compose_queue")
	}
	writeJSONError(w, status, err.Error())
	return status
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
