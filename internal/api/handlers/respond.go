package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/markdave123-py/memora/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy onto HTTP statuses. Only the kind and
// message cross the boundary; wrapped causes stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.New(apperr.Internal, "internal error")
	}

	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperr.Unauthorized:
		status = http.StatusUnauthorized
	case apperr.Forbidden:
		status = http.StatusForbidden
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.UpstreamFetchFailure, apperr.SummarizationFailure:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"kind":    string(ae.Kind),
			"message": ae.Message,
		},
	})
}
