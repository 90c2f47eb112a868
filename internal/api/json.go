package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/stagescan/internal/aggregate"
	"github.com/banshee-data/stagescan/internal/db"
	"github.com/banshee-data/stagescan/internal/geometry"
	"github.com/banshee-data/stagescan/internal/sampler"
	"github.com/banshee-data/stagescan/internal/scan"
	"github.com/banshee-data/stagescan/internal/stage"
)

const maxRequestBody = 64 * 1024

// writeJSON writes data as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logf("failed to encode json response: %v", err)
	}
}

// writeJSONError writes {"error": msg} with the given status code.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps err onto an HTTP status and writes it.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, scan.ErrScanInProgress), errors.Is(err, stage.ErrNotCalibrated):
		return http.StatusConflict
	case errors.Is(err, scan.ErrClosed), errors.Is(err, stage.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, db.ErrScanNotFound):
		return http.StatusNotFound
	case errors.Is(err, geometry.ErrInvalidGeometry),
		errors.Is(err, aggregate.ErrInvalidStatistic),
		errors.Is(err, aggregate.ErrInvalidSampleCount),
		errors.Is(err, stage.ErrInvalidAxis):
		return http.StatusBadRequest
	case errors.Is(err, stage.ErrConnectionFault),
		errors.Is(err, stage.ErrHomingFailed),
		errors.Is(err, stage.ErrInconsistentEndstop),
		errors.Is(err, stage.ErrMalformedResponse),
		errors.Is(err, sampler.ErrInvalidSample):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a single JSON object from the request body into v,
// rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
