package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/stagescan/internal/export"
)

const defaultListLimit = 50

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "scan storage is not configured")
		return false
	}
	return true
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	scans, err := s.db.ListScans(limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list scans: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) showScan(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	stored, err := s.db.GetScan(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// downloadScanCSV serves a stored scan as CSV. ?header=false drops the
// coordinate header.
func (s *Server) downloadScanCSV(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	withHeader := true
	if h := r.URL.Query().Get("header"); h != "" {
		parsed, err := strconv.ParseBool(h)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid 'header' parameter")
			return
		}
		withHeader = parsed
	}

	stored, err := s.db.GetScan(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, stored.Result, withHeader); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to export scan: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(stored.Result)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logf("failed to write csv response: %v", err)
	}
}

type labelRequest struct {
	Label string `json:"label"`
}

func (s *Server) labelScan(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	var req labelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	label := strings.TrimSpace(req.Label)
	if len(label) > 256 {
		writeJSONError(w, http.StatusBadRequest, "label must be at most 256 bytes")
		return
	}
	id := r.PathValue("id")
	if err := s.db.SetScanLabel(id, label); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "label": label})
}

func (s *Server) deleteScan(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	if err := s.db.DeleteScan(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
