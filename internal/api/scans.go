package api

import (
	"net/http"

	"github.com/banshee-data/stagescan/internal/aggregate"
	"github.com/banshee-data/stagescan/internal/geometry"
	"github.com/banshee-data/stagescan/internal/scan"
	"github.com/banshee-data/stagescan/internal/stage"
	"github.com/banshee-data/stagescan/internal/version"
)

// paramsRequest carries the optional per-point measurement settings shared by
// both scan kinds.
type paramsRequest struct {
	SampleCount *int    `json:"sample_count,omitempty"`
	Statistic   *string `json:"statistic,omitempty"`
}

func (p paramsRequest) resolve(defaults scan.Params) (scan.Params, error) {
	out := defaults
	if p.SampleCount != nil {
		if *p.SampleCount <= 0 {
			return out, aggregate.ErrInvalidSampleCount
		}
		out.SampleCount = *p.SampleCount
	}
	if p.Statistic != nil {
		s, err := aggregate.ParseStatistic(*p.Statistic)
		if err != nil {
			return out, err
		}
		out.Statistic = s
	}
	return out, nil
}

type scan2DRequest struct {
	geometry.Raster
	paramsRequest
}

type scan1DRequest struct {
	geometry.Line
	paramsRequest
}

func (s *Server) startScan2D(w http.ResponseWriter, r *http.Request) {
	var req scan2DRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	params, err := req.resolve(s.defaults)
	if err != nil {
		writeError(w, err)
		return
	}
	// Reject bad geometry synchronously rather than as a failed scan.
	if err := geometry.Validate2D(req.Raster, s.engine.Envelope()); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.Start2D(s.baseCtx, req.Raster, params); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.engine.State())
}

func (s *Server) startScan1D(w http.ResponseWriter, r *http.Request) {
	var req scan1DRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	params, err := req.resolve(s.defaults)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := geometry.Validate1D(req.Line, s.engine.Envelope()); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.Start1D(s.baseCtx, req.Line, params); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.engine.State())
}

func (s *Server) cancelScan(w http.ResponseWriter, r *http.Request) {
	s.engine.RequestCancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel requested"})
}

func (s *Server) showScanState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

// showLastResult returns the result of the most recent scan if it completed.
func (s *Server) showLastResult(w http.ResponseWriter, r *http.Request) {
	st := s.engine.State()
	if st.Result == nil {
		writeJSONError(w, http.StatusNotFound, "no completed scan")
		return
	}
	writeJSON(w, http.StatusOK, st.Result)
}

func (s *Server) homeAxes(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.HomeAllAxes(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionOf(s.engine.Model()))
}

func (s *Server) reconnectStage(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reconnect(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionOf(s.engine.Model()))
}

type axisPosition struct {
	Axis       stage.Axis `json:"axis"`
	Position   *float64   `json:"position"`
	Calibrated bool       `json:"calibrated"`
}

type positionResponse struct {
	Connected bool           `json:"connected"`
	Axes      []axisPosition `json:"axes"`
}

func positionOf(m *stage.Model) positionResponse {
	resp := positionResponse{Connected: m.Connected()}
	for _, axis := range []stage.Axis{stage.X, stage.Y} {
		ap := axisPosition{Axis: axis}
		if v, ok := m.Position(axis); ok {
			ap.Position = &v
			ap.Calibrated = true
		}
		resp.Axes = append(resp.Axes, ap)
	}
	return resp
}

func (s *Server) showPosition(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, positionOf(s.engine.Model()))
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
