// Package api serves the HTTP control surface of the scan service: starting,
// cancelling and observing scans, homing and reconnecting the stage, and
// browsing stored results.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/stagescan/internal/db"
	"github.com/banshee-data/stagescan/internal/monitoring"
	"github.com/banshee-data/stagescan/internal/scan"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

var logf = monitoring.Prefixed("api")

// Options configures a Server. Zero values select defaults.
type Options struct {
	// Defaults fill in sample_count and statistic when a request omits them.
	Defaults scan.Params

	// Metrics is served on /metrics when set.
	Metrics *monitoring.Metrics

	// BaseContext bounds scans started over HTTP. It outlives any single
	// request; cancelling it aborts the running scan.
	BaseContext context.Context
}

type Server struct {
	engine   *scan.Engine
	db       *db.DB
	defaults scan.Params
	metrics  *monitoring.Metrics
	baseCtx  context.Context
}

// NewServer returns a server driving engine. database may be nil, in which
// case the stored-scan endpoints answer 503.
func NewServer(engine *scan.Engine, database *db.DB, opts Options) *Server {
	if opts.Defaults == (scan.Params{}) {
		opts.Defaults = scan.DefaultParams()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &Server{
		engine:   engine,
		db:       database,
		defaults: opts.Defaults,
		metrics:  opts.Metrics,
		baseCtx:  opts.BaseContext,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/scan/2d", s.startScan2D)
	mux.HandleFunc("POST /api/scan/1d", s.startScan1D)
	mux.HandleFunc("POST /api/scan/cancel", s.cancelScan)
	mux.HandleFunc("GET /api/scan/state", s.showScanState)
	mux.HandleFunc("GET /api/scan/result", s.showLastResult)

	mux.HandleFunc("POST /api/home", s.homeAxes)
	mux.HandleFunc("POST /api/reconnect", s.reconnectStage)
	mux.HandleFunc("GET /api/position", s.showPosition)

	mux.HandleFunc("GET /api/scans", s.listScans)
	mux.HandleFunc("GET /api/scans/{id}", s.showScan)
	mux.HandleFunc("GET /api/scans/{id}/csv", s.downloadScanCSV)
	mux.HandleFunc("PUT /api/scans/{id}/label", s.labelScan)
	mux.HandleFunc("DELETE /api/scans/{id}", s.deleteScan)

	mux.HandleFunc("GET /api/version", s.showVersion)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}
