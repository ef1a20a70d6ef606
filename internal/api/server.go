// Package api serves the monitor's HTTP interface: live status, operator
// commands, stored sessions and debug charts.
package api

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/assembly.monitor/internal/db"
	"github.com/banshee-data/assembly.monitor/internal/httputil"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
	"github.com/banshee-data/assembly.monitor/internal/version"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Controller is the running pipeline as seen by the API. *pipeline.Runner
// implements it.
type Controller interface {
	Snapshot() pipeline.Snapshot
	History() []pipeline.StatusSample
	ResetPlan(ctx context.Context) error
	ResetSession(ctx context.Context) error
	ReplacePlan(ctx context.Context, plan *l6assembly.Plan) error
	ResolveError(ctx context.Context, id int64) error
}

// Server holds the API dependencies. The database and event dispatcher are
// optional; endpoints that need them answer 503 when they are absent.
type Server struct {
	ctl    Controller
	db     *db.DB
	events *pipeline.Dispatcher

	// StreamInterval is how often /api/stream pushes a snapshot.
	StreamInterval time.Duration

	upgrader websocket.Upgrader
}

// NewServer creates a server for ctl.
func NewServer(ctl Controller, store *db.DB, events *pipeline.Dispatcher) *Server {
	return &Server{
		ctl:            ctl,
		db:             store,
		events:         events,
		StreamInterval: 250 * time.Millisecond,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// ServeMux returns the routes. Wrap it in LoggingMiddleware for request
// logs.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/history", s.showHistory)
	mux.HandleFunc("/api/debug/vars", s.showDebugVars)
	mux.HandleFunc("/api/errors", s.listErrors)
	mux.HandleFunc("/api/errors/{id}/resolve", s.resolveError)
	mux.HandleFunc("/api/plan", s.handlePlan)
	mux.HandleFunc("/api/plan/reset", s.resetPlan)
	mux.HandleFunc("/api/session/reset", s.resetSession)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/{id}", s.showSession)
	mux.HandleFunc("/api/sessions/{id}/events", s.listSessionEvents)
	mux.HandleFunc("/api/stream", s.stream)
	mux.HandleFunc("/debug/charts", s.showCharts)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

// Hijack lets the websocket upgrader take over the connection.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
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
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Current())
}
