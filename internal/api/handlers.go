package api

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/assembly.monitor/internal/config"
	"github.com/banshee-data/assembly.monitor/internal/db"
	"github.com/banshee-data/assembly.monitor/internal/httputil"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
)

// commandError maps a runner command failure to a response.
func commandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, l6assembly.ErrNoSuchError):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, pipeline.ErrRunnerStopped):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "monitor is not running")
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return false
	}
	return true
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Snapshot())
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.History())
}

// queryList accepts both ?name=a&name=b and ?name=a,b.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type debugVarsResponse struct {
	Values  map[string]any `json:"values"`
	Unknown []string       `json:"unknown,omitempty"`
	Names   []string       `json:"names"`
}

func (s *Server) showDebugVars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	values, unknown := pipeline.DebugVars(s.ctl.Snapshot(), queryList(r, "name")...)
	httputil.WriteJSONOK(w, debugVarsResponse{
		Values:  values,
		Unknown: unknown,
		Names:   pipeline.DebugVarNames(),
	})
}

func (s *Server) listErrors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	status := l6assembly.ErrorStatus(r.URL.Query().Get("status"))
	switch status {
	case "", l6assembly.ErrorPending, l6assembly.ErrorResolved:
	default:
		httputil.BadRequest(w, fmt.Sprintf("invalid status %q", status))
		return
	}

	out := []l6assembly.ErrorRecord{}
	for _, rec := range s.ctl.Snapshot().Errors {
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) resolveError(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		httputil.BadRequest(w, "invalid error id")
		return
	}
	if err := s.ctl.ResolveError(r.Context(), id); err != nil {
		commandError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Snapshot().Assembly)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a := s.ctl.Snapshot().Assembly
		httputil.WriteJSONOK(w, pipeline.PlanInfo{FinalProduct: a.FinalProduct, Steps: planSteps(a)})
	case http.MethodPut:
		s.replacePlan(w, r)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

func planSteps(a l6assembly.Status) []l6assembly.Step {
	steps := make([]l6assembly.Step, len(a.Steps))
	for i, p := range a.Steps {
		steps[i] = l6assembly.Step{Part: p.Part, Quantity: p.Quantity}
	}
	return steps
}

// replacePlan accepts a plan as TOML (the on-disk format) or JSON, chosen
// by Content-Type. The new plan is validated before it reaches the
// pipeline.
func (s *Server) replacePlan(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var file *config.PlanFile
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		file, err = config.DecodePlanJSON(bytes.NewReader(body))
	case "application/toml", "text/plain", "":
		file, err = config.DecodePlanTOML(bytes.NewReader(body))
	default:
		httputil.WriteJSONError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported content type %q", mediaType))
		return
	}
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	plan, err := l6assembly.PlanFromFile(file)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := s.ctl.ReplacePlan(r.Context(), plan); err != nil {
		commandError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Snapshot().Assembly)
}

func (s *Server) resetPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.ctl.ResetPlan(r.Context()); err != nil {
		commandError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Snapshot().Assembly)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.ctl.ResetSession(r.Context()); err != nil {
		commandError(w, err)
		return
	}
	snap := s.ctl.Snapshot()
	httputil.WriteJSONOK(w, map[string]any{
		"session_id": snap.SessionID,
		"started_at": snap.SessionStarted,
	})
}

func intParam(r *http.Request, key string, def, max int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("invalid '%s' parameter: must be between 1 and %d", key, max)
	}
	return n, nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireDB(w) {
		return
	}
	limit, err := intParam(r, "limit", 20, 500)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := s.db.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

type sessionDetail struct {
	db.Session
	Picks  map[string]int           `json:"picks"`
	Errors []l6assembly.ErrorRecord `json:"errors"`
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireDB(w) {
		return
	}
	id := r.PathValue("id")
	sess, err := s.db.Session(id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	picks, err := s.db.PickCounts(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	records, err := s.db.ErrorRecords(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if records == nil {
		records = []l6assembly.ErrorRecord{}
	}
	httputil.WriteJSONOK(w, sessionDetail{Session: sess, Picks: picks, Errors: records})
}

func (s *Server) listSessionEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireDB(w) {
		return
	}
	limit, err := intParam(r, "limit", 1000, 100000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var kinds []pipeline.EventKind
	for _, k := range queryList(r, "kind") {
		kinds = append(kinds, pipeline.EventKind(k))
	}
	events, err := s.db.Events(r.PathValue("id"), limit, kinds...)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list events: %v", err))
		return
	}
	if events == nil {
		events = []db.StoredEvent{}
	}
	httputil.WriteJSONOK(w, events)
}
