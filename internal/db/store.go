package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l5action"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Session is a stored monitoring session.
type Session struct {
	ID                string            `json:"session_id"`
	StartedAt         time.Time         `json:"started_at"`
	PreviousSessionID string            `json:"previous_session_id,omitempty"`
	Plan              pipeline.PlanInfo `json:"plan"`
}

// StoredEvent is one persisted pipeline event.
type StoredEvent struct {
	Seq     uint64             `json:"seq"`
	Kind    pipeline.EventKind `json:"kind"`
	Frame   uint64             `json:"frame"`
	At      time.Time          `json:"at"`
	Part    string             `json:"part,omitempty"`
	Payload json.RawMessage    `json:"payload"`
}

// Recorder persists pipeline events. It implements pipeline.EventSink and
// is meant to sit behind a pipeline.Dispatcher, which serialises delivery.
type Recorder struct {
	db         *DB
	skipStates bool
	failures   atomic.Uint64
}

// NewRecorder creates a Recorder. With skipStateChanges set, per-frame
// state_changed events are not stored.
func NewRecorder(db *DB, skipStateChanges bool) *Recorder {
	return &Recorder{db: db, skipStates: skipStateChanges}
}

// Failures returns how many events could not be stored.
func (r *Recorder) Failures() uint64 { return r.failures.Load() }

// HandleEvent implements pipeline.EventSink.
func (r *Recorder) HandleEvent(ev pipeline.Event) {
	if r.skipStates && ev.Kind == pipeline.EventStateChanged {
		return
	}
	if err := r.db.RecordEvent(ev); err != nil {
		r.failures.Add(1)
		logf("failed to record %s event %d: %v", ev.Kind, ev.Seq, err)
	}
}

// RecordEvent stores ev and updates the session and error tables it
// affects, in one transaction.
func (db *DB) RecordEvent(ev pipeline.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch ev.Kind {
	case pipeline.EventSessionStarted:
		if err := insertSession(tx, ev); err != nil {
			return err
		}
	case pipeline.EventPlanReplaced:
		if err := updateSessionPlan(tx, ev); err != nil {
			return err
		}
	case pipeline.EventMismatch:
		if ev.Outcome != nil && ev.Outcome.Error != nil {
			if err := insertErrorRecord(tx, ev.SessionID, *ev.Outcome.Error); err != nil {
				return err
			}
		}
	case pipeline.EventErrorResolved:
		if ev.Outcome != nil && ev.Outcome.Error != nil {
			if err := resolveErrorRecord(tx, ev.SessionID, *ev.Outcome.Error); err != nil {
				return err
			}
		}
	}

	_, err = tx.Exec(`
		INSERT INTO events (session_id, seq, kind, frame, at_unix_nanos, part, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Seq, string(ev.Kind), ev.Frame, ev.At.UnixNano(), eventPart(ev), string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

func eventPart(ev pipeline.Event) string {
	switch {
	case ev.Pick != nil:
		return ev.Pick.Label
	case ev.Outcome != nil:
		return ev.Outcome.Part
	}
	return ""
}

func insertSession(tx *sql.Tx, ev pipeline.Event) error {
	var plan pipeline.PlanInfo
	if ev.Plan != nil {
		plan = *ev.Plan
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	var prev sql.NullString
	if ev.PreviousSessionID != "" {
		prev = sql.NullString{String: ev.PreviousSessionID, Valid: true}
	}
	_, err = tx.Exec(`
		INSERT INTO sessions (session_id, started_unix_nanos, previous_session_id, final_product, plan_json)
		VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, ev.At.UnixNano(), prev, plan.FinalProduct, string(planJSON),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func updateSessionPlan(tx *sql.Tx, ev pipeline.Event) error {
	if ev.Plan == nil {
		return nil
	}
	planJSON, err := json.Marshal(ev.Plan)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`UPDATE sessions SET final_product = ?, plan_json = ? WHERE session_id = ?`,
		ev.Plan.FinalProduct, string(planJSON), ev.SessionID)
	if err != nil {
		return fmt.Errorf("update session plan: %w", err)
	}
	return nil
}

func insertErrorRecord(tx *sql.Tx, sessionID string, rec l6assembly.ErrorRecord) error {
	_, err := tx.Exec(`
		INSERT INTO error_records (session_id, error_id, step_index, expected, actual, at_unix_nanos, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rec.ID, rec.StepIndex, rec.Expected, rec.Actual, rec.At.UnixNano(), string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("insert error record: %w", err)
	}
	return nil
}

func resolveErrorRecord(tx *sql.Tx, sessionID string, rec l6assembly.ErrorRecord) error {
	_, err := tx.Exec(`
		UPDATE error_records SET status = ?, resolved_unix_nanos = ?
		WHERE session_id = ? AND error_id = ?`,
		string(l6assembly.ErrorResolved), rec.ResolvedAt.UnixNano(), sessionID, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("resolve error record: %w", err)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(`
		SELECT session_id, started_unix_nanos, COALESCE(previous_session_id, ''), plan_json
		FROM sessions ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started int64
		var planJSON string
		if err := rows.Scan(&s.ID, &started, &s.PreviousSessionID, &planJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(planJSON), &s.Plan); err != nil {
			return nil, fmt.Errorf("session %s plan: %w", s.ID, err)
		}
		s.StartedAt = time.Unix(0, started).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Session looks up one session.
func (db *DB) Session(id string) (Session, error) {
	var s Session
	var started int64
	var planJSON string
	err := db.QueryRow(`
		SELECT session_id, started_unix_nanos, COALESCE(previous_session_id, ''), plan_json
		FROM sessions WHERE session_id = ?`, id).Scan(&s.ID, &started, &s.PreviousSessionID, &planJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal([]byte(planJSON), &s.Plan); err != nil {
		return Session{}, fmt.Errorf("session %s plan: %w", id, err)
	}
	s.StartedAt = time.Unix(0, started).UTC()
	return s, nil
}

// Events returns a session's events in sequence order. kinds filters by
// event kind when non-empty; limit <= 0 means no limit.
func (db *DB) Events(sessionID string, limit int, kinds ...pipeline.EventKind) ([]StoredEvent, error) {
	query := `SELECT seq, kind, frame, at_unix_nanos, part, payload_json FROM events WHERE session_id = ?`
	args := []any{sessionID}
	if len(kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(",?", len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY seq`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var kind, payload string
		var at int64
		if err := rows.Scan(&e.Seq, &kind, &e.Frame, &at, &e.Part, &payload); err != nil {
			return nil, err
		}
		e.Kind = pipeline.EventKind(kind)
		e.At = time.Unix(0, at).UTC()
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ErrorRecords returns a session's sequence errors, oldest first.
func (db *DB) ErrorRecords(sessionID string) ([]l6assembly.ErrorRecord, error) {
	rows, err := db.Query(`
		SELECT error_id, step_index, expected, actual, at_unix_nanos, status, resolved_unix_nanos
		FROM error_records WHERE session_id = ? ORDER BY error_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []l6assembly.ErrorRecord
	for rows.Next() {
		var r l6assembly.ErrorRecord
		var at int64
		var status string
		var resolved sql.NullInt64
		if err := rows.Scan(&r.ID, &r.StepIndex, &r.Expected, &r.Actual, &at, &status, &resolved); err != nil {
			return nil, err
		}
		r.At = time.Unix(0, at).UTC()
		r.Status = l6assembly.ErrorStatus(status)
		if resolved.Valid {
			r.ResolvedAt = time.Unix(0, resolved.Int64).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PickCounts returns how many picks of each part a session dispatched.
func (db *DB) PickCounts(sessionID string) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT part, COUNT(*) FROM events
		WHERE session_id = ? AND kind = ?
		GROUP BY part`, sessionID, string(pipeline.EventPick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var part string
		var n int
		if err := rows.Scan(&part, &n); err != nil {
			return nil, err
		}
		out[part] = n
	}
	return out, rows.Err()
}

// RecordStatus stores one status history sample.
func (db *DB) RecordStatus(sessionID string, s pipeline.StatusSample) error {
	_, err := db.Exec(`
		INSERT INTO status_samples (session_id, at_unix_nanos, state, step_index, completed, errors)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, s.At.UnixNano(), string(s.State), s.StepIndex, s.Completed, s.Errors,
	)
	if err != nil {
		return fmt.Errorf("insert status sample: %w", err)
	}
	return nil
}

// StatusSamples returns a session's status history at or after since,
// oldest first.
func (db *DB) StatusSamples(sessionID string, since time.Time) ([]pipeline.StatusSample, error) {
	rows, err := db.Query(`
		SELECT at_unix_nanos, state, step_index, completed, errors
		FROM status_samples WHERE session_id = ? AND at_unix_nanos >= ?
		ORDER BY at_unix_nanos`, sessionID, since.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.StatusSample
	for rows.Next() {
		var s pipeline.StatusSample
		var at int64
		var state string
		if err := rows.Scan(&at, &state, &s.StepIndex, &s.Completed, &s.Errors); err != nil {
			return nil, err
		}
		s.At = time.Unix(0, at).UTC()
		s.State = l5action.State(state)
		out = append(out, s)
	}
	return out, rows.Err()
}
