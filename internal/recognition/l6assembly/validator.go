package l6assembly

import (
	"errors"
	"fmt"
	"time"
)

// UnknownPart is recorded as the actual part when a pick has no label.
const UnknownPart = "unknown"

// ErrNoSuchError is returned by ResolveError for an unknown record id.
var ErrNoSuchError = errors.New("no such error record")

// ErrorStatus is the operator handling state of an error record.
type ErrorStatus string

const (
	ErrorPending  ErrorStatus = "pending"
	ErrorResolved ErrorStatus = "resolved"
)

// ErrorRecord is one sequence violation.
type ErrorRecord struct {
	ID         int64       `json:"id"`
	StepIndex  int         `json:"step_index"`
	Expected   string      `json:"expected"`
	Actual     string      `json:"actual"`
	At         time.Time   `json:"at"`
	Status     ErrorStatus `json:"status"`
	ResolvedAt time.Time   `json:"resolved_at,omitzero"`
}

// Message renders the record for operators.
func (r ErrorRecord) Message() string {
	if r.Actual == UnknownPart {
		return fmt.Sprintf("picked an unknown part, expected %s", r.Expected)
	}
	return fmt.Sprintf("picked %s, expected %s", r.Actual, r.Expected)
}

// OutcomeKind classifies what a validator call did.
type OutcomeKind string

const (
	OutcomeStepCounted   OutcomeKind = "step_counted"   // matching pick, step still open
	OutcomeStepAdvanced  OutcomeKind = "step_advanced"  // matching pick closed the step
	OutcomePlanCompleted OutcomeKind = "plan_completed" // matching pick closed the last step
	OutcomeMismatch      OutcomeKind = "mismatch"       // wrong or unknown part
	OutcomePlanRestarted OutcomeKind = "plan_restarted" // completed plan restarted by its first part
	OutcomeIgnored       OutcomeKind = "ignored"        // pick after completion that did not restart
	OutcomeErrorResolved OutcomeKind = "error_resolved"
)

// Outcome is one buffered validator result.
type Outcome struct {
	Kind      OutcomeKind  `json:"kind"`
	Part      string       `json:"part,omitempty"`
	Expected  string       `json:"expected,omitempty"`
	StepIndex int          `json:"step_index"`
	Remaining int          `json:"remaining"`
	Completed int          `json:"completed"`
	Error     *ErrorRecord `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}

// StepProgress is one step's live state.
type StepProgress struct {
	Part      string `json:"part"`
	Quantity  int    `json:"quantity"`
	Remaining int    `json:"remaining"`
}

// Status is the validator read model.
type Status struct {
	StepIndex     int            `json:"step_index"`
	Expected      string         `json:"expected"` // "" once complete
	Remaining     int            `json:"remaining"`
	Complete      bool           `json:"complete"`
	Completed     int            `json:"completed"`
	Errors        int            `json:"errors"`
	PendingErrors int            `json:"pending_errors"`
	FinalProduct  string         `json:"final_product"`
	Steps         []StepProgress `json:"steps"`
}

// Validator checks picks against a Plan. It is not safe for concurrent
// use; the frame tick owns it.
//
// Mismatches never move the cursor or touch remaining quantities, so the
// operator can correct themselves and continue. Totals survive Reset and
// SetPlan.
type Validator struct {
	plan      *Plan
	remaining []int
	cursor    int

	completed int
	errors    int
	records   []ErrorRecord
	nextID    int64

	outcomes []Outcome
}

// NewValidator creates a validator positioned at the first step of plan.
func NewValidator(plan *Plan) *Validator {
	v := &Validator{plan: plan, nextID: 1}
	v.Reset()
	return v
}

// Plan returns the active plan.
func (v *Validator) Plan() *Plan { return v.plan }

// SetPlan switches to a new plan and rewinds to its first step.
func (v *Validator) SetPlan(plan *Plan) {
	v.plan = plan
	v.Reset()
}

// Reset rewinds to the first step and restores every configured quantity.
// Idempotent.
func (v *Validator) Reset() {
	v.cursor = 0
	v.remaining = make([]int, v.plan.Len())
	for i, s := range v.plan.steps {
		v.remaining[i] = s.Quantity
	}
}

// Complete reports whether every step is done.
func (v *Validator) Complete() bool {
	return v.cursor >= len(v.remaining)
}

// Consume checks one picked label against the plan and returns the
// outcome, which is also buffered for Drain.
func (v *Validator) Consume(label string, at time.Time) Outcome {
	if v.Complete() {
		if label != "" && label == v.plan.First() {
			return v.restart(at)
		}
		return v.emit(Outcome{Kind: OutcomeIgnored, Part: label, StepIndex: v.cursor, Completed: v.completed, At: at})
	}

	step := v.plan.steps[v.cursor]
	if label != step.Part {
		actual := label
		if actual == "" {
			actual = UnknownPart
		}
		rec := ErrorRecord{
			ID:        v.nextID,
			StepIndex: v.cursor,
			Expected:  step.Part,
			Actual:    actual,
			At:        at,
			Status:    ErrorPending,
		}
		v.nextID++
		v.errors++
		v.records = append(v.records, rec)
		return v.emit(Outcome{
			Kind:      OutcomeMismatch,
			Part:      actual,
			Expected:  step.Part,
			StepIndex: v.cursor,
			Remaining: v.remaining[v.cursor],
			Completed: v.completed,
			Error:     &rec,
			At:        at,
		})
	}

	v.remaining[v.cursor]--
	if v.remaining[v.cursor] > 0 {
		return v.emit(Outcome{
			Kind:      OutcomeStepCounted,
			Part:      label,
			Expected:  step.Part,
			StepIndex: v.cursor,
			Remaining: v.remaining[v.cursor],
			Completed: v.completed,
			At:        at,
		})
	}

	closed := v.cursor
	v.cursor++
	kind := OutcomeStepAdvanced
	if v.Complete() {
		v.completed++
		kind = OutcomePlanCompleted
	}
	return v.emit(Outcome{
		Kind:      kind,
		Part:      label,
		Expected:  step.Part,
		StepIndex: closed,
		Completed: v.completed,
		At:        at,
	})
}

// ConsumePick implements l5action.PickConsumer.
func (v *Validator) ConsumePick(label string, at time.Time) {
	v.Consume(label, at)
}

// RestartIfFirst restarts a completed plan when label is its first part.
// It implements l5action.PickConsumer.
func (v *Validator) RestartIfFirst(label string, at time.Time) bool {
	if !v.Complete() || label == "" || label != v.plan.First() {
		return false
	}
	v.restart(at)
	return true
}

func (v *Validator) restart(at time.Time) Outcome {
	v.Reset()
	return v.emit(Outcome{
		Kind:      OutcomePlanRestarted,
		Part:      v.plan.First(),
		Expected:  v.plan.First(),
		Remaining: v.remaining[0],
		Completed: v.completed,
		At:        at,
	})
}

// ResolveError marks an error record as handled.
func (v *Validator) ResolveError(id int64, at time.Time) (ErrorRecord, error) {
	for i := range v.records {
		if v.records[i].ID != id {
			continue
		}
		if v.records[i].Status != ErrorResolved {
			v.records[i].Status = ErrorResolved
			v.records[i].ResolvedAt = at
			rec := v.records[i]
			v.emit(Outcome{Kind: OutcomeErrorResolved, Expected: rec.Expected, Part: rec.Actual, StepIndex: rec.StepIndex, Error: &rec, At: at})
		}
		return v.records[i], nil
	}
	return ErrorRecord{}, fmt.Errorf("%w: %d", ErrNoSuchError, id)
}

// ErrorRecords returns a copy of every error record, oldest first.
func (v *Validator) ErrorRecords() []ErrorRecord {
	return append([]ErrorRecord(nil), v.records...)
}

// Status returns the read model.
func (v *Validator) Status() Status {
	st := Status{
		StepIndex:    v.cursor,
		Complete:     v.Complete(),
		Completed:    v.completed,
		Errors:       v.errors,
		FinalProduct: v.plan.finalProduct,
		Steps:        make([]StepProgress, len(v.remaining)),
	}
	for i, s := range v.plan.steps {
		st.Steps[i] = StepProgress{Part: s.Part, Quantity: s.Quantity, Remaining: v.remaining[i]}
	}
	if !st.Complete {
		st.Expected = v.plan.steps[v.cursor].Part
		st.Remaining = v.remaining[v.cursor]
	}
	for _, r := range v.records {
		if r.Status == ErrorPending {
			st.PendingErrors++
		}
	}
	return st
}

// Drain returns and clears the buffered outcomes.
func (v *Validator) Drain() []Outcome {
	out := v.outcomes
	v.outcomes = nil
	return out
}

func (v *Validator) emit(o Outcome) Outcome {
	v.outcomes = append(v.outcomes, o)
	return o
}
