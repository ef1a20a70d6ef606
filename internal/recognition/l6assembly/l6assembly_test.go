package l6assembly

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/assembly.monitor/internal/config"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func mustPlan(t *testing.T, final string, steps ...Step) *Plan {
	t.Helper()
	p, err := NewPlan(steps, final)
	require.NoError(t, err)
	return p
}

func screwBracket(t *testing.T) *Validator {
	return NewValidator(mustPlan(t, "bracket", Step{"screw", 2}, Step{"bracket", 1}))
}

func kinds(outcomes []Outcome) []OutcomeKind {
	out := make([]OutcomeKind, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Kind
	}
	return out
}

func TestNewPlan_Validation(t *testing.T) {
	cases := []struct {
		name  string
		steps []Step
		final string
		want  error
	}{
		{"empty", nil, "x", ErrEmptyPlan},
		{"no final", []Step{{"a", 1}}, " ", ErrNoFinalProduct},
		{"blank part", []Step{{"a", 1}, {"  ", 1}}, "a", ErrEmptyPart},
		{"zero quantity", []Step{{"a", 0}}, "a", ErrInvalidQuantity},
		{"final not in plan", []Step{{"a", 1}}, "b", ErrFinalProductNotInPlan},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPlan(tc.steps, tc.final)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestPlan_Labels(t *testing.T) {
	p := mustPlan(t, "box", Step{"screw", 2}, Step{"box", 1}, Step{"screw", 1})
	assert.Equal(t, []string{"screw", "box"}, p.Labels())
	assert.Equal(t, "screw", p.First())
	assert.Equal(t, 3, p.Len())

	steps := p.Steps()
	steps[0].Quantity = 99
	assert.Equal(t, 2, p.Steps()[0].Quantity, "Steps returns a copy")
}

func TestPlanFromFile(t *testing.T) {
	p, err := PlanFromFile(&config.PlanFile{
		FinalProduct: "fin_box",
		Steps: []config.PlanStep{
			{Part: "screw", Quantity: 2},
			{Part: "fin_box", Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []Step{{"screw", 2}, {"fin_box", 1}}, p.Steps())
}

func TestLoadPlan_Example(t *testing.T) {
	p, err := LoadPlan("../../../config/plan.example.toml")
	require.NoError(t, err)
	assert.Equal(t, "fin_box", p.FinalProduct())
	assert.Equal(t, []string{"screw", "bracket", "fin_box"}, p.Labels())
}

func TestValidator_MatchingPicksAdvance(t *testing.T) {
	v := screwBracket(t)
	v.Consume("screw", t0)
	v.Consume("screw", t0)

	st := v.Status()
	assert.Equal(t, 1, st.StepIndex)
	assert.Equal(t, "bracket", st.Expected)
	assert.Equal(t, 1, st.Remaining)
	assert.Zero(t, st.Errors)
	assert.Equal(t, []OutcomeKind{OutcomeStepCounted, OutcomeStepAdvanced}, kinds(v.Drain()))
	assert.Empty(t, v.Drain(), "Drain clears the buffer")
}

func TestValidator_MismatchLeavesStepUntouched(t *testing.T) {
	v := screwBracket(t)
	out := v.Consume("bracket", t0)

	assert.Equal(t, OutcomeMismatch, out.Kind)
	require.NotNil(t, out.Error)
	assert.Equal(t, "screw", out.Error.Expected)
	assert.Equal(t, "bracket", out.Error.Actual)
	assert.Equal(t, ErrorPending, out.Error.Status)

	st := v.Status()
	assert.Zero(t, st.StepIndex)
	assert.Equal(t, 2, st.Remaining)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 1, st.PendingErrors)
}

func TestValidator_UnknownPick(t *testing.T) {
	v := screwBracket(t)
	out := v.Consume("", t0)
	assert.Equal(t, OutcomeMismatch, out.Kind)
	assert.Equal(t, UnknownPart, out.Error.Actual)
	assert.Equal(t, "picked an unknown part, expected screw", out.Error.Message())
	assert.Equal(t, 2, v.Status().Remaining)
}

func TestValidator_CompleteThenAutoRestart(t *testing.T) {
	v := NewValidator(mustPlan(t, "B", Step{"A", 1}, Step{"B", 1}))
	v.Consume("A", t0)
	out := v.Consume("B", t0)
	assert.Equal(t, OutcomePlanCompleted, out.Kind)

	st := v.Status()
	assert.True(t, st.Complete)
	assert.Equal(t, 1, st.Completed)
	assert.Zero(t, st.Errors)
	assert.Empty(t, st.Expected)

	// A pick that is not the first part is ignored once complete.
	assert.Equal(t, OutcomeIgnored, v.Consume("B", t0).Kind)
	assert.Equal(t, 1, v.Status().Completed)
	assert.Zero(t, v.Status().Errors)

	out = v.Consume("A", t0)
	assert.Equal(t, OutcomePlanRestarted, out.Kind)
	st = v.Status()
	assert.False(t, st.Complete)
	assert.Zero(t, st.StepIndex)
	assert.Equal(t, "A", st.Expected)
	assert.Equal(t, 1, st.Remaining)
	assert.Equal(t, 1, st.Completed)
}

func TestValidator_RestartIfFirst(t *testing.T) {
	v := NewValidator(mustPlan(t, "B", Step{"A", 1}, Step{"B", 1}))
	assert.False(t, v.RestartIfFirst("A", t0), "not complete yet")

	v.Consume("A", t0)
	v.Consume("B", t0)
	assert.False(t, v.RestartIfFirst("B", t0))
	assert.False(t, v.RestartIfFirst("", t0))
	assert.True(t, v.RestartIfFirst("A", t0))
	assert.Zero(t, v.Status().StepIndex)
}

func TestValidator_ResetIdempotent(t *testing.T) {
	v := screwBracket(t)
	v.Consume("screw", t0)
	v.Consume("bracket", t0)

	v.Reset()
	once := v.Status()
	v.Reset()
	twice := v.Status()

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second Reset changed state (-once +twice):\n%s", diff)
	}
	assert.Equal(t, 2, once.Remaining)
	assert.Equal(t, 1, once.Errors, "totals survive a plan reset")
}

func TestValidator_ResolveError(t *testing.T) {
	v := screwBracket(t)
	v.Consume("bracket", t0)
	v.Drain()

	rec, err := v.ResolveError(1, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ErrorResolved, rec.Status)
	assert.Equal(t, t0.Add(time.Minute), rec.ResolvedAt)
	assert.Zero(t, v.Status().PendingErrors)
	assert.Equal(t, 1, v.Status().Errors)
	assert.Equal(t, []OutcomeKind{OutcomeErrorResolved}, kinds(v.Drain()))

	// Resolving twice is a no-op.
	_, err = v.ResolveError(1, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, v.Drain())
	assert.Equal(t, t0.Add(time.Minute), v.ErrorRecords()[0].ResolvedAt)

	_, err = v.ResolveError(42, t0)
	assert.ErrorIs(t, err, ErrNoSuchError)
}

func TestValidator_SetPlan(t *testing.T) {
	v := screwBracket(t)
	v.Consume("screw", t0)
	v.Consume("nut", t0)

	v.SetPlan(mustPlan(t, "panel", Step{"panel", 3}))
	st := v.Status()
	assert.Equal(t, "panel", st.Expected)
	assert.Equal(t, 3, st.Remaining)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, []StepProgress{{Part: "panel", Quantity: 3, Remaining: 3}}, st.Steps)
}
