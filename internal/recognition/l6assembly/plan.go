package l6assembly

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/assembly.monitor/internal/config"
)

var (
	ErrEmptyPlan             = errors.New("assembly plan has no steps")
	ErrEmptyPart             = errors.New("assembly step has no part label")
	ErrInvalidQuantity       = errors.New("assembly step quantity must be at least 1")
	ErrNoFinalProduct        = errors.New("assembly plan has no final product")
	ErrFinalProductNotInPlan = errors.New("final product is not part of the assembly plan")
)

// Step is one configured plan entry.
type Step struct {
	Part     string `json:"part"`
	Quantity int    `json:"quantity"`
}

// Plan is an immutable, validated assembly sequence.
type Plan struct {
	steps        []Step
	finalProduct string
}

// NewPlan validates steps and finalProduct and returns a Plan. The final
// product must itself appear as a step.
func NewPlan(steps []Step, finalProduct string) (*Plan, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyPlan
	}
	finalProduct = strings.TrimSpace(finalProduct)
	if finalProduct == "" {
		return nil, ErrNoFinalProduct
	}

	cp := make([]Step, len(steps))
	found := false
	for i, s := range steps {
		s.Part = strings.TrimSpace(s.Part)
		if s.Part == "" {
			return nil, fmt.Errorf("step %d: %w", i+1, ErrEmptyPart)
		}
		if s.Quantity < 1 {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, s.Part, ErrInvalidQuantity)
		}
		if s.Part == finalProduct {
			found = true
		}
		cp[i] = s
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrFinalProductNotInPlan, finalProduct)
	}
	return &Plan{steps: cp, finalProduct: finalProduct}, nil
}

// PlanFromFile builds a Plan from a loaded plan file.
func PlanFromFile(f *config.PlanFile) (*Plan, error) {
	steps := make([]Step, len(f.Steps))
	for i, s := range f.Steps {
		steps[i] = Step{Part: s.Part, Quantity: s.Quantity}
	}
	return NewPlan(steps, f.FinalProduct)
}

// LoadPlan reads and validates a TOML plan file.
func LoadPlan(path string) (*Plan, error) {
	f, err := config.LoadPlanFile(path)
	if err != nil {
		return nil, err
	}
	p, err := PlanFromFile(f)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Steps returns a copy of the configured steps.
func (p *Plan) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.steps) }

// FinalProduct returns the designated final product label.
func (p *Plan) FinalProduct() string { return p.finalProduct }

// First returns the first step's part.
func (p *Plan) First() string { return p.steps[0].Part }

// Labels returns every label the detector must track for this plan: each
// step part plus the final product, deduplicated in step order.
func (p *Plan) Labels() []string {
	seen := make(map[string]bool, len(p.steps)+1)
	var out []string
	for _, s := range p.steps {
		if !seen[s.Part] {
			seen[s.Part] = true
			out = append(out, s.Part)
		}
	}
	if !seen[p.finalProduct] {
		out = append(out, p.finalProduct)
	}
	return out
}
