package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// PlanFile is the on-disk form of an assembly plan. Steps are picked in
// file order. Semantic checks (quantities, final product membership) are
// done by l6assembly.NewPlan when the plan is confirmed.
type PlanFile struct {
	FinalProduct string     `toml:"final_product" json:"final_product"`
	Steps        []PlanStep `toml:"step" json:"steps"`
}

// PlanStep is one ordered part/quantity entry.
type PlanStep struct {
	Part     string `toml:"part" json:"part"`
	Quantity int    `toml:"quantity" json:"quantity"`
}

// LoadPlanFile reads a TOML plan. Unknown keys are rejected so that a typo
// such as "quantitiy" does not silently become a zero quantity.
func LoadPlanFile(path string) (*PlanFile, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, fmt.Errorf("plan file must have .toml extension, got %q", ext)
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer file.Close()
	return DecodePlanTOML(file)
}

// DecodePlanTOML parses a TOML plan from r.
func DecodePlanTOML(r io.Reader) (*PlanFile, error) {
	var plan PlanFile
	decoder := toml.NewDecoder(r).DisallowUnknownFields()
	if err := decoder.Decode(&plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	plan.normalize()
	return &plan, nil
}

// DecodePlanJSON parses a JSON plan from r, as sent by the HTTP API.
func DecodePlanJSON(r io.Reader) (*PlanFile, error) {
	var plan PlanFile
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	plan.normalize()
	return &plan, nil
}

func (p *PlanFile) normalize() {
	p.FinalProduct = strings.TrimSpace(p.FinalProduct)
	for i := range p.Steps {
		p.Steps[i].Part = strings.TrimSpace(p.Steps[i].Part)
	}
}
