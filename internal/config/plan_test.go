package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "line3.toml")
	content := `
final_product = " fin_box "

[[step]]
part = "screw"
quantity = 2

[[step]]
part = "fin_box"
quantity = 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	plan, err := LoadPlanFile(path)
	require.NoError(t, err)

	want := &PlanFile{
		FinalProduct: "fin_box",
		Steps: []PlanStep{
			{Part: "screw", Quantity: 2},
			{Part: "fin_box", Quantity: 1},
		},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPlanFile_Example(t *testing.T) {
	plan, err := LoadPlanFile("../../config/plan.example.toml")
	require.NoError(t, err)
	assert.Equal(t, "fin_box", plan.FinalProduct)
	assert.Len(t, plan.Steps, 3)
}

func TestLoadPlanFile_Errors(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "typo.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("[[step]]\npart = \"a\"\nquantitiy = 1\n"), 0644))
	_, err := LoadPlanFile(unknown)
	assert.Error(t, err, "unknown keys are rejected")

	wrongExt := filepath.Join(dir, "plan.json")
	require.NoError(t, os.WriteFile(wrongExt, []byte("{}"), 0644))
	_, err = LoadPlanFile(wrongExt)
	assert.Error(t, err)

	_, err = LoadPlanFile(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestDecodePlanJSON(t *testing.T) {
	plan, err := DecodePlanJSON(strings.NewReader(`{"final_product":"fin_box","steps":[{"part":" screw ","quantity":2}]}`))
	require.NoError(t, err)
	assert.Equal(t, "screw", plan.Steps[0].Part)
	assert.Equal(t, 2, plan.Steps[0].Quantity)

	_, err = DecodePlanJSON(strings.NewReader(`{"final_product":"fin_box","stepz":[]}`))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestDecodePlanTOML(t *testing.T) {
	plan, err := DecodePlanTOML(strings.NewReader("final_product = \"a\"\n[[step]]\npart = \"a\"\nquantity = 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "a", plan.FinalProduct)
	require.Len(t, plan.Steps, 1)
}
