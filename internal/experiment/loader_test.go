package experiment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeExperiments(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiments.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write experiments file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeExperiments(t, `{
		"experiments": [
			{
				"id": "hero",
				"name": "Homepage Hero",
				"active": true,
				"target_page": "/",
				"variants": [
					{"id": "control", "name": "Control", "weight": 50},
					{"id": "alt", "name": "Alternative", "weight": 50, "config": {"headline": "New"}}
				]
			}
		]
	}`)

	exps, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(exps) != 1 {
		t.Fatalf("expected 1 experiment, got %d", len(exps))
	}
	exp := exps[0]
	if exp.ID != "hero" || !exp.Active || len(exp.Variants) != 2 {
		t.Errorf("unexpected experiment: %+v", exp)
	}
	if exp.Variants[1].Config["headline"] != "New" {
		t.Errorf("variant config not passed through: %+v", exp.Variants[1].Config)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name    string
		exps    []Experiment
		wantSub string
	}{
		{
			name:    "missing experiment id",
			exps:    []Experiment{{Name: "x"}},
			wantSub: "missing id",
		},
		{
			name: "duplicate experiment id",
			exps: []Experiment{
				{ID: "e1"},
				{ID: "e1"},
			},
			wantSub: "duplicate experiment id",
		},
		{
			name: "duplicate variant id",
			exps: []Experiment{
				{ID: "e1", Variants: []Variant{{ID: "a", Weight: 10}, {ID: "a", Weight: 10}}},
			},
			wantSub: "duplicate variant id",
		},
		{
			name: "negative weight",
			exps: []Experiment{
				{ID: "e1", Variants: []Variant{{ID: "a", Weight: -1}}},
			},
			wantSub: "outside 0-100",
		},
		{
			name: "weights above 100",
			exps: []Experiment{
				{ID: "e1", Variants: []Variant{{ID: "a", Weight: 60}, {ID: "b", Weight: 60}}},
			},
			wantSub: "above 100",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Validate(c.exps)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.wantSub) {
				t.Errorf("error %q does not mention %q", err, c.wantSub)
			}
		})
	}
}

func TestValidateAcceptsPartialCoverage(t *testing.T) {
	// Weights below 100 are legal; the tail is handled at assignment time.
	exps := []Experiment{
		{ID: "e1", Variants: []Variant{{ID: "a", Weight: 30}, {ID: "b", Weight: 30}}},
		{ID: "e2"}, // empty variant list never assigns but is not an error
	}
	if err := Validate(exps); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
