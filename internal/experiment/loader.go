package experiment

import (
	"encoding/json"
	"fmt"
	"os"
)

type experimentsDoc struct {
	Experiments []Experiment `json:"experiments"`
}

// LoadFile reads experiment definitions from a JSON document and validates
// them. Experiments with an empty variant list are kept (they simply never
// assign), but structurally broken configurations are rejected up front.
func LoadFile(path string) ([]Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiments %s: %w", path, err)
	}
	var doc experimentsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse experiments %s: %w", path, err)
	}
	if err := Validate(doc.Experiments); err != nil {
		return nil, err
	}
	return doc.Experiments, nil
}

// Validate rejects configurations the engine would misbehave on: missing or
// duplicate ids, weights outside 0-100, and per-experiment weight totals
// above 100.
func Validate(exps []Experiment) error {
	seen := make(map[string]bool, len(exps))
	for i := range exps {
		exp := &exps[i]
		if exp.ID == "" {
			return fmt.Errorf("experiment %d: missing id", i)
		}
		if seen[exp.ID] {
			return fmt.Errorf("duplicate experiment id %q", exp.ID)
		}
		seen[exp.ID] = true

		vseen := make(map[string]bool, len(exp.Variants))
		total := 0.0
		for j := range exp.Variants {
			v := &exp.Variants[j]
			if v.ID == "" {
				return fmt.Errorf("experiment %q: variant %d missing id", exp.ID, j)
			}
			if vseen[v.ID] {
				return fmt.Errorf("experiment %q: duplicate variant id %q", exp.ID, v.ID)
			}
			vseen[v.ID] = true
			if v.Weight < 0 || v.Weight > 100 {
				return fmt.Errorf("experiment %q: variant %q weight %v outside 0-100", exp.ID, v.ID, v.Weight)
			}
			total += v.Weight
		}
		if total > 100+1e-9 {
			return fmt.Errorf("experiment %q: variant weights sum to %v, above 100", exp.ID, total)
		}
	}
	return nil
}
