package experiment

import "time"

// Experiment is one A/B test configuration. Experiments are loaded at
// startup and treated as read-only during evaluation.
type Experiment struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Variants   []Variant       `json:"variants"`
	Active     bool            `json:"active"`
	StartsAt   *time.Time      `json:"starts_at,omitempty"`
	EndsAt     *time.Time      `json:"ends_at,omitempty"`
	TargetPage string          `json:"target_page,omitempty"`
	Audience   *TargetAudience `json:"target_audience,omitempty"`
}

// Variant is one arm of an experiment. Weights are relative percentages; the
// weights of one experiment sum to at most 100, and any remainder is tail
// traffic (see assignVariant). Config is an opaque payload passed through to
// the caller, never interpreted by the engine.
type Variant struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Weight float64        `json:"weight"`
	Config map[string]any `json:"config,omitempty"`
}

// TargetAudience narrows an experiment to matching sessions. A zero field
// imposes no constraint on that dimension.
type TargetAudience struct {
	Device   string            `json:"device,omitempty"`
	Referrer string            `json:"referrer,omitempty"`
	UTM      map[string]string `json:"utm,omitempty"`
}

// Assignment binds one session to one variant of one experiment. At most one
// assignment exists per (session, experiment) pair; once created it is only
// replaced through ForceVariant.
type Assignment struct {
	SessionID    string    `json:"session_id"`
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	Forced       bool      `json:"forced,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActiveAt reports whether the experiment accepts evaluation at t.
func (e *Experiment) ActiveAt(t time.Time) bool {
	if !e.Active {
		return false
	}
	if e.StartsAt != nil && t.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && t.After(*e.EndsAt) {
		return false
	}
	return true
}

// Variant returns the variant with the given id, or nil when the experiment
// no longer carries it.
func (e *Experiment) Variant(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}
