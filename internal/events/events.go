package events

import (
	"context"
	"time"
)

// AssignmentCreated is emitted by the engine itself when a session is first
// bucketed into a variant. All other event names are caller-driven.
const AssignmentCreated = "assignment_created"

// Event is one experiment telemetry record forwarded to a sink.
type Event struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	ExperimentID   string         `json:"experiment_id"`
	ExperimentName string         `json:"experiment_name"`
	VariantID      string         `json:"variant_id"`
	VariantName    string         `json:"variant_name"`
	Name           string         `json:"name"`
	AssignedAt     time.Time      `json:"assigned_at"`
	Timestamp      time.Time      `json:"timestamp"`
	Properties     map[string]any `json:"properties,omitempty"`
}

// Sink receives events best-effort. Implementations must not block the
// caller and must swallow delivery failures; dropped events are acceptable.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
