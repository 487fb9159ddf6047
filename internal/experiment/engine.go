package experiment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/switchyard/internal/events"
	"github.com/nidhogg/switchyard/internal/session"
)

var (
	ErrExperimentNotFound = errors.New("experiment not found")
	ErrVariantNotFound    = errors.New("variant not found")
)

// Store persists assignments for session continuity. Persistence is an
// optimization for fast lookup and event dedup, not a correctness
// requirement: bucketing is a pure function of identity, so a lost
// assignment recomputes to the same variant. PutIfAbsent must be atomic per
// (session, experiment) key so concurrent first evaluations for the same
// session agree on a single assignment.
type Store interface {
	// Get returns the assignment for the pair, or nil when none exists.
	Get(ctx context.Context, sessionID, experimentID string) (*Assignment, error)
	// PutIfAbsent stores the assignment unless one already exists for the
	// pair. It returns the winning assignment and whether this call created
	// it.
	PutIfAbsent(ctx context.Context, a Assignment) (*Assignment, bool, error)
	// Put stores the assignment unconditionally, replacing any prior one.
	Put(ctx context.Context, a Assignment) error
	// List returns all assignments held for the session.
	List(ctx context.Context, sessionID string) ([]Assignment, error)
}

// Engine evaluates experiments for sessions. Construct one per process and
// pass it to call sites; it owns the experiment list and the injected store
// and sink. Experiments are read-only after construction.
type Engine struct {
	experiments []*Experiment
	byID        map[string]*Experiment
	store       Store
	sink        events.Sink
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	overrides map[string]string // (session, experiment) -> variant id
}

// NewEngine creates an engine over the given experiment list.
func NewEngine(exps []Experiment, store Store, sink events.Sink, logger *zap.Logger) *Engine {
	e := &Engine{
		byID:      make(map[string]*Experiment, len(exps)),
		store:     store,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
		overrides: make(map[string]string),
	}
	for i := range exps {
		exp := exps[i]
		e.experiments = append(e.experiments, &exp)
		e.byID[exp.ID] = &exp
	}
	return e
}

// GetVariant resolves the session's variant for the experiment, creating and
// persisting an assignment on the first eligible evaluation. It returns nil
// for unknown or inactive experiments, ineligible sessions, and experiments
// with no variants. Nothing errors across this boundary: a failed store read
// degrades to recomputation, a failed store write still returns the computed
// variant, and sink failures are swallowed.
func (e *Engine) GetVariant(ctx context.Context, sess session.Session, path, experimentID string) *Variant {
	exp, ok := e.byID[experimentID]
	if !ok {
		return nil
	}
	if !exp.ActiveAt(e.now()) {
		return nil
	}

	stored, err := e.store.Get(ctx, sess.ID, exp.ID)
	if err != nil {
		e.logger.Debug("assignment lookup failed",
			zap.String("experiment", exp.ID),
			zap.Error(err))
		stored = nil
	}
	if stored != nil {
		// A stale variant id (config changed under the assignment) resolves
		// to nil and is not healed.
		return exp.Variant(stored.VariantID)
	}

	// Override set before any assignment was persisted, or the store lost
	// the forced assignment.
	if vid, ok := e.override(sess.ID, exp.ID); ok {
		if v := exp.Variant(vid); v != nil {
			e.forcePut(ctx, sess.ID, exp.ID, v.ID)
			return v
		}
	}

	if !eligible(sess, path, exp) {
		return nil
	}

	v := assignVariant(sess.ID, exp)
	if v == nil {
		return nil
	}
	a := Assignment{
		SessionID:    sess.ID,
		ExperimentID: exp.ID,
		VariantID:    v.ID,
		CreatedAt:    e.now(),
	}
	winner, created, err := e.store.PutIfAbsent(ctx, a)
	if err != nil {
		e.logger.Debug("assignment write failed",
			zap.String("experiment", exp.ID),
			zap.Error(err))
		winner, created = &a, true
	}
	if !created {
		return exp.Variant(winner.VariantID)
	}
	e.emit(ctx, sess.ID, exp, v, winner.CreatedAt, events.AssignmentCreated, nil)
	return v
}

// ForceVariant pins the session to a specific variant, bypassing eligibility
// and bucketing, and discards any prior assignment for the experiment. This
// is a test and debug escape hatch; it is the only path that reassigns.
func (e *Engine) ForceVariant(ctx context.Context, sessionID, experimentID, variantID string) error {
	exp, ok := e.byID[experimentID]
	if !ok {
		return ErrExperimentNotFound
	}
	if exp.Variant(variantID) == nil {
		return ErrVariantNotFound
	}
	e.mu.Lock()
	e.overrides[overrideKey(sessionID, experimentID)] = variantID
	e.mu.Unlock()
	e.forcePut(ctx, sessionID, experimentID, variantID)
	return nil
}

// RecordEvent reports a caller-driven event against the session's current
// assignment. Without an assignment this is a no-op: a session cannot report
// on an experiment it is not in. Delivery is best-effort and never surfaces
// an error.
func (e *Engine) RecordEvent(ctx context.Context, sess session.Session, experimentID, name string, props map[string]any) {
	exp, ok := e.byID[experimentID]
	if !ok {
		return
	}
	a, err := e.store.Get(ctx, sess.ID, experimentID)
	if err != nil || a == nil {
		return
	}
	v := exp.Variant(a.VariantID)
	if v == nil {
		return
	}
	e.emit(ctx, sess.ID, exp, v, a.CreatedAt, name, props)
}

// Experiment returns the experiment with the given id.
func (e *Engine) Experiment(id string) (*Experiment, bool) {
	exp, ok := e.byID[id]
	return exp, ok
}

// ListActiveExperiments returns experiments currently accepting evaluation.
func (e *Engine) ListActiveExperiments() []*Experiment {
	now := e.now()
	out := make([]*Experiment, 0, len(e.experiments))
	for _, exp := range e.experiments {
		if exp.ActiveAt(now) {
			out = append(out, exp)
		}
	}
	return out
}

// IsExperimentActive reports whether the experiment exists and accepts
// evaluation right now.
func (e *Engine) IsExperimentActive(id string) bool {
	exp, ok := e.byID[id]
	return ok && exp.ActiveAt(e.now())
}

// ListAssignments returns the session's assignments for introspection.
func (e *Engine) ListAssignments(ctx context.Context, sessionID string) ([]Assignment, error) {
	return e.store.List(ctx, sessionID)
}

func (e *Engine) override(sessionID, experimentID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	vid, ok := e.overrides[overrideKey(sessionID, experimentID)]
	return vid, ok
}

func (e *Engine) forcePut(ctx context.Context, sessionID, experimentID, variantID string) {
	a := Assignment{
		SessionID:    sessionID,
		ExperimentID: experimentID,
		VariantID:    variantID,
		Forced:       true,
		CreatedAt:    e.now(),
	}
	if err := e.store.Put(ctx, a); err != nil {
		e.logger.Warn("forced assignment write failed",
			zap.String("experiment", experimentID),
			zap.Error(err))
	}
}

func (e *Engine) emit(ctx context.Context, sessionID string, exp *Experiment, v *Variant, assignedAt time.Time, name string, props map[string]any) {
	e.sink.Record(ctx, events.Event{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		ExperimentID:   exp.ID,
		ExperimentName: exp.Name,
		VariantID:      v.ID,
		VariantName:    v.Name,
		Name:           name,
		AssignedAt:     assignedAt,
		Timestamp:      e.now(),
		Properties:     props,
	})
}

func overrideKey(sessionID, experimentID string) string {
	return sessionID + "\x00" + experimentID
}
