package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nidhogg/switchyard/internal/experiment"
)

// Memory is a mutex-guarded in-process assignment store. It backs tests and
// the degraded mode when no durable store is configured; assignments then
// live only as long as the process, which is safe because bucketing
// recomputes deterministically.
type Memory struct {
	mu sync.Mutex
	m  map[string]experiment.Assignment
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]experiment.Assignment)}
}

func pairKey(sessionID, experimentID string) string {
	return sessionID + "\x00" + experimentID
}

// Get returns the assignment for the pair, or nil.
func (s *Memory) Get(_ context.Context, sessionID, experimentID string) (*experiment.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[pairKey(sessionID, experimentID)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// PutIfAbsent stores the assignment unless one exists, first write wins.
func (s *Memory) PutIfAbsent(_ context.Context, a experiment.Assignment) (*experiment.Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(a.SessionID, a.ExperimentID)
	if existing, ok := s.m[key]; ok {
		return &existing, false, nil
	}
	s.m[key] = a
	return &a, true, nil
}

// Put stores the assignment unconditionally.
func (s *Memory) Put(_ context.Context, a experiment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[pairKey(a.SessionID, a.ExperimentID)] = a
	return nil
}

// List returns the session's assignments ordered by experiment id.
func (s *Memory) List(_ context.Context, sessionID string) ([]experiment.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []experiment.Assignment
	for _, a := range s.m {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExperimentID < out[j].ExperimentID })
	return out, nil
}
