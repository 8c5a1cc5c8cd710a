package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRunStore implements RunStore for tests and one-off runs.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]RunReport
}

// NewMemoryRunStore creates an empty in-memory store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]RunReport)}
}

// SaveRun stores a copy of r.
func (s *MemoryRunStore) SaveRun(ctx context.Context, r *RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	cp := *r
	cp.Records = append(cp.Records[:0:0], r.Records...)
	s.runs[r.ID] = cp
	return nil
}

// GetRun returns a copy of the report. Returns nil if not found.
func (s *MemoryRunStore) GetRun(ctx context.Context, id string) (*RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	r.Records = append(r.Records[:0:0], r.Records...)
	return &r, nil
}

// ListRuns returns matching reports, newest first, without records.
func (s *MemoryRunStore) ListRuns(ctx context.Context, f RunFilter) ([]RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RunReport
	for _, r := range s.runs {
		if !matches(&r, f) {
			continue
		}
		r.Records = nil
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DeleteRun removes a report.
func (s *MemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
	return nil
}

// Close is a no-op.
func (s *MemoryRunStore) Close() error { return nil }
