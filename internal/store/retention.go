package store

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// RetentionPolicy decides which runs to keep. Runs arrive newest first.
type RetentionPolicy interface {
	Keep(runs []RunReport) []RunReport
}

// CountPolicy keeps the MaxCount most recent runs.
type CountPolicy struct {
	MaxCount int
}

// Keep returns the first MaxCount runs.
func (p *CountPolicy) Keep(runs []RunReport) []RunReport {
	if len(runs) <= p.MaxCount {
		return runs
	}
	return runs[:p.MaxCount]
}

// AgePolicy keeps runs started within MaxAge of Now.
type AgePolicy struct {
	MaxAge time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Keep returns runs newer than the cutoff.
func (p *AgePolicy) Keep(runs []RunReport) []RunReport {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []RunReport
	for _, r := range runs {
		if r.StartedAt.After(cutoff) {
			keep = append(keep, r)
		}
	}
	return keep
}

// StatusPolicy keeps every run that ended with one of Statuses.
type StatusPolicy struct {
	Statuses []Status
}

// Keep returns runs with a listed status.
func (p *StatusPolicy) Keep(runs []RunReport) []RunReport {
	var keep []RunReport
	for _, r := range runs {
		for _, s := range p.Statuses {
			if r.Status == s {
				keep = append(keep, r)
				break
			}
		}
	}
	return keep
}

// AnyPolicy keeps a run if any sub-policy keeps it.
type AnyPolicy struct {
	Policies []RetentionPolicy
}

// Keep returns the union of the sub-policies, in input order.
func (p *AnyPolicy) Keep(runs []RunReport) []RunReport {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, r := range policy.Keep(runs) {
			kept[r.ID] = true
		}
	}
	var out []RunReport
	for _, r := range runs {
		if kept[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// Prune deletes every run the policy does not keep and returns their IDs.
func Prune(ctx context.Context, s RunStore, policy RetentionPolicy) ([]string, error) {
	runs, err := s.ListRuns(ctx, RunFilter{})
	if err != nil {
		return nil, err
	}
	kept := make(map[string]bool)
	for _, r := range policy.Keep(runs) {
		kept[r.ID] = true
	}

	var deleted []string
	for _, r := range runs {
		if kept[r.ID] {
			continue
		}
		if err := s.DeleteRun(ctx, r.ID); err != nil {
			return deleted, fmt.Errorf("pruning %s: %w", r.ID, err)
		}
		deleted = append(deleted, r.ID)
	}
	return deleted, nil
}

// ParseAge parses durations like "30d", "2w" or any time.ParseDuration
// string such as "720h".
func ParseAge(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	day := 24 * time.Hour
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(n) * day, nil
	case 'w':
		return time.Duration(n) * 7 * day, nil
	}
	return 0, fmt.Errorf("unknown duration suffix %q in %q", s[len(s)-1:], s)
}
