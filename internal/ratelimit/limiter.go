// Package ratelimit bounds how often each MCP tool may be invoked.
package ratelimit

import (
	"fmt"

	"golang.org/x/time/rate"
)

// Tool names with a configured limit.
const (
	ToolReplayRun        = "replay_run"
	ToolReplayHistory    = "replay_history"
	ToolTrajectoryDecode = "trajectory_decode"
)

// ToolLimiters maps tool names to their token buckets.
type ToolLimiters map[string]*rate.Limiter

// perMinute builds a limiter refilling n tokens a minute.
func perMinute(n float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(n/60.0), burst)
}

// NewToolLimiters creates the default per-tool limits. Replays are costly
// so they get the tightest budget.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		ToolReplayRun:        perMinute(20, 4),
		ToolReplayHistory:    perMinute(60, 10),
		ToolTrajectoryDecode: perMinute(60, 10),
	}
}

// CheckLimit returns an error when toolName has exhausted its bucket.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
