package ratelimit

import (
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func TestNewToolLimiters(t *testing.T) {
	limiters := NewToolLimiters()
	for _, tool := range []string{ToolReplayRun, ToolReplayHistory, ToolTrajectoryDecode} {
		l, ok := limiters[tool]
		if !ok {
			t.Errorf("no limiter for %s", tool)
			continue
		}
		if l.Burst() < 1 {
			t.Errorf("%s burst = %d, want >= 1", tool, l.Burst())
		}
	}
}

func TestCheckLimit(t *testing.T) {
	limiters := ToolLimiters{
		"slow": rate.NewLimiter(0, 2),
	}

	for i := 0; i < 2; i++ {
		if err := CheckLimit(limiters, "slow"); err != nil {
			t.Fatalf("call %d within burst: %v", i+1, err)
		}
	}
	err := CheckLimit(limiters, "slow")
	if err == nil {
		t.Fatal("CheckLimit() after burst error = nil, want rate limit error")
	}
	if !strings.Contains(err.Error(), "slow") {
		t.Errorf("error %q does not name the tool", err)
	}
}

func TestCheckLimit_Unconfigured(t *testing.T) {
	for i := 0; i < 100; i++ {
		if err := CheckLimit(ToolLimiters{}, "anything"); err != nil {
			t.Fatalf("CheckLimit() for unconfigured tool = %v", err)
		}
	}
}

func TestCheckLimit_IndependentTools(t *testing.T) {
	limiters := ToolLimiters{
		"a": rate.NewLimiter(0, 1),
		"b": rate.NewLimiter(0, 1),
	}
	if err := CheckLimit(limiters, "a"); err != nil {
		t.Fatal(err)
	}
	if err := CheckLimit(limiters, "b"); err != nil {
		t.Errorf("b limited by a: %v", err)
	}
}
