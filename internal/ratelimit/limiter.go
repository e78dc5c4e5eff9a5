// Package ratelimit provides per-tool token bucket rate limiting for MCP tools.
package ratelimit

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Tool names served by the MCP server.
const (
	ToolSimulate = "tdsim_simulate"
	ToolExpect   = "tdsim_expect"
)

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*rate.Limiter

// NewToolLimiters creates the default set of per-tool rate limiters.
// A simulation can cost seconds of CPU, so it gets a far smaller budget
// than the closed-form expectation.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		ToolSimulate: rate.NewLimiter(rate.Every(6*time.Second), 2), // 10/minute, burst 2
		ToolExpect:   rate.NewLimiter(rate.Limit(1), 10),            // 60/minute, burst 10
	}
}

// CheckLimit checks the rate limit for a given tool name.
// Returns nil if allowed, or an error if rate limited.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	return checkAt(limiters, toolName, time.Now())
}

func checkAt(limiters ToolLimiters, toolName string, now time.Time) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil // No limiter configured = no limit
	}
	if !limiter.AllowN(now, 1) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
