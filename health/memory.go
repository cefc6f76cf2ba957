package health

import (
	"context"
	"fmt"
	"runtime"
)

// MemoryChecker reports heap usage against a budget.
type MemoryChecker struct {
	budget   uint64
	warning  float64
	critical float64
}

// NewMemoryChecker creates a checker. budget is in bytes; zero uses the
// runtime's obtained memory. Ratios outside (0,1) fall back to 0.8 and 0.95.
func NewMemoryChecker(budget uint64, warning, critical float64) *MemoryChecker {
	if warning <= 0 || warning >= 1 {
		warning = 0.8
	}
	if critical <= 0 || critical >= 1 || critical < warning {
		critical = 0.95
	}
	return &MemoryChecker{budget: budget, warning: warning, critical: critical}
}

// Name returns "memory".
func (m *MemoryChecker) Name() string { return "memory" }

// Check compares heap allocation to the budget.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	budget := m.budget
	if budget == 0 {
		budget = stats.Sys
	}
	if budget == 0 {
		return Healthy("memory stats unavailable")
	}

	ratio := float64(stats.HeapAlloc) / float64(budget)
	details := map[string]any{
		"heap_alloc":    stats.HeapAlloc,
		"budget":        budget,
		"usage_percent": ratio * 100,
		"goroutines":    runtime.NumGoroutine(),
	}
	msg := fmt.Sprintf("heap usage %.1f%%", ratio*100)

	switch {
	case ratio >= m.critical:
		return Unhealthy(msg, ErrCheckFailed).WithDetails(details)
	case ratio >= m.warning:
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}
