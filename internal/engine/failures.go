package engine

import "fmt"

// FailureScope selects when the duplicate-draw counter resets.
type FailureScope string

const (
	// ScopeConsecutive resets on every accepted edition and configuration.
	ScopeConsecutive FailureScope = "consecutive"
	// ScopeConfiguration resets when a configuration starts.
	ScopeConfiguration FailureScope = "configuration"
	// ScopeRun never resets.
	ScopeRun FailureScope = "run"
)

// ParseFailureScope maps a configured value to a scope. Empty is consecutive.
func ParseFailureScope(s string) (FailureScope, error) {
	switch FailureScope(s) {
	case "", ScopeConsecutive:
		return ScopeConsecutive, nil
	case ScopeConfiguration, ScopeRun:
		return FailureScope(s), nil
	default:
		return "", fmt.Errorf("unknown failure scope %q (want consecutive, configuration or run)", s)
	}
}

// failureCounter counts duplicate draws against a tolerance.
type failureCounter struct {
	scope     FailureScope
	tolerance int
	current   int
	total     int
}

func (c *failureCounter) startConfiguration() {
	if c.scope != ScopeRun {
		c.current = 0
	}
}

func (c *failureCounter) accepted() {
	if c.scope == ScopeConsecutive {
		c.current = 0
	}
}

// duplicate records one duplicate and reports whether the tolerance is
// reached.
func (c *failureCounter) duplicate() bool {
	c.current++
	c.total++
	return c.current >= c.tolerance
}
