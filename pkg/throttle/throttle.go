// Package throttle provides the adaptive parallelism hint used when
// the external tool or cloud API starts rate limiting.
package throttle

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// DefaultHint is the initial parallelism hint.
	DefaultHint = 10

	// DefaultFloor is the value the hint steps down to on a breach.
	DefaultFloor = 1
)

// rateLimitSignatures are the stderr fragments that indicate rate
// limiting or quota exhaustion.
var rateLimitSignatures = []string{
	"429",
	"Too Many Requests",
	"RateLimit",
	"Throttling",
	"rate exceeded",
}

// Controller holds a mutable parallelism hint scoped to one workspace.
// The hint only ever steps down: once a breach is observed it drops to
// the floor and stays there for the lifetime of the controller. The
// design intentionally never auto-increases back up; a fresh run gets
// a fresh controller.
type Controller struct {
	mu     sync.Mutex
	hint   int
	floor  int
	notify func(hint int)

	logger zerolog.Logger
}

// NewController creates a controller with the given initial hint and
// floor. Non-positive values fall back to the defaults.
func NewController(hint, floor int, logger zerolog.Logger) *Controller {
	if hint <= 0 {
		hint = DefaultHint
	}
	if floor <= 0 {
		floor = DefaultFloor
	}
	if floor > hint {
		floor = hint
	}
	return &Controller{hint: hint, floor: floor, logger: logger}
}

// Notify registers a callback invoked with the hint whenever it
// changes, typically a metrics gauge setter. The callback also fires
// immediately with the current hint so the gauge starts correct.
func (c *Controller) Notify(fn func(hint int)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.notify = fn
	hint := c.hint
	c.mu.Unlock()
	fn(hint)
}

// Hint returns the current parallelism hint.
func (c *Controller) Hint() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hint
}

// Observe inspects stderr for rate-limit signatures. On a breach the
// hint is reduced to the floor exactly once; further breaches are
// no-ops. It returns true when this call performed the step-down.
func (c *Controller) Observe(stderr string) bool {
	if !hasRateLimitSignature(stderr) {
		return false
	}

	c.mu.Lock()
	if c.hint <= c.floor {
		c.mu.Unlock()
		return false
	}

	c.logger.Warn().
		Int("from", c.hint).
		Int("to", c.floor).
		Msg("rate limiting observed, reducing parallelism hint")
	c.hint = c.floor
	hint := c.hint
	notify := c.notify
	c.mu.Unlock()

	// The callback runs outside the lock so it may call back into the
	// controller.
	if notify != nil {
		notify(hint)
	}
	return true
}

func hasRateLimitSignature(stderr string) bool {
	for _, sig := range rateLimitSignatures {
		if strings.Contains(stderr, sig) {
			return true
		}
	}
	return false
}
