package workflow

import "errors"

var (
	// ErrInvalidDefinition is returned when a workflow definition violates
	// a structural invariant (missing initial step, dangling next-step
	// reference). Raised at startup, never at transition time.
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrConfigurationDrift is returned when an instance's current step no
	// longer exists in its category's definition. The catalog changed
	// incompatibly under a live instance; the engine refuses the
	// transition rather than guessing a migration path.
	ErrConfigurationDrift = errors.New("workflow configuration drift")

	// ErrConcurrentModification is returned when the optimistic version
	// check fails after the engine's internal retry.
	ErrConcurrentModification = errors.New("concurrent workflow modification")

	// ErrNoWorkflowConfigured is returned by read operations on a case
	// whose category has no definition. The case simply has no gated
	// lifecycle; callers treat this as absence, not as a fault.
	ErrNoWorkflowConfigured = errors.New("no workflow configured")
)
