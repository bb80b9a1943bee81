package workflow

import "fmt"

// Kind classifies a workflow category. Informational only; it never changes
// engine semantics.
type Kind string

const (
	KindApproval    Kind = "approval"
	KindMonitoring  Kind = "monitoring"
	KindEscalation  Kind = "escalation"
	KindProject     Kind = "project"
	KindOperational Kind = "operational"
	KindFinancial   Kind = "financial"
	KindEngagement  Kind = "engagement"
	KindPartnership Kind = "partnership"
	KindTechnical   Kind = "technical"
	KindSecurity    Kind = "security"
	KindMaintenance Kind = "maintenance"
)

// StepDefinition describes a single step in a category's transition graph.
// A step with no NextSteps is terminal.
type StepDefinition struct {
	DisplayName string   `yaml:"display_name" json:"display_name"`
	Editable    bool     `yaml:"editable" json:"editable"`
	NextSteps   []string `yaml:"next_steps" json:"next_steps"`
}

// IsTerminal returns true if the step has no outgoing transitions.
func (s StepDefinition) IsTerminal() bool {
	return len(s.NextSteps) == 0
}

// Allows returns true if action is a legal transition out of this step.
// By convention the action name is the destination step name.
func (s StepDefinition) Allows(action string) bool {
	for _, next := range s.NextSteps {
		if next == action {
			return true
		}
	}
	return false
}

// Definition is the immutable per-category workflow configuration: the step
// graph, the roles allowed to approve, and the SLA window. Loaded once at
// startup and shared read-only across all callers.
type Definition struct {
	Category      string                    `yaml:"category" json:"category"`
	Kind          Kind                      `yaml:"kind" json:"kind"`
	InitialStep   string                    `yaml:"initial_step" json:"initial_step"`
	Steps         map[string]StepDefinition `yaml:"steps" json:"steps"`
	ApproverRoles []string                  `yaml:"approver_roles" json:"approver_roles"`
	SLAHours      int                       `yaml:"sla_hours" json:"sla_hours"`
}

// Step looks up a step definition by name.
func (d Definition) Step(name string) (StepDefinition, bool) {
	step, ok := d.Steps[name]
	return step, ok
}

// HasApproverRole returns true if any of the given roles is in the
// category-wide approver list.
//
// Extension point: finer per-step authorization would add an optional
// approver-role override to StepDefinition, defaulting to this list when
// absent. The observed configuration shape is category-wide, so the
// override is not implemented.
func (d Definition) HasApproverRole(roles []string) bool {
	for _, role := range roles {
		for _, approver := range d.ApproverRoles {
			if role == approver {
				return true
			}
		}
	}
	return false
}

// Validate checks the structural invariants of the definition: the initial
// step must exist, and every step referenced in any next_steps list must
// exist as a key in Steps. A violation here is a configuration bug and must
// refuse process startup.
func (d Definition) Validate() error {
	if d.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidDefinition)
	}
	if d.InitialStep == "" {
		return fmt.Errorf("%w: category %s has no initial step", ErrInvalidDefinition, d.Category)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: category %s has no steps", ErrInvalidDefinition, d.Category)
	}
	if _, ok := d.Steps[d.InitialStep]; !ok {
		return fmt.Errorf("%w: category %s initial step %q is not declared in steps",
			ErrInvalidDefinition, d.Category, d.InitialStep)
	}
	for name, step := range d.Steps {
		for _, next := range step.NextSteps {
			if _, ok := d.Steps[next]; !ok {
				return fmt.Errorf("%w: category %s step %q references unknown next step %q",
					ErrInvalidDefinition, d.Category, name, next)
			}
		}
	}
	if d.SLAHours <= 0 {
		return fmt.Errorf("%w: category %s has non-positive sla_hours", ErrInvalidDefinition, d.Category)
	}
	return nil
}
