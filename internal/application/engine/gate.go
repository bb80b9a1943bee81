package engine

import "github.com/schoolops/caseflow/internal/domain/workflow"

// Gate decides whether an actor may execute an action from the instance's
// current step. Policy, first match wins:
//
//  1. The case creator may advance their own case through any transition
//     permitted from the current step.
//  2. Any actor holding one of the category's approver roles may perform
//     any transition in the category.
//  3. Deny.
//
// Authorization is intentionally category-wide rather than per-step; see the
// extension point note on Definition.HasApproverRole.
type Gate struct{}

// NewGate creates an authorization gate.
func NewGate() *Gate {
	return &Gate{}
}

// CanPerform reports whether the actor is allowed to execute the action.
func (g *Gate) CanPerform(actor workflow.Actor, def workflow.Definition, state *workflow.State, action string) bool {
	if actor.ID != "" && actor.ID == state.CreatedBy() {
		if step, ok := def.Step(state.CurrentStep); ok && step.Allows(action) {
			return true
		}
	}
	return def.HasApproverRole(actor.Roles)
}
