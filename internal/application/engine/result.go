package engine

import (
	"time"

	"github.com/schoolops/caseflow/internal/domain/workflow"
)

// RejectionCode is the typed reason a transition was not accepted. These are
// expected, frequent outcomes, not errors.
type RejectionCode string

const (
	CodeNoWorkflow        RejectionCode = "no_workflow_configured"
	CodeInvalidTransition RejectionCode = "invalid_transition"
	CodeUnauthorized      RejectionCode = "unauthorized"
)

// TransitionResult is the outcome of an Execute call. A rejection always
// carries a human-readable reason and, for invalid transitions, the legal
// action set.
type TransitionResult struct {
	Accepted             bool            `json:"accepted"`
	Code                 RejectionCode   `json:"code,omitempty"`
	Reason               string          `json:"reason,omitempty"`
	NewStep              string          `json:"new_step,omitempty"`
	Status               workflow.Status `json:"status,omitempty"`
	NextAvailableActions []string        `json:"next_available_actions,omitempty"`
}

// CaseStatus is the read model returned by GetStatus.
type CaseStatus struct {
	CaseID                 string                `json:"case_id"`
	Category               string                `json:"category"`
	CurrentStep            string                `json:"current_step"`
	CurrentStepDisplayName string                `json:"current_step_display_name"`
	Editable               bool                  `json:"editable"`
	Status                 workflow.Status       `json:"status"`
	NextAvailableActions   []string              `json:"next_available_actions"`
	StepsCompleted         []workflow.StepRecord `json:"steps_completed"`
	StartedAt              time.Time             `json:"started_at"`
	LastAction             *workflow.ActionRecord `json:"last_action,omitempty"`
	SLAHours               int                   `json:"sla_hours"`
	ApproverRoles          []string              `json:"approver_roles"`
}
