package workflow

import "time"

// AuditOutcome is the recorded result of a transition attempt.
type AuditOutcome string

const (
	OutcomeAccepted            AuditOutcome = "accepted"
	OutcomeRejectedUnauth      AuditOutcome = "rejected-unauthorized"
	OutcomeRejectedInvalidMove AuditOutcome = "rejected-invalid-transition"
)

// AuditEntry records a single transition attempt, successful or not. One
// entry is appended per attempt; rejected attempts are signal for security
// review, not silence.
type AuditEntry struct {
	ID        string       `json:"id"`
	CaseID    string       `json:"case_id"`
	Category  string       `json:"category"`
	Action    string       `json:"action"`
	ActorID   string       `json:"actor_id"`
	FromStep  string       `json:"from_step"`
	ToStep    string       `json:"to_step"`
	Outcome   AuditOutcome `json:"outcome"`
	Timestamp time.Time    `json:"timestamp"`
}
