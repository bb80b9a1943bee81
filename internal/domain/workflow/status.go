package workflow

// Status is the externally visible lifecycle status derived from a step
// name. The mapping is fixed and shared across all categories; a step name
// outside the mapping is reported as in-progress.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSubmitted  Status = "submitted"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in_progress"
)

var stepStatus = map[string]Status{
	"draft":     StatusDraft,
	"submitted": StatusSubmitted,
	"approved":  StatusCompleted,
	"published": StatusCompleted,
	"resolved":  StatusCompleted,
	"completed": StatusCompleted,
	"rejected":  StatusRejected,
}

// DeriveStatus maps a step name to its case status. Categories may invent
// step names freely; anything unmapped defaults to in-progress.
func DeriveStatus(step string) Status {
	if status, ok := stepStatus[step]; ok {
		return status
	}
	return StatusInProgress
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}
