package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceCreated    Type = "workflow.instance_created"
	TypeTransitionAccepted Type = "workflow.transition_accepted"
	TypeTransitionRejected Type = "workflow.transition_rejected"
	TypeSLABreached        Type = "workflow.sla_breached"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceCreated,
		TypeTransitionAccepted,
		TypeTransitionRejected,
		TypeSLABreached:
		return true
	default:
		return false
	}
}
