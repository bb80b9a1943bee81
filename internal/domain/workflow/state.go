package workflow

import "time"

// StepRecord is one entry in an instance's append-only completion history.
type StepRecord struct {
	Step        string    `json:"step"`
	CompletedAt time.Time `json:"completed_at"`
	CompletedBy string    `json:"completed_by"`
	Action      string    `json:"action"`
}

// ActionRecord denormalizes the most recent action for fast reads.
type ActionRecord struct {
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	PerformedAt time.Time `json:"performed_at"`
}

// State is the mutable workflow instance for a single case. StartedAt is set
// once at creation and never mutated; StepsCompleted is append-only.
type State struct {
	CaseID         string            `json:"case_id"`
	Category       string            `json:"category"`
	CurrentStep    string            `json:"current_step"`
	StepsCompleted []StepRecord      `json:"steps_completed"`
	StartedAt      time.Time         `json:"started_at"`
	LastAction     *ActionRecord     `json:"last_action,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// MetadataCreatedBy is the metadata key holding the actor that created the
// case, consulted by the authorization gate's self-service rule.
const MetadataCreatedBy = "created_by"

// NewState creates a fresh instance positioned at the category's initial
// step.
func NewState(caseID string, def Definition, metadata map[string]string, now time.Time) *State {
	return &State{
		CaseID:      caseID,
		Category:    def.Category,
		CurrentStep: def.InitialStep,
		StartedAt:   now,
		Metadata:    metadata,
	}
}

// CreatedBy returns the creator recorded in the instance metadata, if any.
func (s *State) CreatedBy() string {
	return s.Metadata[MetadataCreatedBy]
}

// Advance appends the completed step to history and moves the instance to
// the action's destination step. The action name doubles as the destination
// step name.
func (s *State) Advance(action, actorID string, now time.Time) {
	s.StepsCompleted = append(s.StepsCompleted, StepRecord{
		Step:        s.CurrentStep,
		CompletedAt: now,
		CompletedBy: actorID,
		Action:      action,
	})
	s.CurrentStep = action
	s.LastAction = &ActionRecord{
		Action:      action,
		PerformedBy: actorID,
		PerformedAt: now,
	}
}

// Consistent reports whether CurrentStep reflects the last history entry, or
// the initial step when history is empty.
func (s *State) Consistent(initialStep string) bool {
	if len(s.StepsCompleted) == 0 {
		return s.CurrentStep == initialStep
	}
	return s.CurrentStep == s.StepsCompleted[len(s.StepsCompleted)-1].Action
}

// Elapsed returns the time the instance has been open.
func (s *State) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}
