package workflow

// Actor is the identity attempting a transition. The engine takes it as an
// explicit parameter on every call; there is no ambient current-user
// context.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole returns true if the actor carries the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
