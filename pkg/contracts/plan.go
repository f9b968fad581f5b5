package contracts

// ExecutionConstraint is the planner input for one handler.
type ExecutionConstraint struct {
	HandlerID  string   `json:"handler_id"`
	Phase      Phase    `json:"phase"`
	DependsOn  []string `json:"depends_on,omitempty"`
	ProfileRef string   `json:"profile_ref,omitempty"`
}

// PhaseStep groups the handlers that run in one phase, in order.
type PhaseStep struct {
	Phase      Phase    `json:"phase"`
	HandlerIDs []string `json:"handler_ids"`
}

// ExecutionPlan is an ordered sequence of phase steps. Each handler appears
// in exactly one step and the concatenation of all steps is a valid
// topological order.
type ExecutionPlan struct {
	Steps []PhaseStep `json:"steps"`
	// Warnings carries advisory findings such as isolated handlers.
	Warnings []string `json:"warnings,omitempty"`
	Digest   string   `json:"digest"`
}

// HandlerOrder flattens the plan into one ordered list.
func (p *ExecutionPlan) HandlerOrder() []string {
	var out []string
	for _, s := range p.Steps {
		out = append(out, s.HandlerIDs...)
	}
	return out
}

// PhaseOf returns the phase a handler was scheduled in.
func (p *ExecutionPlan) PhaseOf(handlerID string) (Phase, bool) {
	for _, s := range p.Steps {
		for _, id := range s.HandlerIDs {
			if id == handlerID {
				return s.Phase, true
			}
		}
	}
	return "", false
}
