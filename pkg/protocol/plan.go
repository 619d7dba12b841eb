package protocol

import (
	"encoding/json"
	"fmt"
)

// Plan is the planner's decomposition of a user task into ordered steps.
// Plans are ephemeral request-local values; the executor never mutates them.
type Plan struct {
	Task  string     `json:"task"`
	Steps []PlanStep `json:"steps"`
}

// PlanStep is a single unit of work, optionally bound to a tool.
type PlanStep struct {
	ID          int            `json:"id"`
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Notes       string         `json:"notes,omitempty"`
}

// StepResult records the outcome of executing a single plan step.
type StepResult struct {
	StepID  int    `json:"step_id"`
	Success bool   `json:"success"`
	Output  any    `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Marshal serializes the plan as compact JSON. The executor's step entry
// point parses this exact shape back.
func (p Plan) Marshal() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan: %w", err)
	}
	return string(data), nil
}

// ParsePlan parses a JSON plan. Step IDs must be unique within the plan.
func ParsePlan(data string) (Plan, error) {
	var plan Plan
	if err := json.Unmarshal([]byte(data), &plan); err != nil {
		return Plan{}, fmt.Errorf("failed to parse plan: %w", err)
	}

	seen := make(map[int]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		if seen[step.ID] {
			return Plan{}, fmt.Errorf("duplicate step id %d in plan", step.ID)
		}
		seen[step.ID] = true
	}

	return plan, nil
}
