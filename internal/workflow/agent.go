package workflow

import "fmt"

// Agent describes the persona a stage prompts the model with.
type Agent struct {
	Role      string
	Goal      string
	Backstory string
}

// SystemPrompt renders the agent persona as a system instruction.
func (a Agent) SystemPrompt() string {
	return fmt.Sprintf("You are %s.\nYour goal: %s\n%s", a.Role, a.Goal, a.Backstory)
}
