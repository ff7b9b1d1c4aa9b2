package model

import "fmt"

// Action is the closed set of instance state commands the engine can issue.
type Action string

const (
	// ActionStart powers on an instance.
	ActionStart Action = "start"
	// ActionStop powers off an instance.
	ActionStop Action = "stop"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionStart || a == ActionStop
}

// ParseAction converts an external string into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("invalid action %q (want %q or %q)", s, ActionStart, ActionStop)
	}
	return a, nil
}
