package server

import "fmt"

// State is a step of the server lifecycle. States only move forward.
type State int32

const (
	StateCreated State = iota
	StateBound
	StateListening
	StateAccepting
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateListening:
		return "listening"
	case StateAccepting:
		return "accepting"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
