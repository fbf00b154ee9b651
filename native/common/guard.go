package common

import (
	"errors"
	"fmt"
)

var ErrModulePaused = errors.New("module paused")

// PauseView exposes the state of named pause gates.
type PauseView interface {
	IsPaused(gate string) bool
}

// Guard rejects the call when the named gate is paused.
func Guard(p PauseView, gate string) error {
	if p == nil || gate == "" {
		return nil
	}
	if p.IsPaused(gate) {
		return fmt.Errorf("%w: %s", ErrModulePaused, gate)
	}
	return nil
}

// Transition validates a gate flip from current to target, returning
// alreadyErr when the gate already sits in the target state.
func Transition(current, target bool, alreadyErr error) error {
	if current == target {
		return alreadyErr
	}
	return nil
}
