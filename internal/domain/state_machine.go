package domain

import (
	"fmt"

	"github.com/tradedesk/backoffice/internal/domain/models"
)

// EngagementTransition represents an action that can change engagement status
type EngagementTransition string

const (
	// TransitionAdvance moves an in-progress engagement to its next step
	TransitionAdvance EngagementTransition = "Advance"
	// TransitionComplete finishes the last step of an engagement
	TransitionComplete EngagementTransition = "Complete"
	// TransitionCancel aborts an in-progress engagement
	TransitionCancel EngagementTransition = "Cancel"
)

// EngagementStateMachine enforces valid status transitions for engagements.
// Step-to-step progression is derived from the bound template's ordering at
// call time; this machine only guards the overall status. Invalid
// transitions return an error (fail-fast approach).
type EngagementStateMachine struct {
	// transitions maps (current status, transition) -> next status
	transitions map[statusTransitionKey]models.EngagementStatus
}

type statusTransitionKey struct {
	status     models.EngagementStatus
	transition EngagementTransition
}

// NewEngagementStateMachine creates a state machine with the engagement
// lifecycle rules.
// State diagram:
//
//	          Advance
//	           ┌──┐
//	           │  ▼
//	      [IN_PROGRESS] ──Complete──▶ [COMPLETED]
//	           │
//	         Cancel
//	           ▼
//	      [CANCELLED]
//
//	COMPLETED and CANCELLED are terminal
func NewEngagementStateMachine() *EngagementStateMachine {
	sm := &EngagementStateMachine{
		transitions: make(map[statusTransitionKey]models.EngagementStatus),
	}

	sm.addTransition(models.EngagementStatusInProgress, TransitionAdvance, models.EngagementStatusInProgress)
	sm.addTransition(models.EngagementStatusInProgress, TransitionComplete, models.EngagementStatusCompleted)
	sm.addTransition(models.EngagementStatusInProgress, TransitionCancel, models.EngagementStatusCancelled)

	return sm
}

func (sm *EngagementStateMachine) addTransition(from models.EngagementStatus, via EngagementTransition, to models.EngagementStatus) {
	key := statusTransitionKey{status: from, transition: via}
	sm.transitions[key] = to
}

// Transition attempts to transition from the current status using the given
// action. Returns the new status or an error if the transition is invalid.
func (sm *EngagementStateMachine) Transition(current models.EngagementStatus, action EngagementTransition) (models.EngagementStatus, error) {
	key := statusTransitionKey{status: current, transition: action}
	next, ok := sm.transitions[key]
	if !ok {
		return current, fmt.Errorf("invalid state transition: cannot %s from %s", action, current)
	}
	return next, nil
}

// CanTransition checks if a transition is valid without performing it.
func (sm *EngagementStateMachine) CanTransition(current models.EngagementStatus, action EngagementTransition) bool {
	key := statusTransitionKey{status: current, transition: action}
	_, ok := sm.transitions[key]
	return ok
}

// ValidTransitions returns all valid transitions from the given status.
func (sm *EngagementStateMachine) ValidTransitions(status models.EngagementStatus) []EngagementTransition {
	var result []EngagementTransition
	for key := range sm.transitions {
		if key.status == status {
			result = append(result, key.transition)
		}
	}
	return result
}

// IsTerminal returns true if the status admits no further transitions.
func (sm *EngagementStateMachine) IsTerminal(status models.EngagementStatus) bool {
	return status == models.EngagementStatusCompleted || status == models.EngagementStatusCancelled
}
