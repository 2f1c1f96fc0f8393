package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradedesk/backoffice/internal/domain/models"
)

func TestEngagementStateMachine_ValidTransitions(t *testing.T) {
	sm := NewEngagementStateMachine()

	tests := []struct {
		name        string
		from        models.EngagementStatus
		action      EngagementTransition
		expectedTo  models.EngagementStatus
		shouldError bool
	}{
		// Valid transitions
		{"InProgress -> InProgress via Advance", models.EngagementStatusInProgress, TransitionAdvance, models.EngagementStatusInProgress, false},
		{"InProgress -> Completed via Complete", models.EngagementStatusInProgress, TransitionComplete, models.EngagementStatusCompleted, false},
		{"InProgress -> Cancelled via Cancel", models.EngagementStatusInProgress, TransitionCancel, models.EngagementStatusCancelled, false},

		// Terminal states admit nothing
		{"Completed -> Advance (terminal)", models.EngagementStatusCompleted, TransitionAdvance, models.EngagementStatusCompleted, true},
		{"Completed -> Cancel (terminal)", models.EngagementStatusCompleted, TransitionCancel, models.EngagementStatusCompleted, true},
		{"Cancelled -> Advance (terminal)", models.EngagementStatusCancelled, TransitionAdvance, models.EngagementStatusCancelled, true},
		{"Cancelled -> Complete (terminal)", models.EngagementStatusCancelled, TransitionComplete, models.EngagementStatusCancelled, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			newStatus, err := sm.Transition(tc.from, tc.action)

			if tc.shouldError {
				assert.Error(t, err)
				assert.Equal(t, tc.from, newStatus, "Status should not change on invalid transition")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedTo, newStatus)
			}
		})
	}
}

func TestEngagementStateMachine_CanTransition(t *testing.T) {
	sm := NewEngagementStateMachine()

	assert.True(t, sm.CanTransition(models.EngagementStatusInProgress, TransitionAdvance))
	assert.True(t, sm.CanTransition(models.EngagementStatusInProgress, TransitionCancel))
	assert.False(t, sm.CanTransition(models.EngagementStatusCompleted, TransitionAdvance))
	assert.False(t, sm.CanTransition(models.EngagementStatusCancelled, TransitionCancel))
}

func TestEngagementStateMachine_IsTerminal(t *testing.T) {
	sm := NewEngagementStateMachine()

	assert.False(t, sm.IsTerminal(models.EngagementStatusInProgress))
	assert.True(t, sm.IsTerminal(models.EngagementStatusCompleted))
	assert.True(t, sm.IsTerminal(models.EngagementStatusCancelled))
}
