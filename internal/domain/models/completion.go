package models

import (
	"time"

	"github.com/tradedesk/backoffice/pkg/fieldschema"
)

// CompletionOutcome classifies one audit entry
type CompletionOutcome string

const (
	OutcomeCompleted CompletionOutcome = "COMPLETED"
	OutcomeRejected  CompletionOutcome = "REJECTED"
	OutcomeCancelled CompletionOutcome = "CANCELLED"
)

// ApprovalDecision values recorded on a completion
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// StepCompletion is the immutable audit record of one executed, rejected,
// or cancelled transition. Created exactly once per event, never mutated or
// deleted.
type StepCompletion struct {
	ID               string                       `json:"id"`
	EngagementID     string                       `json:"engagement_id"`
	StepID           *string                      `json:"step_id,omitempty"`
	StepCode         string                       `json:"step_code"`
	Outcome          CompletionOutcome            `json:"outcome"`
	Values           map[string]fieldschema.Value `json:"values,omitempty"`
	DocumentIDs      []string                     `json:"document_ids,omitempty"`
	ActingUserID     string                       `json:"acting_user_id"`
	ApprovalDecision *string                      `json:"approval_decision,omitempty"`
	ApproverID       *string                      `json:"approver_id,omitempty"`
	Comment          *string                      `json:"comment,omitempty"`
	OccurredDate     time.Time                    `json:"occurred_date"`
}
