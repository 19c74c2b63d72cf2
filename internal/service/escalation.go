package service

import (
	"time"

	"adledger/internal/model"
)

// Outcome is a top-up charge result fed into the escalation machine.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDeclined
	OutcomeGatewayUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDeclined:
		return "declined"
	default:
		return "gateway_unavailable"
	}
}

// CampaignAction is the platform side effect a transition requires.
type CampaignAction int

const (
	ActionNone CampaignAction = iota
	ActionSetMultiplier
	ActionPauseAll
	ActionResumeAll
)

// Notification event names emitted by transitions.
const (
	NotifyPaymentWarning   = "payment-warning"
	NotifyBudgetsReduced   = "budgets-reduced"
	NotifyCampaignsPaused  = "campaigns-paused"
	NotifyCampaignsResumed = "campaigns-resumed"
)

// Transition is the result of one escalation decision.
type Transition struct {
	Next       model.Status
	Multiplier float64
	Action     CampaignAction
	Notify     string // empty means no notification
}

// Changed reports whether the status actually moves.
func (t Transition) Changed(from model.Status) bool { return t.Next != from }

// Decide maps (current status, charge outcome, dwell in the current status)
// to the next state. It is a pure function that never consults the wall clock
// itself; reconciliation re-derives the same answer from the same inputs.
//
// Escalation is deliberately slow: a single transient decline never jumps a
// paying customer to Paused. Each of the two hard boundaries
// (Warning→BudgetReduced, BudgetReduced→Paused) requires a fresh failure
// after at least `grace` spent in the current status.
func Decide(current model.Status, outcome Outcome, sinceEntered time.Duration, grace time.Duration) Transition {
	if outcome == OutcomeSuccess {
		t := Transition{Next: model.StatusActive, Multiplier: 1.0}
		if current == model.StatusPaused {
			t.Action = ActionResumeAll
			t.Notify = NotifyCampaignsResumed
		} else if current != model.StatusActive {
			// Budgets may have been throttled; restore the full multiplier.
			t.Action = ActionSetMultiplier
		}
		return t
	}

	// Declined and GatewayUnavailable escalate the same way; the scheduler
	// retries transient failures sooner, but neither starves escalation.
	switch current {
	case model.StatusActive:
		return Transition{
			Next:       model.StatusWarning,
			Multiplier: 1.0, // warning does not throttle yet
			Notify:     NotifyPaymentWarning,
		}
	case model.StatusWarning:
		if sinceEntered >= grace {
			return Transition{
				Next:       model.StatusBudgetReduced,
				Multiplier: 0.5,
				Action:     ActionSetMultiplier,
				Notify:     NotifyBudgetsReduced,
			}
		}
		return Transition{Next: model.StatusWarning, Multiplier: 1.0}
	case model.StatusBudgetReduced:
		if sinceEntered >= grace {
			return Transition{
				Next:       model.StatusPaused,
				Multiplier: 0.0,
				Action:     ActionPauseAll,
				Notify:     NotifyCampaignsPaused,
			}
		}
		return Transition{Next: model.StatusBudgetReduced, Multiplier: 0.5}
	default: // Paused: nowhere further to go
		return Transition{Next: model.StatusPaused, Multiplier: 0.0}
	}
}
