package service

import (
	"testing"
	"time"

	"adledger/internal/model"
)

const grace = 24 * time.Hour

func TestDecide_FailureTable(t *testing.T) {
	tests := []struct {
		name         string
		current      model.Status
		sinceEntered time.Duration
		wantNext     model.Status
		wantMult     float64
		wantAction   CampaignAction
		wantNotify   string
	}{
		{
			name:       "active first failure warns without throttling",
			current:    model.StatusActive,
			wantNext:   model.StatusWarning,
			wantMult:   1.0,
			wantAction: ActionNone,
			wantNotify: NotifyPaymentWarning,
		},
		{
			name:         "warning failure inside grace stays warning",
			current:      model.StatusWarning,
			sinceEntered: 23 * time.Hour,
			wantNext:     model.StatusWarning,
			wantMult:     1.0,
			wantAction:   ActionNone,
		},
		{
			name:         "warning failure after grace reduces budgets",
			current:      model.StatusWarning,
			sinceEntered: 25 * time.Hour,
			wantNext:     model.StatusBudgetReduced,
			wantMult:     0.5,
			wantAction:   ActionSetMultiplier,
			wantNotify:   NotifyBudgetsReduced,
		},
		{
			name:         "reduced failure inside grace stays reduced",
			current:      model.StatusBudgetReduced,
			sinceEntered: time.Hour,
			wantNext:     model.StatusBudgetReduced,
			wantMult:     0.5,
			wantAction:   ActionNone,
		},
		{
			name:         "reduced failure after grace pauses",
			current:      model.StatusBudgetReduced,
			sinceEntered: grace,
			wantNext:     model.StatusPaused,
			wantMult:     0.0,
			wantAction:   ActionPauseAll,
			wantNotify:   NotifyCampaignsPaused,
		},
		{
			name:         "paused failure stays paused",
			current:      model.StatusPaused,
			sinceEntered: 100 * time.Hour,
			wantNext:     model.StatusPaused,
			wantMult:     0.0,
			wantAction:   ActionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Decide(tt.current, OutcomeDeclined, tt.sinceEntered, grace)
			if tr.Next != tt.wantNext {
				t.Errorf("next = %s, want %s", tr.Next, tt.wantNext)
			}
			if tr.Multiplier != tt.wantMult {
				t.Errorf("multiplier = %v, want %v", tr.Multiplier, tt.wantMult)
			}
			if tr.Action != tt.wantAction {
				t.Errorf("action = %v, want %v", tr.Action, tt.wantAction)
			}
			if tr.Notify != tt.wantNotify {
				t.Errorf("notify = %q, want %q", tr.Notify, tt.wantNotify)
			}
		})
	}
}

func TestDecide_GatewayUnavailableEscalatesLikeDecline(t *testing.T) {
	declined := Decide(model.StatusWarning, OutcomeDeclined, grace, grace)
	unavailable := Decide(model.StatusWarning, OutcomeGatewayUnavailable, grace, grace)
	if declined != unavailable {
		t.Errorf("outcomes diverge: declined=%+v unavailable=%+v", declined, unavailable)
	}
}

func TestDecide_SuccessRestoresActiveFromAnyState(t *testing.T) {
	for _, cur := range []model.Status{
		model.StatusActive, model.StatusWarning, model.StatusBudgetReduced, model.StatusPaused,
	} {
		tr := Decide(cur, OutcomeSuccess, 0, grace)
		if tr.Next != model.StatusActive {
			t.Errorf("from %s: next = %s, want active", cur, tr.Next)
		}
		if tr.Multiplier != 1.0 {
			t.Errorf("from %s: multiplier = %v, want 1.0", cur, tr.Multiplier)
		}
	}

	// Only a paused account needs a resume; it also notifies the customer.
	tr := Decide(model.StatusPaused, OutcomeSuccess, 0, grace)
	if tr.Action != ActionResumeAll {
		t.Errorf("paused success action = %v, want resume", tr.Action)
	}
	if tr.Notify != NotifyCampaignsResumed {
		t.Errorf("paused success notify = %q, want %q", tr.Notify, NotifyCampaignsResumed)
	}
	if tr := Decide(model.StatusBudgetReduced, OutcomeSuccess, 0, grace); tr.Action != ActionSetMultiplier {
		t.Errorf("reduced success action = %v, want set-multiplier", tr.Action)
	}
}

// Reaching Paused requires passing through Warning and BudgetReduced with a
// full grace dwell in each; a burst of failures cannot fast-path there.
func TestDecide_NeverSkipsGraceWindow(t *testing.T) {
	status := model.StatusActive
	hops := 0
	for i := 0; i < 10; i++ {
		tr := Decide(status, OutcomeDeclined, 0, grace) // zero dwell every time
		if tr.Next != status {
			hops++
		}
		status = tr.Next
	}
	if status == model.StatusPaused || status == model.StatusBudgetReduced {
		t.Fatalf("escalated to %s without any grace dwell", status)
	}
	if hops != 1 {
		t.Errorf("expected exactly one hop (active→warning), got %d", hops)
	}

	// Walking with full dwell takes exactly the two boundaries in order.
	status = model.StatusActive
	var path []model.Status
	for i := 0; i < 3; i++ {
		tr := Decide(status, OutcomeDeclined, grace, grace)
		path = append(path, tr.Next)
		status = tr.Next
	}
	want := []model.Status{model.StatusWarning, model.StatusBudgetReduced, model.StatusPaused}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path[%d] = %s, want %s", i, path[i], want[i])
		}
	}
}

// The multiplier is always exactly one of {0, 0.5, 1} and matches the
// destination status.
func TestDecide_MultiplierLockedToStatus(t *testing.T) {
	statuses := []model.Status{model.StatusActive, model.StatusWarning, model.StatusBudgetReduced, model.StatusPaused}
	outcomes := []Outcome{OutcomeSuccess, OutcomeDeclined, OutcomeGatewayUnavailable}
	dwells := []time.Duration{0, grace - time.Second, grace, 10 * grace}

	for _, s := range statuses {
		for _, o := range outcomes {
			for _, d := range dwells {
				tr := Decide(s, o, d, grace)
				if tr.Multiplier != tr.Next.Multiplier() {
					t.Errorf("Decide(%s, %s, %v): multiplier %v does not match status %s",
						s, o, d, tr.Multiplier, tr.Next)
				}
				switch tr.Multiplier {
				case 0.0, 0.5, 1.0:
				default:
					t.Errorf("Decide(%s, %s, %v): transitional multiplier %v", s, o, d, tr.Multiplier)
				}
			}
		}
	}
}
