package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimulate_FirstMatchWins(t *testing.T) {
	rules := []Rule{
		{Name: "auto-approve-defects", Decision: StatusApproved, Reasons: []string{"defective", "damaged"}},
		{Name: "deny-everything", Decision: StatusDenied},
	}

	res := Simulate(rules, SimulationInput{
		Reason:        "defective",
		OrderPlacedAt: time.Now().Add(-48 * time.Hour),
	})

	assert.Equal(t, StatusApproved, res.Decision)
	assert.Equal(t, "auto-approve-defects", res.MatchedRule)
	// The catch-all rule was never evaluated.
	for _, line := range res.Trace {
		assert.NotContains(t, line, "deny-everything")
	}
}

func TestSimulate_AllConditionsANDed(t *testing.T) {
	rules := []Rule{
		{
			Name:              "cheap-and-recent",
			Decision:          StatusApproved,
			MaxDaysSinceOrder: 30,
			MaxRefundAmount:   50,
		},
	}

	tests := []struct {
		name string
		in   SimulationInput
		want Status
	}{
		{
			name: "both hold",
			in: SimulationInput{
				RefundAmount:  49.99,
				OrderPlacedAt: time.Now().Add(-10 * 24 * time.Hour),
			},
			want: StatusApproved,
		},
		{
			name: "too expensive",
			in: SimulationInput{
				RefundAmount:  120,
				OrderPlacedAt: time.Now().Add(-10 * 24 * time.Hour),
			},
			want: StatusRequested,
		},
		{
			name: "too old",
			in: SimulationInput{
				RefundAmount:  10,
				OrderPlacedAt: time.Now().Add(-90 * 24 * time.Hour),
			},
			want: StatusRequested,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Simulate(rules, tt.in)
			assert.Equal(t, tt.want, res.Decision)
		})
	}
}

func TestSimulate_DefaultsToRequested(t *testing.T) {
	res := Simulate(nil, SimulationInput{Reason: "changed_mind"})
	assert.Equal(t, StatusRequested, res.Decision)
	assert.Empty(t, res.MatchedRule)
	assert.Empty(t, res.Trace)
}

func TestSimulate_OrderingDependency(t *testing.T) {
	// Swapping rule order changes the outcome; the engine must not score or
	// best-match across rules.
	approve := Rule{Name: "approve-cheap", Decision: StatusApproved, MaxRefundAmount: 100}
	deny := Rule{Name: "deny-cheap", Decision: StatusDenied, MaxRefundAmount: 100}

	in := SimulationInput{RefundAmount: 20, OrderPlacedAt: time.Now()}

	assert.Equal(t, StatusApproved, Simulate([]Rule{approve, deny}, in).Decision)
	assert.Equal(t, StatusDenied, Simulate([]Rule{deny, approve}, in).Decision)
}

func TestSimulate_TraceExplainsConditions(t *testing.T) {
	rules := []Rule{
		{Name: "recent-only", Decision: StatusApproved, MaxDaysSinceOrder: 30},
	}
	res := Simulate(rules, SimulationInput{
		OrderPlacedAt: time.Now().Add(-60 * 24 * time.Hour),
	})

	assert.Equal(t, StatusRequested, res.Decision)
	assert.Len(t, res.Trace, 1)
	assert.Contains(t, res.Trace[0], "recent-only")
	assert.Contains(t, res.Trace[0], "false")
}

func TestSimulate_UnconditionalRuleMatches(t *testing.T) {
	rules := []Rule{{Name: "catch-all", Decision: StatusDenied}}
	res := Simulate(rules, SimulationInput{})
	assert.Equal(t, StatusDenied, res.Decision)
	assert.Equal(t, "catch-all", res.MatchedRule)
}
