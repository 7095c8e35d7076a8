package workflow

import (
	"fmt"
	"time"
)

// Rule is one merchant-defined triage rule. All configured conditions within
// a rule are AND-ed; a zero value disables the condition.
type Rule struct {
	Name              string   `json:"name"`
	Decision          Status   `json:"decision"`
	Reasons           []string `json:"reasons,omitempty"`
	MaxDaysSinceOrder int      `json:"max_days_since_order,omitempty"`
	MaxRefundAmount   float64  `json:"max_refund_amount,omitempty"`
}

// SimulationInput is the slice of a return request plus its order that the
// rules look at.
type SimulationInput struct {
	Reason        string
	RefundAmount  float64
	OrderPlacedAt time.Time
	Now           time.Time
}

// SimulationResult carries the proposed initial decision and a human-readable
// trace of every condition that was evaluated before the engine stopped.
type SimulationResult struct {
	Decision    Status
	MatchedRule string
	Trace       []string
}

// Simulate evaluates rules in order and stops at the first rule whose
// conditions all hold. Rule order is merchant-authored and load-bearing:
// later rules are not consulted once one matches. When nothing matches the
// decision defaults to requested, leaving triage to a human.
func Simulate(rules []Rule, in SimulationInput) SimulationResult {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	res := SimulationResult{Decision: StatusRequested}

	for _, rule := range rules {
		matched := true

		if len(rule.Reasons) > 0 {
			hit := false
			for _, reason := range rule.Reasons {
				if reason == in.Reason {
					hit = true
					break
				}
			}
			res.Trace = append(res.Trace, fmt.Sprintf(
				"[%s] reason %q in %v: %v", rule.Name, in.Reason, rule.Reasons, hit))
			matched = matched && hit
		}

		if rule.MaxDaysSinceOrder > 0 {
			days := int(now.Sub(in.OrderPlacedAt).Hours() / 24)
			hit := days <= rule.MaxDaysSinceOrder
			res.Trace = append(res.Trace, fmt.Sprintf(
				"[%s] days since order %d <= %d: %v", rule.Name, days, rule.MaxDaysSinceOrder, hit))
			matched = matched && hit
		}

		if rule.MaxRefundAmount > 0 {
			hit := in.RefundAmount <= rule.MaxRefundAmount
			res.Trace = append(res.Trace, fmt.Sprintf(
				"[%s] refund %.2f <= %.2f: %v", rule.Name, in.RefundAmount, rule.MaxRefundAmount, hit))
			matched = matched && hit
		}

		if matched {
			res.Decision = rule.Decision
			res.MatchedRule = rule.Name
			return res
		}
	}

	return res
}
