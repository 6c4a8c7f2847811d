// Package risk derives plan-level risk and consent from per-action risk.
package risk

import (
	"fmt"
	"strings"

	"github.com/Steve-IX/Ezra/pkg/contracts"
)

// Aggregate returns the most severe action risk and whether the plan needs
// consent: any action asks for it, or any action is high or critical.
// An empty list yields (low, false).
func Aggregate(actions []contracts.Action) (contracts.RiskLevel, bool) {
	level := contracts.RiskLow
	consent := false
	for _, a := range actions {
		level = contracts.MaxRisk(level, a.RiskLevel)
		if a.RequiresConsent || a.RiskLevel.AtLeast(contracts.RiskHigh) {
			consent = true
		}
	}
	return level, consent
}

// Apply stamps the aggregate onto plan.
func Apply(plan *contracts.ActionPlan) {
	plan.RiskLevel, plan.ConsentRequired = Aggregate(plan.Actions)
}

// Summarize renders a numbered list of actions for display only.
func Summarize(actions []contracts.Action) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d action(s) planned", len(actions))

	high := 0
	for _, a := range actions {
		if a.RiskLevel.AtLeast(contracts.RiskHigh) {
			high++
		}
	}
	if high > 0 {
		fmt.Fprintf(&b, ", %d high-risk action(s) require review", high)
	}
	b.WriteString(":\n")

	for i, a := range actions {
		fmt.Fprintf(&b, "%d. %s (%s risk)\n", i+1, a.Description, a.RiskLevel)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
