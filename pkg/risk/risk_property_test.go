//go:build property

package risk

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Steve-IX/Ezra/pkg/contracts"
)

func genAction() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, len(contracts.RiskLevels)-1),
		gen.Bool(),
	).Map(func(vals []any) contracts.Action {
		return contracts.Action{
			RiskLevel:       contracts.RiskLevels[vals[0].(int)],
			RequiresConsent: vals[1].(bool),
		}
	})
}

func TestAggregate_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("plan risk is the maximum action risk", prop.ForAll(
		func(actions []contracts.Action) bool {
			level, _ := Aggregate(actions)
			maxRank := 0
			for _, a := range actions {
				if a.RiskLevel.Rank() > maxRank {
					maxRank = a.RiskLevel.Rank()
				}
			}
			return level.Rank() == maxRank
		},
		gen.SliceOf(genAction()),
	))

	properties.Property("consent iff any consent flag or high/critical action", prop.ForAll(
		func(actions []contracts.Action) bool {
			_, consent := Aggregate(actions)
			want := false
			for _, a := range actions {
				if a.RequiresConsent || a.RiskLevel == contracts.RiskHigh || a.RiskLevel == contracts.RiskCritical {
					want = true
				}
			}
			return consent == want
		},
		gen.SliceOf(genAction()),
	))

	properties.Property("escalation never lowers risk or clears consent", prop.ForAll(
		func(actions []contracts.Action, ruleLevel int) bool {
			p, err := NewPolicy([]Rule{{Name: "all", Expression: "true", RiskLevel: contracts.RiskLevels[ruleLevel]}})
			if err != nil {
				return false
			}
			before := append([]contracts.Action(nil), actions...)
			p.Escalate(actions, contracts.DeviceInfo{})
			for i := range actions {
				if actions[i].RiskLevel.Rank() < before[i].RiskLevel.Rank() {
					return false
				}
				if before[i].RequiresConsent && !actions[i].RequiresConsent {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genAction()),
		gen.IntRange(0, len(contracts.RiskLevels)-1),
	))

	properties.TestingRun(t)
}
