package risk

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/Steve-IX/Ezra/pkg/contracts"
)

// Rule escalates matching actions. Rules can only raise risk or add a
// consent requirement, never lower either.
type Rule struct {
	Name            string              `yaml:"name" json:"name"`
	Expression      string              `yaml:"expression" json:"expression"`
	RiskLevel       contracts.RiskLevel `yaml:"risk_level" json:"risk_level"`
	RequiresConsent bool                `yaml:"requires_consent" json:"requires_consent"`
}

// DefaultRules always apply unless a policy file replaces them.
var DefaultRules = []Rule{
	{
		Name:            "security-circumvention",
		Expression:      `action.type in ["jailbreak", "bypass"]`,
		RiskLevel:       contracts.RiskCritical,
		RequiresConsent: true,
	},
	{
		Name:            "destructive-commands",
		Expression:      `action.commands.exists(c, c.matches("rm\\s+-[a-zA-Z]*r[a-zA-Z]*f?\\s+/(\\s|$)|mkfs|dd\\s+if=.*of=/dev/|format\\s+[a-zA-Z]:"))`,
		RiskLevel:       contracts.RiskCritical,
		RequiresConsent: true,
	},
	{
		Name:            "unguarded-restore",
		Expression:      `action.type == "restore" && size(action.rollback_commands) == 0`,
		RiskLevel:       contracts.RiskHigh,
		RequiresConsent: true,
	},
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// Policy evaluates compiled escalation rules against actions.
type Policy struct {
	rules  []compiledRule
	logger *slog.Logger
}

// NewPolicy compiles rules. Any invalid expression or risk level is an error.
func NewPolicy(rules []Rule) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.DynType),
		cel.Variable("device", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	p := &Policy{logger: slog.Default().With("component", "risk.policy")}
	for i, r := range rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
		if r.RiskLevel != "" && !r.RiskLevel.Valid() {
			return nil, fmt.Errorf("rule %s: unknown risk level %q", r.Name, r.RiskLevel)
		}
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: compile: %w", r.Name, issues.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("rule %s: expression must be boolean, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %s: program: %w", r.Name, err)
		}
		p.rules = append(p.rules, compiledRule{Rule: r, prg: prg})
	}
	return p, nil
}

type policyFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadPolicy reads rules from a YAML file. An empty path yields DefaultRules.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return NewPolicy(DefaultRules)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk policy: %w", err)
	}
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse risk policy %s: %w", path, err)
	}
	return NewPolicy(f.Rules)
}

// Rules returns the names of the loaded rules in evaluation order.
func (p *Policy) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name
	}
	return names
}

// Escalate applies every matching rule to every action in place. A rule
// that fails to evaluate forces consent on that action.
func (p *Policy) Escalate(actions []contracts.Action, device contracts.DeviceInfo) {
	if p == nil || len(p.rules) == 0 {
		return
	}
	dev := toMap(device, "capabilities")
	for i := range actions {
		a := &actions[i]
		input := map[string]any{"action": toMap(a, "commands", "rollback_commands", "dependencies"), "device": dev}
		for _, r := range p.rules {
			out, _, err := r.prg.Eval(input)
			if err != nil {
				p.logger.Warn("risk rule failed to evaluate, requiring consent",
					"rule", r.Name, "action", a.ID, "error", err)
				a.RequiresConsent = true
				continue
			}
			matched, ok := out.Value().(bool)
			if !ok || !matched {
				continue
			}
			before := a.RiskLevel
			if r.RiskLevel != "" {
				a.RiskLevel = contracts.MaxRisk(a.RiskLevel, r.RiskLevel)
			}
			if r.RequiresConsent {
				a.RequiresConsent = true
			}
			if a.RiskLevel != before {
				p.logger.Info("risk escalated", "rule", r.Name, "action", a.ID, "from", before, "to", a.RiskLevel)
			}
		}
	}
}

// toMap exposes v to CEL using its JSON field names. listKeys that were
// omitted as empty are present as empty lists.
func toMap(v any, listKeys ...string) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	for _, k := range listKeys {
		if _, ok := m[k]; !ok {
			m[k] = []any{}
		}
	}
	return m
}
