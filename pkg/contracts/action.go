package contracts

import (
	"fmt"
	"strings"
)

// ActionType is the kind of change an action makes to a device.
type ActionType string

// Action type constants.
const (
	ActionInstall   ActionType = "install"
	ActionConfigure ActionType = "configure"
	ActionModify    ActionType = "modify"
	ActionBackup    ActionType = "backup"
	ActionRestore   ActionType = "restore"
	ActionJailbreak ActionType = "jailbreak"
	ActionBypass    ActionType = "bypass"
)

// ActionTypes lists the vocabulary in prompt order.
var ActionTypes = []ActionType{
	ActionInstall, ActionConfigure, ActionModify, ActionBackup,
	ActionRestore, ActionJailbreak, ActionBypass,
}

// Valid reports whether t is part of the action vocabulary.
func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RiskLevel classifies how dangerous an action or plan is.
type RiskLevel string

// Risk levels, ordered low < medium < high < critical.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists the levels in ascending order.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank returns the ordinal of r; unknown levels rank below low.
func (r RiskLevel) Rank() int {
	for i, l := range RiskLevels {
		if r == l {
			return i
		}
	}
	return -1
}

// Valid reports whether r is a known level.
func (r RiskLevel) Valid() bool { return r.Rank() >= 0 }

// AtLeast reports whether r is as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool { return r.Rank() >= other.Rank() }

// ParseRiskLevel normalizes a risk string.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return r, nil
}

// MaxRisk returns the more severe of a and b.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Action is one executable step of a plan.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Action struct {
	ID                string     `json:"id"`
	Type              ActionType `json:"type"`
	Description       string     `json:"description"`
	RiskLevel         RiskLevel  `json:"risk_level"`
	RequiresConsent   bool       `json:"requires_consent"`
	Commands          []string   `json:"commands"`
	RollbackCommands  []string   `json:"rollback_commands,omitempty"`
	Dependencies      []string   `json:"dependencies,omitempty"`
	EstimatedDuration *int       `json:"estimated_duration,omitempty"`
}
