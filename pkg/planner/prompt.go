package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Steve-IX/Ezra/pkg/contracts"
)

// SystemPrompt describes the device, the action vocabulary and the reply
// contract the extractor relies on.
func SystemPrompt(device contracts.DeviceInfo) string {
	var b strings.Builder
	b.WriteString("You are Ezra, a device management planner. You turn a user's request into a list of concrete, executable actions for one device.\n\n")

	b.WriteString("Device:\n")
	fmt.Fprintf(&b, "- id: %s\n", device.ID)
	fmt.Fprintf(&b, "- platform: %s\n", device.Platform)
	if device.OS != "" {
		fmt.Fprintf(&b, "- os: %s\n", device.OS)
	}
	if device.Version != "" {
		fmt.Fprintf(&b, "- version: %s\n", device.Version)
	}
	if device.Architecture != "" {
		fmt.Fprintf(&b, "- architecture: %s\n", device.Architecture)
	}
	if len(device.Hardware) > 0 {
		keys := make([]string, 0, len(device.Hardware))
		for k := range device.Hardware {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- hardware.%s: %v\n", k, device.Hardware[k])
		}
	}
	if len(device.Capabilities) > 0 {
		fmt.Fprintf(&b, "- capabilities: %s\n", strings.Join(device.Capabilities, ", "))
	}

	b.WriteString("\nAllowed action types: ")
	types := make([]string, len(contracts.ActionTypes))
	for i, t := range contracts.ActionTypes {
		types[i] = string(t)
	}
	b.WriteString(strings.Join(types, ", "))

	b.WriteString("\nRisk levels, least to most dangerous: ")
	levels := make([]string, len(contracts.RiskLevels))
	for i, l := range contracts.RiskLevels {
		levels[i] = string(l)
	}
	b.WriteString(strings.Join(levels, ", "))

	b.WriteString(`

Rules:
- Use only commands that exist on this platform.
- Every high or critical action MUST include rollback_commands and MUST set requires_consent to true.
- Order actions so that backups run before the changes they protect.
- Never include commands that are unrelated to the request.

Reply with ONLY a JSON array, no prose, in exactly this shape:
[
  {
    "id": "action_1",
    "type": "install",
    "description": "What this step does",
    "risk_level": "low",
    "requires_consent": false,
    "commands": ["command one", "command two"],
    "rollback_commands": ["undo command"],
    "dependencies": [],
    "estimated_duration": 30
  }
]`)
	return b.String()
}

// UserPrompt renders the request and any prior context.
func UserPrompt(req contracts.PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", strings.TrimSpace(req.UserPrompt))
	if req.Context != nil {
		if len(req.Context.PreviousActions) > 0 {
			b.WriteString("\nPreviously executed actions:\n")
			for _, a := range req.Context.PreviousActions {
				fmt.Fprintf(&b, "- %s\n", a)
			}
		}
		if len(req.Context.Constraints) > 0 {
			b.WriteString("\nConstraints:\n")
			for _, c := range req.Context.Constraints {
				fmt.Fprintf(&b, "- %s\n", c)
			}
		}
	}
	return b.String()
}
