package planner

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/Steve-IX/Ezra/pkg/contracts"
)

//go:embed action.schema.json
var actionSchemaJSON string

const actionSchemaURL = "https://ezra.schemas.local/planner/action.schema.json"

var actionSchema = mustCompileActionSchema()

func mustCompileActionSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(actionSchemaURL, strings.NewReader(actionSchemaJSON)); err != nil {
		panic(fmt.Sprintf("action schema load failed: %v", err))
	}
	return c.MustCompile(actionSchemaURL)
}

// Extraction errors. Every one of them sends the synthesizer down the fallback path.
var (
	ErrNoActionArray   = errors.New("no JSON array found in reply")
	ErrEmptyActions    = errors.New("reply contains no actions")
	ErrDuplicateAction = errors.New("duplicate action id")
)

// ExtractActions finds the first JSON array in a model reply, validates each
// element against the Action schema and maps it onto contracts.Action.
// Missing ids become action_<n> (1-based) and missing requires_consent
// becomes false. Text is normalized to NFC.
func ExtractActions(reply string) ([]contracts.Action, error) {
	raw, ok := findActionArray(reply)
	if !ok {
		return nil, ErrNoActionArray
	}

	// Validate expects json.Number for numeric values.
	var doc any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode action array: %w", err)
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, ErrNoActionArray
	}
	if len(items) == 0 {
		return nil, ErrEmptyActions
	}

	actions := make([]contracts.Action, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if err := actionSchema.Validate(item); err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		a, err := decodeAction(item)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		if a.ID == "" {
			a.ID = "action_" + strconv.Itoa(i+1)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, a.ID)
		}
		seen[a.ID] = true
		actions = append(actions, a)
	}
	return actions, nil
}

// decodeAction re-encodes a validated element and decodes it into the typed
// struct so the wire names stay defined in one place.
func decodeAction(item any) (contracts.Action, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return contracts.Action{}, err
	}
	var a contracts.Action
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&a); err != nil {
		return contracts.Action{}, err
	}
	a.ID = nfc(strings.TrimSpace(a.ID))
	a.Description = nfc(a.Description)
	a.Commands = nfcAll(a.Commands)
	a.RollbackCommands = nfcAll(a.RollbackCommands)
	a.Dependencies = nfcAll(a.Dependencies)
	return a, nil
}

func nfc(s string) string { return norm.NFC.String(s) }

func nfcAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = nfc(s)
	}
	return out
}

// findActionArray returns the first balanced bracketed array in content that
// decodes as JSON. A fenced ```json block is preferred over bare text. Line
// comments and trailing commas outside strings are removed first.
func findActionArray(content string) (string, bool) {
	if fenced, ok := fencedBlock(content); ok {
		if arr, ok := firstJSONArray(fenced); ok {
			return arr, true
		}
	}
	return firstJSONArray(content)
}

func firstJSONArray(s string) (string, bool) {
	for start := strings.IndexByte(s, '['); start >= 0; {
		if end, ok := matchClose(s, start); ok {
			candidate := cleanJSON(s[start : end+1])
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func fencedBlock(content string) (string, bool) {
	start := strings.Index(content, "```")
	if start < 0 {
		return "", false
	}
	rest := content[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Skip the info string, e.g. "json".
		if info := strings.TrimSpace(rest[:nl]); !strings.ContainsAny(info, "[{") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

func matchClose(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				if ch != ']' {
					return 0, false
				}
				return i, true
			}
			if depth < 0 {
				return 0, false
			}
		}
	}
	return 0, false
}

// cleanJSON drops // comments and trailing commas that sit outside strings.
func cleanJSON(raw string) string {
	return stripTrailingCommas(stripComments(raw))
}

// scanOutsideStrings calls fn for every byte outside a JSON string literal;
// fn reports whether to keep byte i and how many following bytes to drop.
func scanOutsideStrings(raw string, fn func(i int) (skip int, keep bool)) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}
		skip, keep := fn(i)
		if keep {
			b.WriteByte(ch)
		}
		i += skip
	}
	return b.String()
}

func stripComments(raw string) string {
	return scanOutsideStrings(raw, func(i int) (int, bool) {
		if raw[i] != '/' || i+1 >= len(raw) || raw[i+1] != '/' {
			return 0, true
		}
		end := strings.IndexByte(raw[i:], '\n')
		if end < 0 {
			return len(raw) - i, false
		}
		// Drop the comment, keep the newline.
		return end - 1, false
	})
}

func stripTrailingCommas(raw string) string {
	return scanOutsideStrings(raw, func(i int) (int, bool) {
		if raw[i] != ',' {
			return 0, true
		}
		j := i + 1
		for j < len(raw) && strings.IndexByte(" \t\r\n", raw[j]) >= 0 {
			j++
		}
		return 0, j >= len(raw) || (raw[j] != ']' && raw[j] != '}')
	})
}
