package llm

import "strings"

// ConfidenceFunc scores a completion from its finish reason. Adapters may
// install their own; ok is false when there is nothing to score.
type ConfidenceFunc func(finishReason string) (score float64, ok bool)

// DefaultConfidence maps the common finish reasons of chat APIs onto [0,1].
func DefaultConfidence(finishReason string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(finishReason)) {
	case "":
		return 0, false
	case "stop", "end_turn", "stop_sequence", "eos":
		return 0.9, true
	case "length", "max_tokens":
		return 0.6, true
	case "content_filter", "safety", "recitation", "refusal":
		return 0.3, true
	default:
		return 0.7, true
	}
}

// Score applies fn (or DefaultConfidence when nil) and returns a pointer
// suitable for GenerateResponse.Confidence.
func Score(fn ConfidenceFunc, finishReason string) *float64 {
	if fn == nil {
		fn = DefaultConfidence
	}
	score, ok := fn(finishReason)
	if !ok {
		return nil
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return &score
}
