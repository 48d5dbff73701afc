package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// ErrNoJSON is returned when a model reply contains no JSON object.
var ErrNoJSON = errors.New("ai: no json object in reply")

// ExtractJSON pulls a JSON object out of a model reply. It prefers a fenced
// code block and otherwise takes the outermost pair of braces.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last <= first {
		return "", ErrNoJSON
	}
	return text[first : last+1], nil
}

type verdictWire struct {
	Recommendation     string          `json:"recommendation"`
	Complexity         string          `json:"complexity"`
	Impact             string          `json:"impact"`
	Justification      string          `json:"justification"`
	SolutionConfidence json.RawMessage `json:"solution_confidence"`
	EstimatedTime      string          `json:"estimated_time"`
	Tags               []string        `json:"tags"`
}

// ParseVerdict decodes a classification reply. An unknown recommendation is
// an error so the caller can fall back.
func ParseVerdict(raw string) (domain.TriageVerdict, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return domain.TriageVerdict{}, err
	}
	var wire verdictWire
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		return domain.TriageVerdict{}, fmt.Errorf("decoding verdict: %w", err)
	}

	verdict := domain.TriageVerdict{
		Complexity:    strings.TrimSpace(wire.Complexity),
		Impact:        strings.TrimSpace(wire.Impact),
		Justification: strings.TrimSpace(wire.Justification),
		EstimatedTime: strings.TrimSpace(wire.EstimatedTime),
		Tags:          wire.Tags,
	}

	switch strings.ToUpper(strings.TrimSpace(wire.Recommendation)) {
	case string(domain.RecommendAutomate):
		verdict.Recommendation = domain.RecommendAutomate
	case string(domain.RecommendAssignToHuman), "ASSIGN TO HUMAN", "HUMAN":
		verdict.Recommendation = domain.RecommendAssignToHuman
	default:
		return domain.TriageVerdict{}, fmt.Errorf("unknown recommendation %q", wire.Recommendation)
	}

	verdict.SolutionConfidence = parseConfidence(wire.SolutionConfidence)
	return verdict, nil
}

// parseConfidence accepts 0..1, 0..100 and quoted numbers; anything else is 0.
func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if _, err := fmt.Sscanf(s, "%g", &n); err != nil {
			return 0
		}
	}
	if n > 1 {
		n /= 100
	}
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
