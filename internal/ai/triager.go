package ai

import (
	"context"
	"strings"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// Generator is the transport the Triager needs.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Triager classifies tickets and drafts self-service solutions.
type Triager struct {
	gen Generator
}

// NewTriager wraps a Generator.
func NewTriager(gen Generator) *Triager {
	return &Triager{gen: gen}
}

// Classify asks the model for a verdict. Errors cover transport failures and
// replies that do not decode into a known recommendation.
func (t *Triager) Classify(ctx context.Context, tc domain.TicketContext) (domain.TriageVerdict, error) {
	raw, err := t.gen.Generate(ctx, ClassifyPrompt(tc))
	if err != nil {
		return domain.TriageVerdict{}, err
	}
	return ParseVerdict(raw)
}

// GenerateSolution returns the model's solution text, trimmed. An empty string
// means the model produced nothing usable.
func (t *Triager) GenerateSolution(ctx context.Context, tc domain.TicketContext, verdict domain.TriageVerdict) (string, error) {
	raw, err := t.gen.Generate(ctx, SolutionPrompt(tc, verdict))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
