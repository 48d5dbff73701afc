package domain

// TriageRecommendation is the classifier's routing decision.
type TriageRecommendation string

const (
	RecommendAutomate      TriageRecommendation = "AUTOMATE"
	RecommendAssignToHuman TriageRecommendation = "ASSIGN_TO_HUMAN"
)

// TriageVerdict is the structured result of AI classification.
type TriageVerdict struct {
	Recommendation     TriageRecommendation `json:"recommendation"`
	Complexity         string               `json:"complexity,omitempty"`
	Impact             string               `json:"impact,omitempty"`
	Justification      string               `json:"justification,omitempty"`
	SolutionConfidence float64              `json:"solution_confidence"`
	EstimatedTime      string               `json:"estimated_time,omitempty"`
	Tags               []string             `json:"tags,omitempty"`
	Fallback           bool                 `json:"fallback,omitempty"`
}

// Automate reports whether the verdict asks for automated resolution.
func (v TriageVerdict) Automate() bool {
	return v.Recommendation == RecommendAutomate
}

// FallbackVerdict is used whenever classification cannot produce a verdict.
func FallbackVerdict(reason string) TriageVerdict {
	return TriageVerdict{
		Recommendation:     RecommendAssignToHuman,
		Complexity:         "desconhecida",
		Impact:             "desconhecido",
		Justification:      "Classificação automática indisponível: " + reason,
		SolutionConfidence: 0,
		Fallback:           true,
	}
}

// TicketContext is what the AI service sees about a ticket.
type TicketContext struct {
	Ticket  Ticket
	Opener  *User
	History []Ticket
}
