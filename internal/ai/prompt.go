package ai

import (
	"fmt"
	"strings"

	"github.com/sistec/helpdesk-api/internal/domain"
)

const classifySystem = `Você é o analista de triagem do help-desk Sistec.
Decida se o chamado pode ser resolvido pelo próprio usuário com instruções
passo a passo (AUTOMATE) ou se precisa de um analista (ASSIGN_TO_HUMAN).
Responda somente com um objeto JSON com os campos:
recommendation ("AUTOMATE" ou "ASSIGN_TO_HUMAN"), complexity, impact,
justification, solution_confidence (0 a 1), estimated_time, tags (lista).`

const solutionSystem = `Você é o suporte técnico do help-desk Sistec.
Escreva uma solução curta, em português, com passos numerados que o próprio
usuário consiga seguir. Não peça dados pessoais e não invente sistemas
internos. Responda apenas com o texto da solução.`

// ClassifyPrompt builds the classification request for a ticket.
func ClassifyPrompt(tc domain.TicketContext) Prompt {
	return Prompt{
		System:      classifySystem,
		User:        describe(tc),
		JSON:        true,
		Temperature: 0.1,
	}
}

// SolutionPrompt builds the solution request, passing along the verdict.
func SolutionPrompt(tc domain.TicketContext, verdict domain.TriageVerdict) Prompt {
	var sb strings.Builder
	sb.WriteString(describe(tc))
	if verdict.Justification != "" {
		fmt.Fprintf(&sb, "\nAvaliação da triagem: %s\n", verdict.Justification)
	}
	return Prompt{
		System:      solutionSystem,
		User:        sb.String(),
		Temperature: 0.3,
	}
}

func describe(tc domain.TicketContext) string {
	t := tc.Ticket
	var sb strings.Builder
	fmt.Fprintf(&sb, "Chamado #%d\n", t.ID)
	fmt.Fprintf(&sb, "Categoria: %s\n", t.Category)
	fmt.Fprintf(&sb, "Problema: %s\n", t.ProblemType)
	fmt.Fprintf(&sb, "Prioridade: %s\n", t.Priority.Label())
	fmt.Fprintf(&sb, "Título: %s\n", t.Title)
	fmt.Fprintf(&sb, "Descrição:\n%s\n", strings.TrimSpace(t.Description))
	if tc.Opener != nil {
		fmt.Fprintf(&sb, "Solicitante: %s\n", tc.Opener.Name)
	}
	if len(tc.History) > 0 {
		sb.WriteString("\nChamados recentes do mesmo usuário:\n")
		for _, h := range tc.History {
			fmt.Fprintf(&sb, "- #%d [%s] %s / %s: %s\n", h.ID, h.Status.Label(), h.Category, h.ProblemType, h.Title)
		}
	}
	return sb.String()
}
