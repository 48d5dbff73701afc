package domain

import "time"

// ResolutionReport is an analyst's write-up of how a ticket was solved.
type ResolutionReport struct {
	ID          int64
	TicketID    int64
	OpenerID    int64
	ResolverID  int64
	Category    string
	ProblemType string
	Report      string
	CreatedAt   time.Time
}
