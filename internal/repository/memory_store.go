package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// MemoryStore is an in-process Store used when no Postgres DSN is configured.
// Transactions are serialized and run against a copy of the data that replaces
// the live state only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	data  *memData
	fault func(op string) error
	now   func() time.Time
}

type memData struct {
	seq         map[string]int64
	tickets     map[int64]domain.Ticket
	history     []domain.StatusChange
	aiResponses []domain.AIResponse
	reports     map[int64]domain.ResolutionReport
	users       map[int64]domain.User
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memData{
			seq:     make(map[string]int64),
			tickets: make(map[int64]domain.Ticket),
			reports: make(map[int64]domain.ResolutionReport),
			users:   make(map[int64]domain.User),
		},
		now: time.Now,
	}
}

// SetFault installs a hook consulted before every write; a non-nil error
// aborts the write. Operation names are "<repo>.<method>", e.g.
// "tickets.UpdateStatus".
func (s *MemoryStore) SetFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// PutUser seeds a user account.
func (s *MemoryStore) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.data.users[user.ID] = user
}

func (s *MemoryStore) Repos() Repositories {
	return s.reposFor(func(fn func(*memData) error, write bool) error {
		if write {
			s.mu.Lock()
			defer s.mu.Unlock()
		} else {
			s.mu.RLock()
			defer s.mu.RUnlock()
		}
		return fn(s.data)
	})
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	repos := s.reposFor(func(apply func(*memData) error, _ bool) error {
		return apply(work)
	})
	if err := fn(ctx, repos); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

type memAccess func(fn func(*memData) error, write bool) error

func (s *MemoryStore) reposFor(access memAccess) Repositories {
	base := memBase{access: access, store: s}
	return Repositories{
		Tickets:     &memTickets{base},
		History:     &memHistory{base},
		AIResponses: &memAIResponses{base},
		Reports:     &memReports{base},
		Users:       &memUsers{base},
	}
}

type memBase struct {
	access memAccess
	store  *MemoryStore
}

func (b memBase) read(fn func(*memData) error) error {
	return b.access(fn, false)
}

func (b memBase) write(op string, fn func(*memData) error) error {
	return b.access(func(d *memData) error {
		if b.store.fault != nil {
			if err := b.store.fault(op); err != nil {
				return err
			}
		}
		return fn(d)
	}, true)
}

func (d *memData) clone() *memData {
	out := &memData{
		seq:         make(map[string]int64, len(d.seq)),
		tickets:     make(map[int64]domain.Ticket, len(d.tickets)),
		history:     append([]domain.StatusChange(nil), d.history...),
		aiResponses: make([]domain.AIResponse, len(d.aiResponses)),
		reports:     make(map[int64]domain.ResolutionReport, len(d.reports)),
		users:       make(map[int64]domain.User, len(d.users)),
	}
	for table, n := range d.seq {
		out.seq[table] = n
	}
	for id, t := range d.tickets {
		out.tickets[id] = t.Clone()
	}
	for i, r := range d.aiResponses {
		out.aiResponses[i] = cloneAIResponse(r)
	}
	for id, r := range d.reports {
		out.reports[id] = r
	}
	for id, u := range d.users {
		out.users[id] = u
	}
	return out
}

func (d *memData) id(table string) int64 {
	d.seq[table]++
	return d.seq[table]
}

func cloneAIResponse(r domain.AIResponse) domain.AIResponse {
	out := r
	if r.Verdict != nil {
		v := *r.Verdict
		v.Tags = append([]string(nil), r.Verdict.Tags...)
		out.Verdict = &v
	}
	if r.Feedback != nil {
		f := *r.Feedback
		out.Feedback = &f
	}
	if r.FeedbackAt != nil {
		at := *r.FeedbackAt
		out.FeedbackAt = &at
	}
	if r.AuthorID != nil {
		id := *r.AuthorID
		out.AuthorID = &id
	}
	return out
}

type memTickets struct{ memBase }

func (r *memTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	return r.write("tickets.Create", func(d *memData) error {
		ticket.ID = d.id("tickets")
		ticket.OpenedAt = r.store.now()
		d.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r *memTickets) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.read(func(d *memData) error {
		t, ok := d.tickets[id]
		if !ok {
			return ErrNotFound
		}
		cp := t.Clone()
		out = &cp
		return nil
	})
	return out, err
}

func (r *memTickets) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *memTickets) UpdateStatus(ctx context.Context, id int64, expected, next domain.TicketStatus, stamps domain.StatusStamps) error {
	return r.write("tickets.UpdateStatus", func(d *memData) error {
		t, ok := d.tickets[id]
		if !ok || t.Status != expected {
			return ErrStatusConflict
		}
		t.Status = next
		stamps.Apply(&t)
		d.tickets[id] = t.Clone()
		return nil
	})
}

func (r *memTickets) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.read(func(d *memData) error {
		statuses := make(map[domain.TicketStatus]bool, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses[s] = true
		}
		for _, t := range d.tickets {
			if filter.UserID != nil && t.UserID != *filter.UserID {
				continue
			}
			if len(statuses) > 0 && !statuses[t.Status] {
				continue
			}
			if filter.ApprovedBefore != nil && (t.ApprovedAt == nil || t.ApprovedAt.After(*filter.ApprovedBefore)) {
				continue
			}
			if filter.ForwardedBefore != nil && (t.ForwardedAt == nil || t.ForwardedAt.After(*filter.ForwardedBefore)) {
				continue
			}
			out = append(out, t.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if filter.Sort == SortQueue {
			if out[i].Priority != out[j].Priority {
				return out[i].Priority > out[j].Priority
			}
			return out[i].ID < out[j].ID
		}
		return out[i].ID > out[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *memTickets) ListRecentByUser(ctx context.Context, userID, excludeID int64, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 5
	}
	all, err := r.ListWithFilter(ctx, TicketFilter{UserID: &userID, Limit: limit + 1})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Ticket, 0, limit)
	for _, t := range all {
		if t.ID == excludeID {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

type memHistory struct{ memBase }

func (r *memHistory) Append(ctx context.Context, change *domain.StatusChange) error {
	return r.write("history.Append", func(d *memData) error {
		change.ID = d.id("history")
		change.CreatedAt = r.store.now()
		d.history = append(d.history, *change)
		return nil
	})
}

func (r *memHistory) ListByTicket(ctx context.Context, ticketID int64) ([]domain.StatusChange, error) {
	var out []domain.StatusChange
	err := r.read(func(d *memData) error {
		for _, c := range d.history {
			if c.TicketID == ticketID {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

type memAIResponses struct{ memBase }

func (r *memAIResponses) Create(ctx context.Context, resp *domain.AIResponse) error {
	return r.write("ai_responses.Create", func(d *memData) error {
		resp.ID = d.id("ai_responses")
		resp.CreatedAt = r.store.now()
		resp.Content = domain.Truncate(resp.Content, domain.MaxStoredResponseLength)
		d.aiResponses = append(d.aiResponses, cloneAIResponse(*resp))
		return nil
	})
}

func (r *memAIResponses) LatestByType(ctx context.Context, ticketID int64, kind domain.AIResponseType) (*domain.AIResponse, error) {
	var out *domain.AIResponse
	err := r.read(func(d *memData) error {
		for i := len(d.aiResponses) - 1; i >= 0; i-- {
			resp := d.aiResponses[i]
			if resp.TicketID == ticketID && resp.Type == kind {
				cp := cloneAIResponse(resp)
				out = &cp
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (r *memAIResponses) ListByTicket(ctx context.Context, ticketID int64) ([]domain.AIResponse, error) {
	var out []domain.AIResponse
	err := r.read(func(d *memData) error {
		for _, resp := range d.aiResponses {
			if resp.TicketID == ticketID {
				out = append(out, cloneAIResponse(resp))
			}
		}
		return nil
	})
	return out, err
}

func (r *memAIResponses) RecordFeedback(ctx context.Context, id int64, feedback domain.SolutionFeedback, at time.Time) error {
	return r.write("ai_responses.RecordFeedback", func(d *memData) error {
		for i := range d.aiResponses {
			if d.aiResponses[i].ID != id {
				continue
			}
			if d.aiResponses[i].Feedback != nil {
				return ErrDuplicate
			}
			fb := feedback
			ts := at
			d.aiResponses[i].Feedback = &fb
			d.aiResponses[i].FeedbackAt = &ts
			return nil
		}
		return ErrNotFound
	})
}

type memReports struct{ memBase }

func (r *memReports) Create(ctx context.Context, report *domain.ResolutionReport) error {
	return r.write("reports.Create", func(d *memData) error {
		if _, exists := d.reports[report.TicketID]; exists {
			return ErrDuplicate
		}
		report.ID = d.id("reports")
		report.CreatedAt = r.store.now()
		d.reports[report.TicketID] = *report
		return nil
	})
}

func (r *memReports) GetByTicket(ctx context.Context, ticketID int64) (*domain.ResolutionReport, error) {
	var out *domain.ResolutionReport
	err := r.read(func(d *memData) error {
		report, ok := d.reports[ticketID]
		if !ok {
			return ErrNotFound
		}
		out = &report
		return nil
	})
	return out, err
}

type memUsers struct{ memBase }

func (r *memUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := r.read(func(d *memData) error {
		user, ok := d.users[id]
		if !ok {
			return ErrNotFound
		}
		out = &user
		return nil
	})
	return out, err
}
