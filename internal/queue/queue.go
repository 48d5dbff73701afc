package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Claim when no job is due.
var ErrEmpty = errors.New("queue: no job due")

// Claim is a leased triage job. The job stays invisible to other consumers
// until VisibleAt unless it is acked or nacked first.
type Claim struct {
	TicketID  int64
	Receipt   string
	Attempt   int
	ClaimedBy string
	ClaimedAt time.Time
	VisibleAt time.Time
}

// Queue is a delayed, at-least-once job queue keyed by ticket id. At most one
// pending entry exists per ticket.
type Queue interface {
	// Enqueue schedules ticketID to become claimable at runAt. A ticket
	// already pending keeps its original schedule.
	Enqueue(ctx context.Context, ticketID int64, runAt time.Time) error
	Claim(ctx context.Context, consumer string) (*Claim, error)
	Ack(ctx context.Context, claim Claim) error
	// Nack returns the job for another attempt at retryAt, or moves it to
	// the dead-letter set once MaxAttempts is reached.
	Nack(ctx context.Context, claim Claim, retryAt time.Time) (deadLettered bool, err error)
	// RequeueExpired makes jobs whose lease ran out claimable again.
	RequeueExpired(ctx context.Context) (int, error)
	DeadLetters(ctx context.Context, limit int) ([]int64, error)
	RequeueDeadLetter(ctx context.Context, ticketID int64) (bool, error)
}

// Options tune both queue implementations.
type Options struct {
	Key               string
	VisibilityTimeout time.Duration
	MaxAttempts       int
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Key == "" {
		o.Key = "sistec:triage"
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 2 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Backoff returns the retry delay after the given attempt: base doubled per
// attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
