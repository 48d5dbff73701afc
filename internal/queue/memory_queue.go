package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryQueue has the same contract as RedisQueue but keeps everything in
// process. Pending jobs are lost on restart; the reconciler covers that.
type MemoryQueue struct {
	mu       sync.Mutex
	opts     Options
	ready    map[int64]time.Time
	inflight map[string]Claim
	attempts map[int64]int
	dead     []int64
	counter  uint64
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts:     opts.withDefaults(),
		ready:    make(map[int64]time.Time),
		inflight: make(map[string]Claim),
		attempts: make(map[int64]int),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, ticketID int64, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.ready[ticketID]; !exists {
		q.ready[ticketID] = runAt
	}
	return nil
}

func (q *MemoryQueue) Claim(_ context.Context, consumer string) (*Claim, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.opts.Now()
	var (
		pick  int64
		runAt time.Time
		found bool
	)
	for id, at := range q.ready {
		if at.After(now) {
			continue
		}
		if !found || at.Before(runAt) || (at.Equal(runAt) && id < pick) {
			pick, runAt, found = id, at, true
		}
	}
	if !found {
		return nil, ErrEmpty
	}

	delete(q.ready, pick)
	q.attempts[pick]++
	q.counter++
	claim := Claim{
		TicketID:  pick,
		Receipt:   fmt.Sprintf("mem:%s:%d", consumer, q.counter),
		Attempt:   q.attempts[pick],
		ClaimedBy: consumer,
		ClaimedAt: now,
		VisibleAt: now.Add(q.opts.VisibilityTimeout),
	}
	q.inflight[claim.Receipt] = claim
	return &claim, nil
}

func (q *MemoryQueue) Ack(_ context.Context, claim Claim) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, claim.Receipt)
	delete(q.attempts, claim.TicketID)
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, claim Claim, retryAt time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, held := q.inflight[claim.Receipt]; !held {
		return false, nil
	}
	delete(q.inflight, claim.Receipt)
	if claim.Attempt >= q.opts.MaxAttempts {
		q.dead = append(q.dead, claim.TicketID)
		delete(q.attempts, claim.TicketID)
		return true, nil
	}
	if _, exists := q.ready[claim.TicketID]; !exists {
		q.ready[claim.TicketID] = retryAt
	}
	return false, nil
}

func (q *MemoryQueue) RequeueExpired(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.opts.Now()
	moved := 0
	for receipt, claim := range q.inflight {
		if claim.VisibleAt.After(now) {
			continue
		}
		delete(q.inflight, receipt)
		if _, exists := q.ready[claim.TicketID]; !exists {
			q.ready[claim.TicketID] = now
		}
		moved++
	}
	return moved, nil
}

func (q *MemoryQueue) DeadLetters(_ context.Context, limit int) ([]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 || limit > len(q.dead) {
		limit = len(q.dead)
	}
	out := make([]int64, limit)
	copy(out, q.dead[:limit])
	return out, nil
}

func (q *MemoryQueue) RequeueDeadLetter(_ context.Context, ticketID int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, id := range q.dead {
		if id != ticketID {
			continue
		}
		q.dead = append(q.dead[:i], q.dead[i+1:]...)
		if _, exists := q.ready[ticketID]; !exists {
			q.ready[ticketID] = q.opts.Now()
		}
		return true, nil
	}
	return false, nil
}

// Pending lists scheduled ticket ids in run order.
func (q *MemoryQueue) Pending() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int64, 0, len(q.ready))
	for id := range q.ready {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := q.ready[out[i]], q.ready[out[j]]
		if a.Equal(b) {
			return out[i] < out[j]
		}
		return a.Before(b)
	})
	return out
}
