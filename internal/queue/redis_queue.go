package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// claimBatch bounds how many due candidates one Claim call inspects.
const claimBatch = 10

// RedisQueue keeps the triage schedule in Redis sorted sets so pending work
// survives process restarts.
//
//	<key>:ready       zset ticket id -> run-at (unix ms)
//	<key>:claims      hash receipt -> ticket id
//	<key>:visibility  zset receipt -> lease deadline (unix ms)
//	<key>:attempts    hash ticket id -> attempt count
//	<key>:dead        zset ticket id -> dead-lettered at (unix ms)
type RedisQueue struct {
	client redis.UniversalClient
	opts   Options
}

// NewRedisQueue builds a queue on an existing go-redis client.
func NewRedisQueue(client redis.UniversalClient, opts Options) *RedisQueue {
	return &RedisQueue{client: client, opts: opts.withDefaults()}
}

func (q *RedisQueue) readyKey() string      { return q.opts.Key + ":ready" }
func (q *RedisQueue) claimsKey() string     { return q.opts.Key + ":claims" }
func (q *RedisQueue) visibilityKey() string { return q.opts.Key + ":visibility" }
func (q *RedisQueue) attemptsKey() string   { return q.opts.Key + ":attempts" }
func (q *RedisQueue) deadKey() string       { return q.opts.Key + ":dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, ticketID int64, runAt time.Time) error {
	err := q.client.ZAddNX(ctx, q.readyKey(), redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: formatID(ticketID),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue ticket %d: %w", ticketID, err)
	}
	return nil
}

func (q *RedisQueue) Claim(ctx context.Context, consumer string) (*Claim, error) {
	now := q.opts.Now()
	for {
		due, err := q.client.ZRangeByScore(ctx, q.readyKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now.UnixMilli(), 10),
			Count: claimBatch,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("list due jobs: %w", err)
		}
		if len(due) == 0 {
			return nil, ErrEmpty
		}

		for _, member := range due {
			// ZREM decides ownership between competing consumers.
			removed, err := q.client.ZRem(ctx, q.readyKey(), member).Result()
			if err != nil {
				return nil, fmt.Errorf("claim %s: %w", member, err)
			}
			if removed == 0 {
				continue
			}
			ticketID, err := parseID(member)
			if err != nil {
				_ = q.client.ZAdd(ctx, q.deadKey(), redis.Z{Score: float64(now.UnixMilli()), Member: member}).Err()
				continue
			}
			return q.lease(ctx, consumer, ticketID, now)
		}
	}
}

func (q *RedisQueue) lease(ctx context.Context, consumer string, ticketID int64, now time.Time) (*Claim, error) {
	member := formatID(ticketID)
	receipt := uuid.NewString()
	visibleAt := now.Add(q.opts.VisibilityTimeout)
	var attempts *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.claimsKey(), receipt, member)
		pipe.ZAdd(ctx, q.visibilityKey(), redis.Z{Score: float64(visibleAt.UnixMilli()), Member: receipt})
		attempts = pipe.HIncrBy(ctx, q.attemptsKey(), member, 1)
		return nil
	})
	if err != nil {
		// Put the job back so it is not lost between ZREM and the lease.
		_ = q.Enqueue(ctx, ticketID, now)
		return nil, fmt.Errorf("lease ticket %d: %w", ticketID, err)
	}

	return &Claim{
		TicketID:  ticketID,
		Receipt:   receipt,
		Attempt:   int(attempts.Val()),
		ClaimedBy: consumer,
		ClaimedAt: now,
		VisibleAt: visibleAt,
	}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, claim Claim) error {
	member := formatID(claim.TicketID)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, q.claimsKey(), claim.Receipt)
		pipe.ZRem(ctx, q.visibilityKey(), claim.Receipt)
		pipe.HDel(ctx, q.attemptsKey(), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack ticket %d: %w", claim.TicketID, err)
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, claim Claim, retryAt time.Time) (bool, error) {
	member := formatID(claim.TicketID)
	held, err := q.client.ZRem(ctx, q.visibilityKey(), claim.Receipt).Result()
	if err != nil {
		return false, fmt.Errorf("nack ticket %d: %w", claim.TicketID, err)
	}
	if held == 0 {
		// Lease already expired and the job was requeued by someone else.
		return false, nil
	}

	dead := claim.Attempt >= q.opts.MaxAttempts
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, q.claimsKey(), claim.Receipt)
		if dead {
			pipe.ZAdd(ctx, q.deadKey(), redis.Z{Score: float64(q.opts.Now().UnixMilli()), Member: member})
			pipe.HDel(ctx, q.attemptsKey(), member)
		} else {
			pipe.ZAddNX(ctx, q.readyKey(), redis.Z{Score: float64(retryAt.UnixMilli()), Member: member})
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("nack ticket %d: %w", claim.TicketID, err)
	}
	return dead, nil
}

func (q *RedisQueue) RequeueExpired(ctx context.Context) (int, error) {
	now := q.opts.Now()
	receipts, err := q.client.ZRangeByScore(ctx, q.visibilityKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired leases: %w", err)
	}

	moved := 0
	for _, receipt := range receipts {
		removed, err := q.client.ZRem(ctx, q.visibilityKey(), receipt).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		member, err := q.client.HGet(ctx, q.claimsKey(), receipt).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return moved, err
		}
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, q.claimsKey(), receipt)
			if member != "" {
				pipe.ZAddNX(ctx, q.readyKey(), redis.Z{Score: float64(now.UnixMilli()), Member: member})
			}
			return nil
		})
		if err != nil {
			return moved, err
		}
		if member != "" {
			moved++
		}
	}
	return moved, nil
}

func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 50
	}
	members, err := q.client.ZRange(ctx, q.deadKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := parseID(m)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (q *RedisQueue) RequeueDeadLetter(ctx context.Context, ticketID int64) (bool, error) {
	member := formatID(ticketID)
	removed, err := q.client.ZRem(ctx, q.deadKey(), member).Result()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		return false, nil
	}
	if err := q.Enqueue(ctx, ticketID, q.opts.Now()); err != nil {
		return false, err
	}
	return true, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
