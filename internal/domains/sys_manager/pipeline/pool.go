package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

type PoolStats struct {
	Size     int64 `json:"size"`
	InFlight int64 `json:"in_flight"`
	Waiting  int64 `json:"waiting"`
}

// Pool bounds concurrent model calls across all sessions.
type Pool struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	waiting  atomic.Int64
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Do runs fn once a slot is free. Waiting honours ctx.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	return fn(ctx)
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{Size: p.size, InFlight: p.inFlight.Load(), Waiting: p.waiting.Load()}
}
