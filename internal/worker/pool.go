package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Pool bounds how many settlement units run at once. Its size caps concurrent
// outbound gateway calls.
type Pool struct {
	pool *ants.Pool
}

// NewPool creates a blocking pool of size workers.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Pool{pool: p}, nil
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.pool.Cap()
}

// Release frees the pool. Units already running are not waited for.
func (p *Pool) Release() {
	p.pool.Release()
}

// FanOut runs fn for every item on the pool and returns results in input order.
// A failing unit never stops its siblings. Once ctx is done no further units
// are scheduled; those items, and any unit that panics or cannot be submitted,
// get fallback(item, err).
func FanOut[T, R any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) R, fallback func(T, error) R) []R {
	results := make([]R, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i] = fallback(item, err)
			continue
		}

		i, item := i, item
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("settlement unit panicked", zap.Any("panic", r))
					results[i] = fallback(item, fmt.Errorf("unit panicked: %v", r))
				}
			}()
			results[i] = fn(ctx, item)
		})
		if err != nil {
			wg.Done()
			results[i] = fallback(item, fmt.Errorf("submit unit: %w", err))
		}
	}

	wg.Wait()
	return results
}
