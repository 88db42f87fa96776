// Package workpool runs independent work items with bounded parallelism.
// Used for table/column scoring batches and batched provider calls.
package workpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Pool bounds concurrent execution with a semaphore. Results are
// delivered in completion order; processing continues past failures.
type Pool struct {
	maxConcurrent int
	logger        *zap.Logger
}

// New creates a pool. maxConcurrent below 1 defaults to 4.
func New(maxConcurrent int, logger *zap.Logger) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &Pool{maxConcurrent: maxConcurrent, logger: logger.Named("workpool")}
}

// Item is one unit of work.
type Item[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// Result is the outcome of one item.
type Result[T any] struct {
	ID    string
	Value T
	Err   error
}

// Process executes all items, at most maxConcurrent at a time.
func Process[T any](ctx context.Context, pool *Pool, items []Item[T]) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	resultsChan := make(chan Result[T], len(items))
	sem := make(chan struct{}, pool.maxConcurrent)
	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		go func(item Item[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				var zero T
				resultsChan <- Result[T]{ID: item.ID, Value: zero, Err: ctx.Err()}
				return
			}

			value, err := item.Execute(ctx)
			resultsChan <- Result[T]{ID: item.ID, Value: value, Err: err}
		}(item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]Result[T], 0, len(items))
	for r := range resultsChan {
		results = append(results, r)
	}
	return results
}
