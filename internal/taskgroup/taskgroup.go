// Package taskgroup runs independent sub-operations of a pipeline stage
// concurrently with a concurrency bound, isolating per-task failure and
// returning results in input order.
package taskgroup

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result holds the outcome of one task: a value or that task's error.
type Result[R any] struct {
	Value R
	Err   error
}

// Map applies fn to every item concurrently, at most limit at a time
// (limit <= 0 means unbounded). The returned slice is index-aligned with
// items regardless of completion order. A failing or panicking task never
// aborts its siblings; its error lands in its own slot.
func Map[T, R any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			v, err := fn(ctx, item)
			results[i] = Result[R]{Value: v, Err: err}
			// errors are reported per-slot, never to the group, so one
			// failure cannot cancel in-flight siblings
			return nil
		})
	}
	_ = g.Wait()
	return results
}
