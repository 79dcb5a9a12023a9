package pipeline

import (
	"context"
	"runtime"
	"sync"
)

// WorkItem is one reference order queued for processing.
type WorkItem struct {
	Seq      int
	RefOrder int
}

// WorkResult holds the outcome for a single reference.
type WorkResult struct {
	Seq int
	RefResult
}

// parallelBuild processes work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func (r *Runner) parallelBuild(ctx context.Context, items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				results <- WorkResult{
					Seq:       item.Seq,
					RefResult: r.processReference(ctx, item.RefOrder),
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for res := range results {
		pending[res.Seq] = res

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}

// queue feeds orders 1..n as work items until ctx is canceled.
func queue(ctx context.Context, n int) <-chan WorkItem {
	items := make(chan WorkItem)
	go func() {
		defer close(items)
		for i := range n {
			select {
			case items <- WorkItem{Seq: i, RefOrder: i + 1}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return items
}
