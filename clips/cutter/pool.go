package cutter

import "context"

// runBounded executes n tasks with at most concurrency running at once,
// collecting results into a slice whose order matches the input order
// regardless of completion order (spec §4.J/§5 CutParallel ordering
// guarantee). Adapted from the teacher's worker.Pool shape — a fixed
// channel of requests drained by a bounded set of goroutines — but
// specialised to a single batch of work with indexed results rather than a
// long-running queue daemon.
func runBounded(ctx context.Context, n, concurrency int, task func(ctx context.Context, i int) Result) []Result {
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > n {
		concurrency = n
	}

	results := make([]Result, n)
	indices := make(chan int, n)
	for i := 0; i < n; i++ {
		indices <- i
	}
	close(indices)

	done := make(chan struct{})
	for w := 0; w < concurrency; w++ {
		go func() {
			for i := range indices {
				results[i] = task(ctx, i)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < concurrency; w++ {
		<-done
	}
	return results
}
