package engine

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// BatchResult is one run's outcome inside a batch. Either Result or Err
// is set; Request echoes the input so callers can correlate sweeps.
type BatchResult struct {
	Request Request
	Result  *Result
	Err     error
}

// RunBatch executes the requests on a bounded worker pool and returns
// the outcomes in input order. Runs are independent: every run gets its
// own indicator engine and ledger, so one failing request never affects
// the others.
func (o *Orchestrator) RunBatch(ctx context.Context, reqs []Request, workers int) []BatchResult {
	if workers <= 0 || workers > runtime.NumCPU() {
		workers = runtime.NumCPU()
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	out := make([]BatchResult, len(reqs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := o.Run(ctx, reqs[i])
				out[i] = BatchResult{Request: reqs[i], Result: res, Err: err}
				if err != nil {
					o.logger.Warn("batch run failed",
						zap.Int("index", i),
						zap.String("symbol", reqs[i].Symbol),
						zap.Error(err),
					)
				}
			}
		}()
	}

	next := len(reqs)
submit:
	for i := range reqs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			next = i
			break submit
		}
	}
	close(jobs)
	wg.Wait()

	// Slots never submitted still get a definite outcome.
	for i := next; i < len(reqs); i++ {
		out[i] = BatchResult{Request: reqs[i], Err: ctx.Err()}
	}
	return out
}
