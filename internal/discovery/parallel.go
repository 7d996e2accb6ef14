package discovery

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// CheckResult pairs one application's outcome with its failure, if any. A
// failed application never aborts its siblings.
type CheckResult struct {
	ApplicationID string
	Outcome       *Outcome
	Err           error
}

// CheckAll runs checks for every request with at most workers in flight.
// Results hold one slot per request, in request order. Worker errors are
// captured per slot; only caller cancellation stops the run early.
func (o *Orchestrator) CheckAll(ctx context.Context, reqs []CheckRequest, workers int) []CheckResult {
	if workers < 1 {
		workers = 1
	}

	results := make([]CheckResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			out, err := o.Check(gctx, req)
			results[i] = CheckResult{ApplicationID: req.ApplicationID, Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait() // errors captured in CheckResult.Err

	return results
}
