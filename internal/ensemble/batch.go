package ensemble

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
)

// BatchResult is the outcome of one job in a batch, at the job's input index.
type BatchResult struct {
	Index  int    `json:"index"`
	Result Result `json:"result"`
	Err    error  `json:"-"`
}

// ExtractForChapters runs jobs with at most BatchConcurrency in flight and,
// when BatchRate is set, paced job starts. Results keep input order; one
// failed job never aborts the others.
func (c *Coordinator) ExtractForChapters(ctx context.Context, jobs []domain.ProcessingJob) []BatchResult {
	results := make([]BatchResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	var limiter *rate.Limiter
	if c.cfg.BatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.BatchRate), c.cfg.BatchBurst)
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.BatchConcurrency)
	for i, job := range jobs {
		results[i].Index = i
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				for j := i; j < len(jobs); j++ {
					results[j] = BatchResult{Index: j, Err: err}
				}
				break
			}
		}
		g.Go(func() error {
			res, err := c.ExtractDescriptions(ctx, job)
			results[i] = BatchResult{Index: i, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	c.logger.Info("Batch completed",
		logger.Int("jobs", len(jobs)),
		logger.Int("failed", failed),
	)
	return results
}
