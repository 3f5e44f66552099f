package processor

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/animus-labs/whlobf/internal/domain"
)

// Batch processes many jobs. With Workers == 0 every job runs in this
// process, one after another, through Local. With Workers > 0 up to Workers
// jobs run at once, each handed to Launcher, which is expected to isolate
// it in its own OS process.
type Batch struct {
	Workers  int
	Local    Processor
	Launcher Processor
	Logger   *slog.Logger
}

// BatchResult pairs a job with its report. Err is set when the run could not
// be set up at all.
type BatchResult struct {
	Job    Job
	Report domain.RunReport
	Err    error
}

func (r BatchResult) Succeeded() bool {
	return r.Err == nil && r.Report.Succeeded
}

// Run processes jobs and returns one result per job, in job order. Only
// cancellation of ctx is returned as an error.
func (b *Batch) Run(ctx context.Context, jobs []Job) ([]BatchResult, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	results := make([]BatchResult, len(jobs))

	if b.Workers <= 0 {
		if b.Local == nil {
			return nil, errors.New("local processor is required")
		}
		for i, job := range jobs {
			if err := ctx.Err(); err != nil {
				return results[:i], err
			}
			results[i] = b.process(ctx, logger, b.Local, job)
		}
		return results, nil
	}

	if b.Launcher == nil {
		return nil, errors.New("worker launcher is required")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = BatchResult{Job: job, Err: err}
				return nil
			}
			results[i] = b.process(gctx, logger, b.Launcher, job)
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

func (b *Batch) process(ctx context.Context, logger *slog.Logger, p Processor, job Job) BatchResult {
	report, err := p.Process(ctx, job)
	if err != nil {
		logger.Error("job setup failed", "source", job.Source, "error", err)
	}
	return BatchResult{Job: job, Report: report, Err: err}
}
