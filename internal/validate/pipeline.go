package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultStageTimeout bounds a single stage so the slowest enabled stage
// cannot hang the pipeline.
const DefaultStageTimeout = 5 * time.Minute

// Stage is one independent check registered into the pipeline at
// construction time.
type Stage interface {
	Name() string
	Run(ctx context.Context) Result
}

// Pipeline runs registered stages against a pending change set. Stages in
// the sequential group run in registration order; stages in the concurrent
// group have no data dependency on one another and run in parallel, joined
// before the report is assembled.
type Pipeline struct {
	sequential   []Stage
	concurrent   []Stage
	stageTimeout time.Duration
	logger       *slog.Logger
}

// NewPipeline builds an empty pipeline. Stages are added with Register and
// RegisterConcurrent.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		stageTimeout: DefaultStageTimeout,
		logger:       logger,
	}
}

// Register adds a stage to the sequential group.
func (p *Pipeline) Register(s Stage) *Pipeline {
	p.sequential = append(p.sequential, s)
	return p
}

// RegisterConcurrent adds a stage to the concurrent group.
func (p *Pipeline) RegisterConcurrent(s Stage) *Pipeline {
	p.concurrent = append(p.concurrent, s)
	return p
}

// Validate runs every registered stage to completion and assembles one
// report. Results appear in registration order regardless of completion
// order: sequential stages first, then the concurrent group.
func (p *Pipeline) Validate(ctx context.Context, branch string) *Report {
	report := &Report{Branch: branch}

	for _, stage := range p.sequential {
		report.Results = append(report.Results, p.runStage(ctx, stage))
	}

	if len(p.concurrent) > 0 {
		results := make([]Result, len(p.concurrent))
		var wg sync.WaitGroup
		for i, stage := range p.concurrent {
			wg.Add(1)
			go func(i int, stage Stage) {
				defer wg.Done()
				results[i] = p.runStage(ctx, stage)
			}(i, stage)
		}
		wg.Wait()
		report.Results = append(report.Results, results...)
	}

	p.logger.Info("validation complete",
		"branch", branch,
		"overall", string(report.Overall()),
		"failed_stages", report.FailedStages())
	return report
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage) Result {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	start := time.Now()
	result := stage.Run(stageCtx)
	result.Stage = stage.Name()
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}

	if stageCtx.Err() != nil && result.Status != StatusFail {
		// A timed-out stage counts as a failure, never a silent pass.
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("stage timed out after %s", p.stageTimeout)
	}

	p.logger.Debug("stage finished",
		"stage", stage.Name(),
		"status", string(result.Status),
		"duration", result.Duration)
	return result
}
