package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/telemacho-dev/pressgen/internal/queue/streams"
)

// RecordStore is the persistence surface the stages consume.
type RecordStore interface {
	GetGeneration(ctx context.Context, id string) (Generation, bool, error)
	AdvanceStatus(ctx context.Context, id string, to Status) error
	SaveQueryPlan(ctx context.Context, id string, gc GenerationContext, queries []string) error
	SaveResearchResults(ctx context.Context, id string, articles []ResearchArticle) error
	MarkSucceeded(ctx context.Context, id string, content Content) error
	MarkFailed(ctx context.Context, id string, msg string) error
}

// Stage is one independently invocable unit of pipeline work.
type Stage interface {
	Name() string
	Run(ctx context.Context, generationID string) error
}

// StagePublisher hands a generation off to the next stage through the stream.
type StagePublisher interface {
	PublishStageRequest(ctx context.Context, stream string, req streams.StageRequest, opts ...streams.PublishOption) (string, error)
}

// Runner executes stages by name. On stage failure it marks the record failed
// and halts the chain; on success it hands the record to the next stage,
// either through the publisher or in-process when none is configured.
type Runner struct {
	stages    map[string]Stage
	store     RecordStore
	publisher StagePublisher
	stream    string
	logger    *log.Logger
	metrics   StageMetrics
}

// StageMetrics receives stage outcome observations. A nil value disables
// reporting.
type StageMetrics interface {
	ObserveStage(stage string, seconds float64, failed bool)
	HandoffPublished()
}

func NewRunner(store RecordStore, publisher StagePublisher, stream string, logger *log.Logger) *Runner {
	return &Runner{
		stages:    make(map[string]Stage),
		store:     store,
		publisher: publisher,
		stream:    stream,
		logger:    logger,
	}
}

// WithMetrics attaches stage outcome reporting.
func (r *Runner) WithMetrics(m StageMetrics) *Runner {
	r.metrics = m
	return r
}

func (r *Runner) Register(s Stage) {
	r.stages[s.Name()] = s
}

// Run executes one stage for one generation record.
func (r *Runner) Run(ctx context.Context, stage, generationID string) error {
	handler, ok := r.stages[stage]
	if !ok {
		return fmt.Errorf("unknown stage %q", stage)
	}

	err := r.observe(ctx, stage, generationID, handler)
	if err != nil {
		r.logger.Printf("generation %s: stage %s failed: %v", generationID, stage, err)
		if markErr := r.store.MarkFailed(ctx, generationID, err.Error()); markErr != nil {
			r.logger.Printf("generation %s: record failure: %v", generationID, markErr)
		}
		return err
	}

	next := NextStage(stage)
	if next == "" {
		return nil
	}
	if r.publisher == nil {
		return r.Run(ctx, next, generationID)
	}
	req := streams.StageRequest{GenerationID: generationID, Stage: next}
	if _, err := r.publisher.PublishStageRequest(ctx, r.stream, req); err != nil {
		// The stage output is already persisted; the sweeper will pick the
		// record up if this handoff is lost.
		r.logger.Printf("generation %s: publish %s handoff: %v", generationID, next, err)
		return fmt.Errorf("publish %s handoff: %w", next, err)
	}
	if r.metrics != nil {
		r.metrics.HandoffPublished()
	}
	return nil
}

func (r *Runner) observe(ctx context.Context, stage, generationID string, handler Stage) error {
	if r.metrics == nil {
		return handler.Run(ctx, generationID)
	}
	start := time.Now()
	err := handler.Run(ctx, generationID)
	r.metrics.ObserveStage(stage, time.Since(start).Seconds(), err != nil)
	return err
}
