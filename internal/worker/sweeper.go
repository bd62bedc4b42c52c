package worker

import (
	"context"
	"log"
	"time"

	"github.com/telemacho-dev/pressgen/internal/pipeline"
	"github.com/telemacho-dev/pressgen/internal/queue/streams"
)

// StalledLister finds generations stuck in a non-terminal status.
type StalledLister interface {
	ListStalled(ctx context.Context, olderThan time.Duration) ([]pipeline.Generation, error)
}

// StagePublisher re-enqueues stage work for stalled records.
type StagePublisher interface {
	PublishStageRequest(ctx context.Context, stream string, req streams.StageRequest, opts ...streams.PublishOption) (string, error)
}

// Sweeper periodically re-triggers generations whose handoff was lost. A
// record sitting untouched in an in-progress status past the threshold gets a
// fresh stage event for the stage its status maps to; stage idempotency makes
// a duplicate run harmless.
// SweepMetrics counts re-triggered generations. A nil value disables
// reporting.
type SweepMetrics interface {
	SweepRetriggered()
}

type Sweeper struct {
	logger       *log.Logger
	store        StalledLister
	publisher    StagePublisher
	stream       string
	stalledAfter time.Duration
	interval     time.Duration
	metrics      SweepMetrics
}

func NewSweeper(logger *log.Logger, st StalledLister, pub StagePublisher, stream string, stalledAfter, interval time.Duration) *Sweeper {
	if stalledAfter <= 0 {
		stalledAfter = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		logger:       logger,
		store:        st,
		publisher:    pub,
		stream:       stream,
		stalledAfter: stalledAfter,
		interval:     interval,
	}
}

// WithMetrics attaches re-trigger counting.
func (s *Sweeper) WithMetrics(m SweepMetrics) *Sweeper {
	s.metrics = m
	return s
}

// Start blocks, sweeping on the configured interval until the context is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Printf("sweeper starting; threshold %s, interval %s", s.stalledAfter, s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("sweeper stopping: %v", ctx.Err())
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Printf("sweep: %v", err)
			}
		}
	}
}

// Sweep republishes a stage event for every stalled generation.
func (s *Sweeper) Sweep(ctx context.Context) error {
	stalled, err := s.store.ListStalled(ctx, s.stalledAfter)
	if err != nil {
		return err
	}
	for _, gen := range stalled {
		stage, ok := pipeline.StageForStatus(gen.Status)
		if !ok {
			continue
		}
		req := streams.StageRequest{GenerationID: gen.ID, Stage: stage}
		if _, err := s.publisher.PublishStageRequest(ctx, s.stream, req); err != nil {
			s.logger.Printf("republish %s for generation %s: %v", stage, gen.ID, err)
			continue
		}
		if s.metrics != nil {
			s.metrics.SweepRetriggered()
		}
		s.logger.Printf("generation %s stalled in %s; re-triggered stage %s", gen.ID, gen.Status, stage)
	}
	return nil
}
