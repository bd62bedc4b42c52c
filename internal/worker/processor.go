package worker

import (
	"context"
	"log"
	"time"

	"github.com/telemacho-dev/pressgen/internal/pipeline"
	"github.com/telemacho-dev/pressgen/internal/queue/streams"
)

// StoreAPI captures the store methods required by the worker.
type StoreAPI interface {
	ClaimIdempotency(ctx context.Context, scope, key string) (bool, error)
}

// StreamConsumer reads and acknowledges stage events.
type StreamConsumer interface {
	Read(ctx context.Context, stream string, opts ...streams.ConsumerOption) ([]streams.Message, error)
	Ack(ctx context.Context, stream string, ids ...string) error
}

// StageRunner executes one pipeline stage by name.
type StageRunner interface {
	Run(ctx context.Context, stage, generationID string) error
}

// Processor drives pipeline execution by consuming generation.stage events.
type Processor struct {
	logger   *log.Logger
	store    StoreAPI
	consumer StreamConsumer
	runner   StageRunner
	stream   string
}

// NewProcessor constructs a Processor.
func NewProcessor(logger *log.Logger, st StoreAPI, cons StreamConsumer, runner StageRunner, stream string) *Processor {
	return &Processor{
		logger:   logger,
		store:    st,
		consumer: cons,
		runner:   runner,
		stream:   stream,
	}
}

// Start blocks, continuously processing stage events until the context is
// cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker processor starting; consuming stream %s", p.stream)

	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker processor stopping: %v", ctx.Err())
			return nil
		default:
		}

		msgs, err := p.consumer.Read(ctx, p.stream, streams.WithBlock(5*time.Second), streams.WithCount(16))
		if err != nil {
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			p.Handle(ctx, msg)
			if err := p.consumer.Ack(ctx, p.stream, msg.ID); err != nil {
				p.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
			}
		}
	}
}

// Handle processes one stage event. Every outcome ends in an ack by the
// caller: a stage failure is already recorded on the generation itself, and
// redelivery would only replay a claimed idempotency key.
func (p *Processor) Handle(ctx context.Context, msg streams.Message) {
	claimed, err := p.store.ClaimIdempotency(ctx, msg.Envelope.EventType, msg.Envelope.EventID)
	if err != nil {
		p.logger.Printf("claim idempotency for %s: %v", msg.Envelope.EventID, err)
		return
	}
	if !claimed {
		p.logger.Printf("skip event %s: already processed", msg.Envelope.EventID)
		return
	}

	req, err := streams.DecodeStageRequest(msg.Envelope)
	if err != nil {
		p.logger.Printf("event %s: %v", msg.Envelope.EventID, err)
		return
	}
	if !pipeline.KnownStage(req.Stage) {
		p.logger.Printf("event %s: unknown stage %q", msg.Envelope.EventID, req.Stage)
		return
	}

	if err := p.runner.Run(ctx, req.Stage, req.GenerationID); err != nil {
		p.logger.Printf("generation %s: stage %s: %v", req.GenerationID, req.Stage, err)
	}
}
