package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/telemacho-dev/pressgen/config"
	"github.com/telemacho-dev/pressgen/internal/llm"
	"github.com/telemacho-dev/pressgen/internal/pipeline"
	"github.com/telemacho-dev/pressgen/internal/queue/streams"
	"github.com/telemacho-dev/pressgen/internal/search"
	"github.com/telemacho-dev/pressgen/internal/store"
	"github.com/telemacho-dev/pressgen/internal/telemetry"
)

// runtime bundles the constructed collaborators every command wires from.
type runtime struct {
	cfg     *config.Config
	store   *store.Store
	redis   *redis.Client
	metrics *telemetry.Metrics
	logger  *log.Logger
}

func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return nil, err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New()
	}

	return &runtime{
		cfg:     cfg,
		store:   st,
		redis:   rdb,
		metrics: metrics,
		logger:  log.New(os.Stdout, "[PRESSGEN] ", log.LstdFlags),
	}, nil
}

// buildRunner assembles the three stages around a runner. A nil publisher
// chains stages in-process.
func (r *runtime) buildRunner(publisher pipeline.StagePublisher) (*pipeline.Runner, error) {
	provider, err := llm.NewProvider(r.cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	searcher, err := search.New(r.cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}
	var enricher pipeline.TextEnricher
	if r.cfg.Search.EnrichText {
		enricher = search.NewEnricher(r.cfg.Search.Timeout)
	}

	plog := log.New(os.Stdout, "[PIPELINE] ", log.LstdFlags)
	routing := r.cfg.LLM.Routing

	runner := pipeline.NewRunner(r.store, publisher, r.cfg.Pipeline.StageStream, plog)
	if r.metrics != nil {
		runner.WithMetrics(r.metrics)
	}
	runner.Register(pipeline.NewPlanner(r.store, provider, routing.ModelFor("planning"),
		r.cfg.Pipeline.MinQueries, r.cfg.Pipeline.MaxQueries, plog))
	runner.Register(pipeline.NewResearcher(r.store, provider, searcher, enricher,
		routing.ModelFor("research"), r.cfg.Pipeline.ResultsPerQuery, plog))
	runner.Register(pipeline.NewSynthesizer(r.store, provider, routing.ModelFor("synthesis"), plog))
	return runner, nil
}

// publisher returns the stage event publisher over the shared Redis client.
func (r *runtime) publisher(ctx context.Context) (*streams.Publisher, error) {
	if err := streams.EnsureGroup(ctx, r.redis, r.cfg.Pipeline.StageStream, r.cfg.Pipeline.ConsumerGroup); err != nil {
		return nil, err
	}
	return streams.NewPublisher(r.redis), nil
}

func (r *runtime) close() {
	if r.store != nil && r.store.DB != nil {
		_ = r.store.DB.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}
