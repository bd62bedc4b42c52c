package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/telemacho-dev/pressgen/internal/llm"
)

// Planner is stage one: derive the editorial context for a topic, then a
// bounded list of search queries covering its news angles.
type Planner struct {
	store      RecordStore
	llm        llm.Provider
	model      string
	minQueries int
	maxQueries int
	logger     *log.Logger
	now        func() time.Time
}

func NewPlanner(store RecordStore, provider llm.Provider, model string, minQueries, maxQueries int, logger *log.Logger) *Planner {
	if minQueries <= 0 {
		minQueries = 3
	}
	if maxQueries <= 0 {
		maxQueries = 10
	}
	return &Planner{
		store:      store,
		llm:        provider,
		model:      model,
		minQueries: minQueries,
		maxQueries: maxQueries,
		logger:     logger,
		now:        time.Now,
	}
}

func (p *Planner) Name() string { return StagePlan }

func (p *Planner) Run(ctx context.Context, generationID string) error {
	gen, ok, err := p.store.GetGeneration(ctx, generationID)
	if err != nil {
		return fmt.Errorf("planner: fetch generation: %w", err)
	}
	if !ok {
		return fmt.Errorf("planner: generation %s not found", generationID)
	}
	if strings.TrimSpace(gen.Topic) == "" {
		return fmt.Errorf("planner: generation %s has no topic", generationID)
	}

	// Entry status goes first so a crash mid-stage is observable.
	if err := p.store.AdvanceStatus(ctx, generationID, StatusPlanning); err != nil {
		return fmt.Errorf("planner: advance status: %w", err)
	}

	var gc GenerationContext
	if err := p.llm.GenerateStructured(ctx, p.model, contextPrompt(gen.Topic), &gc); err != nil {
		return fmt.Errorf("planner: derive context: %w", err)
	}
	if err := validateContext(gc); err != nil {
		return fmt.Errorf("planner: derive context: %w", err)
	}

	var queriesOut struct {
		Queries []string `json:"queries"`
	}
	if err := p.llm.GenerateStructured(ctx, p.model, queriesPrompt(gen.Topic, gc, p.now()), &queriesOut); err != nil {
		return fmt.Errorf("planner: generate queries: %w", err)
	}

	queries := normalizeQueries(queriesOut.Queries, p.maxQueries)
	if len(queries) < p.minQueries {
		return fmt.Errorf("planner: only %d usable queries, need at least %d", len(queries), p.minQueries)
	}

	if err := p.store.SaveQueryPlan(ctx, generationID, gc, queries); err != nil {
		return fmt.Errorf("planner: persist query plan: %w", err)
	}
	p.logger.Printf("generation %s: planned %d queries over %d angles", generationID, len(queries), len(gc.NewsAngles))
	return nil
}

func validateContext(gc GenerationContext) error {
	if gc.Audience == "" || gc.Persona == "" || gc.Goal == "" {
		return fmt.Errorf("context missing audience, persona or goal")
	}
	if len(gc.NewsAngles) == 0 {
		return fmt.Errorf("context has no news angles")
	}
	for i, a := range gc.NewsAngles {
		if a.Name == "" || len(a.Keywords) == 0 {
			return fmt.Errorf("news angle %d missing name or keywords", i)
		}
	}
	return nil
}

// normalizeQueries trims, drops blanks and over-long queries, collapses
// duplicates case-insensitively and caps the list.
func normalizeQueries(in []string, max int) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if len(strings.Fields(q)) > 7 {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}
