package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/telemacho-dev/pressgen/internal/llm"
)

// Synthesizer is stage three: one structured call that turns the researched
// articles into the final press review, then the success transition.
type Synthesizer struct {
	store  RecordStore
	llm    llm.Provider
	model  string
	logger *log.Logger
}

func NewSynthesizer(store RecordStore, provider llm.Provider, model string, logger *log.Logger) *Synthesizer {
	return &Synthesizer{store: store, llm: provider, model: model, logger: logger}
}

func (s *Synthesizer) Name() string { return StageSynthesize }

func (s *Synthesizer) Run(ctx context.Context, generationID string) error {
	gen, ok, err := s.store.GetGeneration(ctx, generationID)
	if err != nil {
		return fmt.Errorf("synthesizer: fetch generation: %w", err)
	}
	if !ok {
		return fmt.Errorf("synthesizer: generation %s not found", generationID)
	}
	// An empty research list is a valid input; a missing one is not.
	if gen.GenerationContext == nil {
		return fmt.Errorf("synthesizer: generation %s has no generation context", generationID)
	}
	if gen.ResearchResults == nil {
		return fmt.Errorf("synthesizer: generation %s has no research results", generationID)
	}

	if err := s.store.AdvanceStatus(ctx, generationID, StatusSynthesizing); err != nil {
		return fmt.Errorf("synthesizer: advance status: %w", err)
	}

	var content Content
	prompt := synthesisPrompt(gen.Topic, *gen.GenerationContext, gen.ResearchResults)
	if err := s.llm.GenerateStructured(ctx, s.model, prompt, &content); err != nil {
		return fmt.Errorf("synthesizer: synthesize content: %w", err)
	}
	if err := filterSources(&content, gen.ResearchResults); err != nil {
		return fmt.Errorf("synthesizer: %w", err)
	}
	if err := ValidateContent(content); err != nil {
		return fmt.Errorf("synthesizer: %w", err)
	}

	if err := s.store.MarkSucceeded(ctx, generationID, content); err != nil {
		return fmt.Errorf("synthesizer: persist content: %w", err)
	}
	s.logger.Printf("generation %s: synthesized %d sections from %d articles",
		generationID, len(content.Sections), len(gen.ResearchResults))
	return nil
}

// filterSources drops section sources whose URL is not one of the researched
// articles, then drops sections left citing nothing. A document in which no
// section cites a real source is rejected. With no research at all the model
// cites nothing real, so the lists are left untouched.
func filterSources(c *Content, articles []ResearchArticle) error {
	if len(articles) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		known[a.URL] = struct{}{}
	}
	sections := c.Sections[:0]
	for i := range c.Sections {
		kept := c.Sections[i].Sources[:0]
		for _, src := range c.Sections[i].Sources {
			if _, ok := known[src.URL]; ok {
				kept = append(kept, src)
			}
		}
		c.Sections[i].Sources = kept
		if len(kept) > 0 {
			sections = append(sections, c.Sections[i])
		}
	}
	if len(sections) == 0 {
		return fmt.Errorf("no section cites a researched source")
	}
	c.Sections = sections
	return nil
}
