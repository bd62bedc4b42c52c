package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/telemacho-dev/pressgen/internal/llm"
	"github.com/telemacho-dev/pressgen/internal/search"
)

// TextEnricher upgrades search snippets to full article text. Failures leave
// the snippet in place.
type TextEnricher interface {
	Enrich(ctx context.Context, docs []search.Document)
}

// Researcher is stage two: fan the generated queries out against the search
// provider inside a schedule-derived recency window, deduplicate by URL,
// judge each unique source and extract the substance of the relevant ones.
type Researcher struct {
	store           RecordStore
	llm             llm.Provider
	search          search.Provider
	enricher        TextEnricher
	model           string
	resultsPerQuery int
	logger          *log.Logger
	now             func() time.Time
}

func NewResearcher(store RecordStore, provider llm.Provider, searcher search.Provider, enricher TextEnricher, model string, resultsPerQuery int, logger *log.Logger) *Researcher {
	if resultsPerQuery <= 0 {
		resultsPerQuery = 5
	}
	return &Researcher{
		store:           store,
		llm:             provider,
		search:          searcher,
		enricher:        enricher,
		model:           model,
		resultsPerQuery: resultsPerQuery,
		logger:          logger,
		now:             time.Now,
	}
}

func (r *Researcher) Name() string { return StageResearch }

type sourceDoc struct {
	Title     string
	URL       string
	Text      string
	Author    string
	Published string
}

func (r *Researcher) Run(ctx context.Context, generationID string) error {
	gen, ok, err := r.store.GetGeneration(ctx, generationID)
	if err != nil {
		return fmt.Errorf("researcher: fetch generation: %w", err)
	}
	if !ok {
		return fmt.Errorf("researcher: generation %s not found", generationID)
	}
	if len(gen.GeneratedQueries) == 0 {
		return fmt.Errorf("researcher: generation %s has no generated queries", generationID)
	}

	if err := r.store.AdvanceStatus(ctx, generationID, StatusResearching); err != nil {
		return fmt.Errorf("researcher: advance status: %w", err)
	}

	start, end, err := ResearchWindow(gen.ScheduleCron, r.now())
	if err != nil {
		return fmt.Errorf("researcher: %w", err)
	}

	docs := r.fanOut(ctx, gen.GeneratedQueries, start, end)
	unique := dedupeByURL(docs)
	if r.enricher != nil {
		r.enricher.Enrich(ctx, unique)
	}

	articles := r.evaluateAndExtract(ctx, gen.Topic, unique)
	if err := r.store.SaveResearchResults(ctx, generationID, articles); err != nil {
		return fmt.Errorf("researcher: persist research results: %w", err)
	}
	r.logger.Printf("generation %s: %d queries, %d unique sources, %d relevant articles",
		generationID, len(gen.GeneratedQueries), len(unique), len(articles))
	return nil
}

// fanOut runs every query concurrently. A failed query is logged and skipped;
// the surviving queries' results are merged in query order.
func (r *Researcher) fanOut(ctx context.Context, queries []string, start, end time.Time) []search.Document {
	results := make([][]search.Document, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			docs, err := r.search.Search(ctx, q, search.Options{
				MaxResults:     r.resultsPerQuery,
				StartPublished: start,
				EndPublished:   end,
			})
			if err != nil {
				r.logger.Printf("search %q: %v", q, err)
				return
			}
			results[i] = docs
		}(i, q)
	}
	wg.Wait()

	var flat []search.Document
	for _, docs := range results {
		flat = append(flat, docs...)
	}
	return flat
}

// dedupeByURL keeps the first occurrence of every URL. Once a URL is seen it
// is never re-evaluated in this run, whatever the earlier verdict was.
func dedupeByURL(docs []search.Document) []search.Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]search.Document, 0, len(docs))
	for _, d := range docs {
		if d.URL == "" {
			continue
		}
		if _, dup := seen[d.URL]; dup {
			continue
		}
		seen[d.URL] = struct{}{}
		out = append(out, d)
	}
	return out
}

// evaluateAndExtract judges each unique source and extracts the relevant
// ones. Evaluation failures count as irrelevant; extraction failures drop the
// source. Neither aborts the stage.
func (r *Researcher) evaluateAndExtract(ctx context.Context, topic string, docs []search.Document) []ResearchArticle {
	articles := make([]ResearchArticle, 0, len(docs))
	for _, d := range docs {
		doc := sourceDoc{Title: d.Title, URL: d.URL, Text: d.Text, Author: d.Author}
		if !d.PublishedAt.IsZero() {
			doc.Published = d.PublishedAt.Format("2006-01-02")
		}

		var verdict struct {
			IsRelevant bool   `json:"is_relevant"`
			Reasoning  string `json:"reasoning"`
		}
		if err := r.llm.GenerateStructured(ctx, r.model, relevancePrompt(topic, doc), &verdict); err != nil {
			r.logger.Printf("evaluate %s: %v (excluding)", d.URL, err)
			continue
		}
		if !verdict.IsRelevant {
			continue
		}

		var extracted struct {
			Summary  string   `json:"summary"`
			KeyFacts []string `json:"key_facts"`
			Opinions []string `json:"opinions"`
		}
		if err := r.llm.GenerateStructured(ctx, r.model, extractionPrompt(topic, doc), &extracted); err != nil {
			r.logger.Printf("extract %s: %v (dropping)", d.URL, err)
			continue
		}
		articles = append(articles, ResearchArticle{
			Title:         d.Title,
			URL:           d.URL,
			Author:        doc.Author,
			PublishedDate: doc.Published,
			Summary:       extracted.Summary,
			KeyFacts:      extracted.KeyFacts,
			Opinions:      extracted.Opinions,
		})
	}
	return articles
}
