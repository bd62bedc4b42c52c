package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/telemacho-dev/pressgen/internal/queue/streams"
	"github.com/telemacho-dev/pressgen/internal/search"
)

type fakePublisher struct {
	mu       sync.Mutex
	requests []streams.StageRequest
	err      error
}

func (f *fakePublisher) PublishStageRequest(_ context.Context, _ string, req streams.StageRequest, _ ...streams.PublishOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.requests = append(f.requests, req)
	return fmt.Sprintf("1-%d", len(f.requests)), nil
}

func TestRunnerPublishesNextStage(t *testing.T) {
	fs := newFakeStore(Generation{ID: "gen-1", Topic: "AI", ScheduleCron: "0 8 * * *", Status: StatusPending})
	pub := &fakePublisher{}
	runner := NewRunner(fs, pub, "generation.stage", testLogger())
	runner.Register(NewPlanner(fs, plannerLLM(`{"queries": ["a b", "c d", "e f"]}`), "gpt-5-mini", 3, 10, testLogger()))

	if err := runner.Run(context.Background(), StagePlan, "gen-1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pub.requests) != 1 || pub.requests[0].Stage != StageResearch || pub.requests[0].GenerationID != "gen-1" {
		t.Fatalf("expected research handoff, got %+v", pub.requests)
	}
}

func TestRunnerHaltsChainOnStageFailure(t *testing.T) {
	fs := newFakeStore(Generation{ID: "gen-1", Topic: "AI", ScheduleCron: "0 8 * * *", Status: StatusPending})
	searcher := &fakeSearch{fn: func(_ string, _ search.Options) ([]search.Document, error) {
		return nil, nil
	}}
	failing := &fakeLLM{fn: func(_, _ string, _ interface{}) error {
		return fmt.Errorf("query generation unavailable")
	}}
	pub := &fakePublisher{}
	runner := NewRunner(fs, pub, "generation.stage", testLogger())
	runner.Register(NewPlanner(fs, failing, "gpt-5-mini", 3, 10, testLogger()))
	runner.Register(NewResearcher(fs, failing, searcher, nil, "gpt-5-mini", 5, testLogger()))

	if err := runner.Run(context.Background(), StagePlan, "gen-1"); err == nil {
		t.Fatalf("expected stage failure to propagate")
	}
	gen, _ := fs.get("gen-1")
	if gen.Status != StatusFailed || gen.Error == "" {
		t.Fatalf("record must end failed with a message, got %s %q", gen.Status, gen.Error)
	}
	if searcher.callCount() != 0 {
		t.Errorf("stage two must never run after stage one fails")
	}
	if len(pub.requests) != 0 {
		t.Errorf("no handoff may be published after a failure")
	}
}

func TestRunnerRejectsUnknownStage(t *testing.T) {
	runner := NewRunner(newFakeStore(), nil, "generation.stage", testLogger())
	if err := runner.Run(context.Background(), "compile", "gen-1"); err == nil {
		t.Fatalf("expected unknown stage error")
	}
}

// End to end through all three stages with the in-process chain.
func TestPipelineEndToEnd(t *testing.T) {
	fs := newFakeStore(Generation{ID: "gen-1", Topic: "Artificial Intelligence", ScheduleCron: "0 8 * * *", Status: StatusPending})

	llm := &fakeLLM{fn: func(_, prompt string, out interface{}) error {
		switch {
		case strings.Contains(prompt, "editorial strategist"):
			return respondJSON(out, testContextJSON)
		case strings.Contains(prompt, `{"queries"`):
			return respondJSON(out, `{"queries": ["ai regulation update", "new model launches", "ai funding news"]}`)
		case strings.Contains(prompt, "is_relevant"):
			return respondJSON(out, `{"is_relevant": true, "reasoning": "on topic"}`)
		case strings.Contains(prompt, "key_facts"):
			return respondJSON(out, `{"summary": "s", "key_facts": ["f"], "opinions": ["o"]}`)
		default:
			return respondJSON(out, `{
				"headline": "AI This Week",
				"intro": "A daily look at artificial intelligence.",
				"sections": [{"title": "Developments", "text": "Narrative.", "sources": [
					{"title": "A", "url": "https://example.com/a"}
				]}]
			}`)
		}
	}}
	searcher := &fakeSearch{fn: func(query string, opts search.Options) ([]search.Document, error) {
		if opts.EndPublished.Sub(opts.StartPublished) != WindowDaily {
			t.Errorf("daily schedule must search a one-day window")
		}
		return []search.Document{{Title: "A", URL: "https://example.com/a", Text: "body"}}, nil
	}}

	runner := NewRunner(fs, nil, "", testLogger())
	runner.Register(NewPlanner(fs, llm, "gpt-5-mini", 3, 10, testLogger()))
	runner.Register(NewResearcher(fs, llm, searcher, nil, "gpt-5-mini", 5, testLogger()))
	runner.Register(NewSynthesizer(fs, llm, "gpt-5", testLogger()))

	if err := runner.Run(context.Background(), StagePlan, "gen-1"); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	gen, _ := fs.get("gen-1")
	if gen.Status != StatusSuccess {
		t.Fatalf("status = %s (error %q)", gen.Status, gen.Error)
	}
	if gen.Error != "" {
		t.Errorf("error must be empty on success")
	}
	if gen.GeneratedAt == nil {
		t.Errorf("generated_at must be set on success")
	}
	if len(gen.GeneratedQueries) < 3 || len(gen.GeneratedQueries) > 10 {
		t.Errorf("queries out of bounds: %v", gen.GeneratedQueries)
	}
	if gen.Content == nil || gen.Content.Headline == "" || gen.Content.Intro == "" || len(gen.Content.Sections) == 0 {
		t.Fatalf("incomplete content: %+v", gen.Content)
	}
	if len(gen.Content.Sections[0].Sources) == 0 {
		t.Errorf("sections must cite sources")
	}
}

// A sweeper re-trigger runs a stage on a record that already sits in that
// stage's status. The re-run must pass the entry guard and finish, not end
// the record in failed.
func TestRunnerResumesStageAtEntryStatus(t *testing.T) {
	fs := newFakeStore(Generation{
		ID: "gen-1", Topic: "AI", ScheduleCron: "0 8 * * *",
		Status:           StatusResearching,
		GeneratedQueries: []string{"ai regulation update"},
	})
	llm := &fakeLLM{fn: func(_, prompt string, out interface{}) error {
		if strings.Contains(prompt, "is_relevant") {
			return respondJSON(out, `{"is_relevant": true, "reasoning": "on topic"}`)
		}
		return respondJSON(out, `{"summary": "s", "key_facts": ["f"], "opinions": []}`)
	}}
	searcher := &fakeSearch{fn: func(_ string, _ search.Options) ([]search.Document, error) {
		return []search.Document{{Title: "A", URL: "https://example.com/a", Text: "body"}}, nil
	}}
	pub := &fakePublisher{}
	runner := NewRunner(fs, pub, "generation.stage", testLogger())
	runner.Register(NewResearcher(fs, llm, searcher, nil, "gpt-5-mini", 5, testLogger()))

	if err := runner.Run(context.Background(), StageResearch, "gen-1"); err != nil {
		t.Fatalf("re-run: %v", err)
	}
	gen, _ := fs.get("gen-1")
	if gen.Status != StatusResearching || gen.Error != "" {
		t.Fatalf("re-run must not fail the record, got %s %q", gen.Status, gen.Error)
	}
	if gen.ResearchResults == nil {
		t.Errorf("re-run must persist research results")
	}
	if len(pub.requests) != 1 || pub.requests[0].Stage != StageSynthesize {
		t.Fatalf("expected synthesize handoff, got %+v", pub.requests)
	}
}

// Lost-handoff recovery: the plan completed and persisted its output but the
// research event never made it out. Re-running plan overwrites the plan and
// hands off again.
func TestRunnerResumesAfterLostHandoff(t *testing.T) {
	fs := newFakeStore(Generation{
		ID: "gen-1", Topic: "AI", ScheduleCron: "0 8 * * *",
		Status:           StatusPlanning,
		GeneratedQueries: []string{"stale query"},
	})
	pub := &fakePublisher{}
	runner := NewRunner(fs, pub, "generation.stage", testLogger())
	runner.Register(NewPlanner(fs, plannerLLM(`{"queries": ["a b", "c d", "e f"]}`), "gpt-5-mini", 3, 10, testLogger()))

	if err := runner.Run(context.Background(), StagePlan, "gen-1"); err != nil {
		t.Fatalf("re-run: %v", err)
	}
	gen, _ := fs.get("gen-1")
	if gen.Status != StatusPlanning || gen.Error != "" {
		t.Fatalf("re-run must not fail the record, got %s %q", gen.Status, gen.Error)
	}
	if len(gen.GeneratedQueries) != 3 || gen.GeneratedQueries[0] != "a b" {
		t.Errorf("re-run must overwrite the plan, got %v", gen.GeneratedQueries)
	}
	if len(pub.requests) != 1 || pub.requests[0].Stage != StageResearch {
		t.Fatalf("expected research handoff, got %+v", pub.requests)
	}
}

func TestRunnerPublishFailureSurfaces(t *testing.T) {
	fs := newFakeStore(Generation{ID: "gen-1", Topic: "AI", ScheduleCron: "0 8 * * *", Status: StatusPending})
	pub := &fakePublisher{err: fmt.Errorf("redis unavailable")}
	runner := NewRunner(fs, pub, "generation.stage", testLogger())
	runner.Register(NewPlanner(fs, plannerLLM(`{"queries": ["a b", "c d", "e f"]}`), "gpt-5-mini", 3, 10, testLogger()))

	if err := runner.Run(context.Background(), StagePlan, "gen-1"); err == nil {
		t.Fatalf("lost handoff must surface to the caller")
	}
	gen, _ := fs.get("gen-1")
	if gen.Status != StatusPlanning {
		t.Errorf("stage output must survive a lost handoff, status = %s", gen.Status)
	}
	if len(gen.GeneratedQueries) == 0 {
		t.Errorf("persisted plan must survive a lost handoff")
	}
}
