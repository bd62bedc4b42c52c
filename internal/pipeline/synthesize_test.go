package pipeline

import (
	"context"
	"fmt"
	"testing"
)

func synthesisRecord() Generation {
	return Generation{
		ID:           "gen-1",
		Topic:        "Artificial Intelligence",
		ScheduleCron: "0 8 * * *",
		Status:       StatusResearching,
		GenerationContext: &GenerationContext{
			Audience: "executives", Persona: "an analyst", Goal: "weekly digest",
			NewsAngles: []NewsAngle{{Name: "Regulation", Keywords: []string{"policy"}}},
		},
		ResearchResults: []ResearchArticle{
			{Title: "A", URL: "https://example.com/a", Summary: "sa", KeyFacts: []string{"f"}},
			{Title: "B", URL: "https://example.com/b", Summary: "sb"},
		},
	}
}

const synthesisJSON = `{
	"headline": "AI Week in Review",
	"intro": "The stories that mattered.",
	"sections": [
		{"title": "Regulation", "text": "Narrative.", "sources": [
			{"title": "A", "url": "https://example.com/a"},
			{"title": "Invented", "url": "https://example.com/made-up"}
		]}
	]
}`

func TestSynthesizerSuccess(t *testing.T) {
	fs := newFakeStore(synthesisRecord())
	llm := &fakeLLM{fn: func(_, _ string, out interface{}) error {
		return respondJSON(out, synthesisJSON)
	}}
	s := NewSynthesizer(fs, llm, "gpt-5", testLogger())

	if err := s.Run(context.Background(), "gen-1"); err != nil {
		t.Fatalf("synthesizer: %v", err)
	}
	gen, _ := fs.get("gen-1")
	if gen.Status != StatusSuccess {
		t.Fatalf("status = %s", gen.Status)
	}
	if gen.Content == nil || gen.Error != "" {
		t.Fatalf("terminal success must hold content and no error")
	}
	if gen.GeneratedAt == nil {
		t.Errorf("generated_at not set")
	}
	if len(gen.Content.Sections) != 1 {
		t.Fatalf("sections = %d", len(gen.Content.Sections))
	}
	srcs := gen.Content.Sections[0].Sources
	if len(srcs) != 1 || srcs[0].URL != "https://example.com/a" {
		t.Errorf("sources must be filtered to researched urls, got %+v", srcs)
	}
}

func TestSynthesizerEmptyResearchStillSucceeds(t *testing.T) {
	g := synthesisRecord()
	g.ResearchResults = []ResearchArticle{}
	fs := newFakeStore(g)
	llm := &fakeLLM{fn: func(_, _ string, out interface{}) error {
		return respondJSON(out, `{"headline": "Quiet Week", "intro": "Nothing substantive surfaced.", "sections": [{"title": "Overview", "text": "No sources met the bar.", "sources": []}]}`)
	}}
	s := NewSynthesizer(fs, llm, "gpt-5", testLogger())

	if err := s.Run(context.Background(), "gen-1"); err != nil {
		t.Fatalf("empty research must still synthesize: %v", err)
	}
	gen, _ := fs.get("gen-1")
	if gen.Status != StatusSuccess {
		t.Errorf("status = %s", gen.Status)
	}
}

func TestSynthesizerMissingInputsAbort(t *testing.T) {
	noCtx := synthesisRecord()
	noCtx.GenerationContext = nil
	noResearch := synthesisRecord()
	noResearch.ResearchResults = nil

	for name, g := range map[string]Generation{"context": noCtx, "research": noResearch} {
		fs := newFakeStore(g)
		s := NewSynthesizer(fs, &fakeLLM{fn: func(_, _ string, _ interface{}) error {
			t.Fatalf("provider must not be called with missing %s", name)
			return nil
		}}, "gpt-5", testLogger())
		if err := s.Run(context.Background(), "gen-1"); err == nil {
			t.Errorf("missing %s must abort", name)
		}
	}
}

func TestSynthesizerShapeFailureAborts(t *testing.T) {
	fs := newFakeStore(synthesisRecord())
	llm := &fakeLLM{fn: func(_, _ string, out interface{}) error {
		return respondJSON(out, `{"headline": "H", "intro": "I", "sections": []}`)
	}}
	s := NewSynthesizer(fs, llm, "gpt-5", testLogger())

	if err := s.Run(context.Background(), "gen-1"); err == nil {
		t.Fatalf("sectionless content must abort")
	}
	gen, _ := fs.get("gen-1")
	if gen.Content != nil {
		t.Errorf("partial content must never be persisted")
	}
}

func TestSynthesizerDropsSectionsWithoutRealSources(t *testing.T) {
	fs := newFakeStore(synthesisRecord())
	llm := &fakeLLM{fn: func(_, _ string, out interface{}) error {
		return respondJSON(out, `{
			"headline": "H", "intro": "I",
			"sections": [
				{"title": "Grounded", "text": "B", "sources": [{"title": "A", "url": "https://example.com/a"}]},
				{"title": "Hallucinated", "text": "B", "sources": [{"title": "X", "url": "https://example.com/made-up"}]}
			]
		}`)
	}}
	s := NewSynthesizer(fs, llm, "gpt-5", testLogger())

	if err := s.Run(context.Background(), "gen-1"); err != nil {
		t.Fatalf("synthesizer: %v", err)
	}
	gen, _ := fs.get("gen-1")
	if len(gen.Content.Sections) != 1 || gen.Content.Sections[0].Title != "Grounded" {
		t.Fatalf("invented-only section must be dropped, got %+v", gen.Content.Sections)
	}
	if len(gen.Content.Sections[0].Sources) == 0 {
		t.Errorf("surviving section must keep its researched sources")
	}
}

func TestSynthesizerAllInventedSourcesAbort(t *testing.T) {
	fs := newFakeStore(synthesisRecord())
	llm := &fakeLLM{fn: func(_, _ string, out interface{}) error {
		return respondJSON(out, `{"headline": "H", "intro": "I", "sections": [{"title": "T", "text": "B", "sources": [{"title": "X", "url": "https://example.com/made-up"}]}]}`)
	}}
	s := NewSynthesizer(fs, llm, "gpt-5", testLogger())

	if err := s.Run(context.Background(), "gen-1"); err == nil {
		t.Fatalf("content citing only invented sources must abort")
	}
	gen, _ := fs.get("gen-1")
	if gen.Content != nil {
		t.Errorf("partial content must never be persisted")
	}
	if gen.Status == StatusSuccess {
		t.Errorf("record must not end successful")
	}
}

func TestSynthesizerProviderErrorAborts(t *testing.T) {
	fs := newFakeStore(synthesisRecord())
	llm := &fakeLLM{fn: func(_, _ string, _ interface{}) error {
		return fmt.Errorf("model unavailable")
	}}
	s := NewSynthesizer(fs, llm, "gpt-5", testLogger())

	if err := s.Run(context.Background(), "gen-1"); err == nil {
		t.Fatalf("provider error must abort")
	}
}
