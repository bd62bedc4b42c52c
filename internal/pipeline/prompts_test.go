package pipeline

import (
	"strings"
	"testing"
)

func TestExtractionPromptCarriesTitleAndText(t *testing.T) {
	p := extractionPrompt("AI", sourceDoc{Title: "Model Launch", Text: "the article body"})
	if !strings.Contains(p, "SOURCE TITLE: Model Launch") {
		t.Errorf("title missing or misplaced:\n%s", p)
	}
	if !strings.Contains(p, "SOURCE TEXT:\nthe article body") {
		t.Errorf("source text missing:\n%s", p)
	}
	if strings.Contains(p, "MISSING") {
		t.Errorf("unfilled format verb in prompt:\n%s", p)
	}
}

func TestRelevancePromptCarriesSourceFields(t *testing.T) {
	doc := sourceDoc{Title: "T", URL: "https://example.com/t", Published: "2026-08-29", Text: "body"}
	p := relevancePrompt("AI", doc)
	for _, want := range []string{"SOURCE TITLE: T", "SOURCE URL: https://example.com/t", "SOURCE PUBLISHED: 2026-08-29", "SOURCE TEXT:\nbody"} {
		if !strings.Contains(p, want) {
			t.Errorf("missing %q:\n%s", want, p)
		}
	}
}
