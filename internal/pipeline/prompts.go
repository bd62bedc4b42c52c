package pipeline

import (
	"fmt"
	"strings"
	"time"
)

func contextPrompt(topic string) string {
	return fmt.Sprintf(`You are an editorial strategist preparing a professional press review on a topic.
TOPIC: %s
Define the editorial frame for a press review aimed at professionals who follow this topic for work. Keep the framing press-review oriented and business-relevant; do not frame it for hobbyists or casual readers.
Respond ONLY as strict JSON with keys:
{"audience": string, "persona": string, "goal": string, "news_angles": [ { "name": string, "description": string, "keywords": [string] } ]}
Produce between 3 and 5 news_angles, each with 3 to 5 keywords.
`, topic)
}

func queriesPrompt(topic string, gc GenerationContext, now time.Time) string {
	var angles strings.Builder
	for _, a := range gc.NewsAngles {
		fmt.Fprintf(&angles, "- %s: %s (keywords: %s)\n", a.Name, a.Description, strings.Join(a.Keywords, ", "))
	}
	return fmt.Sprintf(`You are a news research assistant generating web search queries for a press review.
TOPIC: %s
TODAY: %s
AUDIENCE: %s
NEWS ANGLES:
%s
For each news angle produce a small batch of search queries, then combine all batches into one flat list. Each query must be at most 7 words. Queries that benefit from a recency or year qualifier should include one based on today's date. Produce between 3 and 10 queries in total.
Respond ONLY as strict JSON with keys:
{"queries": [string]}
`, topic, now.Format("2006-01-02"), gc.Audience, angles.String())
}

func relevancePrompt(topic string, doc sourceDoc) string {
	return fmt.Sprintf(`You are an assistant judging whether a web source belongs in a professional press review.
TOPIC: %s
SOURCE TITLE: %s
SOURCE URL: %s
SOURCE PUBLISHED: %s
SOURCE TEXT:
%s
Judge rigorously. Require recency, credibility and a substantive topical connection; when in doubt, exclude the source.
Respond ONLY as strict JSON with keys:
{"is_relevant": boolean, "reasoning": string}
`, topic, doc.Title, doc.URL, doc.Published, truncate(doc.Text, 6000))
}

func extractionPrompt(topic string, doc sourceDoc) string {
	return fmt.Sprintf(`You are an assistant extracting the substance of a news source for a press review.
TOPIC: %s
SOURCE TITLE: %s
SOURCE TEXT:
%s
Extract strictly from the source text above and only what concerns the topic. Do not use external knowledge and do not speculate.
Respond ONLY as strict JSON with keys:
{"summary": string, "key_facts": [string], "opinions": [string]}
`, topic, doc.Title, truncate(doc.Text, 8000))
}

func synthesisPrompt(topic string, gc GenerationContext, articles []ResearchArticle) string {
	var sources strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&sources, "[%d] Title: %s\n    URL: %s\n    Summary: %s\n    Key facts: %s\n    Opinions: %s\n",
			i+1, a.Title, a.URL, a.Summary, strings.Join(a.KeyFacts, "; "), strings.Join(a.Opinions, "; "))
	}
	if sources.Len() == 0 {
		sources.WriteString("(no sources survived research; produce a minimal document saying so)\n")
	}
	return fmt.Sprintf(`You are %s. Your goal: %s. You are writing for: %s.
Write a press review on the topic below from the researched sources.
TOPIC: %s
SOURCES:
%s
Steps:
1. Evaluate all sources and silently discard low-value or redundant ones.
2. Group the retained sources into mutually exclusive thematic sections.
3. Write one synthesized narrative per section drawing on the facts and opinions of its sources. Do not restate source summaries verbatim.
4. Write a headline and an intro framing the whole document.
Every section's sources list must reference only URLs from the SOURCES block.
Respond ONLY as strict JSON with keys:
{"headline": string, "intro": string, "sections": [ { "title": string, "text": string, "sources": [ { "title": string, "url": string } ] } ]}
`, gc.Persona, gc.Goal, gc.Audience, topic, sources.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
