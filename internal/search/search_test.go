package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/telemacho-dev/pressgen/config"
	"github.com/telemacho-dev/pressgen/internal/httpx"
)

func TestBraveSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "brave-key" {
			t.Errorf("token header = %q", got)
		}
		if fresh := r.URL.Query().Get("freshness"); fresh != "2026-08-23to2026-08-30" {
			t.Errorf("freshness = %q", fresh)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[
			{"title":"Chip export rules tighten","url":"https://example.com/a","description":"snippet a","page_age":"2026-08-28T09:00:00Z","profile":{"name":"Example News"}},
			{"title":"Second story","url":"https://example.com/b","description":"snippet b"}
		]}}`))
	}))
	defer srv.Close()

	client := &BraveClient{
		cfg:      config.SearchConfig{BraveAPIKey: "brave-key", MaxResults: 5},
		http:     httpx.New(2*time.Second, 0, time.Millisecond),
		endpoint: srv.URL,
	}
	start := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	docs, err := client.Search(context.Background(), "chip export rules", Options{StartPublished: start, EndPublished: end})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].URL != "https://example.com/a" || docs[0].Author != "Example News" {
		t.Errorf("unexpected first document: %+v", docs[0])
	}
	if docs[0].PublishedAt.IsZero() {
		t.Errorf("expected page_age to populate PublishedAt")
	}
	if !docs[1].PublishedAt.IsZero() {
		t.Errorf("missing page_age should leave PublishedAt zero")
	}
}

func TestBraveSearchEscapesQuery(t *testing.T) {
	const query = `AI M&A deals #2026 "chip wars"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != query {
			t.Errorf("q = %q, want %q", got, query)
		}
		if got := r.URL.Query().Get("count"); got != "5" {
			t.Errorf("count = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[]}}`))
	}))
	defer srv.Close()

	client := &BraveClient{
		cfg:      config.SearchConfig{BraveAPIKey: "brave-key", MaxResults: 5},
		http:     httpx.New(2*time.Second, 0, time.Millisecond),
		endpoint: srv.URL,
	}
	if _, err := client.Search(context.Background(), query, Options{}); err != nil {
		t.Fatalf("search: %v", err)
	}
}

func TestSerperSearchSendsDateRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-KEY"); got != "serper-key" {
			t.Errorf("api key header = %q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if tbs, _ := req["tbs"].(string); tbs != "cdr:1,cd_min:8/23/2026,cd_max:8/30/2026" {
			t.Errorf("tbs = %q", tbs)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organic":[{"title":"Story","link":"https://example.com/c","snippet":"snippet c","date":"Aug 28, 2026"}]}`))
	}))
	defer srv.Close()

	client := &SerperClient{
		cfg:      config.SearchConfig{SerperAPIKey: "serper-key", MaxResults: 5},
		http:     httpx.New(2*time.Second, 0, time.Millisecond),
		endpoint: srv.URL,
	}
	start := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	docs, err := client.Search(context.Background(), "chip export rules", Options{StartPublished: start, EndPublished: end})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 1 || docs[0].URL != "https://example.com/c" {
		t.Fatalf("unexpected documents: %+v", docs)
	}
	if docs[0].PublishedAt.IsZero() {
		t.Errorf("expected date to populate PublishedAt")
	}
}

func TestNewPrefersBrave(t *testing.T) {
	p, err := New(config.SearchConfig{BraveAPIKey: "a", SerperAPIKey: "b", Timeout: time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := p.(*BraveClient); !ok {
		t.Fatalf("expected BraveClient, got %T", p)
	}
	if _, err := New(config.SearchConfig{}); err == nil {
		t.Fatalf("expected error with no keys configured")
	}
}

func TestEnrichKeepsSnippetOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Full Story</title></head><body><article><p>` + longParagraph() + `</p></article></body></html>`))
	}))
	defer srv.Close()

	docs := []Document{
		{URL: srv.URL + "/story", Text: "short snippet"},
		{URL: "http://127.0.0.1:1/unreachable", Text: "fallback snippet"},
	}
	NewEnricher(2 * time.Second).Enrich(context.Background(), docs)

	if docs[0].Text == "short snippet" {
		t.Errorf("expected extracted body for reachable page")
	}
	if docs[1].Text != "fallback snippet" {
		t.Errorf("unreachable page should keep its snippet, got %q", docs[1].Text)
	}
}

func longParagraph() string {
	s := "Regulators published the final text of the export framework on Thursday. "
	out := ""
	for i := 0; i < 20; i++ {
		out += s
	}
	return out
}
