package search

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/telemacho-dev/pressgen/config"
	"github.com/telemacho-dev/pressgen/internal/httpx"
)

// Document is a single web search result.
type Document struct {
	Title       string
	URL         string
	Text        string
	Author      string
	PublishedAt time.Time
}

// Options bounds a search call.
type Options struct {
	MaxResults     int
	StartPublished time.Time
	EndPublished   time.Time
}

// Provider is the web search contract the research stage consumes.
type Provider interface {
	Search(ctx context.Context, query string, opts Options) ([]Document, error)
}

// New selects a provider based on which API key is configured, Brave first.
func New(cfg config.SearchConfig) (Provider, error) {
	httpc := httpx.New(cfg.Timeout, 2, 300*time.Millisecond)
	if cfg.BraveAPIKey != "" {
		return &BraveClient{cfg: cfg, http: httpc}, nil
	}
	if cfg.SerperAPIKey != "" {
		return &SerperClient{cfg: cfg, http: httpc}, nil
	}
	return nil, fmt.Errorf("no search provider configured (search.brave_api_key or search.serper_api_key)")
}

func escapeQuery(q string) string { return url.QueryEscape(q) }

func maxResults(opt, def int) int {
	if opt > 0 {
		return opt
	}
	return def
}
