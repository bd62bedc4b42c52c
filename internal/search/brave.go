package search

import (
	"context"
	"fmt"
	"time"

	"github.com/telemacho-dev/pressgen/config"
	"github.com/telemacho-dev/pressgen/internal/httpx"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveClient implements Provider using the Brave Search API.
type BraveClient struct {
	cfg      config.SearchConfig
	http     *httpx.Client
	endpoint string
}

func (b *BraveClient) Search(ctx context.Context, query string, opts Options) ([]Document, error) {
	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				PageAge     string `json:"page_age"`
				Profile     struct {
					Name string `json:"name"`
				} `json:"profile"`
			} `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{"X-Subscription-Token": b.cfg.BraveAPIKey}

	endpoint := b.endpoint
	if endpoint == "" {
		endpoint = braveEndpoint
	}
	url := fmt.Sprintf("%s?q=%s&count=%d", endpoint, escapeQuery(query), maxResults(opts.MaxResults, b.cfg.MaxResults))
	if !opts.StartPublished.IsZero() && !opts.EndPublished.IsZero() {
		url += fmt.Sprintf("&freshness=%sto%s",
			opts.StartPublished.UTC().Format("2006-01-02"),
			opts.EndPublished.UTC().Format("2006-01-02"))
	}

	if err := b.http.DoJSON(ctx, "GET", url, headers, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Document, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		doc := Document{Title: r.Title, URL: r.URL, Text: r.Description, Author: r.Profile.Name}
		if r.PageAge != "" {
			if ts, err := time.Parse(time.RFC3339, r.PageAge); err == nil {
				doc.PublishedAt = ts
			}
		}
		out = append(out, doc)
	}
	return out, nil
}
