package search

import (
	"context"
	"fmt"
	"time"

	"github.com/telemacho-dev/pressgen/config"
	"github.com/telemacho-dev/pressgen/internal/httpx"
)

const serperEndpoint = "https://google.serper.dev/search"

// SerperClient implements Provider using serper.dev.
type SerperClient struct {
	cfg      config.SearchConfig
	http     *httpx.Client
	endpoint string
}

func (s *SerperClient) Search(ctx context.Context, query string, opts Options) ([]Document, error) {
	var resp struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic"`
	}
	headers := map[string]string{"X-API-KEY": s.cfg.SerperAPIKey}
	body := map[string]any{"q": query, "num": maxResults(opts.MaxResults, s.cfg.MaxResults)}
	if !opts.StartPublished.IsZero() && !opts.EndPublished.IsZero() {
		body["tbs"] = fmt.Sprintf("cdr:1,cd_min:%s,cd_max:%s",
			opts.StartPublished.UTC().Format("1/2/2006"),
			opts.EndPublished.UTC().Format("1/2/2006"))
	}

	endpoint := s.endpoint
	if endpoint == "" {
		endpoint = serperEndpoint
	}
	if err := s.http.DoJSON(ctx, "POST", endpoint, headers, body, &resp); err != nil {
		return nil, err
	}

	out := make([]Document, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		doc := Document{Title: r.Title, URL: r.Link, Text: r.Snippet}
		if r.Date != "" {
			if ts, err := time.Parse("Jan 2, 2006", r.Date); err == nil {
				doc.PublishedAt = ts
			}
		}
		out = append(out, doc)
	}
	return out, nil
}
