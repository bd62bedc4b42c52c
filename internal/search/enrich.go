package search

import (
	"bytes"
	"context"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/telemacho-dev/pressgen/internal/httpx"
)

// Enricher fetches article pages and replaces search snippets with the
// extracted full text. Fetch or parse failures leave the snippet in place.
type Enricher struct {
	http    *httpx.Client
	maxBody int64
	logger  *log.Logger
}

func NewEnricher(timeout time.Duration) *Enricher {
	return &Enricher{
		http:    httpx.New(timeout, 1, 200*time.Millisecond),
		maxBody: 2 << 20,
		logger:  log.New(os.Stdout, "[ENRICH] ", log.LstdFlags),
	}
}

// Enrich mutates docs in place, filling Text with the readable article body
// when the page can be fetched and parsed.
func (e *Enricher) Enrich(ctx context.Context, docs []Document) {
	for i := range docs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		body, err := e.fetch(ctx, docs[i].URL)
		if err != nil {
			e.logger.Printf("fetch %s: %v", docs[i].URL, err)
			continue
		}
		parsed, err := url.Parse(docs[i].URL)
		if err != nil {
			continue
		}
		article, err := readability.FromReader(bytes.NewReader(body), parsed)
		if err != nil {
			e.logger.Printf("extract %s: %v", docs[i].URL, err)
			continue
		}
		text := strings.TrimSpace(article.TextContent)
		if text == "" {
			continue
		}
		docs[i].Text = text
		if docs[i].Author == "" {
			docs[i].Author = article.Byline
		}
		if docs[i].PublishedAt.IsZero() && article.PublishedTime != nil {
			docs[i].PublishedAt = *article.PublishedTime
		}
	}
}

func (e *Enricher) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	return e.http.Get(ctx, pageURL, e.maxBody)
}
