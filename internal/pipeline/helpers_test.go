package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/telemacho-dev/pressgen/internal/search"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// fakeStore is an in-memory RecordStore enforcing the same transition guards
// as the SQL implementation.
type fakeStore struct {
	mu   sync.Mutex
	gens map[string]Generation
}

func newFakeStore(gens ...Generation) *fakeStore {
	fs := &fakeStore{gens: make(map[string]Generation)}
	for _, g := range gens {
		fs.gens[g.ID] = g
	}
	return fs
}

func (f *fakeStore) get(id string) (Generation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gens[id]
	return g, ok
}

func (f *fakeStore) GetGeneration(_ context.Context, id string) (Generation, bool, error) {
	g, ok := f.get(id)
	return g, ok, nil
}

func (f *fakeStore) AdvanceStatus(_ context.Context, id string, to Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gens[id]
	if !ok {
		return fmt.Errorf("generation %s not found", id)
	}
	if !g.Status.CanAdvanceTo(to) || to == StatusFailed {
		return fmt.Errorf("%s -> %s: %w", g.Status, to, ErrInvalidTransition)
	}
	g.Status = to
	g.UpdatedAt = time.Now()
	f.gens[id] = g
	return nil
}

func (f *fakeStore) SaveQueryPlan(_ context.Context, id string, gc GenerationContext, queries []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gens[id]
	if !ok {
		return fmt.Errorf("generation %s not found", id)
	}
	g.GenerationContext = &gc
	g.GeneratedQueries = queries
	g.UpdatedAt = time.Now()
	f.gens[id] = g
	return nil
}

func (f *fakeStore) SaveResearchResults(_ context.Context, id string, articles []ResearchArticle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gens[id]
	if !ok {
		return fmt.Errorf("generation %s not found", id)
	}
	if articles == nil {
		articles = []ResearchArticle{}
	}
	g.ResearchResults = articles
	g.UpdatedAt = time.Now()
	f.gens[id] = g
	return nil
}

func (f *fakeStore) MarkSucceeded(_ context.Context, id string, content Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gens[id]
	if !ok {
		return fmt.Errorf("generation %s not found", id)
	}
	if g.Status != StatusSynthesizing {
		return fmt.Errorf("%s -> %s: %w", g.Status, StatusSuccess, ErrInvalidTransition)
	}
	now := time.Now()
	g.Status = StatusSuccess
	g.Content = &content
	g.Error = ""
	g.GeneratedAt = &now
	g.UpdatedAt = now
	f.gens[id] = g
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id string, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gens[id]
	if !ok {
		return fmt.Errorf("generation %s not found", id)
	}
	if g.Status.Terminal() {
		return fmt.Errorf("%s -> %s: %w", g.Status, StatusFailed, ErrInvalidTransition)
	}
	g.Status = StatusFailed
	g.Error = msg
	g.UpdatedAt = time.Now()
	f.gens[id] = g
	return nil
}

// fakeLLM routes every structured call through fn.
type fakeLLM struct {
	mu    sync.Mutex
	calls []string
	fn    func(model, prompt string, out interface{}) error
}

func (f *fakeLLM) GenerateStructured(_ context.Context, model, prompt string, out interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, prompt)
	f.mu.Unlock()
	return f.fn(model, prompt, out)
}

func respondJSON(out interface{}, payload string) error {
	return json.Unmarshal([]byte(payload), out)
}

// fakeSearch routes every query through fn and counts calls.
type fakeSearch struct {
	mu    sync.Mutex
	calls int
	fn    func(query string, opts search.Options) ([]search.Document, error)
}

func (f *fakeSearch) Search(_ context.Context, query string, opts search.Options) ([]search.Document, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(query, opts)
}

func (f *fakeSearch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
