package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/loomkit/loom/internal/log"
	"github.com/loomkit/loom/knowledge"
)

// mockSearcher implements VectorSearcher for testing.
type mockSearcher struct {
	matches    []Match
	err        error
	lastTopN   int
	lastFilter knowledge.SearchFilter
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, topN int, filter knowledge.SearchFilter) ([]Match, error) {
	m.lastTopN = topN
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	if len(m.matches) > topN {
		return m.matches[:topN], nil
	}
	return m.matches, nil
}

func match(path string, score float32, promotion knowledge.PromotionLevel) Match {
	return Match{
		Document: knowledge.RetrievedDocument{
			Path:      path,
			Title:     path,
			Content:   "content of " + path,
			Promotion: promotion,
		},
		Score: score,
	}
}

func defaultOpts() knowledge.RetrievalOptions {
	return knowledge.RetrievalOptions{
		MinRelevanceScore:      0.7,
		MaxResults:             5,
		ApplyRelevanceBoosting: true,
	}
}

func newRetriever(t *testing.T, searcher VectorSearcher) *Retriever {
	t.Helper()
	r, err := New(searcher, knowledge.TenantID{Project: "p", Branch: "main"}, DefaultBoosts(), log.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

var embedding = []float32{0.1, 0.2, 0.3}

func TestRetrieve_ThresholdFiltering(t *testing.T) {
	searcher := &mockSearcher{matches: []Match{
		match("high.md", 0.9, knowledge.PromotionStandard),
		match("edge.md", 0.7, knowledge.PromotionStandard),
		match("low.md", 0.69, knowledge.PromotionStandard),
	}}
	r := newRetriever(t, searcher)

	result, err := r.Retrieve(context.Background(), embedding, defaultOpts())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	for _, doc := range result.Documents {
		if doc.Score < 0.7 {
			t.Errorf("document %s below threshold (%v) in results", doc.Path, doc.Score)
		}
	}
	if result.TotalMatches != 2 {
		t.Errorf("TotalMatches = %d, want 2 (post-threshold, pre-truncation)", result.TotalMatches)
	}
}

func TestRetrieve_BoostFormula(t *testing.T) {
	tests := []struct {
		name      string
		raw       float32
		promotion knowledge.PromotionLevel
		want      float32
	}{
		{"critical boost", 0.70, knowledge.PromotionCritical, 0.85},
		{"important boost", 0.70, knowledge.PromotionImportant, 0.80},
		{"standard no boost", 0.70, knowledge.PromotionStandard, 0.70},
		{"capped at 1.0", 0.95, knowledge.PromotionCritical, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &mockSearcher{matches: []Match{match("doc.md", tt.raw, tt.promotion)}}
			r := newRetriever(t, searcher)

			result, err := r.Retrieve(context.Background(), embedding, defaultOpts())
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			if len(result.Documents) != 1 {
				t.Fatalf("got %d documents, want 1", len(result.Documents))
			}
			if got := result.Documents[0].BoostedScore; got != tt.want {
				t.Errorf("BoostedScore = %v, want %v", got, tt.want)
			}
			if got := result.Documents[0].Score; got != tt.raw {
				t.Errorf("raw Score = %v, want %v (must stay unmodified)", got, tt.raw)
			}
		})
	}
}

func TestRetrieve_BoostingDisabled(t *testing.T) {
	searcher := &mockSearcher{matches: []Match{match("doc.md", 0.8, knowledge.PromotionCritical)}}
	r := newRetriever(t, searcher)

	opts := defaultOpts()
	opts.ApplyRelevanceBoosting = false

	result, err := r.Retrieve(context.Background(), embedding, opts)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got := result.Documents[0].BoostedScore; got != 0.8 {
		t.Errorf("BoostedScore = %v, want raw 0.8 with boosting disabled", got)
	}
}

func TestRetrieve_BoostReordersResults(t *testing.T) {
	// A critical document overtakes a slightly higher-scoring standard one.
	searcher := &mockSearcher{matches: []Match{
		match("standard.md", 0.80, knowledge.PromotionStandard),
		match("critical.md", 0.75, knowledge.PromotionCritical),
	}}
	r := newRetriever(t, searcher)

	result, err := r.Retrieve(context.Background(), embedding, defaultOpts())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Documents[0].Path != "critical.md" {
		t.Errorf("first result = %s, want critical.md (0.75+0.15 > 0.80)", result.Documents[0].Path)
	}
}

func TestRetrieve_TruncatesToMaxResults(t *testing.T) {
	searcher := &mockSearcher{matches: []Match{
		match("a.md", 0.95, knowledge.PromotionStandard),
		match("b.md", 0.90, knowledge.PromotionStandard),
		match("c.md", 0.85, knowledge.PromotionStandard),
	}}
	r := newRetriever(t, searcher)

	opts := defaultOpts()
	opts.MaxResults = 2

	result, err := r.Retrieve(context.Background(), embedding, opts)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Documents) != 2 {
		t.Errorf("len(Documents) = %d, want 2", len(result.Documents))
	}
	if result.TotalMatches != 3 {
		t.Errorf("TotalMatches = %d, want 3", result.TotalMatches)
	}
	if searcher.lastTopN != 4 {
		t.Errorf("vector store topN = %d, want 4 (2x over-fetch)", searcher.lastTopN)
	}
}

func TestRetrieve_MalformedPromotionDefaultsToStandard(t *testing.T) {
	searcher := &mockSearcher{matches: []Match{
		match("doc.md", 0.9, knowledge.PromotionLevel("urgent")),
	}}
	r := newRetriever(t, searcher)

	result, err := r.Retrieve(context.Background(), embedding, defaultOpts())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	doc := result.Documents[0]
	if doc.Promotion != knowledge.PromotionStandard {
		t.Errorf("Promotion = %q, want standard fallback", doc.Promotion)
	}
	if doc.BoostedScore != 0.9 {
		t.Errorf("BoostedScore = %v, want 0.9 (standard boost)", doc.BoostedScore)
	}
}

func TestRetrieve_SearcherFailureSurfaces(t *testing.T) {
	wantErr := errors.New("vector store unreachable")
	r := newRetriever(t, &mockSearcher{err: wantErr})

	_, err := r.Retrieve(context.Background(), embedding, defaultOpts())
	if !errors.Is(err, wantErr) {
		t.Errorf("Retrieve() error = %v, want wrapped searcher error", err)
	}
}

func TestRetrieve_InvalidOptionsRejected(t *testing.T) {
	r := newRetriever(t, &mockSearcher{})

	opts := defaultOpts()
	opts.MaxResults = 0

	if _, err := r.Retrieve(context.Background(), embedding, opts); !errors.Is(err, knowledge.ErrInvalidMaxResults) {
		t.Errorf("Retrieve() error = %v, want ErrInvalidMaxResults", err)
	}
}

func TestRetrieve_FilterPassedThrough(t *testing.T) {
	searcher := &mockSearcher{}
	r := newRetriever(t, searcher)

	opts := defaultOpts()
	opts.MinPromotionLevel = knowledge.PromotionImportant
	opts.DocTypes = []string{"guide"}

	if _, err := r.Retrieve(context.Background(), embedding, opts); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if searcher.lastFilter.MinPromotion != knowledge.PromotionImportant {
		t.Errorf("filter promotion floor = %q, want important", searcher.lastFilter.MinPromotion)
	}
	if len(searcher.lastFilter.DocTypes) != 1 || searcher.lastFilter.DocTypes[0] != "guide" {
		t.Errorf("filter doc types = %v, want [guide]", searcher.lastFilter.DocTypes)
	}
	if searcher.lastFilter.Tenant.Project != "p" {
		t.Errorf("filter tenant project = %q, want p", searcher.lastFilter.Tenant.Project)
	}
}
