// Package retrieval implements relevance-filtered vector retrieval with
// promotion-aware score boosting.
//
// The retriever is fully stateless: it issues one vector-store call per
// invocation, so concurrent calls are independent. Vector-store
// unavailability surfaces as an error, never as an empty result — an empty
// context must not be confused with "no relevant knowledge found".
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/loomkit/loom/knowledge"
)

// overfetchFactor widens the vector-store query so that threshold filtering
// and boost-driven re-ranking still leave MaxResults candidates.
const overfetchFactor = 2

// Match is one raw vector-store hit before filtering and boosting.
type Match struct {
	Document knowledge.RetrievedDocument
	Score    float32
}

// VectorSearcher is the vector-store boundary, defined by the consumer.
// Implementations apply the tenant, promotion-floor, and doc-type filters
// and return candidates ordered by raw similarity.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, topN int, filter knowledge.SearchFilter) ([]Match, error)
}

// Boosts holds the additive per-promotion score boosts. Named configuration,
// not literals, so ranking can be retuned without code changes.
type Boosts struct {
	Critical  float32
	Important float32
	Standard  float32
}

// DefaultBoosts returns the standard boost configuration.
func DefaultBoosts() Boosts {
	return Boosts{Critical: 0.15, Important: 0.10, Standard: 0}
}

// For returns the boost for a promotion level. Unknown levels get the
// standard boost.
func (b Boosts) For(level knowledge.PromotionLevel) float32 {
	switch level {
	case knowledge.PromotionCritical:
		return b.Critical
	case knowledge.PromotionImportant:
		return b.Important
	default:
		return b.Standard
	}
}

// Result is the outcome of one retrieval call.
type Result struct {
	// Documents is the ranked, truncated result set.
	Documents []knowledge.RetrievedDocument

	// TotalMatches is the post-threshold, pre-truncation candidate count.
	TotalMatches int
}

// Retriever performs relevance retrieval for one tenant. Safe for concurrent
// use; it holds no mutable state.
type Retriever struct {
	searcher VectorSearcher
	tenant   knowledge.TenantID
	boosts   Boosts
	logger   *slog.Logger
}

// New creates a Retriever scoped to tenant.
func New(searcher VectorSearcher, tenant knowledge.TenantID, boosts Boosts, logger *slog.Logger) (*Retriever, error) {
	if searcher == nil {
		return nil, fmt.Errorf("vector searcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		searcher: searcher,
		tenant:   tenant,
		boosts:   boosts,
		logger:   logger,
	}, nil
}

// Retrieve runs one relevance query: over-fetch from the vector store,
// filter by the relevance threshold, boost by promotion level when enabled,
// re-sort, and truncate to MaxResults.
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, opts knowledge.RetrievalOptions) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if len(embedding) == 0 {
		return Result{}, fmt.Errorf("query embedding is empty")
	}

	filter := knowledge.SearchFilter{
		Tenant:       r.tenant,
		MinPromotion: opts.MinPromotionLevel,
		DocTypes:     opts.DocTypes,
	}
	matches, err := r.searcher.Search(ctx, embedding, opts.MaxResults*overfetchFactor, filter)
	if err != nil {
		return Result{}, fmt.Errorf("vector search failed: %w", err)
	}

	docs := make([]knowledge.RetrievedDocument, 0, len(matches))
	for _, m := range matches {
		if m.Score < opts.MinRelevanceScore {
			continue
		}
		doc := m.Document
		doc.Score = m.Score
		if !doc.Promotion.Valid() {
			// A malformed promotion tag on a stored document degrades to
			// standard; it never aborts the query.
			r.logger.Warn("malformed promotion level on stored document",
				"path", doc.Path, "promotion", string(doc.Promotion))
			doc.Promotion = knowledge.PromotionStandard
		}
		doc.BoostedScore = m.Score
		if opts.ApplyRelevanceBoosting {
			doc.BoostedScore = boostScore(m.Score, r.boosts.For(doc.Promotion))
		}
		if doc.CharCount == 0 && doc.Content != "" {
			doc.CharCount = utf8.RuneCountInString(doc.Content)
		}
		docs = append(docs, doc)
	}

	totalMatches := len(docs)

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].BoostedScore > docs[j].BoostedScore
	})
	if len(docs) > opts.MaxResults {
		docs = docs[:opts.MaxResults]
	}

	r.logger.Debug("relevance retrieval complete",
		"candidates", len(matches), "matches", totalMatches, "returned", len(docs))

	return Result{Documents: docs, TotalMatches: totalMatches}, nil
}

// boostScore applies an additive boost capped at 1.0.
func boostScore(raw, boost float32) float32 {
	boosted := raw + boost
	if boosted > 1.0 {
		return 1.0
	}
	return boosted
}
