package knowledge

import (
	"errors"
	"fmt"
)

// Sentinel errors for option validation, checked with errors.Is.
var (
	// ErrInvalidMinRelevanceScore indicates min_relevance_score is outside [0, 1].
	ErrInvalidMinRelevanceScore = errors.New("invalid min relevance score")

	// ErrInvalidMaxResults indicates max_results is below 1.
	ErrInvalidMaxResults = errors.New("invalid max results")

	// ErrInvalidMaxLinkedDocs indicates max_linked_docs is negative.
	ErrInvalidMaxLinkedDocs = errors.New("invalid max linked docs")

	// ErrInvalidMaxLinkDepth indicates max_link_depth is negative.
	ErrInvalidMaxLinkDepth = errors.New("invalid max link depth")

	// ErrInvalidPromotionLevel indicates an unknown promotion level.
	ErrInvalidPromotionLevel = errors.New("invalid promotion level")
)

// RetrievalOptions controls a single retrieval or assembly call. Options
// arrive already precedence-resolved from an external configuration layer
// and are immutable for the duration of the call.
type RetrievalOptions struct {
	// MinRelevanceScore is the raw-score threshold in [0, 1]. Documents
	// strictly below it never appear in direct results.
	MinRelevanceScore float32

	// MaxResults caps direct results, >= 1.
	MaxResults int

	// MaxLinkedDocs caps documents emitted by link traversal, >= 0.
	MaxLinkedDocs int

	// MaxLinkDepth caps link traversal depth, >= 0.
	MaxLinkDepth int

	// IncludeCritical enables unconditional critical-document injection,
	// bypassing the relevance threshold entirely.
	IncludeCritical bool

	// MinPromotionLevel is the promotion floor applied at the vector store.
	MinPromotionLevel PromotionLevel

	// DocTypes is an optional allow-list; nil means all types.
	DocTypes []string

	// ApplyRelevanceBoosting enables promotion-based additive score boosting.
	ApplyRelevanceBoosting bool
}

// IsZero reports whether no option has been set. Callers holding configured
// defaults substitute them for zero-value options.
func (o RetrievalOptions) IsZero() bool {
	return o.MinRelevanceScore == 0 &&
		o.MaxResults == 0 &&
		o.MaxLinkedDocs == 0 &&
		o.MaxLinkDepth == 0 &&
		!o.IncludeCritical &&
		o.MinPromotionLevel == "" &&
		len(o.DocTypes) == 0 &&
		!o.ApplyRelevanceBoosting
}

// Validate rejects out-of-range option values before any retrieval work
// begins. Configuration errors never reach the retrieval hot path.
func (o RetrievalOptions) Validate() error {
	if o.MinRelevanceScore < 0 || o.MinRelevanceScore > 1 {
		return fmt.Errorf("%w: %v not in [0, 1]", ErrInvalidMinRelevanceScore, o.MinRelevanceScore)
	}
	if o.MaxResults < 1 {
		return fmt.Errorf("%w: %d < 1", ErrInvalidMaxResults, o.MaxResults)
	}
	if o.MaxLinkedDocs < 0 {
		return fmt.Errorf("%w: %d < 0", ErrInvalidMaxLinkedDocs, o.MaxLinkedDocs)
	}
	if o.MaxLinkDepth < 0 {
		return fmt.Errorf("%w: %d < 0", ErrInvalidMaxLinkDepth, o.MaxLinkDepth)
	}
	if o.MinPromotionLevel != "" && !o.MinPromotionLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPromotionLevel, o.MinPromotionLevel)
	}
	return nil
}
