package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// RetrievedDocument is a document returned by relevance retrieval. Identity
// is the relative path, stable and unique per tenant. Values are created by
// the retriever, treated as immutable afterward, and copied by value (never
// shared by reference) into downstream buckets.
type RetrievedDocument struct {
	ID        uuid.UUID
	Path      string
	Title     string
	Summary   string // optional
	Content   string
	CharCount int
	DocType   string
	Promotion PromotionLevel

	// Score is the raw similarity score from the vector store.
	Score float32

	// BoostedScore is Score plus the promotion boost, capped at 1.0.
	// Equal to Score when boosting is disabled.
	BoostedScore float32

	// UpdatedAt is the document's last modification date, zero if unknown.
	UpdatedAt time.Time
}

// LinkedDocument is a document discovered through link-graph traversal rather
// than direct retrieval. It carries no raw similarity score.
type LinkedDocument struct {
	RetrievedDocument

	// LinkedFrom is the path of the referring document.
	LinkedFrom string

	// LinkDepth is the number of reference hops from a directly retrieved
	// document, always >= 1.
	LinkDepth int
}

// TenantID scopes retrieval to a single corpus activation.
type TenantID struct {
	Project  string
	Branch   string
	PathHash string
}

// SearchFilter narrows a vector-store search. Zero-value fields are
// unconstrained except Tenant, which storage backends always apply.
type SearchFilter struct {
	Tenant       TenantID
	MinPromotion PromotionLevel

	// DocTypes is an allow-list; nil or empty means all types.
	DocTypes []string
}
