// Package supersession tracks declared replacement relationships between
// document versions and derives a relevance multiplier from them.
//
// Each relationship says "document X supersedes the document at path P".
// Relationships form a singly-linked chain per lineage: a document has at
// most one outgoing supersedes edge and at most one superseded-by pointer.
// Cyclic lineages are a data-integrity defect — current-version resolution
// requires a chain — so registration fails on a detected cycle, unlike the
// link graph which merely flags cyclic content.
//
// State lives in durable storage behind the Repository interface; chain
// walks are repeated point reads, iterative and bounded, never recursive.
// A concurrent mutation mid-walk may yield a stale but self-consistent
// answer, acceptable because chain topology changes are rare.
//
// Error policy is fail open: dangling targets are stored and warned about,
// walks that exceed the depth cap are truncated with a warning, and a
// detected cycle during lookup yields a multiplier of 1.0 — content is never
// hidden because of a data bug.
package supersession

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
)

// DefaultMaxChainDepth caps chain walks when no explicit cap is configured.
const DefaultMaxChainDepth = 10

// ErrCycleDetected is returned by Register when the new relationship would
// close a supersession cycle. Nothing is stored in that case.
var ErrCycleDetected = errors.New("supersession cycle detected")

// Relationship is one persisted supersession edge: DocumentID supersedes the
// document at SupersededPath. SupersededDocumentID may be unresolved when
// the target was not indexed at registration time; it is lazily
// re-resolvable later.
type Relationship struct {
	DocumentID           uuid.UUID
	SupersededPath       string
	SupersededDocumentID uuid.NullUUID
}

// Repository is the durable store for relationships, defined by the consumer.
// Implementations return (nil, nil) from the getters when no row matches.
type Repository interface {
	// Upsert inserts or replaces the relationship keyed by DocumentID.
	Upsert(ctx context.Context, rel Relationship) error

	// GetByDocumentID returns the relationship declared by documentID.
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*Relationship, error)

	// GetBySupersededID returns the relationship whose resolved target is
	// supersededID, i.e. the document that supersedes it.
	GetBySupersededID(ctx context.Context, supersededID uuid.UUID) (*Relationship, error)

	// Delete removes the relationship declared by documentID, if any.
	Delete(ctx context.Context, documentID uuid.UUID) error

	// List returns every stored relationship, for offline validation.
	List(ctx context.Context) ([]Relationship, error)
}

// PathResolver resolves a document path to its id. Satisfied by the document
// repository; used to validate superseded targets at registration.
type PathResolver interface {
	LookupByPath(ctx context.Context, path string) (uuid.UUID, bool, error)
}

// Info describes a document's position in its supersession lineage.
type Info struct {
	DocumentID uuid.UUID

	// IsSuperseded reports whether a newer version points at this document.
	IsSuperseded bool

	// SupersededBy is the immediate newer version, if any.
	SupersededBy uuid.NullUUID

	// Supersedes is the immediate older version, if resolved.
	Supersedes uuid.NullUUID

	// SupersededPath is the path this document declares it supersedes,
	// empty when the document supersedes nothing.
	SupersededPath string

	// ChainPosition is the number of supersession hops to the current
	// version; 0 means this document is current.
	ChainPosition int

	// Multiplier is the relevance multiplier derived from ChainPosition:
	// 1.0 for the current version, 0.5^d at position d.
	Multiplier float64

	// CycleDetected is set when the lineage walk revisited a document.
	// The multiplier is forced to 1.0 so the data bug never hides content.
	CycleDetected bool
}

// Multiplier returns the relevance multiplier for a document at the given
// chain position. Position 0 (current) is 1.0; position d is 0.5^d. The
// decay is deliberately aggressive so stale guidance loses visibility fast
// while remaining findable by direct path or id lookup.
func Multiplier(position int) float64 {
	if position <= 0 {
		return 1.0
	}
	return math.Pow(0.5, float64(position))
}

// IssueType classifies problems found by ValidateAllChains.
type IssueType string

const (
	// IssueCycle marks a lineage that loops back on itself.
	IssueCycle IssueType = "cycle"

	// IssueDanglingTarget marks a relationship whose superseded target has
	// no resolved document id.
	IssueDanglingTarget IssueType = "dangling_target"

	// IssueExcessiveDepth marks a chain longer than the configured cap.
	IssueExcessiveDepth IssueType = "excessive_depth"

	// IssueForkedLineage marks a document superseded by more than one
	// other document; chains must be linked lists, not trees.
	IssueForkedLineage IssueType = "forked_lineage"
)

// Issue is one data-integrity finding from ValidateAllChains.
type Issue struct {
	Type       IssueType
	DocumentID uuid.UUID
	Path       string
	Detail     string
}
