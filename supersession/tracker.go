package supersession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Tracker maintains supersession chains on top of a Repository. Safe for
// concurrent use; all state lives in the repository.
type Tracker struct {
	repo          Repository
	docs          PathResolver
	maxChainDepth int
	logger        *slog.Logger
}

// NewTracker creates a Tracker. maxChainDepth <= 0 selects
// DefaultMaxChainDepth.
func NewTracker(repo Repository, docs PathResolver, maxChainDepth int, logger *slog.Logger) (*Tracker, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if docs == nil {
		return nil, fmt.Errorf("path resolver is required")
	}
	if maxChainDepth <= 0 {
		maxChainDepth = DefaultMaxChainDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		repo:          repo,
		docs:          docs,
		maxChainDepth: maxChainDepth,
		logger:        logger,
	}, nil
}

// RegisterResult reports the outcome of a successful registration.
type RegisterResult struct {
	// ChainDepth is the number of superseded documents below the new one,
	// truncated at the configured cap.
	ChainDepth int

	// Warning is a non-fatal data-quality note, empty when clean.
	Warning string
}

// Register stores "documentID supersedes the document at supersededPath".
//
// The superseded target is resolved through the path resolver; a missing
// target is stored unresolved with a warning so it can be re-resolved once
// indexed. A relationship that would close a lineage cycle fails with
// ErrCycleDetected and stores nothing.
func (t *Tracker) Register(ctx context.Context, documentID uuid.UUID, supersededPath string) (RegisterResult, error) {
	if documentID == uuid.Nil {
		return RegisterResult{}, fmt.Errorf("document id is required")
	}
	if supersededPath == "" {
		return RegisterResult{}, fmt.Errorf("superseded path is required")
	}

	targetID, found, err := t.docs.LookupByPath(ctx, supersededPath)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("resolving superseded path %q: %w", supersededPath, err)
	}

	var result RegisterResult
	rel := Relationship{
		DocumentID:     documentID,
		SupersededPath: supersededPath,
	}

	if !found {
		result.Warning = fmt.Sprintf("superseded target %q not indexed yet; stored unresolved", supersededPath)
		t.logger.Warn("dangling supersession target",
			"document_id", documentID, "superseded_path", supersededPath)
		result.ChainDepth = 1
		if err := t.repo.Upsert(ctx, rel); err != nil {
			return RegisterResult{}, fmt.Errorf("storing supersession: %w", err)
		}
		return result, nil
	}

	// Cycle pre-check: walk from the superseded target down its existing
	// supersedes chain; reaching the new document would close a cycle.
	onChain, err := t.chainContains(ctx, targetID, documentID)
	if err != nil {
		return RegisterResult{}, err
	}
	if targetID == documentID || onChain {
		t.logger.Warn("supersession registration rejected",
			"document_id", documentID, "superseded_path", supersededPath,
			"reason", "cycle")
		return RegisterResult{}, fmt.Errorf("%w: %s would supersede its own lineage", ErrCycleDetected, documentID)
	}

	rel.SupersededDocumentID = uuid.NullUUID{UUID: targetID, Valid: true}

	depth, truncated, err := t.depthBelow(ctx, targetID)
	if err != nil {
		return RegisterResult{}, err
	}
	result.ChainDepth = depth + 1
	if truncated {
		result.ChainDepth = t.maxChainDepth
		result.Warning = fmt.Sprintf("chain depth exceeds cap %d; reported depth truncated", t.maxChainDepth)
		t.logger.Warn("supersession chain exceeds depth cap",
			"document_id", documentID, "max_depth", t.maxChainDepth)
	}

	if err := t.repo.Upsert(ctx, rel); err != nil {
		return RegisterResult{}, fmt.Errorf("storing supersession: %w", err)
	}
	return result, nil
}

// chainContains walks the supersedes chain starting at from and reports
// whether goal appears on it. Bounded by the depth cap and a visited set.
func (t *Tracker) chainContains(ctx context.Context, from, goal uuid.UUID) (bool, error) {
	visited := map[uuid.UUID]struct{}{from: {}}
	current := from
	for i := 0; i < t.maxChainDepth; i++ {
		rel, err := t.repo.GetByDocumentID(ctx, current)
		if err != nil {
			return false, fmt.Errorf("walking supersession chain: %w", err)
		}
		if rel == nil || !rel.SupersededDocumentID.Valid {
			return false, nil
		}
		next := rel.SupersededDocumentID.UUID
		if next == goal {
			return true, nil
		}
		if _, seen := visited[next]; seen {
			// Pre-existing cycle in stored data; stop the walk.
			t.logger.Warn("existing cycle found during chain walk", "document_id", next)
			return false, nil
		}
		visited[next] = struct{}{}
		current = next
	}
	return false, nil
}

// depthBelow counts the supersedes hops below id. The second return value
// reports truncation at the depth cap.
func (t *Tracker) depthBelow(ctx context.Context, id uuid.UUID) (int, bool, error) {
	visited := map[uuid.UUID]struct{}{id: {}}
	depth := 0
	current := id
	for {
		if depth >= t.maxChainDepth {
			return depth, true, nil
		}
		rel, err := t.repo.GetByDocumentID(ctx, current)
		if err != nil {
			return 0, false, fmt.Errorf("walking supersession chain: %w", err)
		}
		if rel == nil || !rel.SupersededDocumentID.Valid {
			return depth, false, nil
		}
		next := rel.SupersededDocumentID.UUID
		if _, seen := visited[next]; seen {
			return depth, false, nil
		}
		visited[next] = struct{}{}
		depth++
		current = next
	}
}

// GetInfo returns documentID's position in its lineage. Data-integrity
// problems (cycles, excessive depth) degrade to warnings, never errors;
// only repository failures propagate.
func (t *Tracker) GetInfo(ctx context.Context, documentID uuid.UUID) (Info, error) {
	info := Info{DocumentID: documentID, Multiplier: 1.0}

	if rel, err := t.repo.GetByDocumentID(ctx, documentID); err != nil {
		return Info{}, fmt.Errorf("loading supersession: %w", err)
	} else if rel != nil {
		info.SupersededPath = rel.SupersededPath
		info.Supersedes = rel.SupersededDocumentID
	}

	position := 0
	visited := map[uuid.UUID]struct{}{documentID: {}}
	current := documentID
	for {
		if err := ctx.Err(); err != nil {
			return Info{}, err
		}
		succ, err := t.repo.GetBySupersededID(ctx, current)
		if err != nil {
			return Info{}, fmt.Errorf("loading superseding document: %w", err)
		}
		if succ == nil {
			break
		}
		if position == 0 {
			info.IsSuperseded = true
			info.SupersededBy = uuid.NullUUID{UUID: succ.DocumentID, Valid: true}
		}
		if _, seen := visited[succ.DocumentID]; seen {
			t.logger.Warn("supersession cycle during lookup",
				"document_id", documentID, "revisited", succ.DocumentID)
			info.CycleDetected = true
			info.Multiplier = 1.0
			return info, nil
		}
		visited[succ.DocumentID] = struct{}{}
		position++
		if position >= t.maxChainDepth {
			t.logger.Warn("supersession chain exceeds depth cap during lookup",
				"document_id", documentID, "max_depth", t.maxChainDepth)
			break
		}
		current = succ.DocumentID
	}

	info.ChainPosition = position
	info.Multiplier = Multiplier(position)
	return info, nil
}

// GetChain returns the full lineage containing documentID ordered oldest to
// newest. Both walk directions are bounded by the depth cap and a visited
// set, so a corrupt cyclic lineage yields a truncated chain, not an error.
func (t *Tracker) GetChain(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	// Walk down to the oldest version.
	var older []uuid.UUID
	visited := map[uuid.UUID]struct{}{documentID: {}}
	current := documentID
	for len(older) < t.maxChainDepth {
		rel, err := t.repo.GetByDocumentID(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("walking supersession chain: %w", err)
		}
		if rel == nil || !rel.SupersededDocumentID.Valid {
			break
		}
		next := rel.SupersededDocumentID.UUID
		if _, seen := visited[next]; seen {
			t.logger.Warn("supersession cycle during chain walk", "document_id", next)
			break
		}
		visited[next] = struct{}{}
		older = append(older, next)
		current = next
	}

	// Reverse into oldest-first order.
	chain := make([]uuid.UUID, 0, len(older)+1)
	for i := len(older) - 1; i >= 0; i-- {
		chain = append(chain, older[i])
	}
	chain = append(chain, documentID)

	// Walk up to the newest version.
	current = documentID
	for i := 0; i < t.maxChainDepth; i++ {
		succ, err := t.repo.GetBySupersededID(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("walking supersession chain: %w", err)
		}
		if succ == nil {
			break
		}
		if _, seen := visited[succ.DocumentID]; seen {
			t.logger.Warn("supersession cycle during chain walk", "document_id", succ.DocumentID)
			break
		}
		visited[succ.DocumentID] = struct{}{}
		chain = append(chain, succ.DocumentID)
		current = succ.DocumentID
	}

	return chain, nil
}

// GetCurrentVersion resolves the current (latest) version of documentID's
// lineage by iteratively following superseded-by pointers. On a revisit or
// when the depth cap is exceeded it returns the last safely reached document
// with a logged warning rather than erroring.
func (t *Tracker) GetCurrentVersion(ctx context.Context, documentID uuid.UUID) (uuid.UUID, error) {
	visited := map[uuid.UUID]struct{}{documentID: {}}
	current := documentID
	for i := 0; i < t.maxChainDepth; i++ {
		if err := ctx.Err(); err != nil {
			return uuid.Nil, err
		}
		succ, err := t.repo.GetBySupersededID(ctx, current)
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolving current version: %w", err)
		}
		if succ == nil {
			return current, nil
		}
		if _, seen := visited[succ.DocumentID]; seen {
			t.logger.Warn("supersession cycle while resolving current version",
				"document_id", documentID, "revisited", succ.DocumentID)
			return current, nil
		}
		visited[succ.DocumentID] = struct{}{}
		current = succ.DocumentID
	}
	t.logger.Warn("current version resolution exceeded depth cap",
		"document_id", documentID, "max_depth", t.maxChainDepth)
	return current, nil
}

// RemoveResult reports the outcome of RemoveFromChain.
type RemoveResult struct {
	// ChainReconnected is true when the removed document's predecessor and
	// successor were spliced directly together.
	ChainReconnected bool
}

// RemoveFromChain removes documentID from its lineage. Removing a
// middle-of-chain document splices its successor directly to its
// predecessor; removing the current document promotes its predecessor to
// current implicitly (nothing points at it anymore).
func (t *Tracker) RemoveFromChain(ctx context.Context, documentID uuid.UUID) (RemoveResult, error) {
	rel, err := t.repo.GetByDocumentID(ctx, documentID)
	if err != nil {
		return RemoveResult{}, fmt.Errorf("loading supersession: %w", err)
	}
	succ, err := t.repo.GetBySupersededID(ctx, documentID)
	if err != nil {
		return RemoveResult{}, fmt.Errorf("loading superseding document: %w", err)
	}

	if rel != nil {
		if err := t.repo.Delete(ctx, documentID); err != nil {
			return RemoveResult{}, fmt.Errorf("deleting supersession: %w", err)
		}
	}

	if succ == nil {
		return RemoveResult{}, nil
	}

	if rel != nil {
		// Middle of the chain: splice successor to predecessor.
		succ.SupersededPath = rel.SupersededPath
		succ.SupersededDocumentID = rel.SupersededDocumentID
		if err := t.repo.Upsert(ctx, *succ); err != nil {
			return RemoveResult{}, fmt.Errorf("splicing supersession chain: %w", err)
		}
		return RemoveResult{ChainReconnected: true}, nil
	}

	// Oldest document removed: the successor's target is gone for good.
	succ.SupersededDocumentID = uuid.NullUUID{}
	if err := t.repo.Upsert(ctx, *succ); err != nil {
		return RemoveResult{}, fmt.Errorf("unlinking supersession target: %w", err)
	}
	t.logger.Warn("supersession target removed from corpus",
		"document_id", succ.DocumentID, "superseded_path", succ.SupersededPath)
	return RemoveResult{}, nil
}

// OnDocumentIndexed is the indexer hook for document create/update. An empty
// declaredSupersededPath withdraws any previously declared supersession. A
// rejected cyclic registration is logged and swallowed — a content defect
// must not abort indexing — while repository failures propagate.
func (t *Tracker) OnDocumentIndexed(ctx context.Context, documentID uuid.UUID, declaredSupersededPath string) error {
	if declaredSupersededPath == "" {
		if err := t.repo.Delete(ctx, documentID); err != nil {
			return fmt.Errorf("withdrawing supersession: %w", err)
		}
		return nil
	}
	if _, err := t.Register(ctx, documentID, declaredSupersededPath); err != nil {
		if errors.Is(err, ErrCycleDetected) {
			t.logger.Warn("ignoring cyclic supersession declaration",
				"document_id", documentID, "superseded_path", declaredSupersededPath)
			return nil
		}
		return err
	}
	return nil
}

// OnDocumentDeleted is the indexer hook for document deletion.
func (t *Tracker) OnDocumentDeleted(ctx context.Context, documentID uuid.UUID) error {
	_, err := t.RemoveFromChain(ctx, documentID)
	return err
}

// ResolveDangling re-resolves relationships whose superseded target had not
// been indexed at registration time. Background reconciliation only; never
// called on the query hot path. Returns the number of newly resolved
// relationships.
func (t *Tracker) ResolveDangling(ctx context.Context) (int, error) {
	rels, err := t.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing supersessions: %w", err)
	}

	resolved := 0
	for _, rel := range rels {
		if rel.SupersededDocumentID.Valid {
			continue
		}
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		targetID, found, err := t.docs.LookupByPath(ctx, rel.SupersededPath)
		if err != nil {
			return resolved, fmt.Errorf("resolving %q: %w", rel.SupersededPath, err)
		}
		if !found {
			continue
		}
		onChain, err := t.chainContains(ctx, targetID, rel.DocumentID)
		if err != nil {
			return resolved, err
		}
		if targetID == rel.DocumentID || onChain {
			t.logger.Warn("skipping dangling resolution that would close a cycle",
				"document_id", rel.DocumentID, "superseded_path", rel.SupersededPath)
			continue
		}
		rel.SupersededDocumentID = uuid.NullUUID{UUID: targetID, Valid: true}
		if err := t.repo.Upsert(ctx, rel); err != nil {
			return resolved, fmt.Errorf("updating supersession: %w", err)
		}
		resolved++
	}
	return resolved, nil
}
