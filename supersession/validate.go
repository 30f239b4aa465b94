package supersession

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ValidateAllChains inspects every stored relationship and reports
// data-integrity issues: unresolved (dangling) targets, lineages longer than
// the depth cap, forked lineages, and cycles. It is an offline validation
// pass; findings degrade query results, they never abort queries.
func (t *Tracker) ValidateAllChains(ctx context.Context) ([]Issue, error) {
	rels, err := t.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing supersessions: %w", err)
	}

	// supersedes[X] = Y means X supersedes Y.
	supersedes := make(map[uuid.UUID]uuid.UUID, len(rels))
	supersededBy := make(map[uuid.UUID][]uuid.UUID, len(rels))

	var issues []Issue
	for _, rel := range rels {
		if !rel.SupersededDocumentID.Valid {
			issues = append(issues, Issue{
				Type:       IssueDanglingTarget,
				DocumentID: rel.DocumentID,
				Path:       rel.SupersededPath,
				Detail:     "superseded target has no resolved document",
			})
			continue
		}
		target := rel.SupersededDocumentID.UUID
		supersedes[rel.DocumentID] = target
		supersededBy[target] = append(supersededBy[target], rel.DocumentID)
	}

	for target, supersededers := range supersededBy {
		if len(supersededers) > 1 {
			issues = append(issues, Issue{
				Type:       IssueForkedLineage,
				DocumentID: target,
				Detail:     fmt.Sprintf("superseded by %d documents; chains must be linked lists", len(supersededers)),
			})
		}
	}

	// Walk each chain once, starting from its head (the document nobody
	// supersedes). Chains with no head are pure cycles and are swept
	// afterward from whatever members remain unvisited.
	walked := make(map[uuid.UUID]struct{}, len(supersedes))
	for _, rel := range rels {
		if !rel.SupersededDocumentID.Valid || len(supersededBy[rel.DocumentID]) > 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		head := rel.DocumentID
		visited := map[uuid.UUID]struct{}{head: {}}
		walked[head] = struct{}{}
		current := head
		depth := 0
		for {
			next, ok := supersedes[current]
			if !ok {
				break
			}
			if _, seen := visited[next]; seen {
				issues = append(issues, Issue{
					Type:       IssueCycle,
					DocumentID: head,
					Path:       rel.SupersededPath,
					Detail:     fmt.Sprintf("lineage revisits %s", next),
				})
				break
			}
			visited[next] = struct{}{}
			walked[next] = struct{}{}
			depth++
			if depth > t.maxChainDepth {
				issues = append(issues, Issue{
					Type:       IssueExcessiveDepth,
					DocumentID: head,
					Detail:     fmt.Sprintf("chain depth exceeds cap %d", t.maxChainDepth),
				})
				break
			}
			current = next
		}
	}

	// Headless components: every member both supersedes and is superseded,
	// which only happens inside a cycle. Report each such loop once.
	for _, rel := range rels {
		if !rel.SupersededDocumentID.Valid {
			continue
		}
		if _, seen := walked[rel.DocumentID]; seen {
			continue
		}
		issues = append(issues, Issue{
			Type:       IssueCycle,
			DocumentID: rel.DocumentID,
			Path:       rel.SupersededPath,
			Detail:     "lineage has no current version",
		})
		// Mark the whole loop so it is reported once.
		current := rel.DocumentID
		for {
			walked[current] = struct{}{}
			next, ok := supersedes[current]
			if !ok {
				break
			}
			if _, seen := walked[next]; seen {
				break
			}
			current = next
		}
	}

	return issues, nil
}
