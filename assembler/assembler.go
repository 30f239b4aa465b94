// Package assembler merges the outputs of relevance retrieval, link-graph
// expansion, and supersession tracking into one bounded, ranked,
// deduplicated context bundle.
//
// Ordering and precedence rules:
//   - critical documents come first, then direct matches by final score
//     descending, then linked documents by link depth ascending
//   - a path appearing in several buckets is kept only in the
//     highest-precedence one: critical > direct > linked
//
// The assembler accounts for context size (total characters) but never
// truncates to a size budget itself; acceptable context size depends on the
// downstream consumer, so that policy belongs to the caller via options.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loomkit/loom/knowledge"
	"github.com/loomkit/loom/linkgraph"
	"github.com/loomkit/loom/retrieval"
	"github.com/loomkit/loom/supersession"
)

// supersessionLookupConcurrency bounds the per-candidate supersession
// fan-out. Total work is already bounded by MaxResults + MaxLinkedDocs.
const supersessionLookupConcurrency = 4

// Source identifies the bucket a context document came from.
type Source string

const (
	// SourceCritical marks documents injected unconditionally by promotion.
	SourceCritical Source = "critical"

	// SourceDirect marks documents returned by relevance retrieval.
	SourceDirect Source = "direct"

	// SourceLinked marks documents discovered by link-graph traversal.
	SourceLinked Source = "linked"
)

// ContextDocument is one entry of an assembled context, carrying source
// attribution for traceability.
type ContextDocument struct {
	knowledge.RetrievedDocument

	Source Source

	// LinkedFrom and LinkDepth are set only for SourceLinked entries.
	LinkedFrom string
	LinkDepth  int

	// Supersession annotates the document's lineage position. Linked
	// documents carry the info for display but their (absent) score is
	// never multiplied.
	Supersession *supersession.Info
}

// Context is an assembled context bundle ready for a downstream generation
// step.
type Context struct {
	// Documents is ordered: critical, then direct by final score
	// descending, then linked by depth ascending.
	Documents []ContextDocument

	// TotalMatches is the direct retrieval's post-threshold count.
	TotalMatches int

	// TotalChars is the running character total across every included
	// document. Exposed for caller-side size policy; never enforced here.
	TotalChars int
}

// DocumentRetriever runs relevance retrieval. Satisfied by
// *retrieval.Retriever.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, embedding []float32, opts knowledge.RetrievalOptions) (retrieval.Result, error)
}

// LinkTraverser expands related documents. Satisfied by *linkgraph.Graph.
type LinkTraverser interface {
	Traverse(ctx context.Context, startPaths []string, maxDepth, maxCount int) ([]linkgraph.Visit, error)
}

// SupersessionLookup annotates candidates with lineage info. Satisfied by
// *supersession.Tracker.
type SupersessionLookup interface {
	GetInfo(ctx context.Context, documentID uuid.UUID) (supersession.Info, error)
}

// DocumentRepository hydrates documents by identity. Implementations scope
// every lookup to the tenant.
type DocumentRepository interface {
	// GetByPaths returns the indexed documents among paths; unknown paths
	// are silently absent from the result.
	GetByPaths(ctx context.Context, tenant knowledge.TenantID, paths []string) ([]knowledge.RetrievedDocument, error)

	// ListCritical returns every critical-promotion document.
	ListCritical(ctx context.Context, tenant knowledge.TenantID) ([]knowledge.RetrievedDocument, error)
}

// Assembler orchestrates retrieval, traversal, and supersession into
// assembled contexts. Stateless apart from its collaborators; safe for
// concurrent use.
type Assembler struct {
	retriever DocumentRetriever
	graph     LinkTraverser
	tracker   SupersessionLookup
	docs      DocumentRepository
	tenant    knowledge.TenantID
	logger    *slog.Logger
}

// New creates an Assembler for one tenant.
func New(
	retriever DocumentRetriever,
	graph LinkTraverser,
	tracker SupersessionLookup,
	docs DocumentRepository,
	tenant knowledge.TenantID,
	logger *slog.Logger,
) (*Assembler, error) {
	if retriever == nil || graph == nil || tracker == nil || docs == nil {
		return nil, fmt.Errorf("retriever, graph, tracker, and document repository are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		retriever: retriever,
		graph:     graph,
		tracker:   tracker,
		docs:      docs,
		tenant:    tenant,
		logger:    logger,
	}, nil
}

// AssembleContext builds a context bundle for the query embedding. Component
// failures abort the whole call; data-quality findings (dangling links,
// cyclic lineages) only reduce or annotate results.
func (a *Assembler) AssembleContext(ctx context.Context, embedding []float32, opts knowledge.RetrievalOptions) (*Context, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Critical fetch and direct retrieval are independent; run them
	// concurrently and join before dedup.
	var (
		critical []knowledge.RetrievedDocument
		direct   retrieval.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.IncludeCritical {
		g.Go(func() error {
			var err error
			critical, err = a.docs.ListCritical(gctx, a.tenant)
			if err != nil {
				return fmt.Errorf("critical fetch failed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		direct, err = a.retriever.Retrieve(gctx, embedding, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	linked, err := a.expandLinks(ctx, direct.Documents, opts)
	if err != nil {
		return nil, err
	}

	// Cross-bucket dedup by path, strict precedence critical > direct > linked.
	seen := make(map[string]struct{}, len(critical)+len(direct.Documents)+len(linked))

	sort.Slice(critical, func(i, j int) bool { return critical[i].Path < critical[j].Path })
	criticalKept := critical[:0]
	for _, doc := range critical {
		if _, dup := seen[doc.Path]; dup {
			continue
		}
		seen[doc.Path] = struct{}{}
		criticalKept = append(criticalKept, doc)
	}

	directKept := direct.Documents[:0]
	for _, doc := range direct.Documents {
		if _, dup := seen[doc.Path]; dup {
			continue
		}
		seen[doc.Path] = struct{}{}
		directKept = append(directKept, doc)
	}

	linkedKept := linked[:0]
	for _, doc := range linked {
		if _, dup := seen[doc.Path]; dup {
			continue
		}
		seen[doc.Path] = struct{}{}
		linkedKept = append(linkedKept, doc)
	}

	out := &Context{TotalMatches: direct.TotalMatches}
	for _, doc := range criticalKept {
		out.Documents = append(out.Documents, ContextDocument{RetrievedDocument: doc, Source: SourceCritical})
	}
	directStart := len(out.Documents)
	for _, doc := range directKept {
		out.Documents = append(out.Documents, ContextDocument{RetrievedDocument: doc, Source: SourceDirect})
	}
	for _, doc := range linkedKept {
		out.Documents = append(out.Documents, ContextDocument{
			RetrievedDocument: doc.RetrievedDocument,
			Source:            SourceLinked,
			LinkedFrom:        doc.LinkedFrom,
			LinkDepth:         doc.LinkDepth,
		})
	}

	if err := a.annotateSupersession(ctx, out.Documents); err != nil {
		return nil, err
	}

	// The multiplier can reorder direct matches; linked documents stay in
	// depth order because they carry no score to multiply.
	directEnd := directStart + len(directKept)
	directSlice := out.Documents[directStart:directEnd]
	sort.SliceStable(directSlice, func(i, j int) bool {
		return directSlice[i].BoostedScore > directSlice[j].BoostedScore
	})

	for _, doc := range out.Documents {
		out.TotalChars += doc.CharCount
	}

	a.logger.Debug("context assembled",
		"critical", len(criticalKept), "direct", len(directKept),
		"linked", len(linkedKept), "total_chars", out.TotalChars)

	return out, nil
}

// expandLinks traverses the link graph from the direct matches and hydrates
// the discovered paths into linked documents. Paths that are dangling graph
// vertices hydrate to nothing and are dropped with a debug note.
func (a *Assembler) expandLinks(ctx context.Context, direct []knowledge.RetrievedDocument, opts knowledge.RetrievalOptions) ([]knowledge.LinkedDocument, error) {
	if opts.MaxLinkDepth == 0 || opts.MaxLinkedDocs == 0 || len(direct) == 0 {
		return nil, nil
	}

	startPaths := make([]string, len(direct))
	for i, doc := range direct {
		startPaths[i] = doc.Path
	}

	visits, err := a.graph.Traverse(ctx, startPaths, opts.MaxLinkDepth, opts.MaxLinkedDocs)
	if err != nil {
		return nil, fmt.Errorf("link traversal failed: %w", err)
	}
	if len(visits) == 0 {
		return nil, nil
	}

	paths := make([]string, len(visits))
	for i, v := range visits {
		paths[i] = v.Path
	}
	hydrated, err := a.docs.GetByPaths(ctx, a.tenant, paths)
	if err != nil {
		return nil, fmt.Errorf("hydrating linked documents failed: %w", err)
	}
	byPath := make(map[string]knowledge.RetrievedDocument, len(hydrated))
	for _, doc := range hydrated {
		byPath[doc.Path] = doc
	}

	linked := make([]knowledge.LinkedDocument, 0, len(visits))
	for _, v := range visits {
		doc, ok := byPath[v.Path]
		if !ok {
			a.logger.Debug("linked path not indexed, skipping",
				"path", v.Path, "linked_from", v.LinkedFrom)
			continue
		}
		linked = append(linked, knowledge.LinkedDocument{
			RetrievedDocument: doc,
			LinkedFrom:        v.LinkedFrom,
			LinkDepth:         v.Depth,
		})
	}
	return linked, nil
}

// annotateSupersession attaches lineage info to every candidate and
// multiplies the scores of critical and direct documents. Linked documents
// carry the info but have no score to multiply. Lookups fan out with bounded
// concurrency; cancellation propagates through the group context.
func (a *Assembler) annotateSupersession(ctx context.Context, docs []ContextDocument) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(supersessionLookupConcurrency)

	for i := range docs {
		if docs[i].ID == uuid.Nil {
			continue
		}
		g.Go(func() error {
			info, err := a.tracker.GetInfo(gctx, docs[i].ID)
			if err != nil {
				return fmt.Errorf("supersession lookup for %s failed: %w", docs[i].Path, err)
			}
			docs[i].Supersession = &info
			if docs[i].Source != SourceLinked {
				docs[i].BoostedScore *= float32(info.Multiplier)
			}
			return nil
		})
	}
	return g.Wait()
}
