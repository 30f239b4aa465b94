// Package linkgraph maintains an in-memory directed graph of document links
// for bounded "related document" expansion.
//
// Vertices are relative document paths; edges are (source, target) pairs kept
// in dual adjacency indexes (outgoing and incoming) so "who references me"
// is as cheap as "who do I reference". Dangling vertices — link targets not
// yet indexed — are legal and never an error.
//
// The whole structure is guarded by a single reader/writer lock: traversal
// and cycle pre-checks run concurrently under the read lock, mutation takes
// the write lock, and edge replacement completes as one critical section so
// no reader ever observes a half-updated edge set. Corpus sizes are thousands
// of documents, not millions, so one lock over plain maps is sufficient.
//
// Cyclic link structure is legal document content. Cycle pre-checks flag and
// log it; traversal correctness never depends on acyclicity.
package linkgraph

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Visit is one document emitted by Traverse.
type Visit struct {
	// Path is the visited document's relative path.
	Path string

	// Depth is the link depth at first discovery, >= 1.
	Depth int

	// LinkedFrom is the path of the referring document.
	LinkedFrom string
}

// Graph is the in-memory document link graph. Safe for concurrent use by
// multiple goroutines.
type Graph struct {
	mu  sync.RWMutex
	out map[string]map[string]struct{}
	in  map[string]map[string]struct{}

	logger *slog.Logger
}

// New creates an empty Graph.
func New(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		out:    make(map[string]map[string]struct{}),
		in:     make(map[string]map[string]struct{}),
		logger: logger,
	}
}

// AddVertex adds a vertex for path. Adding an existing vertex is a no-op.
func (g *Graph) AddVertex(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addVertexLocked(path)
}

func (g *Graph) addVertexLocked(path string) {
	if _, ok := g.out[path]; !ok {
		g.out[path] = make(map[string]struct{})
	}
	if _, ok := g.in[path]; !ok {
		g.in[path] = make(map[string]struct{})
	}
}

// RemoveVertex removes path and cascades all incident edges, incoming and
// outgoing. Removing an absent vertex is a no-op.
func (g *Graph) RemoveVertex(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for target := range g.out[path] {
		delete(g.in[target], path)
	}
	for source := range g.in[path] {
		delete(g.out[source], path)
	}
	delete(g.out, path)
	delete(g.in, path)
}

// HasVertex reports whether path exists in the graph. O(1).
func (g *Graph) HasVertex(path string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.out[path]
	return ok
}

// ReplaceOutgoingEdges atomically replaces every outgoing edge of path with
// edges to targets. Old edges are fully removed and new edges fully added as
// one observable step. Duplicate targets collapse to a single edge; targets
// not yet indexed become dangling vertices.
func (g *Graph) ReplaceOutgoingEdges(path string, targets []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replaceOutgoingLocked(path, targets)
}

func (g *Graph) replaceOutgoingLocked(path string, targets []string) {
	g.addVertexLocked(path)

	for old := range g.out[path] {
		delete(g.in[old], path)
	}
	g.out[path] = make(map[string]struct{}, len(targets))

	for _, target := range targets {
		if target == path {
			// Self-links are stored like any other edge; traversal's
			// visited set keeps them harmless.
			g.logger.Warn("self-referencing link", "path", path)
		}
		g.addVertexLocked(target)
		g.out[path][target] = struct{}{}
		g.in[target][path] = struct{}{}
	}
}

// WouldCreateCycle reports whether adding the edge source -> target would
// create a cycle, by checking whether source is reachable from target. The
// edge is not added; callers decide what to do with the answer. Indexing
// only flags cyclic links, it never blocks them.
func (g *Graph) WouldCreateCycle(source, target string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachableLocked(target, source)
}

// reachableLocked runs a BFS from start and reports whether goal is reached.
// Callers must hold at least the read lock.
func (g *Graph) reachableLocked(start, goal string) bool {
	if start == goal {
		return true
	}
	visited := map[string]struct{}{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for next := range g.out[current] {
			if next == goal {
				return true
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return false
}

// OutgoingEdges returns the targets of path's outgoing edges, sorted.
// O(out-degree). Returns nil for an absent vertex.
func (g *Graph) OutgoingEdges(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.out[path])
}

// IncomingEdges returns the sources of path's incoming edges, sorted.
// O(in-degree). Answers "who references me" without a full scan.
func (g *Graph) IncomingEdges(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.in[path])
}

// VertexCount returns the number of vertices, dangling included.
func (g *Graph) VertexCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.out)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, targets := range g.out {
		n += len(targets)
	}
	return n
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OnDocumentIndexed is the indexer hook for document create/update. It
// replaces the document's outgoing edges with the freshly extracted links,
// logging (but not blocking) any link that closes a cycle.
func (g *Graph) OnDocumentIndexed(path string, outgoingLinks []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, target := range outgoingLinks {
		if g.reachableLocked(target, path) {
			g.logger.Warn("link closes a cycle",
				"source", path, "target", target)
		}
	}
	g.replaceOutgoingLocked(path, outgoingLinks)
}

// OnDocumentDeleted is the indexer hook for document deletion.
func (g *Graph) OnDocumentDeleted(path string) {
	g.RemoveVertex(path)
}

// OnFullRebuild discards the entire graph and reconstructs it from durable
// truth, typically at startup. Called twice with identical input it produces
// an identical graph.
func (g *Graph) OnFullRebuild(allDocumentsWithLinks map[string][]string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.out = make(map[string]map[string]struct{}, len(allDocumentsWithLinks))
	g.in = make(map[string]map[string]struct{}, len(allDocumentsWithLinks))
	for path, links := range allDocumentsWithLinks {
		g.replaceOutgoingLocked(path, links)
	}

	g.logger.Debug("link graph rebuilt",
		"vertices", len(g.out), "documents", len(allDocumentsWithLinks))
}

// Traverse performs a breadth-first expansion from startPaths, level by
// level; one level is one link-depth increment. A global visited set seeded
// with the start paths guarantees no re-emission and termination under
// cycles. Traversal stops after maxDepth levels or maxCount emitted
// documents, whichever comes first. The emitted depth always equals the
// level of first discovery.
//
// Cancellation is checked between levels; a canceled context returns ctx.Err
// with no partial side effects (the graph is never mutated by traversal).
func (g *Graph) Traverse(ctx context.Context, startPaths []string, maxDepth, maxCount int) ([]Visit, error) {
	if maxDepth <= 0 || maxCount <= 0 || len(startPaths) == 0 {
		return nil, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]struct{}, len(startPaths))
	frontier := make([]string, 0, len(startPaths))
	for _, p := range startPaths {
		if _, seen := visited[p]; seen {
			continue
		}
		visited[p] = struct{}{}
		frontier = append(frontier, p)
	}
	sort.Strings(frontier)

	var visits []Visit
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []string
		for _, current := range frontier {
			for _, target := range sortedKeys(g.out[current]) {
				if _, seen := visited[target]; seen {
					continue
				}
				visited[target] = struct{}{}
				visits = append(visits, Visit{
					Path:       target,
					Depth:      depth,
					LinkedFrom: current,
				})
				if len(visits) >= maxCount {
					return visits, nil
				}
				next = append(next, target)
			}
		}
		frontier = next
	}

	return visits, nil
}
