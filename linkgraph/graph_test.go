package linkgraph

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/loomkit/loom/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func buildGraph(t *testing.T, edges map[string][]string) *Graph {
	t.Helper()
	g := New(log.NewNop())
	for source, targets := range edges {
		g.ReplaceOutgoingEdges(source, targets)
	}
	return g
}

func TestReplaceOutgoingEdges(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a.md": {"b.md", "c.md"},
	})

	if got := g.OutgoingEdges("a.md"); !reflect.DeepEqual(got, []string{"b.md", "c.md"}) {
		t.Fatalf("OutgoingEdges(a.md) = %v", got)
	}
	if got := g.IncomingEdges("b.md"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Fatalf("IncomingEdges(b.md) = %v", got)
	}

	// Replacement removes old edges entirely.
	g.ReplaceOutgoingEdges("a.md", []string{"d.md"})

	if got := g.OutgoingEdges("a.md"); !reflect.DeepEqual(got, []string{"d.md"}) {
		t.Errorf("after replace, OutgoingEdges(a.md) = %v, want [d.md]", got)
	}
	if got := g.IncomingEdges("b.md"); got != nil {
		t.Errorf("after replace, IncomingEdges(b.md) = %v, want nil", got)
	}

	// Duplicate targets collapse to one edge.
	g.ReplaceOutgoingEdges("a.md", []string{"e.md", "e.md"})
	if got := g.EdgeCount(); got != 1 {
		t.Errorf("EdgeCount() = %d, want 1", got)
	}
}

func TestDanglingTargetsAreLegal(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a.md": {"missing.md"},
	})

	if !g.HasVertex("missing.md") {
		t.Error("dangling target should exist as a vertex")
	}
	if got := g.OutgoingEdges("missing.md"); got != nil {
		t.Errorf("dangling vertex OutgoingEdges = %v, want nil", got)
	}
}

func TestRemoveVertex_CascadesEdges(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a.md": {"b.md"},
		"b.md": {"c.md"},
	})

	g.RemoveVertex("b.md")

	if g.HasVertex("b.md") {
		t.Error("vertex still present after RemoveVertex")
	}
	if got := g.OutgoingEdges("a.md"); got != nil {
		t.Errorf("OutgoingEdges(a.md) = %v, want nil", got)
	}
	if got := g.IncomingEdges("c.md"); got != nil {
		t.Errorf("IncomingEdges(c.md) = %v, want nil", got)
	}
}

func TestWouldCreateCycle(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a.md": {"b.md"},
		"b.md": {"c.md"},
	})

	tests := []struct {
		name           string
		source, target string
		want           bool
	}{
		{"back edge closes cycle", "c.md", "a.md", true},
		{"forward edge is fine", "a.md", "c.md", false},
		{"self loop", "a.md", "a.md", true},
		{"unrelated vertices", "c.md", "x.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.WouldCreateCycle(tt.source, tt.target); got != tt.want {
				t.Errorf("WouldCreateCycle(%q, %q) = %v, want %v",
					tt.source, tt.target, got, tt.want)
			}
		})
	}
}

func TestTraverse_DepthTagging(t *testing.T) {
	// a -> b -> c: c is reachable only through 2 hops.
	g := buildGraph(t, map[string][]string{
		"a.md": {"b.md"},
		"b.md": {"c.md"},
	})

	visits, err := g.Traverse(context.Background(), []string{"a.md"}, 5, 100)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}

	want := []Visit{
		{Path: "b.md", Depth: 1, LinkedFrom: "a.md"},
		{Path: "c.md", Depth: 2, LinkedFrom: "b.md"},
	}
	if !reflect.DeepEqual(visits, want) {
		t.Errorf("Traverse() = %v, want %v", visits, want)
	}
}

func TestTraverse_MaxDepthExcludesDeeper(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a.md": {"b.md"},
		"b.md": {"c.md"},
	})

	visits, err := g.Traverse(context.Background(), []string{"a.md"}, 1, 100)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}

	if len(visits) != 1 || visits[0].Path != "b.md" {
		t.Errorf("Traverse(maxDepth=1) = %v, want only b.md", visits)
	}
}

func TestTraverse_CycleTerminatesWithoutDuplicates(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a.md": {"b.md"},
		"b.md": {"c.md"},
		"c.md": {"a.md"},
	})

	visits, err := g.Traverse(context.Background(), []string{"a.md"}, 5, 100)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}

	seen := make(map[string]bool)
	for _, v := range visits {
		if seen[v.Path] {
			t.Errorf("duplicate path emitted: %s", v.Path)
		}
		seen[v.Path] = true
		if v.Path == "a.md" {
			t.Error("start path re-emitted through cycle")
		}
	}
}

func TestTraverse_MaxCount(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a.md": {"b.md", "c.md", "d.md", "e.md"},
	})

	visits, err := g.Traverse(context.Background(), []string{"a.md"}, 3, 2)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(visits) != 2 {
		t.Errorf("Traverse(maxCount=2) emitted %d documents, want 2", len(visits))
	}
}

func TestTraverse_ZeroBoundsReturnNothing(t *testing.T) {
	g := buildGraph(t, map[string][]string{"a.md": {"b.md"}})

	for _, tt := range []struct {
		name              string
		maxDepth, maxCount int
	}{
		{"zero depth", 0, 10},
		{"zero count", 10, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			visits, err := g.Traverse(context.Background(), []string{"a.md"}, tt.maxDepth, tt.maxCount)
			if err != nil {
				t.Fatalf("Traverse() error = %v", err)
			}
			if visits != nil {
				t.Errorf("Traverse() = %v, want nil", visits)
			}
		})
	}
}

func TestTraverse_Cancellation(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a.md": {"b.md"},
		"b.md": {"c.md"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Traverse(ctx, []string{"a.md"}, 5, 100); err == nil {
		t.Error("Traverse() with canceled context should return an error")
	}
}

func TestEnumerateCycles(t *testing.T) {
	tests := []struct {
		name  string
		edges map[string][]string
		want  [][]string
	}{
		{
			name:  "acyclic",
			edges: map[string][]string{"a.md": {"b.md"}, "b.md": {"c.md"}},
			want:  nil,
		},
		{
			name: "single cycle",
			edges: map[string][]string{
				"a.md": {"b.md"},
				"b.md": {"a.md"},
			},
			want: [][]string{{"a.md", "b.md"}},
		},
		{
			name:  "self loop",
			edges: map[string][]string{"a.md": {"a.md"}},
			want:  [][]string{{"a.md"}},
		},
		{
			name: "two disjoint cycles",
			edges: map[string][]string{
				"a.md": {"b.md"},
				"b.md": {"a.md"},
				"x.md": {"y.md"},
				"y.md": {"x.md"},
			},
			want: [][]string{{"a.md", "b.md"}, {"x.md", "y.md"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildGraph(t, tt.edges)
			if got := g.EnumerateCycles(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EnumerateCycles() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOnFullRebuild_Idempotent(t *testing.T) {
	input := map[string][]string{
		"a.md": {"b.md", "c.md"},
		"b.md": {"c.md"},
		"c.md": {},
	}

	g := New(log.NewNop())
	g.ReplaceOutgoingEdges("stale.md", []string{"gone.md"})

	g.OnFullRebuild(input)
	first := snapshot(g)
	g.OnFullRebuild(input)
	second := snapshot(g)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("rebuild not idempotent:\nfirst  = %v\nsecond = %v", first, second)
	}
	if _, ok := first["stale.md"]; ok {
		t.Error("rebuild kept a vertex absent from input")
	}
}

func snapshot(g *Graph) map[string][]string {
	out := make(map[string][]string)
	g.mu.RLock()
	defer g.mu.RUnlock()
	for v := range g.out {
		out[v] = sortedKeys(g.out[v])
	}
	return out
}

// TestConcurrentReadsAndWrites exercises the reader/writer lock under
// simultaneous traversal and mutation. Run with -race.
func TestConcurrentReadsAndWrites(t *testing.T) {
	g := New(log.NewNop())
	for i := 0; i < 50; i++ {
		g.ReplaceOutgoingEdges(fmt.Sprintf("doc%d.md", i), []string{fmt.Sprintf("doc%d.md", (i+1)%50)})
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = g.Traverse(context.Background(), []string{"doc0.md"}, 3, 10)
				g.WouldCreateCycle("doc1.md", "doc0.md")
				g.IncomingEdges("doc2.md")
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				path := fmt.Sprintf("doc%d.md", (n*13+j)%50)
				g.ReplaceOutgoingEdges(path, []string{"doc0.md", "doc1.md"})
			}
		}(i)
	}
	wg.Wait()
}
