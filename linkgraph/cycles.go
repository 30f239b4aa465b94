package linkgraph

import "sort"

// EnumerateCycles returns every cycle in the graph as a sorted list of the
// participating paths. A cycle is a strongly-connected component with more
// than one vertex, or a single vertex with a self-edge. Intended for an
// offline validation pass, not the query hot path; it holds the read lock
// for the whole enumeration.
func (g *Graph) EnumerateCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t := &tarjan{
		graph:   g,
		indexes: make(map[string]int, len(g.out)),
		lowlink: make(map[string]int, len(g.out)),
		onStack: make(map[string]bool, len(g.out)),
	}
	for _, v := range sortedKeys(setOfKeys(g.out)) {
		if _, seen := t.indexes[v]; !seen {
			t.strongConnect(v)
		}
	}

	var cycles [][]string
	for _, scc := range t.components {
		if len(scc) > 1 {
			sort.Strings(scc)
			cycles = append(cycles, scc)
			continue
		}
		// Single-vertex component: only a cycle if it links to itself.
		v := scc[0]
		if _, self := g.out[v][v]; self {
			cycles = append(cycles, scc)
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

func setOfKeys(m map[string]map[string]struct{}) map[string]struct{} {
	set := make(map[string]struct{}, len(m))
	for k := range m {
		set[k] = struct{}{}
	}
	return set
}

// tarjan runs Tarjan's strongly-connected-components algorithm. Recursion
// depth is bounded by the corpus size, which is thousands of documents;
// Go's growable stacks handle that comfortably.
type tarjan struct {
	graph      *Graph
	index      int
	stack      []string
	indexes    map[string]int
	lowlink    map[string]int
	onStack    map[string]bool
	components [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.indexes[v] = t.index
	t.lowlink[v] = t.index
	t.index++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range sortedKeys(t.graph.out[v]) {
		if _, seen := t.indexes[w]; !seen {
			t.strongConnect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.indexes[w])
		}
	}

	if t.lowlink[v] == t.indexes[v] {
		var scc []string
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.components = append(t.components, scc)
	}
}
