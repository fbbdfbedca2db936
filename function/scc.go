// Package function builds a Function from a Program's block graph and runs
// its SCC-ordered abstract-interpretation pass: Tarjan SCC decomposition in
// reverse postorder, then per-SCC execution under the loop-widening policy
// that is this engine's key scalability move.
package function

import "github.com/lxyhome-bit/indirect-jmp/program"

// SCC is a topologically-ordered set of blocks with a size/self-edge based
// Loop predicate.
type SCC struct {
	Blocks []uint64 // block start addresses, in this SCC's own execution order
}

// Loop reports whether this SCC must be treated as a loop: more than one
// block, or a single block with a self-edge.
func (s *SCC) Loop(blocks map[uint64]*program.Block) bool {
	if len(s.Blocks) != 1 {
		return len(s.Blocks) > 1
	}
	b := blocks[s.Blocks[0]]
	for _, e := range b.Succ {
		if e.To == s.Blocks[0] {
			return true
		}
	}
	return false
}

// tarjan computes strongly connected components of the subgraph reachable
// from entry and returns them in reverse postorder (the order in which
// function execution must visit them so every SCC's predecessors run
// first).
func tarjan(entry uint64, blocks map[uint64]*program.Block) []*SCC {
	type nodeState struct {
		index, low int
		onStack    bool
	}

	index := 0
	st := make(map[uint64]*nodeState)
	var stack []uint64
	var out []*SCC

	var visit func(v uint64)
	visit = func(v uint64) {
		b, ok := blocks[v]
		if !ok {
			return
		}
		st[v] = &nodeState{index: index, low: index, onStack: true}
		index++
		stack = append(stack, v)

		for _, e := range b.Succ {
			if _, ok := blocks[e.To]; !ok {
				continue
			}
			if _, seen := st[e.To]; !seen {
				visit(e.To)
				if st[e.To].low < st[v].low {
					st[v].low = st[e.To].low
				}
			} else if st[e.To].onStack {
				if st[e.To].index < st[v].low {
					st[v].low = st[e.To].index
				}
			}
		}

		if st[v].low == st[v].index {
			var comp []uint64
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				st[w].onStack = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			out = append(out, &SCC{Blocks: comp})
		}
	}

	visit(entry)

	// Tarjan emits SCCs in reverse topological order relative to a forward
	// DFS already; since we want reverse postorder over the CFG (entry
	// first), reverse the emission order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
