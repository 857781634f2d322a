package tree

import (
	"math"
	"sort"
)

// buildGraph is the minimum-arborescence strategy: build a sparse
// weighted digraph over the category (top-K cheapest parents per child,
// tier-filtered), run Edmonds' algorithm rooted at the chosen root, and
// wire the resulting edges. Branching and tier-order cleanups follow
// because the optimal arborescence has no notion of either.
func (sc *schoolContext) buildGraph() *SchoolTree {
	sims := sc.similarity()
	maxChildren := sc.cfg.MaxChildrenPerNode

	for i := range sc.items {
		sc.arena.Add(NodeFromItem(&sc.items[i]))
	}
	sc.assignThemeTags()

	rootItem := sc.pickRoot()
	root := sc.arena.Get(rootItem.ID)
	root.IsRoot = true
	root.Depth = 0

	ids := sc.arena.IDs()
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	rootIdx := index[root.ID]

	edges := sc.candidateEdges(ids, rootIdx, sims)

	chosen, ok := minimumArborescence(len(ids), rootIdx, edges)
	if !ok {
		// Should not happen with the guaranteed root edges, but an
		// unconnected graph falls back to the repair pass.
		chosen = nil
	}

	// Apply: clear nothing (nodes are fresh), just link.
	for _, e := range chosen {
		Link(sc.arena.Get(ids[e.from]), sc.arena.Get(ids[e.to]))
	}

	sc.constrainBranching(sims, maxChildren)
	sc.enforceTierOrdering(root.ID, sims, maxChildren)
	sc.arena.RecomputeDepths(root.ID)

	// Orphans left by a failed arborescence get tier-based depth so the
	// repair pass has something sane to work with.
	reachable := reachableFromRoot(sc.arena, root.ID)
	for _, id := range ids {
		if _, ok := reachable[id]; !ok {
			n := sc.arena.Get(id)
			n.Depth = n.TierIndex()
		}
	}

	return &SchoolTree{Root: root.ID, LayoutStyle: StrategyGraph.LayoutStyle()}
}

const candidateParents = 20

type candEdge struct {
	from, to int
	w        float64
}

// candidateEdges keeps the top-K cheapest parents per child, skipping
// parents more than one tier above the child, and always includes a
// root edge so every child stays reachable in the digraph.
func (sc *schoolContext) candidateEdges(ids []string, rootIdx int, sims *SimilarityMatrix) []candEdge {
	var edges []candEdge

	for childIdx, childID := range ids {
		if childIdx == rootIdx {
			continue
		}
		child := sc.arena.Get(childID)
		childTier := child.TierIndex()

		type scored struct {
			parentIdx int
			cost      float64
		}
		var candidates []scored
		for parentIdx, parentID := range ids {
			if parentIdx == childIdx {
				continue
			}
			parent := sc.arena.Get(parentID)
			if parent.TierIndex() > childTier+1 {
				continue
			}
			cost := sc.edgeCost(parent, child, sims)
			candidates = append(candidates, scored{parentIdx, cost})
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].cost < candidates[j].cost
		})

		addedRoot := false
		for i := 0; i < len(candidates) && i < candidateParents; i++ {
			edges = append(edges, candEdge{candidates[i].parentIdx, childIdx, candidates[i].cost})
			if candidates[i].parentIdx == rootIdx {
				addedRoot = true
			}
		}
		if !addedRoot {
			cost := sc.edgeCost(sc.arena.Get(ids[rootIdx]), child, sims)
			edges = append(edges, candEdge{rootIdx, childIdx, cost})
		}
	}

	return edges
}

// edgeCost blends a metadata cost (tier ordering, effect and name
// affinity) with an NLP cost (inverted text similarity) via the chaos
// knob. Lower is better; forceBalance adds jitter so the arborescence
// does not collapse into a star around the root.
func (sc *schoolContext) edgeCost(parent, child *TreeNode, sims *SimilarityMatrix) float64 {
	meta := 0.0

	tierDiff := child.TierIndex() - parent.TierIndex()
	switch {
	case tierDiff <= 0:
		meta += 50.0 + math.Abs(float64(tierDiff))*30.0
	case tierDiff == 1:
		// Ideal progression, no penalty.
	case tierDiff == 2:
		meta += 10.0
	default:
		meta += 5.0 * float64(tierDiff-1)
	}

	if parent.School == child.School {
		meta -= 5.0
	} else {
		meta += 15.0
	}

	meta -= sims.EffectSim(parent.ID, child.ID) * 30.0
	meta -= sims.NameSim(parent.ID, child.ID) * 10.0

	nlpCost := (1.0 - sims.TextSim(parent.ID, child.ID)) * 60.0

	cost := (1.0-sc.cfg.Chaos)*meta + sc.cfg.Chaos*nlpCost
	cost += sc.rng.Float64() * sc.cfg.ForceBalance * 5.0

	if cost < 0.001 {
		cost = 0.001
	}
	return cost
}

// minimumArborescence is Chu-Liu/Edmonds: repeatedly take each node's
// cheapest incoming edge, contract any cycle that forms, and recurse on
// the contracted graph. Ties break toward the earlier edge, so the
// result is deterministic for a fixed edge order. Returns false when
// some node has no path from the root.
func minimumArborescence(n, root int, edges []candEdge) ([]candEdge, bool) {
	const inf = math.MaxFloat64

	bestW := make([]float64, n)
	bestE := make([]int, n)
	for v := 0; v < n; v++ {
		bestW[v] = inf
		bestE[v] = -1
	}
	for i, e := range edges {
		if e.to == root || e.from == e.to {
			continue
		}
		if e.w < bestW[e.to] {
			bestW[e.to] = e.w
			bestE[e.to] = i
		}
	}
	for v := 0; v < n; v++ {
		if v != root && bestE[v] == -1 {
			return nil, false
		}
	}

	// Find cycles among the chosen in-edges.
	comp := make([]int, n)
	state := make([]int, n) // 0 unvisited, 1 in progress, 2 done
	for i := range comp {
		comp[i] = -1
	}
	comps := 0
	var cycles [][]int

	for v := 0; v < n; v++ {
		if state[v] != 0 {
			continue
		}
		u := v
		var path []int
		for state[u] == 0 {
			state[u] = 1
			path = append(path, u)
			if u == root {
				break
			}
			u = edges[bestE[u]].from
		}
		if state[u] == 1 && u != root {
			// Found a new cycle ending at u.
			var cycle []int
			for i := len(path) - 1; i >= 0; i-- {
				cycle = append(cycle, path[i])
				if path[i] == u {
					break
				}
			}
			for _, cv := range cycle {
				comp[cv] = comps
			}
			comps++
			cycles = append(cycles, cycle)
		}
		for _, pv := range path {
			state[pv] = 2
			if comp[pv] == -1 {
				comp[pv] = comps
				comps++
			}
		}
	}

	if len(cycles) == 0 {
		var result []candEdge
		for v := 0; v < n; v++ {
			if v != root {
				result = append(result, edges[bestE[v]])
			}
		}
		return result, true
	}

	// Contract: rebuild edges against component ids, reducing the weight
	// of edges entering a cycle by the cycle's chosen in-edge weight.
	type contracted struct {
		orig   candEdge // original edge the contracted edge stands for
		origTo int      // original target vertex inside the cycle
	}
	inCycle := make([]bool, n)
	for _, cycle := range cycles {
		for _, v := range cycle {
			inCycle[v] = true
		}
	}

	var sub []candEdge
	var prov []contracted
	for _, e := range edges {
		cf, ct := comp[e.from], comp[e.to]
		if cf == ct {
			continue
		}
		w := e.w
		if inCycle[e.to] {
			w -= bestW[e.to]
		}
		sub = append(sub, candEdge{cf, ct, w})
		prov = append(prov, contracted{e, e.to})
	}

	subResult, ok := minimumArborescence(comps, comp[root], sub)
	if !ok {
		return nil, false
	}

	// Expand: the chosen contracted edges map back to original edges;
	// each cycle contributes all of its in-edges except the one entering
	// the vertex that the incoming contracted edge targets.
	entered := make(map[int]bool) // original vertices entered from outside
	var result []candEdge
	for _, se := range subResult {
		for i := range sub {
			if sub[i] == se {
				result = append(result, prov[i].orig)
				entered[prov[i].origTo] = true
				// Mark consumed so duplicate contracted edges with equal
				// fields do not double-map.
				sub[i] = candEdge{-1, -1, 0}
				break
			}
		}
	}
	for _, cycle := range cycles {
		for _, v := range cycle {
			if !entered[v] {
				result = append(result, edges[bestE[v]])
			}
		}
	}
	return result, true
}

// constrainBranching reroutes the weakest children of overloaded nodes
// to their best-fitting sibling, or any lower-tier node with capacity.
func (sc *schoolContext) constrainBranching(sims *SimilarityMatrix, maxChildren int) {
	for pass := 0; pass < 10; pass++ {
		changed := false

		for _, id := range sc.arena.IDs() {
			node := sc.arena.Get(id)
			if len(node.Children) <= maxChildren {
				continue
			}

			type childScore struct {
				score float64
				id    string
			}
			scores := make([]childScore, 0, len(node.Children))
			for _, childID := range node.Children {
				score := sims.EffectSim(id, childID)*30.0 +
					sims.TextSim(id, childID)*20.0 +
					sims.NameSim(id, childID)*10.0
				scores = append(scores, childScore{score, childID})
			}
			sort.SliceStable(scores, func(i, j int) bool {
				return scores[i].score > scores[j].score
			})

			keep := make(map[string]struct{}, maxChildren)
			for i := 0; i < maxChildren; i++ {
				keep[scores[i].id] = struct{}{}
			}

			for _, cs := range scores[maxChildren:] {
				rerouted := sc.arena.Get(cs.id)

				var bestSibling *TreeNode
				bestScore := math.Inf(-1)
				for i := 0; i < maxChildren; i++ {
					sibling := sc.arena.Get(scores[i].id)
					if sibling == nil || len(sibling.Children) >= maxChildren {
						continue
					}
					score := sims.EffectSim(sibling.ID, cs.id)*30.0 +
						sims.TextSim(sibling.ID, cs.id)*20.0 -
						float64(len(sibling.Children))*5.0
					if score > bestScore {
						bestScore = score
						bestSibling = sibling
					}
				}

				if bestSibling == nil {
					for _, otherID := range sc.arena.IDs() {
						if otherID == cs.id || otherID == id {
							continue
						}
						other := sc.arena.Get(otherID)
						if len(other.Children) >= maxChildren {
							continue
						}
						if other.TierIndex() <= rerouted.TierIndex() {
							bestSibling = other
							break
						}
					}
				}

				if bestSibling != nil {
					Unlink(node, rerouted)
					Link(bestSibling, rerouted)
					changed = true
				}
			}
		}

		if !changed {
			break
		}
	}
}

// enforceTierOrdering re-parents children whose tier is not above their
// parent's, favoring lower-tier candidates one step down.
func (sc *schoolContext) enforceTierOrdering(rootID string, sims *SimilarityMatrix, maxChildren int) {
	for pass := 0; pass < 5; pass++ {
		found := false

		for _, id := range sc.arena.IDs() {
			node := sc.arena.Get(id)
			nodeTier := node.TierIndex()

			for _, childID := range append([]string{}, node.Children...) {
				child := sc.arena.Get(childID)
				if child == nil {
					continue
				}
				childTier := child.TierIndex()
				if childTier > nodeTier || id == rootID {
					continue
				}

				var best *TreeNode
				bestScore := math.Inf(-1)
				for _, candID := range sc.arena.IDs() {
					if candID == childID || candID == id {
						continue
					}
					cand := sc.arena.Get(candID)
					if cand.TierIndex() >= childTier {
						continue
					}
					if len(cand.Children) >= maxChildren {
						continue
					}
					score := sims.EffectSim(candID, childID)*20.0 +
						sims.TextSim(candID, childID)*15.0 -
						float64(len(cand.Children))*5.0 -
						math.Abs(float64(childTier-cand.TierIndex()-1))*3.0
					if score > bestScore {
						bestScore = score
						best = cand
					}
				}

				if best != nil {
					Unlink(node, child)
					Link(best, child)
					found = true
				}
			}
		}

		if !found {
			break
		}
	}
}
