package tree

import (
	"math"
	"sort"

	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/themes"
)

// buildTree is the NLP-thematic strategy: items are grouped by best-fit
// theme, then attached in round-robin theme order so no single large
// theme hogs the shallow positions. Expert and Master tiers pick up
// extra convergence prerequisites afterwards.
func (sc *schoolContext) buildTree() *SchoolTree {
	sims := sc.similarity()
	maxChildren := sc.cfg.MaxChildrenPerNode

	grouped := sc.b.disc.GroupBestFit(sc.items, sc.themes)

	for i := range sc.items {
		node := NodeFromItem(&sc.items[i])
		if len(sc.themes) > 0 {
			theme, score := sc.b.disc.PrimaryTheme(&sc.items[i], sc.themes)
			if score > themes.MinGroupScore {
				node.Theme = theme
			} else {
				node.Theme = themes.Unassigned
			}
		}
		sc.arena.Add(node)
	}

	rootItem := sc.pickRoot()
	root := sc.arena.Get(rootItem.ID)
	root.IsRoot = true
	root.Depth = 0

	connected := map[string]struct{}{root.ID: {}}
	available := map[int][]*TreeNode{0: {root}}

	// Themes largest-first; ties broken by name so builds reproduce.
	var sortedThemes []string
	for theme, members := range grouped {
		if theme != themes.Unassigned && len(members) > 0 {
			sortedThemes = append(sortedThemes, theme)
		}
	}
	sort.Slice(sortedThemes, func(i, j int) bool {
		a, b := sortedThemes[i], sortedThemes[j]
		if len(grouped[a]) != len(grouped[b]) {
			return len(grouped[a]) > len(grouped[b])
		}
		return a < b
	})

	// Per-theme queues in tier order.
	queues := make(map[string][]spell.Item, len(sortedThemes))
	maxRounds := 0
	for _, theme := range sortedThemes {
		q := append([]spell.Item{}, grouped[theme]...)
		sort.SliceStable(q, func(i, j int) bool {
			return q[i].TierIndex() < q[j].TierIndex()
		})
		queues[theme] = q
		if len(q) > maxRounds {
			maxRounds = len(q)
		}
	}

	indices := make(map[string]int, len(sortedThemes))

	for round := 0; round < maxRounds; round++ {
		for _, theme := range sortedThemes {
			idx := indices[theme]
			queue := queues[theme]
			if idx >= len(queue) {
				continue
			}
			id := queue[idx].ID
			indices[theme] = idx + 1

			if _, ok := connected[id]; ok {
				continue
			}
			node := sc.arena.Get(id)
			tierDepth := node.TierIndex()

			best := sc.roundRobinBestParent(node, available, tierDepth, sims, maxChildren)

			if best == nil {
				// Any lower-depth parent with stretched capacity.
				for d := tierDepth - 1; d >= 0 && best == nil; d-- {
					for _, p := range available[d] {
						if len(p.Children) < maxChildren+2 {
							best = p
							break
						}
					}
				}
			}
			if best == nil {
				// Same depth as a last resort; without it the lowest tier
				// has nowhere to go when same-tier links are off.
				for _, p := range available[tierDepth] {
					if p.ID != id && len(p.Children) < maxChildren+2 {
						best = p
						break
					}
				}
			}

			if best != nil {
				Link(best, node)
				connected[id] = struct{}{}
				if len(node.Children) < maxChildren {
					available[node.Depth] = append(available[node.Depth], node)
				}
			}
		}
	}

	sc.attachUnassigned(grouped[themes.Unassigned], connected, available, sims, maxChildren)
	sc.attachOrphans(connected, maxChildren)
	sc.enforceConvergence(root.ID, sims)
	sc.repairTree(root.ID, maxChildren)

	return &SchoolTree{Root: root.ID, LayoutStyle: StrategyTree.LayoutStyle()}
}

func (sc *schoolContext) roundRobinBestParent(node *TreeNode, available map[int][]*TreeNode, tierDepth int, sims *SimilarityMatrix, maxChildren int) *TreeNode {
	var best *TreeNode
	bestScore := math.Inf(-1)

	lo := tierDepth - 2
	if lo < 0 {
		lo = 0
	}
	for d := lo; d <= tierDepth; d++ {
		for _, cand := range available[d] {
			if len(cand.Children) >= maxChildren {
				continue
			}

			score := 0.0

			if node.Theme != "" && cand.Theme != "" &&
				node.Theme != themes.Unassigned && cand.Theme != themes.Unassigned {
				if node.Theme == cand.Theme {
					// Theme match plus chain coherence.
					score += 170.0
				} else if sc.cfg.StrictIsolation {
					continue
				} else {
					score -= 50.0
				}
			}

			switch tierDiff := tierDepth - cand.Depth; {
			case tierDiff == 1:
				score += 50.0
			case tierDiff == 2:
				score += 30.0
			case tierDiff > 2:
				score -= 20.0
			case tierDiff == 0:
				if !sc.cfg.AllowSameTier {
					continue
				}
				score += 10.0
			}

			score += sims.TextSim(node.ID, cand.ID) * 60.0

			score -= float64(len(cand.Children)) / float64(maxChildren) * 30.0

			// Low density resists second children, pulling the tree toward
			// chains; the resistance eases near the root.
			if len(cand.Children) > 0 {
				branch := sc.cfg.Density * (1.0 - float64(cand.Depth)*0.1)
				if branch < 0 {
					branch = 0
				}
				score -= (1.0 - branch) * 25.0
			}

			// Symmetry presses children toward the least-loaded parents so
			// branches come out even.
			score -= float64(len(cand.Children)) * sc.cfg.Symmetry * 20.0

			score += sc.rng.Float64()*4.0 - 2.0

			if score > bestScore {
				bestScore = score
				best = cand
			}
		}
	}
	return best
}

// attachUnassigned places themeless items by tier fit and similarity.
func (sc *schoolContext) attachUnassigned(unassigned []spell.Item, connected map[string]struct{}, available map[int][]*TreeNode, sims *SimilarityMatrix, maxChildren int) {
	for i := range unassigned {
		id := unassigned[i].ID
		if _, ok := connected[id]; ok {
			continue
		}
		node := sc.arena.Get(id)
		tierDepth := node.TierIndex()

		var best *TreeNode
		bestScore := math.Inf(-1)
		lo := tierDepth - 2
		if lo < 0 {
			lo = 0
		}
		for d := lo; d <= tierDepth; d++ {
			for _, cand := range available[d] {
				if len(cand.Children) >= maxChildren {
					continue
				}
				score := 0.0
				switch tierDepth - cand.Depth {
				case 1:
					score += 50.0
				case 0:
					score += 10.0
				}
				score += sims.TextSim(id, cand.ID) * 60.0
				score -= float64(len(cand.Children)) / float64(maxChildren) * 30.0
				if score > bestScore {
					bestScore = score
					best = cand
				}
			}
		}
		if best != nil {
			Link(best, node)
			connected[id] = struct{}{}
			if len(node.Children) < maxChildren {
				available[node.Depth] = append(available[node.Depth], node)
			}
		}
	}
}

// attachOrphans connects whatever the round-robin missed, preferring
// lower-depth same-theme parents with spare capacity.
func (sc *schoolContext) attachOrphans(connected map[string]struct{}, maxChildren int) {
	for _, id := range sc.arena.IDs() {
		if _, ok := connected[id]; ok {
			continue
		}
		orphan := sc.arena.Get(id)
		tierDepth := orphan.TierIndex()

		var best *TreeNode
		bestScore := math.Inf(-1)
		for _, cid := range sc.arena.IDs() {
			if _, ok := connected[cid]; !ok {
				continue
			}
			cand := sc.arena.Get(cid)
			if len(cand.Children) >= maxChildren {
				continue
			}
			score := 0.0
			switch {
			case cand.Depth < tierDepth:
				score += 50.0
				if cand.Depth == tierDepth-1 {
					score += 30.0
				}
			case cand.Depth == tierDepth:
				score += 10.0
			default:
				score -= 50.0
			}
			if orphan.Theme != "" && cand.Theme == orphan.Theme {
				score += 40.0
			}
			score -= float64(len(cand.Children)) * 15.0
			if score > bestScore {
				bestScore = score
				best = cand
			}
		}

		if best == nil {
			// Everything is at capacity: take the least-loaded shallower
			// node anyway.
			for _, cid := range sc.arena.IDs() {
				if _, ok := connected[cid]; !ok {
					continue
				}
				cand := sc.arena.Get(cid)
				if cand.Depth >= tierDepth {
					continue
				}
				if best == nil || len(cand.Children) < len(best.Children) {
					best = cand
				}
			}
		}

		if best != nil {
			Link(best, orphan)
			connected[id] = struct{}{}
		}
	}
}

// Convergence odds scale with tier so the top of the ladder knits
// together far more often than the base; each tier also caps how many
// prerequisites a node may accumulate.
var (
	convergenceTierWeight = [...]float64{0.5, 1.0, 1.5, 2.0, 10.0}
	convergenceMaxPrereqs = [...]int{1, 2, 2, 3, 4}
)

// enforceConvergence gates high-tier items: Expert needs at least 2
// prerequisites, Master at least 3. Below those floors ConvergenceChance
// rolls per node for one optional extra edge, weighted by tier. Extra
// edges prefer partners from a different theme so branches knit together.
func (sc *schoolContext) enforceConvergence(rootID string, sims *SimilarityMatrix) {
	reachable := reachableFromRoot(sc.arena, rootID)

	for _, id := range sc.arena.IDs() {
		if id == rootID {
			continue
		}
		node := sc.arena.Get(id)
		tierDepth := node.TierIndex()

		minPrereqs := 0
		switch {
		case tierDepth >= 4:
			minPrereqs = 3
		case tierDepth >= 3:
			minPrereqs = 2
		}

		needed := 0
		if len(node.Prerequisites) < minPrereqs {
			needed = minPrereqs - len(node.Prerequisites)
		} else if len(node.Prerequisites) < convergenceMaxPrereqs[tierDepth] {
			chance := sc.cfg.ConvergenceChance * convergenceTierWeight[tierDepth]
			if chance > 1 {
				chance = 1
			}
			if sc.rng.Float64() < chance {
				needed = 1
			}
		}
		if needed == 0 {
			continue
		}

		type scoredCand struct {
			score float64
			id    string
		}
		var candidates []scoredCand
		for _, candID := range sc.arena.IDs() {
			if candID == id || hasString(node.Prerequisites, candID) {
				continue
			}
			if _, ok := reachable[candID]; !ok {
				continue
			}
			cand := sc.arena.Get(candID)
			if cand.Depth >= node.Depth {
				continue
			}
			if isDescendant(sc.arena, candID, id) {
				continue
			}

			score := sims.TextSim(id, candID) * 40.0
			depthDiff := node.Depth - cand.Depth
			if depthDiff < 0 {
				depthDiff = -depthDiff
			}
			if bonus := 20.0 - float64(depthDiff)*10.0; bonus > 0 {
				score += bonus
			}
			if cand.Theme != node.Theme {
				score += 10.0
			}
			candidates = append(candidates, scoredCand{score, candID})
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})

		for i := 0; i < len(candidates) && i < needed; i++ {
			AddConvergence(sc.arena.Get(candidates[i].id), node)
		}
	}
}

// repairTree is the in-builder unlock repair loop: strip unreachable
// prerequisites, then reconnect nodes left with none.
func (sc *schoolContext) repairTree(rootID string, maxChildren int) {
	for pass := 0; pass < maxRepairPasses; pass++ {
		unlocked := SimulateUnlocks(sc.arena, rootID)
		var unreachable []string
		for _, id := range sc.arena.IDs() {
			if _, ok := unlocked[id]; !ok {
				unreachable = append(unreachable, id)
			}
		}
		if len(unreachable) == 0 {
			return
		}

		fixedAny := false
		for _, id := range unreachable {
			node := sc.arena.Get(id)

			var blocking []string
			for _, p := range node.Prerequisites {
				if _, ok := unlocked[p]; !ok {
					blocking = append(blocking, p)
				}
			}

			if len(blocking) > 0 {
				for _, bp := range blocking {
					node.removePrerequisite(bp)
					if pn := sc.arena.Get(bp); pn != nil {
						pn.removeChild(id)
					}
				}
				fixedAny = true
				continue
			}

			if len(node.Prerequisites) == 0 {
				bestID := ""
				bestScore := math.Inf(-1)
				tierDepth := node.TierIndex()
				for _, uid := range sc.arena.IDs() {
					if uid == id {
						continue
					}
					if _, ok := unlocked[uid]; !ok {
						continue
					}
					cand := sc.arena.Get(uid)
					if len(cand.Children) >= maxChildren {
						continue
					}
					score := 0.0
					if cand.Depth < tierDepth {
						score += 50.0
					}
					if node.Theme != "" && cand.Theme == node.Theme {
						score += 40.0
					}
					score -= float64(len(cand.Children)) * 10.0
					if score > bestScore {
						bestScore = score
						bestID = uid
					}
				}
				if bestID != "" {
					Link(sc.arena.Get(bestID), node)
					fixedAny = true
				}
			}
		}
		if !fixedAny {
			return
		}
	}
}

// reachableFromRoot walks children edges breadth-first.
func reachableFromRoot(a *Arena, rootID string) map[string]struct{} {
	reachable := make(map[string]struct{})
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := reachable[id]; ok {
			continue
		}
		reachable[id] = struct{}{}
		if n := a.Get(id); n != nil {
			queue = append(queue, n.Children...)
		}
	}
	return reachable
}

// isDescendant reports whether ancestor is reachable from node via
// children edges, which would make a new ancestor->node prerequisite a
// cycle.
func isDescendant(a *Arena, ancestor, nodeID string) bool {
	pa, nd := a.Get(ancestor), a.Get(nodeID)
	if pa != nil && nd != nil && pa.Depth <= nd.Depth {
		return false
	}

	visited := make(map[string]struct{})
	queue := []string{nodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		if id == ancestor {
			return true
		}
		if n := a.Get(id); n != nil {
			queue = append(queue, n.Children...)
		}
	}
	return false
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
