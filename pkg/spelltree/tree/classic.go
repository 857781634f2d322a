package tree

import (
	"sort"

	"github.com/arcanist/spelltree/pkg/spelltree/spell"
)

// buildClassic is the tier-first strategy: node depth strictly follows
// tier ordinal. Novice at depth 0 through Master at depth 4. Within a
// tier, text similarity steers which lower-tier parent each item hangs
// off, but the tier ordering itself is a hard constraint.
func (sc *schoolContext) buildClassic() *SchoolTree {
	byTier := make([][]*spell.Item, spell.MaxTier+1)
	for i := range sc.items {
		t := sc.items[i].TierIndex()
		byTier[t] = append(byTier[t], &sc.items[i])
	}

	rootItem := sc.pickRoot()

	for i := range sc.items {
		sc.arena.Add(NodeFromItem(&sc.items[i]))
	}
	root := sc.arena.Get(rootItem.ID)
	root.IsRoot = true
	root.Depth = 0

	sc.assignThemeTags()

	connected := map[string]struct{}{root.ID: {}}

	// available[d] holds placed nodes at depth d that still have capacity.
	available := make(map[int][]*TreeNode)
	available[0] = []*TreeNode{root}

	for tierIdx := 0; tierIdx <= spell.MaxTier; tierIdx++ {
		var tierItems []*spell.Item
		for _, it := range byTier[tierIdx] {
			if it.ID != root.ID {
				tierItems = append(tierItems, it)
			}
		}
		if len(tierItems) == 0 {
			continue
		}

		sc.shuffleItems(tierItems)

		var placed []*TreeNode
		for _, it := range tierItems {
			if _, ok := connected[it.ID]; ok {
				continue
			}
			node := sc.arena.Get(it.ID)

			parent := sc.classicBestParent(node, available, tierIdx)
			if parent == nil {
				continue
			}

			Link(parent, node)
			// The hard constraint wins over whatever parent the scoring
			// picked: depth is the tier ordinal, full stop.
			node.Depth = tierIdx
			connected[it.ID] = struct{}{}
			placed = append(placed, node)

			if len(parent.Children) >= sc.cfg.MaxChildrenPerNode {
				for d := range available {
					available[d] = removeNode(available[d], parent.ID)
				}
			}
		}

		for _, n := range placed {
			if len(n.Children) < sc.cfg.MaxChildrenPerNode {
				available[tierIdx] = append(available[tierIdx], n)
			}
		}
	}

	sc.classicForceConnect(connected, available)

	return &SchoolTree{Root: root.ID, LayoutStyle: StrategyClassic.LayoutStyle()}
}

// classicBestParent scores candidates from the tier immediately below,
// widening to all lower tiers and finally any available node before
// giving up.
func (sc *schoolContext) classicBestParent(node *TreeNode, available map[int][]*TreeNode, tierIdx int) *TreeNode {
	var candidates []*TreeNode
	if tierIdx > 0 {
		candidates = append(candidates, available[tierIdx-1]...)
	}
	if len(candidates) == 0 && tierIdx > 0 {
		for d := 0; d < tierIdx; d++ {
			candidates = append(candidates, available[d]...)
		}
	}
	if len(candidates) == 0 {
		for _, d := range sortedDepths(available) {
			candidates = append(candidates, available[d]...)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	withCapacity := candidates[:0:0]
	for _, c := range candidates {
		if len(c.Children) < sc.cfg.MaxChildrenPerNode {
			withCapacity = append(withCapacity, c)
		}
	}
	if len(withCapacity) == 0 {
		// Stretch capacity rather than orphan the node.
		for _, d := range sortedDepths(available) {
			for _, c := range available[d] {
				if len(c.Children) < sc.cfg.MaxChildrenPerNode+2 {
					withCapacity = append(withCapacity, c)
				}
			}
		}
		if len(withCapacity) == 0 {
			return nil
		}
	}

	var best *TreeNode
	bestScore := 0.0
	for _, cand := range withCapacity {
		score := 0.0

		if node.Theme != "" && cand.Theme != "" {
			if node.Theme == cand.Theme {
				score += 10.0
			} else {
				score -= 2.0
			}
		}

		score += sc.textSimilarity(node.ID, cand.ID) * 5.0
		score -= float64(len(cand.Children)) * 1.5

		switch cand.Depth {
		case tierIdx - 1:
			score += 2.0
		case tierIdx - 2:
			score += 1.0
		}

		score += sc.rng.Float64() - 0.5

		if best == nil || score > bestScore {
			best = cand
			bestScore = score
		}
	}
	return best
}

// classicForceConnect attaches anything the tier loop missed to the
// least-loaded connected node, keeping the tier-depth rule.
func (sc *schoolContext) classicForceConnect(connected map[string]struct{}, available map[int][]*TreeNode) {
	for _, id := range sc.arena.IDs() {
		if _, ok := connected[id]; ok {
			continue
		}
		node := sc.arena.Get(id)

		var bestParent *TreeNode
		bestLoad := int(^uint(0) >> 1)
		for _, cid := range sc.arena.IDs() {
			if _, ok := connected[cid]; !ok {
				continue
			}
			cn := sc.arena.Get(cid)
			if len(cn.Children) < bestLoad {
				bestLoad = len(cn.Children)
				bestParent = cn
			}
		}
		if bestParent == nil {
			continue
		}

		Link(bestParent, node)
		tierIdx := node.TierIndex()
		node.Depth = tierIdx
		connected[id] = struct{}{}

		if len(node.Children) < sc.cfg.MaxChildrenPerNode {
			available[tierIdx] = append(available[tierIdx], node)
		}
	}
}

func removeNode(nodes []*TreeNode, id string) []*TreeNode {
	out := nodes[:0]
	for _, n := range nodes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

func sortedDepths(available map[int][]*TreeNode) []int {
	depths := make([]int, 0, len(available))
	for d := range available {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	return depths
}
