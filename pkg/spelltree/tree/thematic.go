package tree

import (
	"math"
	"sort"

	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/themes"
)

// BranchMeta describes one grown theme branch for the caller.
type BranchMeta struct {
	Theme           string   `json:"theme"`
	AttachmentPoint string   `json:"attachmentPoint"`
	SpellIDs        []string `json:"spellIds"`
}

// buildThematic is the theme-first strategy: the largest theme becomes
// the trunk chained off the root, every other theme grows as its own
// BFS branch from the attachment point it scores best against.
func (sc *schoolContext) buildThematic() *SchoolTree {
	sims := sc.similarity()
	maxChildren := sc.cfg.MaxChildrenPerNode

	groups := sc.b.disc.GroupBestFit(sc.items, sc.themes)
	orphanItems := groups[themes.Unassigned]
	delete(groups, themes.Unassigned)
	for theme, members := range groups {
		if len(members) == 0 {
			delete(groups, theme)
		}
	}
	if len(groups) == 0 {
		groups["_all"] = append([]spell.Item{}, sc.items...)
	}

	ranked := make([]string, 0, len(groups))
	for theme := range groups {
		ranked = append(ranked, theme)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if len(groups[ranked[i]]) != len(groups[ranked[j]]) {
			return len(groups[ranked[i]]) > len(groups[ranked[j]])
		}
		return ranked[i] < ranked[j]
	})
	trunkTheme := ranked[0]

	rootItem := sc.pickRoot()

	for _, theme := range ranked {
		members := groups[theme]
		for i := range members {
			n := NodeFromItem(&members[i])
			n.Theme = theme
			sc.arena.Add(n)
		}
	}
	for i := range orphanItems {
		n := NodeFromItem(&orphanItems[i])
		n.Theme = "other"
		sc.arena.Add(n)
	}
	if sc.arena.Get(rootItem.ID) == nil {
		sc.arena.Add(NodeFromItem(rootItem))
	}

	root := sc.arena.Get(rootItem.ID)
	root.IsRoot = true
	root.Depth = 0
	root.Theme = trunkTheme

	connected := []string{root.ID}
	connectedSet := map[string]struct{}{root.ID: {}}
	var branches []BranchMeta

	// Trunk chain.
	trunk := make([]spell.Item, 0, len(groups[trunkTheme]))
	for _, it := range groups[trunkTheme] {
		if it.ID != root.ID {
			trunk = append(trunk, it)
		}
	}
	spell.SortByTierAndCost(trunk)
	trunkPlaced := sc.growBranch(trunk, root, connectedSet, maxChildren)
	connected = append(connected, trunkPlaced...)
	branches = append(branches, BranchMeta{
		Theme:           trunkTheme,
		AttachmentPoint: root.ID,
		SpellIDs:        append([]string{root.ID}, trunkPlaced...),
	})

	// Remaining themes, each from its own attachment point.
	for _, theme := range ranked[1:] {
		members := append([]spell.Item{}, groups[theme]...)
		if len(members) == 0 {
			continue
		}
		spell.SortByTierAndCost(members)

		attachment := sc.findAttachmentPoint(&members[0], connected, sims)
		if attachment == nil {
			attachment = root
		}

		placed := sc.growBranch(members, attachment, connectedSet, maxChildren)
		connected = append(connected, placed...)
		branches = append(branches, BranchMeta{
			Theme:           theme,
			AttachmentPoint: attachment.ID,
			SpellIDs:        placed,
		})
	}

	// Sweep anything not yet placed onto its best-fitting parent.
	for _, id := range sc.arena.IDs() {
		if _, ok := connectedSet[id]; ok {
			continue
		}
		node := sc.arena.Get(id)
		nodeTier := node.TierIndex()

		var best *TreeNode
		bestScore := math.Inf(-1)
		for _, cid := range connected {
			cand := sc.arena.Get(cid)
			var score float64
			if ct := cand.TierIndex(); ct <= nodeTier {
				score = 100.0 - float64(nodeTier-ct)*5.0
			} else {
				score = -200.0
			}
			score += sims.EffectSim(id, cid) * 30.0
			score += sims.TextSim(id, cid) * 15.0
			score += sims.NameSim(id, cid) * 10.0
			if node.Theme != "" && node.Theme == cand.Theme {
				score += 15.0
			}
			score -= float64(len(cand.Children)) * 8.0
			if score > bestScore {
				bestScore = score
				best = cand
			}
		}
		if best != nil {
			Link(best, node)
			connected = append(connected, id)
			connectedSet[id] = struct{}{}
		}
	}

	sc.enforceConvergence(root.ID, sims)
	sc.repairTree(root.ID, maxChildren)

	return &SchoolTree{
		Root:        root.ID,
		LayoutStyle: StrategyThematic.LayoutStyle(),
		Branches:    branches,
	}
}

// growBranch chains items off an attachment point breadth-first: each
// placed node joins the back of the parent queue, so the branch widens
// only when the front parents fill up.
func (sc *schoolContext) growBranch(items []spell.Item, attachment *TreeNode, connectedSet map[string]struct{}, maxChildren int) []string {
	var placed []string

	var parentQueue []string
	if len(attachment.Children) < maxChildren {
		parentQueue = append(parentQueue, attachment.ID)
	}

	for i := range items {
		id := items[i].ID
		if _, ok := connectedSet[id]; ok {
			continue
		}
		node := sc.arena.Get(id)
		if node == nil {
			continue
		}

		for len(parentQueue) > 0 {
			front := sc.arena.Get(parentQueue[0])
			if front != nil && len(front.Children) < maxChildren {
				break
			}
			parentQueue = parentQueue[1:]
		}

		if len(parentQueue) == 0 {
			found := sc.findParentWithCapacity(attachment, maxChildren)
			if found == nil {
				continue
			}
			parentQueue = append(parentQueue, found.ID)
		}

		Link(sc.arena.Get(parentQueue[0]), node)
		connectedSet[id] = struct{}{}
		placed = append(placed, id)
		parentQueue = append(parentQueue, id)
	}

	return placed
}

// findParentWithCapacity walks outward from start over both edge
// directions until a node with spare child capacity turns up.
func (sc *schoolContext) findParentWithCapacity(start *TreeNode, maxChildren int) *TreeNode {
	visited := make(map[string]struct{})
	queue := []string{start.ID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		n := sc.arena.Get(id)
		if n == nil {
			continue
		}
		if len(n.Children) < maxChildren {
			return n
		}
		queue = append(queue, n.Prerequisites...)
		queue = append(queue, n.Children...)
	}
	return nil
}

// findAttachmentPoint scores every connected node against the branch's
// representative item: effect, text, and name similarity pull the
// branch toward kin; depth in the tier ladder and existing load push it
// away. Chaos widens the jitter so high-chaos builds sprawl.
func (sc *schoolContext) findAttachmentPoint(representative *spell.Item, connected []string, sims *SimilarityMatrix) *TreeNode {
	var best *TreeNode
	bestScore := math.Inf(-1)

	for _, cid := range connected {
		cand := sc.arena.Get(cid)
		if cand == nil {
			continue
		}

		score := sims.EffectSim(representative.ID, cid)*35.0 +
			sims.TextSim(representative.ID, cid)*25.0 +
			sims.NameSim(representative.ID, cid)*20.0
		score -= float64(cand.TierIndex()) * 5.0
		score -= float64(len(cand.Children)) * 8.0

		if sc.cfg.Chaos > 0 {
			score += (sc.rng.Float64()*40.0 - 20.0) * sc.cfg.Chaos
		}
		score += sc.rng.Float64()*2.0 - 1.0

		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best
}
