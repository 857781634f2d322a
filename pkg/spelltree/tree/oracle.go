package tree

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/themes"
)

// buildOracle asks the external collaborator for thematic chains and
// wires them as sequential paths off the root. Any failure, timeout, or
// unusable reply drops to the deterministic cluster-lane fallback; the
// strategy never fails a build over the collaborator. Either way the
// finished tree picks up convergence gating like the other strategies.
func (sc *schoolContext) buildOracle(ctx context.Context) *SchoolTree {
	var tree *SchoolTree
	if sc.b.oracle != nil {
		chains, err := sc.proposeInBatches(ctx)
		if err == nil {
			chains = sc.sanitizeChains(chains)
			chains = mergeSimilarChains(chains)
			if len(chains) > 0 {
				tree = sc.buildFromChains(chains)
				tree.OracleMode = "llm"
			}
		}
	}
	if tree == nil {
		tree = sc.buildClusterLanes()
		tree.OracleMode = "fallback"
	}

	sc.enforceConvergence(tree.Root, sc.similarity())
	sc.repairTree(tree.Root, sc.cfg.MaxChildrenPerNode)
	return tree
}

// proposeInBatches splits the item list into BatchSize groups so a large
// category fits one completion per call; the chain lists concatenate and
// mergeSimilarChains folds the repeated themes afterwards.
func (sc *schoolContext) proposeInBatches(ctx context.Context) ([]Chain, error) {
	var chains []Chain
	for start := 0; start < len(sc.items); start += sc.cfg.BatchSize {
		end := start + sc.cfg.BatchSize
		if end > len(sc.items) {
			end = len(sc.items)
		}
		batch, err := sc.b.oracle.ProposeChains(ctx, sc.school, sc.items[start:end])
		if err != nil {
			return nil, err
		}
		chains = append(chains, batch...)
	}
	return chains, nil
}

// sanitizeChains drops unknown and duplicate ids and appends any item
// the oracle missed to the last chain, so coverage is total.
func (sc *schoolContext) sanitizeChains(chains []Chain) []Chain {
	valid := make(map[string]struct{}, len(sc.items))
	for i := range sc.items {
		valid[sc.items[i].ID] = struct{}{}
	}

	seen := make(map[string]struct{})
	var result []Chain
	for _, chain := range chains {
		if chain.Name == "" || len(chain.SpellIDs) == 0 {
			continue
		}
		var filtered []string
		for _, id := range chain.SpellIDs {
			if _, ok := valid[id]; !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			filtered = append(filtered, id)
			seen[id] = struct{}{}
		}
		if len(filtered) > 0 {
			chain.SpellIDs = filtered
			result = append(result, chain)
		}
	}

	if len(result) > 0 {
		last := &result[len(result)-1]
		for i := range sc.items {
			id := sc.items[i].ID
			if _, ok := seen[id]; !ok {
				last.SpellIDs = append(last.SpellIDs, id)
			}
		}
	}
	return result
}

// mergeSimilarChains folds together chains whose names share at least
// half their words; batched oracle calls tend to repeat themes.
func mergeSimilarChains(chains []Chain) []Chain {
	if len(chains) <= 1 {
		return chains
	}

	used := make([]bool, len(chains))
	var merged []Chain

	for i := range chains {
		if used[i] {
			continue
		}
		used[i] = true
		combined := chains[i]
		wordsA := wordSet(chains[i].Name)

		for j := i + 1; j < len(chains); j++ {
			if used[j] {
				continue
			}
			wordsB := wordSet(chains[j].Name)
			if len(wordsA) == 0 || len(wordsB) == 0 {
				continue
			}
			overlap := 0
			for w := range wordsA {
				if _, ok := wordsB[w]; ok {
					overlap++
				}
			}
			smaller := len(wordsA)
			if len(wordsB) < smaller {
				smaller = len(wordsB)
			}
			if float64(overlap)/float64(smaller) >= 0.5 {
				combined.SpellIDs = append(combined.SpellIDs, chains[j].SpellIDs...)
				if combined.Narrative == "" {
					combined.Narrative = chains[j].Narrative
				}
				used[j] = true
			}
		}
		merged = append(merged, combined)
	}
	return merged
}

func wordSet(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		words[w] = struct{}{}
	}
	return words
}

// buildFromChains turns each chain into a directed path: the chain's
// lowest-tier item hangs off the school root, the rest follow in tier
// order.
func (sc *schoolContext) buildFromChains(chains []Chain) *SchoolTree {
	itemsByID := make(map[string]*spell.Item, len(sc.items))
	for i := range sc.items {
		sc.arena.Add(NodeFromItem(&sc.items[i]))
		itemsByID[sc.items[i].ID] = &sc.items[i]
	}

	rootItem := sc.pickRoot()
	root := sc.arena.Get(rootItem.ID)
	root.IsRoot = true
	root.Depth = 0

	connected := map[string]struct{}{root.ID: {}}

	for _, chain := range chains {
		var ids []string
		for _, id := range chain.SpellIDs {
			if sc.arena.Get(id) != nil {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}

		sort.SliceStable(ids, func(i, j int) bool {
			a, b := itemsByID[ids[i]], itemsByID[ids[j]]
			if a.TierIndex() != b.TierIndex() {
				return a.TierIndex() < b.TierIndex()
			}
			return a.Cost < b.Cost
		})

		for _, id := range ids {
			sc.arena.Get(id).Theme = chain.Name
		}

		chainRoot := ids[0]
		if chainRoot != root.ID {
			if _, ok := connected[chainRoot]; !ok {
				Link(root, sc.arena.Get(chainRoot))
				connected[chainRoot] = struct{}{}
			}
		}

		prev := chainRoot
		for _, id := range ids[1:] {
			if _, ok := connected[id]; ok {
				continue
			}
			Link(sc.arena.Get(prev), sc.arena.Get(id))
			connected[id] = struct{}{}
			prev = id
		}
	}

	sc.oracleForceConnect(root, connected, 25.0)

	return &SchoolTree{Root: root.ID, LayoutStyle: StrategyOracle.LayoutStyle()}
}

// buildClusterLanes is the deterministic fallback: items are clustered
// by best-fit theme over their TF-IDF theme scores, and each cluster
// becomes one linear lane off the root.
func (sc *schoolContext) buildClusterLanes() *SchoolTree {
	maxChildren := sc.cfg.MaxChildrenPerNode

	for i := range sc.items {
		sc.arena.Add(NodeFromItem(&sc.items[i]))
	}

	rootItem := sc.pickRoot()
	root := sc.arena.Get(rootItem.ID)
	root.IsRoot = true
	root.Depth = 0

	var groups map[string][]spell.Item
	if len(sc.themes) == 0 {
		groups = map[string][]spell.Item{"General": append([]spell.Item{}, sc.items...)}
	} else {
		groups = sc.b.disc.GroupBestFit(sc.items, sc.themes)
	}

	laneNames := make([]string, 0, len(groups))
	for name, members := range groups {
		if name != themes.Unassigned && len(members) > 0 {
			laneNames = append(laneNames, name)
		}
	}
	sort.Strings(laneNames)

	connected := map[string]struct{}{root.ID: {}}

	for _, lane := range laneNames {
		members := append([]spell.Item{}, groups[lane]...)
		spell.SortByTierAndCost(members)

		var ids []string
		for i := range members {
			if sc.arena.Get(members[i].ID) != nil {
				ids = append(ids, members[i].ID)
				sc.arena.Get(members[i].ID).Theme = lane
			}
		}
		if len(ids) == 0 {
			continue
		}

		first := ids[0]
		if first != root.ID {
			if _, ok := connected[first]; !ok {
				parent := root
				if len(root.Children) >= maxChildren {
					if avail := sc.leastLoadedConnected(connected, maxChildren); avail != nil {
						parent = avail
					}
				}
				Link(parent, sc.arena.Get(first))
				connected[first] = struct{}{}
			}
		}

		prev := first
		for _, id := range ids[1:] {
			if _, ok := connected[id]; ok {
				continue
			}
			prevNode := sc.arena.Get(prev)
			if len(prevNode.Children) < maxChildren {
				Link(prevNode, sc.arena.Get(id))
				connected[id] = struct{}{}
				prev = id
			} else if avail := sc.leastLoadedConnected(connected, maxChildren+2); avail != nil {
				Link(avail, sc.arena.Get(id))
				connected[id] = struct{}{}
				prev = id
			}
		}
	}

	// Unassigned items join the least-loaded lane node.
	for _, members := range [][]spell.Item{groups[themes.Unassigned]} {
		for i := range members {
			id := members[i].ID
			if _, ok := connected[id]; ok {
				continue
			}
			node := sc.arena.Get(id)
			if node == nil {
				continue
			}
			node.Theme = themes.Unassigned
			parent := sc.leastLoadedConnected(connected, maxChildren)
			if parent == nil {
				parent = root
			}
			Link(parent, node)
			connected[id] = struct{}{}
		}
	}

	return &SchoolTree{Root: root.ID, LayoutStyle: StrategyOracle.LayoutStyle()}
}

// oracleForceConnect attaches stray nodes by tier fit with a same-chain
// bonus.
func (sc *schoolContext) oracleForceConnect(root *TreeNode, connected map[string]struct{}, themeBonus float64) {
	for _, id := range sc.arena.IDs() {
		if _, ok := connected[id]; ok {
			continue
		}
		node := sc.arena.Get(id)
		nodeTier := node.TierIndex()

		var best *TreeNode
		bestScore := math.Inf(-1)
		for _, cid := range sc.arena.IDs() {
			if _, ok := connected[cid]; !ok {
				continue
			}
			cand := sc.arena.Get(cid)
			var score float64
			if ct := cand.TierIndex(); ct <= nodeTier {
				score = 100.0 - float64(nodeTier-ct)*5.0
			} else {
				score = -200.0
			}
			if node.Theme != "" && node.Theme == cand.Theme {
				score += themeBonus
			}
			score -= float64(len(cand.Children)) * 10.0
			if score > bestScore {
				bestScore = score
				best = cand
			}
		}

		if best == nil {
			best = root
		}
		Link(best, node)
		connected[id] = struct{}{}
	}
}

// leastLoadedConnected returns the connected node with the fewest
// children under the cap, in arena order for determinism.
func (sc *schoolContext) leastLoadedConnected(connected map[string]struct{}, cap int) *TreeNode {
	var best *TreeNode
	for _, id := range sc.arena.IDs() {
		if _, ok := connected[id]; !ok {
			continue
		}
		n := sc.arena.Get(id)
		if len(n.Children) >= cap {
			continue
		}
		if best == nil || len(n.Children) < len(best.Children) {
			best = n
		}
	}
	return best
}
