package locks

import (
	"math/rand"
	"sort"

	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/tree"
)

// schoolPass is the per-category lock selection state.
type schoolPass struct {
	e         *Engine
	school    string
	in        SchoolInput
	trees     map[string]SchoolInput
	itemsByID map[string]*spell.Item
	cfg       *Config
	rng       *rand.Rand

	nodesByID map[string]*tree.TreeNode
	order     []string
}

func newSchoolPass(e *Engine, school string, in SchoolInput, trees map[string]SchoolInput, itemsByID map[string]*spell.Item, cfg *Config, rng *rand.Rand) *schoolPass {
	nodesByID := make(map[string]*tree.TreeNode, len(in.Nodes))
	order := make([]string, 0, len(in.Nodes))
	for _, n := range in.Nodes {
		nodesByID[n.ID] = n
		order = append(order, n.ID)
	}
	return &schoolPass{
		e:         e,
		school:    school,
		in:        in,
		trees:     trees,
		itemsByID: itemsByID,
		cfg:       cfg,
		rng:       rng,
		nodesByID: nodesByID,
		order:     order,
	}
}

// run picks lock targets within budget and selects one prerequisite for
// each. Targets are drawn tier by tier from the top down, honoring the
// per-tier percent caps, so high tiers get gated first.
func (sp *schoolPass) run(budget int, lockedTargets map[string]struct{}, sourceUsage map[string]int) []Edge {
	byTier := make(map[int][]string)
	for _, id := range sp.order {
		if id == sp.in.Root {
			continue
		}
		t := sp.nodesByID[id].TierIndex()
		byTier[t] = append(byTier[t], id)
	}

	var edges []Edge
	for t := spell.MaxTier; t >= 0 && budget > 0; t-- {
		pool := byTier[t]
		if len(pool) == 0 {
			continue
		}
		pct := 0.0
		if t < len(sp.cfg.TierPercents) {
			pct = sp.cfg.TierPercents[t]
		}
		quota := int(float64(len(pool)) * pct)
		if quota == 0 {
			continue
		}

		shuffled := append([]string{}, pool...)
		sp.rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		for _, targetID := range shuffled {
			if quota == 0 || budget == 0 {
				break
			}
			if _, done := lockedTargets[targetID]; done {
				continue
			}
			edge, ok := sp.lockTarget(targetID, lockedTargets, sourceUsage)
			if !ok {
				continue
			}
			edges = append(edges, edge)
			lockedTargets[targetID] = struct{}{}
			sourceUsage[edge.PrerequisiteID]++
			quota--
			budget--
		}
	}
	return edges
}

// lockTarget filters, scores, and draws one prerequisite for a target.
func (sp *schoolPass) lockTarget(targetID string, lockedTargets map[string]struct{}, sourceUsage map[string]int) (Edge, bool) {
	target := sp.nodesByID[targetID]
	targetItem := sp.itemsByID[targetID]
	if targetItem == nil {
		return Edge{}, false
	}

	pool := sp.candidatePool(target, lockedTargets, sourceUsage)
	if len(pool) == 0 {
		return Edge{}, false
	}

	ranked := sp.e.scorer.ScoreCandidates(*targetItem, pool, ScoreSettings{
		ProximityBias: sp.cfg.ProximityBias,
		PoolSource:    sp.cfg.PoolSource,
		MaxDistance:   sp.cfg.MaxDistance,
	})
	if len(ranked) == 0 {
		return Edge{}, false
	}

	pick := weightedDraw(sp.rng, ranked)
	return Edge{TargetID: targetID, PrerequisiteID: pick.NodeID, Score: pick.Score}, true
}

// candidatePool gathers admissible lock sources for a target. A source
// must sit at the target's tier or below, must not be a descendant of
// the target, must not be reachable only through the target, and must
// not already gate the target structurally.
func (sp *schoolPass) candidatePool(target *tree.TreeNode, lockedTargets map[string]struct{}, sourceUsage map[string]int) []Candidate {
	targetTier := target.TierIndex()
	descendants := sp.descendantsOf(target.ID)
	viaTarget := sp.reachableOnlyThrough(target.ID)
	structural := make(map[string]struct{}, len(target.Prerequisites))
	for _, p := range target.Prerequisites {
		structural[p] = struct{}{}
	}
	var hops map[string]int
	if sp.cfg.PoolSource == "nearby" {
		hops = sp.hopDistance(target.ID)
	}

	admit := func(id string, sameSchool bool) (Candidate, bool) {
		if id == target.ID {
			return Candidate{}, false
		}
		if _, ok := descendants[id]; ok {
			return Candidate{}, false
		}
		if sameSchool {
			if _, ok := viaTarget[id]; ok {
				return Candidate{}, false
			}
		}
		if _, ok := structural[id]; ok {
			return Candidate{}, false
		}
		if !sp.cfg.AllowChainLocks {
			if _, ok := lockedTargets[id]; ok {
				return Candidate{}, false
			}
		}
		if sourceUsage[id] >= sp.cfg.MaxDependents {
			return Candidate{}, false
		}
		item := sp.itemsByID[id]
		if item == nil {
			return Candidate{}, false
		}

		cand := Candidate{NodeID: id, Item: *item}
		if sp.cfg.PoolSource == "nearby" {
			d := sp.cfg.MaxDistance
			if sameSchool {
				if h, ok := hops[id]; ok {
					d = float64(h)
				}
			}
			cand.Distance = &d
		}
		return cand, true
	}

	var pool []Candidate
	for _, id := range sp.order {
		n := sp.nodesByID[id]
		if n.TierIndex() > targetTier {
			continue
		}
		if c, ok := admit(id, true); ok {
			pool = append(pool, c)
		}
		if len(pool) >= sp.cfg.PoolCap {
			return pool
		}
	}

	if sp.cfg.PoolSource == "nearby" {
		schools := make([]string, 0, len(sp.trees))
		for school := range sp.trees {
			schools = append(schools, school)
		}
		sort.Strings(schools)
		for _, school := range schools {
			if school == sp.school {
				continue
			}
			for _, n := range sp.trees[school].Nodes {
				if n.ID == sp.trees[school].Root || spell.TierIndex(n.Tier) > targetTier {
					continue
				}
				if c, ok := admit(n.ID, false); ok {
					pool = append(pool, c)
				}
				if len(pool) >= sp.cfg.PoolCap {
					return pool
				}
			}
		}
	}
	return pool
}

// descendantsOf returns the transitive structural children of a node.
func (sp *schoolPass) descendantsOf(id string) map[string]struct{} {
	out := make(map[string]struct{})
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := sp.nodesByID[cur]
		if n == nil {
			continue
		}
		for _, child := range n.Children {
			if _, ok := out[child]; ok {
				continue
			}
			out[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	delete(out, id)
	return out
}

// reachableOnlyThrough finds nodes whose every unlock path runs through
// the excluded node: locking behind one of those would soft-deadlock.
func (sp *schoolPass) reachableOnlyThrough(excluded string) map[string]struct{} {
	unlocked := map[string]struct{}{sp.in.Root: {}}
	for changed := true; changed; {
		changed = false
		for _, id := range sp.order {
			if id == excluded {
				continue
			}
			if _, ok := unlocked[id]; ok {
				continue
			}
			n := sp.nodesByID[id]
			if len(n.Prerequisites) == 0 {
				continue
			}
			met := true
			for _, p := range n.Prerequisites {
				if _, ok := unlocked[p]; !ok {
					met = false
					break
				}
			}
			if met {
				unlocked[id] = struct{}{}
				changed = true
			}
		}
	}

	out := make(map[string]struct{})
	for _, id := range sp.order {
		if id == excluded {
			continue
		}
		if _, ok := unlocked[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// hopDistance is undirected BFS distance from a node over structural
// edges.
func (sp *schoolPass) hopDistance(from string) map[string]int {
	dist := map[string]int{from: 0}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := sp.nodesByID[cur]
		if n == nil {
			continue
		}
		for _, next := range append(append([]string{}, n.Children...), n.Prerequisites...) {
			if _, ok := dist[next]; ok {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// weightedDraw picks one candidate with probability proportional to its
// score. Zero-score pools degrade to a uniform draw.
func weightedDraw(rng *rand.Rand, ranked []ScoredCandidate) ScoredCandidate {
	total := 0.0
	for _, c := range ranked {
		if c.Score > 0 {
			total += c.Score
		}
	}
	if total <= 0 {
		return ranked[rng.Intn(len(ranked))]
	}
	r := rng.Float64() * total
	for _, c := range ranked {
		if c.Score <= 0 {
			continue
		}
		r -= c.Score
		if r <= 0 {
			return c
		}
	}
	return ranked[len(ranked)-1]
}
