package locks

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/arcanist/spelltree/pkg/spelltree/nlp"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/tree"
)

// Config tunes the lock pass.
type Config struct {
	// GlobalLockPercent is the fraction of non-root items that get a
	// lock, 0..1.
	GlobalLockPercent float64 `json:"globalLockPercent"`
	// TierPercents caps how much of each tier may be locked, indexed by
	// tier ordinal. Missing entries read as 0.
	TierPercents []float64 `json:"tierPercents,omitempty"`
	// Distribution splits the global budget across categories:
	// "even", "proportional", or "random".
	Distribution string `json:"distribution,omitempty"`
	// PoolSource is "same" (same category only) or "nearby" (all
	// categories, with proximity blended into the score).
	PoolSource    string  `json:"poolSource,omitempty"`
	ProximityBias float64 `json:"proximityBias,omitempty"`
	MaxDistance   float64 `json:"maxDistance,omitempty"`
	// AllowChainLocks permits items that already received a lock to
	// serve as lock sources themselves.
	AllowChainLocks bool `json:"allowChainLocks,omitempty"`
	// MaxDependents caps how many targets one source may gate.
	MaxDependents int `json:"maxDependents,omitempty"`
	// PoolCap bounds the candidate pool per target before scoring.
	PoolCap int   `json:"poolCap,omitempty"`
	Seed    int64 `json:"seed,omitempty"`
}

// DefaultTierPercents keeps low tiers open and gates the top half.
var DefaultTierPercents = []float64{0, 0.1, 0.25, 0.4, 0.5}

// DefaultConfig returns lock defaults with the given global percent.
func DefaultConfig(percent float64) Config {
	return Config{
		GlobalLockPercent: percent,
		TierPercents:      DefaultTierPercents,
		Distribution:      "proportional",
		PoolSource:        "same",
		ProximityBias:     0.5,
		MaxDistance:       5,
		MaxDependents:     2,
		PoolCap:           50,
	}
}

func (c *Config) normalize() {
	if c.GlobalLockPercent < 0 {
		c.GlobalLockPercent = 0
	}
	if c.GlobalLockPercent > 1 {
		c.GlobalLockPercent = 1
	}
	if len(c.TierPercents) == 0 {
		c.TierPercents = DefaultTierPercents
	}
	switch c.Distribution {
	case "even", "proportional", "random":
	default:
		c.Distribution = "proportional"
	}
	switch c.PoolSource {
	case "same", "nearby":
	default:
		c.PoolSource = "same"
	}
	if c.MaxDistance <= 0 {
		c.MaxDistance = 5
	}
	if c.MaxDependents <= 0 {
		c.MaxDependents = 2
	}
	if c.PoolCap <= 0 {
		c.PoolCap = 50
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Edge is one applied (or removed) lock: PrerequisiteID gates TargetID.
type Edge struct {
	TargetID       string  `json:"targetId"`
	PrerequisiteID string  `json:"prerequisiteId"`
	Score          float64 `json:"score"`
}

// Result is the outcome of one lock pass.
type Result struct {
	LocksApplied      []Edge                `json:"locksApplied"`
	CycleEdgesRemoved []Edge                `json:"cycleEdgesRemoved"`
	Validation        tree.ValidationResult `json:"validation"`
}

// SchoolInput is one category's built tree handed to the lock pass.
type SchoolInput struct {
	Root  string           `json:"root"`
	Nodes []*tree.TreeNode `json:"nodes"`
}

// Request is a full lock-application request.
type Request struct {
	Items  []spell.Item           `json:"items"`
	Trees  map[string]SchoolInput `json:"existingTree"`
	Config Config                 `json:"config"`
}

// Engine runs the lock pass. It never mutates the structural tree: lock
// edges live only in the Result, and cycle repair removes lock edges
// exclusively.
type Engine struct {
	scorer *Scorer
}

// NewEngine creates an Engine around a tokenizer.
func NewEngine(tok *nlp.Tokenizer) *Engine {
	return &Engine{scorer: NewScorer(tok)}
}

// Apply runs the whole pipeline: budget, candidate filtering, local
// scoring, weighted selection, then Kahn-based cycle removal over the
// combined structural-plus-lock graph. A zero percent yields an empty
// LocksApplied, never an error.
func (e *Engine) Apply(req Request) (*Result, error) {
	cfg := req.Config
	cfg.normalize()

	result := &Result{
		LocksApplied:      []Edge{},
		CycleEdgesRemoved: []Edge{},
	}

	schools := lo.Keys(req.Trees)
	sort.Strings(schools)
	nonRootTotal := 0
	for _, school := range schools {
		in := req.Trees[school]
		nonRootTotal += lo.CountBy(in.Nodes, func(n *tree.TreeNode) bool {
			return n.ID != in.Root
		})
	}

	totalBudget := int(math.Floor(float64(nonRootTotal) * cfg.GlobalLockPercent))
	if totalBudget == 0 || nonRootTotal == 0 {
		e.validateAll(req, result, nil)
		return result, nil
	}

	itemsByID := make(map[string]*spell.Item, len(req.Items))
	for i := range req.Items {
		itemsByID[req.Items[i].ID] = &req.Items[i]
	}

	budgets := distributeBudget(totalBudget, schools, req.Trees, cfg)

	lockedTargets := make(map[string]struct{})
	sourceUsage := make(map[string]int)

	for _, school := range schools {
		budget := budgets[school]
		if budget == 0 {
			continue
		}
		in := req.Trees[school]
		rng := rand.New(rand.NewSource(schoolSeed(cfg.Seed, school)))

		sp := newSchoolPass(e, school, in, req.Trees, itemsByID, &cfg, rng)
		edges := sp.run(budget, lockedTargets, sourceUsage)
		result.LocksApplied = append(result.LocksApplied, edges...)
	}

	// Cycle repair over the union of every category's structural edges
	// plus all lock edges; locks can cross categories in nearby mode.
	kept, removed := removeLockCycles(req.Trees, result.LocksApplied)
	if len(removed) > 0 {
		result.CycleEdgesRemoved = removed
		result.LocksApplied = kept
	}

	e.validateAll(req, result, result.LocksApplied)
	return result, nil
}

// validateAll re-runs the unlock simulation over the whole forest with
// surviving lock edges folded in as extra prerequisites, so validation
// sees the graph a player would face, cross-category locks included.
func (e *Engine) validateAll(req Request, result *Result, locks []Edge) {
	schools := lo.Keys(req.Trees)
	sort.Strings(schools)

	a := tree.NewArena()
	roots := make([]string, 0, len(schools))
	for _, school := range schools {
		in := req.Trees[school]
		roots = append(roots, in.Root)
		for _, n := range in.Nodes {
			a.Add(&tree.TreeNode{
				ID:            n.ID,
				Name:          n.Name,
				School:        n.School,
				Tier:          n.Tier,
				Depth:         n.Depth,
				IsRoot:        n.IsRoot,
				Children:      append([]string{}, n.Children...),
				Prerequisites: append([]string{}, n.Prerequisites...),
			})
		}
	}
	for _, lock := range locks {
		src, dst := a.Get(lock.PrerequisiteID), a.Get(lock.TargetID)
		if src == nil || dst == nil {
			continue
		}
		tree.AddConvergence(src, dst)
	}
	result.Validation = tree.ValidateForest(a, roots, 0)
}

// distributeBudget splits the global budget across categories.
func distributeBudget(total int, schools []string, trees map[string]SchoolInput, cfg Config) map[string]int {
	counts := make(map[string]int, len(schools))
	sum := 0
	for _, school := range schools {
		in := trees[school]
		c := 0
		for _, n := range in.Nodes {
			if n.ID != in.Root {
				c++
			}
		}
		counts[school] = c
		sum += c
	}

	out := make(map[string]int, len(schools))
	switch cfg.Distribution {
	case "even":
		each := total / len(schools)
		for _, school := range schools {
			out[school] = minInt(each, counts[school])
		}
	case "random":
		rng := rand.New(rand.NewSource(cfg.Seed))
		for i := 0; i < total; i++ {
			school := schools[rng.Intn(len(schools))]
			if out[school] < counts[school] {
				out[school]++
			}
		}
	default: // proportional
		for _, school := range schools {
			share := int(math.Floor(float64(total) * float64(counts[school]) / float64(sum)))
			out[school] = minInt(share, counts[school])
		}
	}
	return out
}

func schoolSeed(seed int64, school string) int64 {
	h := fnv.New64a()
	h.Write([]byte(school))
	return seed ^ int64(h.Sum64())
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
