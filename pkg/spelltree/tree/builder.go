package tree

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/arcanist/spelltree/pkg/spelltree/internalerr"
	"github.com/arcanist/spelltree/pkg/spelltree/nlp"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/themes"
)

// Chain is one thematic learning progression proposed by the oracle.
type Chain struct {
	Name      string   `json:"name"`
	Narrative string   `json:"narrative,omitempty"`
	SpellIDs  []string `json:"spellIds"`
}

// ChainOracle proposes thematic chains for the Oracle strategy. Each
// chain's ids imply parent->child progression. Implementations must
// honor the context deadline; callers always have a deterministic
// fallback for failures.
type ChainOracle interface {
	ProposeChains(ctx context.Context, school string, items []spell.Item) ([]Chain, error)
}

// Builder runs tree construction. It holds only immutable collaborators;
// all per-build state lives in a per-call context so concurrent builds
// cannot cross-contaminate.
type Builder struct {
	tok    *nlp.Tokenizer
	disc   *themes.Discoverer
	oracle ChainOracle
}

// NewBuilder creates a Builder. oracle may be nil; the Oracle strategy
// then always uses its clustering fallback.
func NewBuilder(tok *nlp.Tokenizer, disc *themes.Discoverer, oracle ChainOracle) *Builder {
	return &Builder{tok: tok, disc: disc, oracle: oracle}
}

// SchoolTree is one category's finished tree.
type SchoolTree struct {
	Root        string       `json:"root"`
	LayoutStyle string       `json:"layoutStyle"`
	Nodes       []*TreeNode  `json:"nodes"`
	Branches    []BranchMeta `json:"branches,omitempty"`
	OracleMode  string       `json:"oracleMode,omitempty"`
}

// Result is the output envelope for one build.
type Result struct {
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	ElapsedMS  int64                  `json:"elapsedMs"`
	Seed       int64                  `json:"seed"`
	Schools    map[string]*SchoolTree `json:"categories"`
	Validation ValidationResult       `json:"validation"`
}

// Build constructs one tree per category using the given strategy, then
// validates and repairs each. Empty input yields an empty, valid result
// rather than an error.
func (b *Builder) Build(ctx context.Context, strategy Strategy, items []spell.Item, cfg BuildConfig) (*Result, error) {
	start := time.Now()
	cfg.Normalize()

	result := &Result{
		Success: true,
		Seed:    cfg.Seed,
		Schools: make(map[string]*SchoolTree),
	}

	themesPerSchool := b.disc.Themes(items, cfg.TopThemesPerSchool)
	bySchool := spell.BySchool(items)

	schools := make([]string, 0, len(bySchool))
	for school := range bySchool {
		schools = append(schools, school)
	}
	sort.Strings(schools)

	for _, school := range schools {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sc := b.newSchoolContext(school, bySchool[school], themesPerSchool[school], &cfg)
		tree, err := sc.build(ctx, strategy)
		if err != nil {
			return nil, err
		}
		if tree == nil {
			continue
		}

		if cfg.AutoFixUnreachable {
			FixUnreachable(sc.arena, tree.Root, cfg.MaxChildrenPerNode)
		}
		sc.arena.AssignSections()
		tree.Nodes = sc.arena.Nodes()
		result.Schools[school] = tree

		v := Validate(sc.arena, tree.Root, cfg.MaxChildrenPerNode)
		result.Validation.TotalNodes += v.TotalNodes
		result.Validation.ReachableNodes += v.ReachableNodes
		result.Validation.UnreachableCount += v.UnreachableCount
		result.Validation.UnreachableIDs = append(result.Validation.UnreachableIDs, v.UnreachableIDs...)
		result.Validation.CycleCount += v.CycleCount
	}

	result.Validation.AllValid = result.Validation.UnreachableCount == 0 && result.Validation.CycleCount == 0
	result.ElapsedMS = time.Since(start).Milliseconds()
	return result, nil
}

// schoolContext is the per-category build scratchpad: similarity caches,
// item texts, the node arena, and this school's derived RNG.
type schoolContext struct {
	b      *Builder
	school string
	items  []spell.Item
	themes []string
	cfg    *BuildConfig
	rng    *rand.Rand
	arena  *Arena
	texts  map[string]string

	matrix     *SimilarityMatrix
	matrixOnce bool
}

func (b *Builder) newSchoolContext(school string, items []spell.Item, schoolThemes []string, cfg *BuildConfig) *schoolContext {
	texts := make(map[string]string, len(items))
	for i := range items {
		texts[items[i].ID] = strings.ToLower(items[i].Text())
	}
	return &schoolContext{
		b:      b,
		school: school,
		items:  items,
		themes: schoolThemes,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(schoolSeed(cfg.Seed, school))),
		arena:  NewArena(),
		texts:  texts,
	}
}

// schoolSeed derives a per-school seed so each category's randomness is
// independent of the order schools are built in.
func schoolSeed(seed int64, school string) int64 {
	h := fnv.New64a()
	h.Write([]byte(school))
	return seed ^ int64(h.Sum64())
}

// similarity lazily computes the pairwise matrix; classic mode never
// needs it, so the cost is only paid by strategies that do.
func (sc *schoolContext) similarity() *SimilarityMatrix {
	if !sc.matrixOnce {
		sc.matrix = ComputeSimilarityMatrix(sc.b.tok, sc.items)
		sc.matrixOnce = true
	}
	return sc.matrix
}

func (sc *schoolContext) build(ctx context.Context, strategy Strategy) (*SchoolTree, error) {
	if len(sc.items) == 0 {
		return nil, nil
	}
	if len(sc.items) == 1 {
		return sc.singleNodeTree(strategy), nil
	}

	switch strategy {
	case StrategyClassic:
		return sc.buildClassic(), nil
	case StrategyTree:
		return sc.buildTree(), nil
	case StrategyGraph:
		return sc.buildGraph(), nil
	case StrategyThematic:
		return sc.buildThematic(), nil
	case StrategyOracle:
		return sc.buildOracle(ctx), nil
	default:
		return nil, fmt.Errorf("%w: %s", internalerr.ErrUnknownStrategy, strategy)
	}
}

// singleNodeTree handles the degenerate one-item category: that item
// becomes the root of a childless tree.
func (sc *schoolContext) singleNodeTree(strategy Strategy) *SchoolTree {
	n := NodeFromItem(&sc.items[0])
	n.IsRoot = true
	sc.arena.Add(n)
	return &SchoolTree{Root: n.ID, LayoutStyle: strategy.LayoutStyle()}
}

// pickRoot chooses the category root. A selected-root override is used
// verbatim when its id is present in the pool; otherwise pick from the
// lowest populated tier, preferring vanilla items when configured.
func (sc *schoolContext) pickRoot() *spell.Item {
	if override, ok := sc.cfg.SelectedRoots[sc.school]; ok {
		for i := range sc.items {
			if sc.items[i].ID == override {
				return &sc.items[i]
			}
		}
		// Override not in the pool: fall through to auto-pick.
	}

	byTier := make(map[int][]*spell.Item)
	for i := range sc.items {
		t := sc.items[i].TierIndex()
		byTier[t] = append(byTier[t], &sc.items[i])
	}

	for tier := 0; tier <= spell.MaxTier; tier++ {
		pool := byTier[tier]
		if len(pool) == 0 {
			continue
		}
		if sc.cfg.PreferVanillaRoots {
			var vanilla []*spell.Item
			for _, it := range pool {
				if it.IsVanilla() {
					vanilla = append(vanilla, it)
				}
			}
			if len(vanilla) > 0 {
				return vanilla[sc.rng.Intn(len(vanilla))]
			}
		}
		return pool[sc.rng.Intn(len(pool))]
	}
	return &sc.items[0]
}

// textSimilarity is plain word-overlap Jaccard over lowercased item
// texts; the cheap signal used by the classic scorer.
func (sc *schoolContext) textSimilarity(a, b string) float64 {
	ta, tb := sc.texts[a], sc.texts[b]
	if ta == "" || tb == "" {
		return 0
	}
	wordsA := fieldSet(ta)
	wordsB := fieldSet(tb)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	inter := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			inter++
		}
	}
	union := len(wordsA) + len(wordsB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func fieldSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}

// assignThemeTags tags every node with its best theme so scorers can
// reward theme coherence. Classic uses a cheap occurrence count; the
// other strategies group with the full theme scorer before this runs.
func (sc *schoolContext) assignThemeTags() {
	if len(sc.themes) == 0 {
		return
	}
	for _, n := range sc.arena.Nodes() {
		if n.item == nil {
			continue
		}
		text := sc.texts[n.ID]
		best := ""
		bestCount := 0
		for _, theme := range sc.themes {
			if c := strings.Count(text, strings.ToLower(theme)); c > bestCount {
				bestCount = c
				best = theme
			}
		}
		if best != "" {
			n.Theme = best
		}
	}
}

// shuffleItems is a seeded Fisher-Yates over an item pointer slice.
func (sc *schoolContext) shuffleItems(items []*spell.Item) {
	sc.rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
