package tree

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/arcanist/spelltree/pkg/spelltree/internalerr"
	"github.com/arcanist/spelltree/pkg/spelltree/nlp"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/themes"
)

func newTestBuilder() *Builder {
	tok := nlp.NewTokenizer(nil)
	return NewBuilder(tok, themes.NewDiscoverer(tok, nil), nil)
}

func testConfig(seed int64) BuildConfig {
	cfg := DefaultConfig()
	cfg.Seed = seed
	return cfg
}

// destructionSet is a two-theme category large enough to exercise
// branching, convergence, and repair in every strategy.
func destructionSet() []spell.Item {
	return []spell.Item{
		{ID: "0x0001", Name: "Flames", School: "Destruction", Tier: "Novice", Description: "A gout of fire", EffectNames: []string{"Fire Damage"}, Cost: 14},
		{ID: "0x0002", Name: "Firebolt", School: "Destruction", Tier: "Apprentice", Description: "A bolt of fire", EffectNames: []string{"Fire Damage"}, Cost: 41},
		{ID: "0x0003", Name: "Fire Rune", School: "Destruction", Tier: "Apprentice", Description: "A rune of fire", EffectNames: []string{"Fire Damage"}, Cost: 50},
		{ID: "0x0004", Name: "Fireball", School: "Destruction", Tier: "Adept", Description: "A fiery explosion", EffectNames: []string{"Fire Damage"}, Cost: 133},
		{ID: "0x0005", Name: "Flame Cloak", School: "Destruction", Tier: "Adept", Description: "A cloak of fire", EffectNames: []string{"Fire Cloak"}, Cost: 289},
		{ID: "0x0006", Name: "Incinerate", School: "Destruction", Tier: "Expert", Description: "A blast of fire", EffectNames: []string{"Fire Damage"}, Cost: 298},
		{ID: "0x0007", Name: "Fire Storm", School: "Destruction", Tier: "Master", Description: "A storm of fire", EffectNames: []string{"Fire Damage"}, Cost: 1426},
		{ID: "0x0008", Name: "Frostbite", School: "Destruction", Tier: "Novice", Description: "A blast of frost", EffectNames: []string{"Frost Damage"}, Cost: 16},
		{ID: "0x0009", Name: "Ice Spike", School: "Destruction", Tier: "Apprentice", Description: "A spike of frost", EffectNames: []string{"Frost Damage"}, Cost: 48},
		{ID: "0x000A", Name: "Frost Rune", School: "Destruction", Tier: "Apprentice", Description: "A rune of frost", EffectNames: []string{"Frost Damage"}, Cost: 50},
		{ID: "0x000B", Name: "Ice Storm", School: "Destruction", Tier: "Adept", Description: "A storm of frost", EffectNames: []string{"Frost Damage"}, Cost: 144},
		{ID: "0x000C", Name: "Icy Spear", School: "Destruction", Tier: "Expert", Description: "A spear of frost", EffectNames: []string{"Frost Damage"}, Cost: 320},
		{ID: "0x000D", Name: "Blizzard", School: "Destruction", Tier: "Master", Description: "A blizzard of frost", EffectNames: []string{"Frost Damage"}, Cost: 1103},
	}
}

func allStrategies() []Strategy {
	return []Strategy{StrategyClassic, StrategyTree, StrategyGraph, StrategyThematic, StrategyOracle}
}

func TestBuildEmptyInput(t *testing.T) {
	b := newTestBuilder()
	result, err := b.Build(context.Background(), StrategyClassic, nil, testConfig(1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !result.Success {
		t.Error("empty input should produce a successful empty result")
	}
	if len(result.Schools) != 0 {
		t.Errorf("expected no school trees, got %d", len(result.Schools))
	}
	if !result.Validation.AllValid {
		t.Error("empty result should validate")
	}
}

func TestBuildSingleItemSchool(t *testing.T) {
	b := newTestBuilder()
	items := []spell.Item{
		{ID: "0xFF000001", Name: "Healing", School: "Restoration", Tier: "Novice"},
	}
	result, err := b.Build(context.Background(), StrategyTree, items, testConfig(1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tree := result.Schools["Restoration"]
	if tree == nil {
		t.Fatal("expected a Restoration tree")
	}
	if tree.Root != "0xFF000001" {
		t.Errorf("single item must become the root, got %s", tree.Root)
	}
	if len(tree.Nodes) != 1 {
		t.Errorf("expected 1 node, got %d", len(tree.Nodes))
	}
}

func TestClassicSmallScenario(t *testing.T) {
	b := newTestBuilder()
	items := []spell.Item{
		{ID: "0x00012FCD", Name: "Flames", School: "Destruction", Tier: "Novice", Description: "A gout of fire"},
		{ID: "0x0002DD2A", Name: "Firebolt", School: "Destruction", Tier: "Apprentice", Description: "A bolt of fire"},
		{ID: "0xFF000001", Name: "Healing", School: "Restoration", Tier: "Novice", Description: "Heals the caster"},
	}
	result, err := b.Build(context.Background(), StrategyClassic, items, testConfig(1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dest := result.Schools["Destruction"]
	if dest == nil {
		t.Fatal("expected a Destruction tree")
	}
	if dest.Root != "0x00012FCD" {
		t.Errorf("Flames should root Destruction, got %s", dest.Root)
	}
	var firebolt *TreeNode
	for _, n := range dest.Nodes {
		if n.ID == "0x0002DD2A" {
			firebolt = n
		}
	}
	if firebolt == nil {
		t.Fatal("Firebolt missing from tree")
	}
	if len(firebolt.Prerequisites) != 1 || firebolt.Prerequisites[0] != "0x00012FCD" {
		t.Errorf("Firebolt should require Flames, got %v", firebolt.Prerequisites)
	}
	if firebolt.Depth != 1 {
		t.Errorf("Apprentice item should sit at depth 1, got %d", firebolt.Depth)
	}

	rest := result.Schools["Restoration"]
	if rest == nil || rest.Root != "0xFF000001" {
		t.Error("Healing should root its own category")
	}
	if !result.Validation.AllValid {
		t.Errorf("expected valid build, got %+v", result.Validation)
	}
}

func TestBuildDeterministicAcrossRuns(t *testing.T) {
	items := destructionSet()
	for _, strategy := range allStrategies() {
		first := mustBuild(t, strategy, items, 42)
		for run := 0; run < 3; run++ {
			again := mustBuild(t, strategy, items, 42)
			a, _ := json.Marshal(first.Schools)
			b, _ := json.Marshal(again.Schools)
			if string(a) != string(b) {
				t.Errorf("strategy %s: run %d differs from first run with same seed", strategy, run)
			}
		}
	}
}

func TestBuildSeedChangesOutput(t *testing.T) {
	items := destructionSet()
	a, _ := json.Marshal(mustBuild(t, StrategyTree, items, 1).Schools)
	different := false
	for seed := int64(2); seed < 12; seed++ {
		b, _ := json.Marshal(mustBuild(t, StrategyTree, items, seed).Schools)
		if string(a) != string(b) {
			different = true
			break
		}
	}
	if !different {
		t.Error("ten different seeds all produced identical trees")
	}
}

func TestAllStrategiesProduceValidTrees(t *testing.T) {
	items := destructionSet()
	for _, strategy := range allStrategies() {
		result := mustBuild(t, strategy, items, 7)

		if !result.Validation.AllValid {
			t.Errorf("strategy %s: validation failed: %+v", strategy, result.Validation)
		}
		tree := result.Schools["Destruction"]
		if tree == nil {
			t.Fatalf("strategy %s: no Destruction tree", strategy)
		}
		if len(tree.Nodes) != len(items) {
			t.Errorf("strategy %s: expected %d nodes, got %d", strategy, len(items), len(tree.Nodes))
		}
		assertMutualInverses(t, strategy, tree)
		assertSingleRoot(t, strategy, tree)
	}
}

func TestClassicDepthEqualsTier(t *testing.T) {
	result := mustBuild(t, StrategyClassic, destructionSet(), 99)
	for _, n := range result.Schools["Destruction"].Nodes {
		if n.IsRoot {
			continue
		}
		if n.Depth != n.TierIndex() {
			t.Errorf("node %s (%s): depth %d != tier ordinal %d", n.Name, n.Tier, n.Depth, n.TierIndex())
		}
	}
}

func TestTreeStrategyConvergence(t *testing.T) {
	result := mustBuild(t, StrategyTree, destructionSet(), 5)
	for _, n := range result.Schools["Destruction"].Nodes {
		if n.IsRoot {
			continue
		}
		tier := n.TierIndex()
		min := 1
		switch {
		case tier >= 4:
			min = 3
		case tier >= 3:
			min = 2
		}
		if len(n.Prerequisites) < min {
			t.Errorf("node %s (%s): expected >= %d prerequisites, got %d", n.Name, n.Tier, min, len(n.Prerequisites))
		}
	}
}

func TestTreeConvergenceChanceAddsGating(t *testing.T) {
	prereqTotal := func(chance float64) int {
		cfg := testConfig(21)
		cfg.ConvergenceChance = chance
		result, err := newTestBuilder().Build(context.Background(), StrategyTree, destructionSet(), cfg)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if !result.Validation.AllValid {
			t.Fatalf("chance %v build should validate, got %+v", chance, result.Validation)
		}
		total := 0
		for _, n := range result.Schools["Destruction"].Nodes {
			total += len(n.Prerequisites)
		}
		return total
	}

	none := prereqTotal(0)
	full := prereqTotal(1)
	if full <= none {
		t.Errorf("chance 1 should add convergence edges over chance 0: got %d vs %d prerequisites", full, none)
	}
}

// treeJSON builds the Tree strategy once and returns the marshaled
// category map, so knob effects can be compared structurally.
func treeJSON(t *testing.T, seed int64, mutate func(*BuildConfig)) string {
	t.Helper()
	cfg := testConfig(seed)
	if mutate != nil {
		mutate(&cfg)
	}
	result, err := newTestBuilder().Build(context.Background(), StrategyTree, destructionSet(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !result.Validation.AllValid {
		t.Fatalf("build should validate, got %+v", result.Validation)
	}
	out, _ := json.Marshal(result.Schools)
	return string(out)
}

func assertKnobChangesOutput(t *testing.T, name string, mutate func(*BuildConfig)) {
	t.Helper()
	for seed := int64(1); seed <= 6; seed++ {
		if treeJSON(t, seed, nil) != treeJSON(t, seed, mutate) {
			return
		}
	}
	t.Errorf("%s never changed the built tree across seeds", name)
}

func TestTreeKnobsShapeOutput(t *testing.T) {
	assertKnobChangesOutput(t, "convergenceChance", func(c *BuildConfig) { c.ConvergenceChance = 1 })
	assertKnobChangesOutput(t, "allowSameTierLinks", func(c *BuildConfig) { c.AllowSameTier = true })
	assertKnobChangesOutput(t, "density", func(c *BuildConfig) { c.Density = 0 })
	assertKnobChangesOutput(t, "symmetry", func(c *BuildConfig) { c.Symmetry = 1 })
}

func TestRoundRobinParentStrictIsolation(t *testing.T) {
	b := newTestBuilder()
	items := destructionSet()

	setup := func(cfg *BuildConfig) (*schoolContext, *TreeNode, map[int][]*TreeNode) {
		sc := b.newSchoolContext("Destruction", items, nil, cfg)
		frost := NodeFromItem(&items[7]) // Frostbite, depth 0
		frost.Theme = "frost"
		sc.arena.Add(frost)
		fire := NodeFromItem(&items[1]) // Firebolt
		fire.Theme = "fire"
		sc.arena.Add(fire)
		return sc, fire, map[int][]*TreeNode{0: {frost}}
	}

	lax := testConfig(1)
	sc, node, avail := setup(&lax)
	if sc.roundRobinBestParent(node, avail, 1, sc.similarity(), 3) == nil {
		t.Error("cross-theme parent should remain usable by default")
	}

	strict := testConfig(1)
	strict.StrictIsolation = true
	sc, node, avail = setup(&strict)
	if best := sc.roundRobinBestParent(node, avail, 1, sc.similarity(), 3); best != nil {
		t.Errorf("strict isolation must reject the only cross-theme parent, got %s", best.ID)
	}
}

func TestRoundRobinParentSameTierGate(t *testing.T) {
	b := newTestBuilder()
	items := destructionSet()

	setup := func(cfg *BuildConfig) (*schoolContext, *TreeNode, map[int][]*TreeNode) {
		sc := b.newSchoolContext("Destruction", items, nil, cfg)
		firebolt := NodeFromItem(&items[1])
		firebolt.Depth = 1
		sc.arena.Add(firebolt)
		fireRune := NodeFromItem(&items[2]) // Fire Rune, same tier
		sc.arena.Add(fireRune)
		return sc, fireRune, map[int][]*TreeNode{1: {firebolt}}
	}

	deny := testConfig(1)
	sc, node, avail := setup(&deny)
	if best := sc.roundRobinBestParent(node, avail, 1, sc.similarity(), 3); best != nil {
		t.Errorf("same-depth parent should be rejected by default, got %s", best.ID)
	}

	allow := testConfig(1)
	allow.AllowSameTier = true
	sc, node, avail = setup(&allow)
	if sc.roundRobinBestParent(node, avail, 1, sc.similarity(), 3) == nil {
		t.Error("allowSameTierLinks should admit the same-depth parent")
	}
}

func TestThematicConvergence(t *testing.T) {
	result := mustBuild(t, StrategyThematic, destructionSet(), 5)
	assertHighTierGating(t, result.Schools["Destruction"])
}

func TestSelectedRootOverride(t *testing.T) {
	b := newTestBuilder()
	items := destructionSet()

	cfg := testConfig(3)
	cfg.SelectedRoots = map[string]string{"Destruction": "0x0009"} // Ice Spike, Apprentice
	result, err := b.Build(context.Background(), StrategyClassic, items, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if root := result.Schools["Destruction"].Root; root != "0x0009" {
		t.Errorf("selected root must be used verbatim, got %s", root)
	}

	// An override absent from the pool falls through silently.
	cfg = testConfig(3)
	cfg.SelectedRoots = map[string]string{"Destruction": "0xDEAD"}
	result, err = b.Build(context.Background(), StrategyClassic, items, cfg)
	if err != nil {
		t.Fatalf("Build with absent override: %v", err)
	}
	if root := result.Schools["Destruction"].Root; root == "0xDEAD" || root == "" {
		t.Errorf("absent override should fall through to auto-pick, got %q", root)
	}
}

func TestUnknownStrategy(t *testing.T) {
	if _, err := ParseStrategy("build_tree_bogus"); !errors.Is(err, internalerr.ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestConfigNormalizeClamps(t *testing.T) {
	cfg := BuildConfig{
		Seed:               1,
		MaxChildrenPerNode: 99,
		Density:            3.5,
		Chaos:              -1,
		BatchSize:          1,
	}
	cfg.Normalize()
	if cfg.MaxChildrenPerNode != 8 {
		t.Errorf("maxChildren should clamp to 8, got %d", cfg.MaxChildrenPerNode)
	}
	if cfg.Density != 1.0 {
		t.Errorf("density should clamp to 1.0, got %f", cfg.Density)
	}
	if cfg.Chaos != 0 {
		t.Errorf("chaos should clamp to 0, got %f", cfg.Chaos)
	}
	if cfg.BatchSize != 5 {
		t.Errorf("batchSize should clamp to 5, got %d", cfg.BatchSize)
	}
	if cfg.TopThemesPerSchool != 8 {
		t.Errorf("zero topThemes should default to 8, got %d", cfg.TopThemesPerSchool)
	}
}

func mustBuild(t *testing.T, strategy Strategy, items []spell.Item, seed int64) *Result {
	t.Helper()
	result, err := newTestBuilder().Build(context.Background(), strategy, items, testConfig(seed))
	if err != nil {
		t.Fatalf("Build(%s): %v", strategy, err)
	}
	return result
}

// assertHighTierGating checks the convergence floors: Expert nodes need
// at least 2 prerequisites and Master nodes at least 3.
func assertHighTierGating(t *testing.T, tree *SchoolTree) {
	t.Helper()
	for _, n := range tree.Nodes {
		if n.IsRoot {
			continue
		}
		min := 0
		switch {
		case n.TierIndex() >= 4:
			min = 3
		case n.TierIndex() >= 3:
			min = 2
		}
		if min > 0 && len(n.Prerequisites) < min {
			t.Errorf("node %s (%s): expected >= %d prerequisites, got %d", n.Name, n.Tier, min, len(n.Prerequisites))
		}
	}
}

func assertMutualInverses(t *testing.T, strategy Strategy, tree *SchoolTree) {
	t.Helper()
	byID := make(map[string]*TreeNode, len(tree.Nodes))
	for _, n := range tree.Nodes {
		byID[n.ID] = n
	}
	for _, n := range tree.Nodes {
		for _, childID := range n.Children {
			child := byID[childID]
			if child == nil {
				t.Errorf("strategy %s: node %s lists unknown child %s", strategy, n.ID, childID)
				continue
			}
			if !hasString(child.Prerequisites, n.ID) {
				t.Errorf("strategy %s: %s->%s child edge has no inverse prerequisite", strategy, n.ID, childID)
			}
		}
		for _, prereqID := range n.Prerequisites {
			parent := byID[prereqID]
			if parent == nil {
				t.Errorf("strategy %s: node %s lists unknown prerequisite %s", strategy, n.ID, prereqID)
				continue
			}
			if !hasString(parent.Children, n.ID) {
				t.Errorf("strategy %s: %s->%s prerequisite edge has no inverse child", strategy, prereqID, n.ID)
			}
		}
	}
}

func assertSingleRoot(t *testing.T, strategy Strategy, tree *SchoolTree) {
	t.Helper()
	roots := 0
	for _, n := range tree.Nodes {
		if n.IsRoot {
			roots++
			if n.ID != tree.Root {
				t.Errorf("strategy %s: root flag on %s but tree root is %s", strategy, n.ID, tree.Root)
			}
		}
		if !n.IsRoot && len(n.Prerequisites) == 0 {
			t.Errorf("strategy %s: non-root node %s has no prerequisites", strategy, n.ID)
		}
	}
	if roots != 1 {
		t.Errorf("strategy %s: expected exactly one root, got %d", strategy, roots)
	}
}
