package locks

import (
	"encoding/json"
	"testing"

	"github.com/arcanist/spelltree/pkg/spelltree/nlp"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/tree"
)

// lockFixture is a single-category chain tree, tier-ascending from the
// root, big enough for the tier quotas to bite.
func lockFixture() ([]spell.Item, map[string]SchoolInput) {
	items := []spell.Item{
		{ID: "d00", Name: "Flames", School: "Destruction", Tier: "Novice", Description: "A gout of fire"},
		{ID: "d01", Name: "Sparks", School: "Destruction", Tier: "Novice", Description: "A stream of shocks"},
		{ID: "d02", Name: "Firebolt", School: "Destruction", Tier: "Apprentice", Description: "A bolt of fire"},
		{ID: "d03", Name: "Ice Spike", School: "Destruction", Tier: "Apprentice", Description: "A spike of frost"},
		{ID: "d04", Name: "Fire Rune", School: "Destruction", Tier: "Apprentice", Description: "A rune of fire"},
		{ID: "d05", Name: "Frost Rune", School: "Destruction", Tier: "Apprentice", Description: "A rune of frost"},
		{ID: "d06", Name: "Fireball", School: "Destruction", Tier: "Adept", Description: "A fiery explosion"},
		{ID: "d07", Name: "Ice Storm", School: "Destruction", Tier: "Adept", Description: "A storm of frost"},
		{ID: "d08", Name: "Flame Cloak", School: "Destruction", Tier: "Adept", Description: "A cloak of fire"},
		{ID: "d09", Name: "Frost Cloak", School: "Destruction", Tier: "Adept", Description: "A cloak of frost"},
		{ID: "d10", Name: "Incinerate", School: "Destruction", Tier: "Expert", Description: "A blast of fire"},
		{ID: "d11", Name: "Icy Spear", School: "Destruction", Tier: "Expert", Description: "A spear of frost"},
		{ID: "d12", Name: "Wall of Flames", School: "Destruction", Tier: "Expert", Description: "A wall of fire"},
		{ID: "d13", Name: "Wall of Frost", School: "Destruction", Tier: "Expert", Description: "A wall of frost"},
		{ID: "d14", Name: "Fire Storm", School: "Destruction", Tier: "Master", Description: "A storm of fire"},
		{ID: "d15", Name: "Blizzard", School: "Destruction", Tier: "Master", Description: "A blizzard of frost"},
	}

	nodes := make([]*tree.TreeNode, len(items))
	for i := range items {
		nodes[i] = tree.NodeFromItem(&items[i])
	}
	nodes[0].IsRoot = true
	for i := 1; i < len(nodes); i++ {
		tree.Link(nodes[i-1], nodes[i])
	}

	trees := map[string]SchoolInput{
		"Destruction": {Root: "d00", Nodes: nodes},
	}
	return items, trees
}

func newTestEngine() *Engine {
	return NewEngine(nlp.NewTokenizer(nil))
}

func TestApplyZeroPercent(t *testing.T) {
	items, trees := lockFixture()
	result, err := newTestEngine().Apply(Request{
		Items:  items,
		Trees:  trees,
		Config: Config{GlobalLockPercent: 0, Seed: 1},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(result.LocksApplied) != 0 {
		t.Errorf("zero percent should apply no locks, got %d", len(result.LocksApplied))
	}
	if !result.Validation.AllValid {
		t.Errorf("untouched tree should validate, got %+v", result.Validation)
	}
}

func TestApplyBudgetAndQuotas(t *testing.T) {
	items, trees := lockFixture()
	cfg := DefaultConfig(0.5)
	cfg.Seed = 7

	result, err := newTestEngine().Apply(Request{Items: items, Trees: trees, Config: cfg})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// 15 non-root items at 50 percent.
	if len(result.LocksApplied) > 7 {
		t.Errorf("budget exceeded: %d locks", len(result.LocksApplied))
	}
	if len(result.LocksApplied) == 0 {
		t.Error("expected at least one lock with a 50 percent budget")
	}

	byID := map[string]*tree.TreeNode{}
	for _, n := range trees["Destruction"].Nodes {
		byID[n.ID] = n
	}
	seenTargets := map[string]int{}
	for _, e := range result.LocksApplied {
		seenTargets[e.TargetID]++
		if byID[e.TargetID].TierIndex() == 0 {
			t.Errorf("tier-0 item %s locked despite a zero tier percent", e.TargetID)
		}
		if e.TargetID == "d00" {
			t.Error("root must never be a lock target")
		}
		srcTier := byID[e.PrerequisiteID].TierIndex()
		if srcTier > byID[e.TargetID].TierIndex() {
			t.Errorf("lock %s<-%s: source tier %d above target tier", e.TargetID, e.PrerequisiteID, srcTier)
		}
	}
	for id, n := range seenTargets {
		if n > 1 {
			t.Errorf("target %s locked %d times", id, n)
		}
	}
	if !result.Validation.AllValid {
		t.Errorf("locked tree should still validate, got %+v", result.Validation)
	}
}

func TestApplySourceUsageCap(t *testing.T) {
	items, trees := lockFixture()
	cfg := DefaultConfig(1.0)
	cfg.Seed = 3

	result, err := newTestEngine().Apply(Request{Items: items, Trees: trees, Config: cfg})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	usage := map[string]int{}
	for _, e := range result.LocksApplied {
		usage[e.PrerequisiteID]++
	}
	for id, n := range usage {
		if n > 2 {
			t.Errorf("source %s gates %d targets, cap is 2", id, n)
		}
	}
}

func TestApplyNoDescendantSources(t *testing.T) {
	items, trees := lockFixture()
	cfg := DefaultConfig(1.0)
	cfg.Seed = 5

	result, err := newTestEngine().Apply(Request{Items: items, Trees: trees, Config: cfg})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// In a chain, descendants of dNN are exactly the higher-numbered ids.
	for _, e := range result.LocksApplied {
		if e.PrerequisiteID > e.TargetID {
			t.Errorf("lock %s<-%s gates an item behind its own descendant", e.TargetID, e.PrerequisiteID)
		}
	}
}

func TestApplyDeterministic(t *testing.T) {
	cfg := DefaultConfig(0.6)
	cfg.Seed = 99

	run := func() []byte {
		items, trees := lockFixture()
		result, err := newTestEngine().Apply(Request{Items: items, Trees: trees, Config: cfg})
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		out, _ := json.Marshal(result)
		return out
	}

	first := run()
	for i := 0; i < 3; i++ {
		if string(run()) != string(first) {
			t.Fatal("same seed produced different lock sets")
		}
	}
}

func TestDistributeBudgetEven(t *testing.T) {
	_, trees := lockFixture()
	trees["Restoration"] = SchoolInput{Root: "r0", Nodes: []*tree.TreeNode{
		{ID: "r0", IsRoot: true, Tier: "Novice"},
		{ID: "r1", Tier: "Adept", Prerequisites: []string{"r0"}},
	}}

	out := distributeBudget(4, []string{"Destruction", "Restoration"}, trees, Config{Distribution: "even"})
	if out["Destruction"] != 2 {
		t.Errorf("Destruction share = %d, want 2", out["Destruction"])
	}
	// Restoration only has one non-root node; its share is clamped.
	if out["Restoration"] != 1 {
		t.Errorf("Restoration share = %d, want 1", out["Restoration"])
	}
}
