package locks

import (
	"testing"

	"github.com/arcanist/spelltree/pkg/spelltree/tree"
)

func chainInput(school string, ids ...string) SchoolInput {
	nodes := make([]*tree.TreeNode, len(ids))
	for i, id := range ids {
		nodes[i] = &tree.TreeNode{ID: id, School: school}
	}
	nodes[0].IsRoot = true
	for i := 1; i < len(nodes); i++ {
		tree.Link(nodes[i-1], nodes[i])
	}
	return SchoolInput{Root: ids[0], Nodes: nodes}
}

func TestRemoveLockCyclesKeepsAcyclic(t *testing.T) {
	trees := map[string]SchoolInput{"destruction": chainInput("destruction", "a", "b", "c")}
	locks := []Edge{{TargetID: "c", PrerequisiteID: "a"}}

	kept, removed := removeLockCycles(trees, locks)
	if len(removed) != 0 {
		t.Errorf("acyclic lock removed: %v", removed)
	}
	if len(kept) != 1 {
		t.Errorf("expected 1 kept lock, got %d", len(kept))
	}
}

func TestRemoveLockCyclesBreaksLoop(t *testing.T) {
	trees := map[string]SchoolInput{"destruction": chainInput("destruction", "a", "b", "c")}
	// c gating a closes a->b->c->a.
	locks := []Edge{{TargetID: "a", PrerequisiteID: "c"}}

	kept, removed := removeLockCycles(trees, locks)
	if len(removed) != 1 {
		t.Fatalf("expected the cycle-closing lock removed, kept=%v removed=%v", kept, removed)
	}
	if len(kept) != 0 {
		t.Errorf("no locks should survive, got %v", kept)
	}
}

func TestRemoveLockCyclesSparesInnocentLocks(t *testing.T) {
	trees := map[string]SchoolInput{"destruction": chainInput("destruction", "a", "b", "c", "d")}
	locks := []Edge{
		{TargetID: "b", PrerequisiteID: "c"}, // closes b->c->b
		{TargetID: "d", PrerequisiteID: "a"}, // harmless
	}

	kept, removed := removeLockCycles(trees, locks)
	if len(removed) != 1 || removed[0].TargetID != "b" {
		t.Errorf("expected only the b<-c lock removed, got %v", removed)
	}
	if len(kept) != 1 || kept[0].TargetID != "d" {
		t.Errorf("the a->d lock should survive, got %v", kept)
	}
}

// A lock whose prerequisite lives in another category must not trip
// cycle removal when the combined graph is acyclic: the external source
// has to be seeded alongside its own category's structure, or the
// target's whole subtree looks cyclic and innocent locks get dropped.
func TestRemoveLockCyclesCrossSchoolPrerequisite(t *testing.T) {
	a := &tree.TreeNode{ID: "a", School: "destruction", IsRoot: true}
	b := &tree.TreeNode{ID: "b", School: "destruction"}
	d := &tree.TreeNode{ID: "d", School: "destruction"}
	e := &tree.TreeNode{ID: "e", School: "destruction"}
	tree.Link(a, b)
	tree.Link(b, d)
	tree.Link(b, e)

	x := &tree.TreeNode{ID: "x", School: "restoration", IsRoot: true}

	trees := map[string]SchoolInput{
		"destruction": {Root: "a", Nodes: []*tree.TreeNode{a, b, d, e}},
		"restoration": {Root: "x", Nodes: []*tree.TreeNode{x}},
	}
	locks := []Edge{
		{TargetID: "b", PrerequisiteID: "x"}, // cross-category gate
		{TargetID: "e", PrerequisiteID: "d"}, // same-category, acyclic
	}

	kept, removed := removeLockCycles(trees, locks)
	if len(removed) != 0 {
		t.Fatalf("acyclic cross-category graph lost locks: %v", removed)
	}
	if len(kept) != 2 {
		t.Errorf("expected both locks kept, got %v", kept)
	}
}

// Mutual gating across categories forms a real cycle that only the
// union graph can see.
func TestRemoveLockCyclesCrossSchoolLoop(t *testing.T) {
	trees := map[string]SchoolInput{
		"destruction": chainInput("destruction", "a", "b"),
		"restoration": chainInput("restoration", "x", "y"),
	}
	locks := []Edge{
		{TargetID: "y", PrerequisiteID: "b"}, // b->y
		{TargetID: "b", PrerequisiteID: "y"}, // y->b closes the loop
		{TargetID: "b", PrerequisiteID: "x"}, // source off the cycle, kept
	}

	kept, removed := removeLockCycles(trees, locks)
	if len(removed) != 2 {
		t.Fatalf("expected the mutual-gate locks removed, kept=%v removed=%v", kept, removed)
	}
	if len(kept) != 1 || kept[0].PrerequisiteID != "x" {
		t.Errorf("the x->b lock should survive, got %v", kept)
	}
}

func TestRemoveLockCyclesNoLocks(t *testing.T) {
	trees := map[string]SchoolInput{"destruction": chainInput("destruction", "a", "b")}
	kept, removed := removeLockCycles(trees, nil)
	if kept != nil || removed != nil {
		t.Errorf("nothing to do, got kept=%v removed=%v", kept, removed)
	}
}
