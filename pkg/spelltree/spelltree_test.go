package spelltree

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/arcanist/spelltree/pkg/spelltree/internalerr"
	"github.com/arcanist/spelltree/pkg/spelltree/locks"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/store/memstore"
	"github.com/arcanist/spelltree/pkg/spelltree/tree"
)

func testItems() []spell.Item {
	return []spell.Item{
		{ID: "0x0001", Name: "Flames", School: "Destruction", Tier: "Novice", Description: "A gout of fire"},
		{ID: "0x0002", Name: "Firebolt", School: "Destruction", Tier: "Apprentice", Description: "A bolt of fire"},
		{ID: "0x0003", Name: "Fireball", School: "Destruction", Tier: "Adept", Description: "A fiery explosion"},
	}
}

func TestDispatchBuildCommand(t *testing.T) {
	mem := memstore.New()
	engine := New(Options{Store: mem})
	defer engine.Close()

	raw, _ := json.Marshal(BuildRequest{
		Command: "build_tree_classic",
		Items:   testItems(),
		Config:  tree.BuildConfig{Seed: 5},
	})

	out, err := engine.Dispatch(context.Background(), raw)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	var result tree.Result
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result.Success {
		t.Error("expected a successful build")
	}
	if result.Schools["Destruction"] == nil {
		t.Error("expected a Destruction tree in the response")
	}

	// The build lands in the archive.
	records, err := engine.ListBuilds(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListBuilds: %v", err)
	}
	if len(records) != 1 || records[0].Command != "build_tree_classic" {
		t.Errorf("archive = %+v", records)
	}
	if records[0].Seed != 5 || !records[0].Success {
		t.Errorf("archived record = %+v", records[0])
	}
}

func TestDispatchPRMScore(t *testing.T) {
	engine := New(Options{})

	payload := map[string]any{
		"command": "prm_score",
		"pairs": []map[string]any{{
			"spellId": "t1",
			"spell":   spell.Item{ID: "t1", Name: "Fireball", Description: "A fiery explosion"},
			"candidates": []map[string]any{
				{"nodeId": "a", "name": "Firebolt", "desc": "A bolt of fire"},
			},
		}},
		"settings": map[string]any{"poolSource": "same"},
	}
	raw, _ := json.Marshal(payload)

	out, err := engine.Dispatch(context.Background(), raw)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var result locks.ScoreResult
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Scores) != 1 || result.Scores[0].BestMatch != "a" {
		t.Errorf("scores = %+v", result.Scores)
	}
}

func TestDispatchApplyLocks(t *testing.T) {
	engine := New(Options{})

	items := testItems()
	nodes := make([]*tree.TreeNode, len(items))
	for i := range items {
		nodes[i] = tree.NodeFromItem(&items[i])
	}
	nodes[0].IsRoot = true
	tree.Link(nodes[0], nodes[1])
	tree.Link(nodes[1], nodes[2])

	raw, _ := json.Marshal(map[string]any{
		"command": "apply_locks",
		"items":   items,
		"existingTree": map[string]any{
			"Destruction": map[string]any{"root": "0x0001", "nodes": nodes},
		},
		"config": locks.Config{GlobalLockPercent: 0, Seed: 2},
	})

	out, err := engine.Dispatch(context.Background(), raw)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var result locks.Result
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.Validation.AllValid {
		t.Errorf("validation = %+v", result.Validation)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	engine := New(Options{})
	_, err := engine.Dispatch(context.Background(), []byte(`{"command":"make_coffee"}`))
	if !errors.Is(err, internalerr.ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestDispatchMalformedJSON(t *testing.T) {
	engine := New(Options{})
	_, err := engine.Dispatch(context.Background(), []byte(`{nope`))
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	engine := New(Options{})
	if _, err := engine.ListBuilds(context.Background(), 10); !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := engine.GetBuild(context.Background(), "x"); !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestGetBuildNotFound(t *testing.T) {
	engine := New(Options{Store: memstore.New()})
	_, err := engine.GetBuild(context.Background(), "missing")
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
