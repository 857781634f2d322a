package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/arcanist/spelltree/pkg/spelltree/store"
)

func TestSaveAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := store.BuildRecord{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Command:   "build_tree",
		Seed:      42,
		CreatedAt: time.Now(),
		Success:   true,
	}
	if err := s.SaveBuild(ctx, rec); err != nil {
		t.Fatalf("SaveBuild: %v", err)
	}

	got, ok, err := s.GetBuild(ctx, rec.ID)
	if err != nil || !ok {
		t.Fatalf("GetBuild: ok=%v err=%v", ok, err)
	}
	if got.Command != "build_tree" || got.Seed != 42 {
		t.Errorf("got %+v", got)
	}

	if _, ok, _ := s.GetBuild(ctx, "missing"); ok {
		t.Error("missing id should not be found")
	}
}

func TestSaveEmptyIDIgnored(t *testing.T) {
	s := New()
	if err := s.SaveBuild(context.Background(), store.BuildRecord{}); err != nil {
		t.Fatalf("SaveBuild: %v", err)
	}
	builds, _ := s.ListBuilds(context.Background(), 0)
	if len(builds) != 0 {
		t.Errorf("empty id should not be stored, got %d records", len(builds))
	}
}

func TestListBuildsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		rec := store.BuildRecord{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.SaveBuild(ctx, rec); err != nil {
			t.Fatalf("SaveBuild: %v", err)
		}
	}

	builds, err := s.ListBuilds(ctx, 0)
	if err != nil {
		t.Fatalf("ListBuilds: %v", err)
	}
	if len(builds) != 3 || builds[0].ID != "c" || builds[2].ID != "a" {
		t.Errorf("expected newest-first order c,b,a; got %v", builds)
	}

	limited, _ := s.ListBuilds(ctx, 2)
	if len(limited) != 2 || limited[0].ID != "c" {
		t.Errorf("limit should keep the newest records, got %v", limited)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.SaveBuild(ctx, store.BuildRecord{ID: "x", Command: "build_tree"})
	_ = s.SaveBuild(ctx, store.BuildRecord{ID: "x", Command: "apply_locks"})

	got, _, _ := s.GetBuild(ctx, "x")
	if got.Command != "apply_locks" {
		t.Errorf("re-save should replace the record, got %q", got.Command)
	}
	builds, _ := s.ListBuilds(ctx, 0)
	if len(builds) != 1 {
		t.Errorf("re-save should not duplicate, got %d records", len(builds))
	}
}
