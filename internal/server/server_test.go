package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcanist/spelltree/pkg/spelltree"
	"github.com/arcanist/spelltree/pkg/spelltree/store/memstore"
)

func newTestServer(t *testing.T, opts spelltree.Options) http.Handler {
	t.Helper()
	engine := spelltree.New(opts)
	t.Cleanup(func() { engine.Close() })
	return New(engine, zap.NewNop()).Routes()
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func buildPayload() map[string]any {
	return map[string]any{
		"command": "build_tree_classic",
		"items": []map[string]any{
			{"id": "0x0001", "name": "Flames", "category": "Destruction", "tier": "Novice", "desc": "A gout of fire"},
			{"id": "0x0002", "name": "Firebolt", "category": "Destruction", "tier": "Apprentice", "desc": "A bolt of fire"},
		},
		"config": map[string]any{"seed": 9},
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestBuildEndpoint(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{Store: memstore.New()})

	rec := postJSON(t, handler, "/v1/build", buildPayload())
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Success    bool `json:"success"`
		Categories map[string]struct {
			Root string `json:"root"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "0x0001", result.Categories["Destruction"].Root)
}

func TestBuildEndpointUnknownCommand(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{})
	rec := postJSON(t, handler, "/v1/build", map[string]any{"command": "make_coffee"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildEndpointMissingCommand(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{})
	rec := postJSON(t, handler, "/v1/build", map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildEndpointInvalidJSON(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{})
	req := httptest.NewRequest(http.MethodPost, "/v1/build", bytes.NewReader([]byte("{nope")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScoreEndpoint(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{})
	rec := postJSON(t, handler, "/v1/score", map[string]any{
		"pairs": []map[string]any{{
			"spellId": "t1",
			"spell":   map[string]any{"id": "t1", "name": "Fireball", "desc": "A fiery explosion"},
			"candidates": []map[string]any{
				{"nodeId": "a", "name": "Firebolt", "desc": "A bolt of fire"},
			},
		}},
		"settings": map[string]any{"poolSource": "same"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Scores []struct {
			BestMatch string `json:"bestMatch"`
		} `json:"scores"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Scores, 1)
	assert.Equal(t, "a", result.Scores[0].BestMatch)
}

func TestLocksEndpoint(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{})
	rec := postJSON(t, handler, "/v1/locks", map[string]any{
		"items": []map[string]any{
			{"id": "a", "name": "Flames", "category": "Destruction", "tier": "Novice"},
			{"id": "b", "name": "Firebolt", "category": "Destruction", "tier": "Apprentice"},
		},
		"existingTree": map[string]any{
			"Destruction": map[string]any{
				"root": "a",
				"nodes": []map[string]any{
					{"id": "a", "tier": "Novice", "isRoot": true, "children": []string{"b"}, "prerequisites": []string{}},
					{"id": "b", "tier": "Apprentice", "children": []string{}, "prerequisites": []string{"a"}},
				},
			},
		},
		"config": map[string]any{"globalLockPercent": 0, "seed": 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "locksApplied")
}

func TestListBuildsEndpoint(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{Store: memstore.New()})

	rec := postJSON(t, handler, "/v1/build", buildPayload())
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/builds?limit=5", nil)
	list := httptest.NewRecorder()
	handler.ServeHTTP(list, req)
	require.Equal(t, http.StatusOK, list.Code)

	var result struct {
		Builds []struct {
			ID      string `json:"ID"`
			Command string `json:"Command"`
		} `json:"builds"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &result))
	require.Len(t, result.Builds, 1)
	assert.Equal(t, "build_tree_classic", result.Builds[0].Command)
}

func TestListBuildsNoStore(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{})
	req := httptest.NewRequest(http.MethodGet, "/v1/builds", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetBuildNotFound(t *testing.T) {
	handler := newTestServer(t, spelltree.Options{Store: memstore.New()})
	req := httptest.NewRequest(http.MethodGet, "/v1/builds/01ARZ3NDEKTSV4RRFFQ69G5FAV", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
