// Package spelltree is the facade over the tree construction engine:
// one entry point that wires the tokenizer, theme discovery, the five
// builders, the lock pass, and the build archive together.
package spelltree

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/arcanist/spelltree/pkg/spelltree/internalerr"
	"github.com/arcanist/spelltree/pkg/spelltree/locks"
	"github.com/arcanist/spelltree/pkg/spelltree/nlp"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/store"
	"github.com/arcanist/spelltree/pkg/spelltree/themes"
	"github.com/arcanist/spelltree/pkg/spelltree/tree"
)

// Engine is the main spell-tree facade
type Engine struct {
	tok          *nlp.Tokenizer
	disc         *themes.Discoverer
	builder      *tree.Builder
	lockEngine   *locks.Engine
	scorer       *locks.Scorer
	store        store.Store
	tierPercents []float64
	entropy      *ulid.MonotonicEntropy
}

// Options configures an Engine instance
type Options struct {
	// Tokenizer and Discoverer default to the compiled-in stopwords
	// and theme hints when nil.
	Tokenizer  *nlp.Tokenizer
	Discoverer *themes.Discoverer
	// Oracle backs the LLM-guided strategy; nil means that strategy
	// always uses its deterministic fallback.
	Oracle tree.ChainOracle
	// Store archives finished builds; nil disables archiving.
	Store store.Store
	// TierPercents overrides the default lock tier table.
	TierPercents []float64
}

// New creates an Engine with the given dependencies
func New(opts Options) *Engine {
	tok := opts.Tokenizer
	if tok == nil {
		tok = nlp.NewTokenizer(nil)
	}
	disc := opts.Discoverer
	if disc == nil {
		disc = themes.NewDiscoverer(tok, nil)
	}
	tiers := opts.TierPercents
	if len(tiers) == 0 {
		tiers = locks.DefaultTierPercents
	}
	return &Engine{
		tok:          tok,
		disc:         disc,
		builder:      tree.NewBuilder(tok, disc, opts.Oracle),
		lockEngine:   locks.NewEngine(tok),
		scorer:       locks.NewScorer(tok),
		store:        opts.Store,
		tierPercents: tiers,
		entropy:      ulid.Monotonic(rand.Reader, 0),
	}
}

// Close cleanly shuts down the Engine
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// BuildRequest is the wire envelope for a tree build
type BuildRequest struct {
	Command string           `json:"command" validate:"required"`
	Items   []spell.Item     `json:"items"`
	Config  tree.BuildConfig `json:"config"`
}

// Build constructs trees for the request's command. Unknown commands
// and cancelled contexts return an error; everything else comes back as
// a Result, failed or not.
func (e *Engine) Build(ctx context.Context, req BuildRequest) (*tree.Result, error) {
	strategy, err := tree.ParseStrategy(req.Command)
	if err != nil {
		return nil, err
	}

	result, err := e.builder.Build(ctx, strategy, req.Items, req.Config)
	if err != nil {
		return nil, err
	}

	e.archive(ctx, req.Command, result.Seed, result.Success, result.ElapsedMS, req, result)
	return result, nil
}

// LockRequest is the wire envelope for a lock pass
type LockRequest struct {
	Items  []spell.Item                 `json:"items"`
	Trees  map[string]locks.SchoolInput `json:"existingTree"`
	Config locks.Config                 `json:"config"`
}

// ApplyLocks runs the prerequisite-lock pass over already-built trees
func (e *Engine) ApplyLocks(ctx context.Context, req LockRequest) (*locks.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := req.Config
	if len(cfg.TierPercents) == 0 {
		cfg.TierPercents = e.tierPercents
	}

	start := time.Now()
	result, err := e.lockEngine.Apply(locks.Request{Items: req.Items, Trees: req.Trees, Config: cfg})
	if err != nil {
		return nil, err
	}

	e.archive(ctx, "apply_locks", cfg.Seed, result.Validation.AllValid,
		time.Since(start).Milliseconds(), req, result)
	return result, nil
}

// PRMScore ranks lock candidates for each requested pair
func (e *Engine) PRMScore(ctx context.Context, req locks.ScoreRequest) (*locks.ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.scorer.ScoreBatch(req), nil
}

// GetBuild returns one archived build by id
func (e *Engine) GetBuild(ctx context.Context, id string) (store.BuildRecord, error) {
	if e.store == nil {
		return store.BuildRecord{}, internalerr.ErrStoreUnavailable
	}
	rec, ok, err := e.store.GetBuild(ctx, id)
	if err != nil {
		return store.BuildRecord{}, err
	}
	if !ok {
		return store.BuildRecord{}, fmt.Errorf("%w: build %s", internalerr.ErrNotFound, id)
	}
	return rec, nil
}

// ListBuilds returns archived builds, newest first
func (e *Engine) ListBuilds(ctx context.Context, limit int) ([]store.BuildRecord, error) {
	if e.store == nil {
		return nil, internalerr.ErrStoreUnavailable
	}
	return e.store.ListBuilds(ctx, limit)
}

// Dispatch routes a raw wire envelope to the matching operation. Build
// commands go to the builder, "prm_score" to the scorer, "apply_locks"
// to the lock engine.
func (e *Engine) Dispatch(ctx context.Context, raw []byte) (json.RawMessage, error) {
	var head struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err)
	}

	switch head.Command {
	case "prm_score":
		var req struct {
			locks.ScoreRequest
			Command string `json:"command"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err)
		}
		result, err := e.PRMScore(ctx, req.ScoreRequest)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)

	case "apply_locks":
		var req struct {
			LockRequest
			Command string `json:"command"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err)
		}
		result, err := e.ApplyLocks(ctx, req.LockRequest)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)

	default:
		var req BuildRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err)
		}
		result, err := e.Build(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}

// archive stores the request and result payloads; archiving failures
// never fail the operation itself.
func (e *Engine) archive(ctx context.Context, command string, seed int64, success bool, elapsedMS int64, req, result any) {
	if e.store == nil {
		return
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return
	}
	resJSON, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = e.store.SaveBuild(ctx, store.BuildRecord{
		ID:          ulid.MustNew(ulid.Now(), e.entropy).String(),
		Command:     command,
		Seed:        seed,
		CreatedAt:   time.Now().UTC(),
		Success:     success,
		ElapsedMS:   elapsedMS,
		RequestJSON: string(reqJSON),
		ResultJSON:  string(resJSON),
	})
}
