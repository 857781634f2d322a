package tree

import (
	"math/rand"
	"time"
)

// BuildConfig carries the per-build parameters. Construct from caller
// input, call Normalize once, then treat as read-only for the build.
type BuildConfig struct {
	Seed               int64             `json:"seed"`
	MaxChildrenPerNode int               `json:"maxChildrenPerNode"`
	TopThemesPerSchool int               `json:"topThemesPerCategory"`
	PreferVanillaRoots bool              `json:"preferRoot"`
	AutoFixUnreachable bool              `json:"autoFixUnreachable"`
	SelectedRoots      map[string]string `json:"selectedRoots,omitempty"`

	// Mode-specific knobs.
	Density           float64 `json:"density"`
	Symmetry          float64 `json:"symmetry"`
	Chaos             float64 `json:"chaos"`
	ConvergenceChance float64 `json:"convergenceChance"`
	ForceBalance      float64 `json:"forceBalance"`
	AllowSameTier     bool    `json:"allowSameTierLinks"`
	StrictIsolation   bool    `json:"strictIsolation"`
	BatchSize         int     `json:"batchSize"`
}

// DefaultConfig returns the defaults used when the caller omits fields.
func DefaultConfig() BuildConfig {
	return BuildConfig{
		MaxChildrenPerNode: 3,
		TopThemesPerSchool: 8,
		PreferVanillaRoots: true,
		AutoFixUnreachable: true,
		Density:            0.6,
		Symmetry:           0.3,
		Chaos:              0.0,
		ConvergenceChance:  0.4,
		ForceBalance:       0.5,
		BatchSize:          20,
	}
}

// Normalize clamps out-of-range values silently and resolves a zero seed
// to a time-derived one. Call exactly once per build so a resolved seed
// stays stable for the build's lifetime.
func (c *BuildConfig) Normalize() {
	c.Density = clamp01(c.Density)
	c.Symmetry = clamp01(c.Symmetry)
	c.Chaos = clamp01(c.Chaos)
	c.ConvergenceChance = clamp01(c.ConvergenceChance)
	c.ForceBalance = clamp01(c.ForceBalance)
	if c.MaxChildrenPerNode == 0 {
		c.MaxChildrenPerNode = 3
	}
	if c.TopThemesPerSchool == 0 {
		c.TopThemesPerSchool = 8
	}
	c.MaxChildrenPerNode = clampInt(c.MaxChildrenPerNode, 1, 8)
	c.TopThemesPerSchool = clampInt(c.TopThemesPerSchool, 1, 30)
	if c.BatchSize < 5 {
		c.BatchSize = 5
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// NewRand creates the build's seeded generator. Every source of
// randomness threads through one of these; global RNG state is never
// consulted, so a fixed seed reproduces a build exactly.
func (c *BuildConfig) NewRand() *rand.Rand {
	return rand.New(rand.NewSource(c.Seed))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
