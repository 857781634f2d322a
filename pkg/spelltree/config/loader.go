package config

import (
	"fmt"

	"github.com/arcanist/spelltree/pkg/spelltree/locks"
	"github.com/arcanist/spelltree/pkg/spelltree/nlp"
	"github.com/arcanist/spelltree/pkg/spelltree/themes"
)

// Loader loads all configuration files and constructs components
type Loader struct {
	StoplistPath   string
	ThemeHintsPath string
	LockTiersPath  string
}

// Components holds all loaded configuration components
type Components struct {
	Tokenizer    *nlp.Tokenizer
	Discoverer   *themes.Discoverer
	TierPercents []float64
}

// Load reads all configuration files and returns initialized
// components. Every path is optional; missing files fall back to the
// compiled-in defaults.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{}

	if l.StoplistPath != "" {
		stoplist, err := LoadStoplist(l.StoplistPath)
		if err != nil {
			return nil, fmt.Errorf("load stoplist: %w", err)
		}
		comp.Tokenizer = nlp.NewTokenizer(stoplist.Terms)
	} else {
		comp.Tokenizer = nlp.NewTokenizer(nil)
	}

	if l.ThemeHintsPath != "" {
		hints, err := LoadThemeHints(l.ThemeHintsPath)
		if err != nil {
			return nil, fmt.Errorf("load theme hints: %w", err)
		}
		comp.Discoverer = themes.NewDiscoverer(comp.Tokenizer, hints.Categories)
	} else {
		comp.Discoverer = themes.NewDiscoverer(comp.Tokenizer, nil)
	}

	if l.LockTiersPath != "" {
		tiers, err := LoadLockTiers(l.LockTiersPath)
		if err != nil {
			return nil, fmt.Errorf("load lock tiers: %w", err)
		}
		comp.TierPercents = tiers.Percents
	} else {
		comp.TierPercents = locks.DefaultTierPercents
	}

	return comp, nil
}
