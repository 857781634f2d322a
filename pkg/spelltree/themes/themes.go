// Package themes discovers keyword clusters per category and assigns
// items to their best-fitting cluster.
package themes

import (
	"sort"
	"strings"

	"github.com/arcanist/spelltree/pkg/spelltree/nlp"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
)

// DefaultHints are pre-authored core concepts per school. Discovery can
// add to them but every school always keeps at least these.
var DefaultHints = map[string][]string{
	"Destruction": {"fire", "frost", "shock", "cloak", "rune", "wall", "bolt", "storm"},
	"Conjuration": {"conjure", "summon", "bound", "atronach", "zombie", "raise", "reanimate", "dremora"},
	"Alteration":  {"flesh", "armor", "paralyze", "detect", "light", "transmute", "waterbreathing", "telekinesis"},
	"Illusion":    {"fury", "fear", "calm", "courage", "invisibility", "muffle", "frenzy", "pacify"},
	"Restoration": {"heal", "healing", "ward", "turn", "undead", "cure", "bane", "circle"},
}

// Unassigned is the bucket for items that fit no theme above the cutoff.
const Unassigned = "_unassigned"

// MinGroupScore is the theme-score cutoff below which an item stays
// unassigned.
const MinGroupScore = 30

// Discoverer extracts themes from item text.
type Discoverer struct {
	tok   *nlp.Tokenizer
	hints map[string][]string
}

// NewDiscoverer creates a Discoverer. Pass nil hints to use DefaultHints.
func NewDiscoverer(tok *nlp.Tokenizer, hints map[string][]string) *Discoverer {
	if hints == nil {
		hints = DefaultHints
	}
	return &Discoverer{tok: tok, hints: hints}
}

// DiscoverPerSchool ranks the top-N TF-IDF terms per school as candidate
// themes. Schools with fewer than two items are skipped; discovery needs
// a corpus to contrast against.
func (d *Discoverer) DiscoverPerSchool(items []spell.Item, topN int) map[string][]string {
	bySchool := spell.BySchool(items)
	result := make(map[string][]string, len(bySchool))

	for school, schoolItems := range bySchool {
		if len(schoolItems) < 2 {
			continue
		}

		documents := make([][]string, len(schoolItems))
		for i := range schoolItems {
			documents[i] = d.tok.Tokenize(schoolItems[i].ThemeText())
		}

		vectors := nlp.ComputeTFIDF(documents)

		// Sum each term's weight across all documents.
		termScores := make(map[string]float64)
		for _, vec := range vectors {
			for term, w := range vec.Weights {
				termScores[term] += w
			}
		}

		type scored struct {
			term  string
			score float64
		}
		ranked := make([]scored, 0, len(termScores))
		for term, score := range termScores {
			ranked = append(ranked, scored{term, score})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].score != ranked[j].score {
				return ranked[i].score > ranked[j].score
			}
			return ranked[i].term < ranked[j].term
		})

		var themes []string
		for _, s := range ranked {
			if len(s.term) <= 2 {
				continue
			}
			themes = append(themes, s.term)
			if len(themes) >= topN {
				break
			}
		}
		result[school] = themes
	}

	return result
}

// MergeWithHints combines discovered themes with the hint table:
// discovered themes keep their ranking ahead of hints, duplicates are
// dropped case-insensitively, and each school is capped at maxThemes.
// Schools present only in the hint table get their hints verbatim.
func (d *Discoverer) MergeWithHints(discovered map[string][]string, maxThemes int) map[string][]string {
	merged := make(map[string][]string, len(discovered)+len(d.hints))

	for school, themes := range discovered {
		seen := make(map[string]struct{}, len(themes))
		var result []string
		for _, t := range append(append([]string{}, themes...), d.hints[school]...) {
			key := strings.ToLower(t)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, t)
			if len(result) >= maxThemes {
				break
			}
		}
		merged[school] = result
	}

	for school, hintThemes := range d.hints {
		if _, ok := merged[school]; !ok {
			merged[school] = append([]string{}, hintThemes...)
		}
	}

	return merged
}

// Themes runs discovery and hint merging in one pass. topN caps discovery
// per school; the merged list is capped at topN+4 so hints still fit.
func (d *Discoverer) Themes(items []spell.Item, topN int) map[string][]string {
	discovered := d.DiscoverPerSchool(items, topN)
	return d.MergeWithHints(discovered, topN+4)
}

// PrimaryTheme returns the best-scoring theme for an item, or Unassigned
// when no theme scores above zero.
func (d *Discoverer) PrimaryTheme(it *spell.Item, themes []string) (string, int) {
	if len(themes) == 0 {
		return Unassigned, 0
	}

	themeText := it.ThemeText()
	best := ""
	bestScore := 0
	for _, theme := range themes {
		if score := d.tok.ThemeScore(it.Name, themeText, theme); score > bestScore {
			bestScore = score
			best = theme
		}
	}
	if best == "" {
		return Unassigned, 0
	}
	return best, bestScore
}

// GroupBestFit assigns every item to its primary theme, requiring at
// least MinGroupScore; weaker fits land in the Unassigned bucket. Every
// theme gets an entry even when empty.
func (d *Discoverer) GroupBestFit(items []spell.Item, themes []string) map[string][]spell.Item {
	groups := make(map[string][]spell.Item, len(themes)+1)
	for _, theme := range themes {
		groups[theme] = nil
	}
	groups[Unassigned] = nil

	for i := range items {
		theme, score := d.PrimaryTheme(&items[i], themes)
		if score >= MinGroupScore && theme != Unassigned {
			groups[theme] = append(groups[theme], items[i])
		} else {
			groups[Unassigned] = append(groups[Unassigned], items[i])
		}
	}

	return groups
}
