// Package spell defines the input record every build consumes. Items are
// read-only for the duration of a build.
package spell

import (
	"sort"
	"strconv"
	"strings"
)

// Tier names in progression order. Unknown names map to ordinal 0.
var tierOrder = []string{"Novice", "Apprentice", "Adept", "Expert", "Master"}

// MaxTier is the highest tier ordinal.
const MaxTier = 4

// TierIndex maps a tier name to its ordinal, case-insensitively.
func TierIndex(tier string) int {
	for i, name := range tierOrder {
		if strings.EqualFold(name, tier) {
			return i
		}
	}
	return 0
}

// TierName maps an ordinal back to its tier name.
func TierName(i int) string {
	if i < 0 || i >= len(tierOrder) {
		return tierOrder[0]
	}
	return tierOrder[i]
}

// Item is one spell: a node candidate for exactly one category tree.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	School      string   `json:"category"`
	Tier        string   `json:"tier"`
	Description string   `json:"desc,omitempty"`
	Effects     []string `json:"effects,omitempty"`
	EffectNames []string `json:"effectNames,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Cost        float64  `json:"magickaCost,omitempty"`
}

// SortByTierAndCost orders items tier ascending, then cost, then name.
// The stable cheap-first ordering keeps branch chains progressing.
func SortByTierAndCost(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].TierIndex(), items[j].TierIndex()
		if ti != tj {
			return ti < tj
		}
		if items[i].Cost != items[j].Cost {
			return items[i].Cost < items[j].Cost
		}
		return items[i].Name < items[j].Name
	})
}

// TierIndex returns the item's tier ordinal.
func (it *Item) TierIndex() int {
	return TierIndex(it.Tier)
}

// IsVanilla reports whether the item's id parses as a form id from one of
// the base game plugins (load-order prefix below 0x05). Vanilla items are
// preferred as roots so trees start from familiar ground.
func (it *Item) IsVanilla() bool {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(it.ID), "0x"), 16, 32)
	if err != nil {
		return false
	}
	return (v >> 24) < 0x05
}

// Text builds the similarity text for an item: name doubled so it
// outweighs the description, then description and effect strings.
func (it *Item) Text() string {
	var b strings.Builder
	if it.Name != "" {
		b.WriteString(it.Name)
		b.WriteByte(' ')
		b.WriteString(it.Name)
		b.WriteByte(' ')
	}
	if it.Description != "" {
		b.WriteString(it.Description)
		b.WriteByte(' ')
	}
	for _, eff := range it.Effects {
		if eff != "" {
			b.WriteString(eff)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// ThemeText builds the text used for theme discovery and grouping: name
// and effect names tripled, full effects once, keywords camel-split with
// any "Magic" prefix dropped.
func (it *Item) ThemeText() string {
	var b strings.Builder
	if it.Name != "" {
		for i := 0; i < 3; i++ {
			b.WriteString(it.Name)
			b.WriteByte(' ')
		}
	}
	for _, en := range it.EffectNames {
		if en == "" {
			continue
		}
		for i := 0; i < 3; i++ {
			b.WriteString(en)
			b.WriteByte(' ')
		}
	}
	for _, eff := range it.Effects {
		if eff != "" {
			b.WriteString(eff)
			b.WriteByte(' ')
		}
	}
	for _, kw := range it.Keywords {
		if kw == "" {
			continue
		}
		kw = strings.TrimPrefix(kw, "Magic")
		b.WriteString(splitCamel(kw))
		b.WriteByte(' ')
	}
	return b.String()
}

func splitCamel(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BySchool partitions items per category, preserving input order.
func BySchool(items []Item) map[string][]Item {
	out := make(map[string][]Item)
	for _, it := range items {
		out[it.School] = append(out[it.School], it)
	}
	return out
}
