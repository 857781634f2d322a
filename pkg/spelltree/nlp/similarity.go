package nlp

import (
	"math"
	"sort"
	"strings"
)

// CharNgramSimilarity returns the Jaccard index over n-character sliding
// windows of both strings, lowercased with whitespace removed. It captures
// morphological closeness ("Firebolt" vs "Fireball") independent of word
// boundaries. Returns 0 when either string is shorter than n.
func CharNgramSimilarity(a, b string, n int) float64 {
	la := stripSpace(strings.ToLower(a))
	lb := stripSpace(strings.ToLower(b))

	if len(la) < n || len(lb) < n {
		return 0
	}

	gramsA := ngramSet(la, n)
	gramsB := ngramSet(lb, n)

	intersection := 0
	for g := range gramsA {
		if _, ok := gramsB[g]; ok {
			intersection++
		}
	}

	union := len(gramsA) + len(gramsB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func stripSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ngramSet(s string, n int) map[string]struct{} {
	grams := make(map[string]struct{}, len(s))
	for i := 0; i+n <= len(s); i++ {
		grams[s[i:i+n]] = struct{}{}
	}
	return grams
}

// Levenshtein computes edit distance with a single-row DP table.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur := row[j]
			row[j] = min3(row[j]+1, row[j-1]+1, prev+cost)
			prev = cur
		}
	}
	return row[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Ratio is the plain fuzzy ratio: 100 * (1 - distance/maxLen), rounded.
func Ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	la := strings.ToLower(a)
	lb := strings.ToLower(b)

	dist := Levenshtein(la, lb)
	maxLen := len(la)
	if len(lb) > maxLen {
		maxLen = len(lb)
	}
	return int(math.Round((1 - float64(dist)/float64(maxLen)) * 100))
}

// PartialRatio slides the shorter string over the longer one and returns
// the best window ratio. Used when one string is a fragment of the other.
func PartialRatio(a, b string) int {
	ls := strings.ToLower(a)
	ll := strings.ToLower(b)
	if len(ls) > len(ll) {
		ls, ll = ll, ls
	}

	if ls == "" {
		return 0
	}
	if len(ls) == len(ll) {
		return Ratio(ls, ll)
	}

	best := 0
	window := len(ls)
	for i := 0; i+window <= len(ll); i++ {
		dist := Levenshtein(ls, ll[i:i+window])
		score := int(math.Round((1 - float64(dist)/float64(window)) * 100))
		if score > best {
			best = score
			if best == 100 {
				return 100
			}
		}
	}
	return best
}

// TokenSetRatio tokenizes both strings, splits them into the shared token
// set and per-side remainders, and returns the best of the three pairwise
// ratios over the recombined sorted strings. Insensitive to word order.
func (t *Tokenizer) TokenSetRatio(a, b string) int {
	tokensA := t.Tokenize(a)
	tokensB := t.Tokenize(b)

	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 100
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := toSet(tokensA)
	setB := toSet(tokensB)

	var inter, remA, remB []string
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter = append(inter, tok)
		} else {
			remA = append(remA, tok)
		}
	}
	for tok := range setB {
		if _, ok := setA[tok]; !ok {
			remB = append(remB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(remA)
	sort.Strings(remB)

	interStr := strings.Join(inter, " ")
	combinedA := joinNonEmpty(interStr, strings.Join(remA, " "))
	combinedB := joinNonEmpty(interStr, strings.Join(remB, " "))

	best := Ratio(interStr, combinedA)
	if r := Ratio(interStr, combinedB); r > best {
		best = r
	}
	if r := Ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

func toSet(tokens []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

// ThemeScore rates how well an item fits a theme keyword, 0-100. name is
// the item's display name, themeText its weighted theme text. Substring
// hits earn a flat bonus, the rest blends partial and token-set ratios
// with a 1.2x weighted name comparison.
func (t *Tokenizer) ThemeScore(name, themeText, theme string) int {
	text := strings.ToLower(themeText)
	lname := strings.ToLower(name)
	ltheme := strings.ToLower(theme)

	bonus := 0
	if strings.Contains(lname, ltheme) {
		bonus = 40
	} else if strings.Contains(text, ltheme) {
		bonus = 30
	}

	partial := PartialRatio(ltheme, text)
	tokenSet := t.TokenSetRatio(ltheme, text)
	nameScore := float64(PartialRatio(ltheme, lname)) * 1.2

	combined := float64(partial)*0.25 + float64(tokenSet)*0.25 + nameScore*0.3 + float64(bonus)
	if combined > 100 {
		return 100
	}
	return int(combined)
}
