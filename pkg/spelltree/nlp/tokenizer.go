package nlp

import (
	"strings"
	"unicode"
)

// defaultStopwords covers generic English plus the words that appear in
// nearly every spell description and therefore carry no signal.
var defaultStopwords = []string{
	// generic spell words
	"spell", "magic", "magical", "target", "targets", "effect", "effects",
	"damage", "point", "points", "second", "seconds", "per", "for", "the",
	"does", "causes", "cast", "caster", "casting", "level", "levels",
	"health", "magicka", "stamina", "drain", "drains",
	// effect description fragments
	"deals", "deal", "dur", "duration", "mag", "magnitude",
	"nearby", "enemies", "enemy", "increased", "increases", "increase",
	"decreased", "decreases", "decrease", "reduces", "reduced", "reduce",
	"restores", "restore", "restored", "absorb", "absorbs", "absorbed",
	"extra", "takes", "take", "time", "over", "while", "also",
	"resistance", "chance", "once", "each", "within", "range",
	"stronger", "powerful", "greater", "lesser", "more", "less",
	// skill rank words
	"novice", "apprentice", "adept", "expert", "master",
	// prepositions, articles, auxiliaries
	"to", "a", "an", "of", "in", "on", "at", "is", "are", "be", "with",
	"that", "this", "their", "your", "and", "or", "but", "not", "all",
	"was", "were", "been", "being", "have", "has", "had", "do",
	"did", "will", "would", "could", "should", "may", "might", "can",
	"shall", "from", "by", "as", "if", "its", "it", "they", "them",
	"he", "she", "his", "her", "we", "you", "who", "which", "when",
	"where", "how", "what", "than", "then", "into", "about", "up",
	"out", "no", "so", "just", "very", "too", "any", "some", "such",
}

// Tokenizer normalizes free text into word tokens.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a tokenizer with the given stopword list.
// Pass nil to use the built-in default list.
func NewTokenizer(stopwords []string) *Tokenizer {
	if stopwords == nil {
		stopwords = defaultStopwords
	}
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: stops}
}

// Tokenize lowercases text, strips non-alphanumeric runes, splits on
// whitespace, and drops stopwords and tokens of length <= 2.
func (t *Tokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := current.String()
		current.Reset()
		if len(word) <= 2 {
			return
		}
		if _, stop := t.stopwords[word]; stop {
			return
		}
		tokens = append(tokens, word)
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// AddStopword adds a word to the stopword list.
func (t *Tokenizer) AddStopword(word string) {
	t.stopwords[strings.ToLower(word)] = struct{}{}
}

// RemoveStopword removes a word from the stopword list.
func (t *Tokenizer) RemoveStopword(word string) {
	delete(t.stopwords, strings.ToLower(word))
}

// SplitCamelCase breaks a camel-case identifier into its component words.
// "MagicArmorSpell" becomes ["Magic", "Armor", "Spell"]. Keyword tags on
// items usually arrive in this form.
func SplitCamelCase(s string) []string {
	var words []string
	var current strings.Builder

	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}
