package tree

import (
	"github.com/arcanist/spelltree/pkg/spelltree/nlp"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
)

// SimilarityMatrix caches pairwise similarities for one category build.
// Values below a per-channel floor are not stored; lookups for missing
// pairs return 0. Built once per build call and discarded with it, so
// concurrent builds never share state.
type SimilarityMatrix struct {
	textSims   map[pairKey]float64
	nameSims   map[pairKey]float64
	effectSims map[pairKey]float64
}

type pairKey struct{ a, b string }

const (
	textSimFloor   = 0.05
	nameSimFloor   = 0.1
	effectSimFloor = 0.3
)

// ComputeSimilarityMatrix builds the three channels: TF-IDF cosine over
// item text, char 3-gram similarity over names, and the best pairwise
// 3-gram similarity between effect-name lists.
func ComputeSimilarityMatrix(tok *nlp.Tokenizer, items []spell.Item) *SimilarityMatrix {
	m := &SimilarityMatrix{
		textSims:   make(map[pairKey]float64),
		nameSims:   make(map[pairKey]float64),
		effectSims: make(map[pairKey]float64),
	}

	documents := make([][]string, len(items))
	for i := range items {
		documents[i] = tok.Tokenize(items[i].Text())
	}
	vectors := nlp.ComputeTFIDF(documents)

	for i := range items {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i].ID, items[j].ID

			if sim := nlp.CosineSimilarity(vectors[i], vectors[j]); sim >= textSimFloor {
				m.textSims[pairKey{a, b}] = sim
				m.textSims[pairKey{b, a}] = sim
			}

			if nsim := nlp.CharNgramSimilarity(items[i].Name, items[j].Name, 3); nsim >= nameSimFloor {
				m.nameSims[pairKey{a, b}] = nsim
				m.nameSims[pairKey{b, a}] = nsim
			}

			var best float64
			for _, ea := range items[i].EffectNames {
				for _, eb := range items[j].EffectNames {
					if sim := nlp.CharNgramSimilarity(ea, eb, 3); sim > best {
						best = sim
					}
				}
			}
			if best >= effectSimFloor {
				m.effectSims[pairKey{a, b}] = best
				m.effectSims[pairKey{b, a}] = best
			}
		}
	}

	return m
}

// TextSim returns the TF-IDF cosine similarity between two items.
func (m *SimilarityMatrix) TextSim(a, b string) float64 { return m.textSims[pairKey{a, b}] }

// NameSim returns the name n-gram similarity between two items.
func (m *SimilarityMatrix) NameSim(a, b string) float64 { return m.nameSims[pairKey{a, b}] }

// EffectSim returns the best effect-name similarity between two items.
func (m *SimilarityMatrix) EffectSim(a, b string) float64 { return m.effectSims[pairKey{a, b}] }
