// Package locks implements the prerequisite-lock pass: a second,
// independent stage that gates already-built trees with extra hard
// prerequisite edges chosen by similarity scoring.
package locks

import (
	"math"
	"sort"

	"github.com/arcanist/spelltree/pkg/spelltree/nlp"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
)

// Candidate is one potential lock source offered for a target item.
// Distance is a hop count supplied by the caller in nearby mode; nil
// means "as far as it gets" and scores as MaxDistance.
type Candidate struct {
	NodeID string `json:"nodeId"`
	spell.Item
	Distance *float64 `json:"distance,omitempty"`
}

// ScoredCandidate is a candidate with its final blended score.
type ScoredCandidate struct {
	NodeID string  `json:"nodeId"`
	Score  float64 `json:"score"`
}

// ScoreSettings tunes the candidate scorer.
type ScoreSettings struct {
	ProximityBias float64 `json:"proximityBias"`
	PoolSource    string  `json:"poolSource"`
	MaxDistance   float64 `json:"distance"`
}

// DefaultScoreSettings returns the scorer defaults.
func DefaultScoreSettings() ScoreSettings {
	return ScoreSettings{ProximityBias: 0.5, PoolSource: "nearby", MaxDistance: 5}
}

// topCandidates is how many scored candidates survive per target.
const topCandidates = 5

// Scorer ranks lock candidates for a target item.
type Scorer struct {
	tok *nlp.Tokenizer
}

// NewScorer creates a Scorer around a tokenizer.
func NewScorer(tok *nlp.Tokenizer) *Scorer {
	return &Scorer{tok: tok}
}

// ScoreCandidates ranks candidates against the target item and returns
// the top five. The TF-IDF corpus is just the target plus its pool, so
// weights reflect what distinguishes candidates locally rather than
// across the whole category. Scores are rounded to four decimals.
func (s *Scorer) ScoreCandidates(target spell.Item, candidates []Candidate, settings ScoreSettings) []ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	docs := make([][]string, 0, len(candidates)+1)
	docs = append(docs, s.tok.Tokenize(target.Text()))
	for i := range candidates {
		docs = append(docs, s.tok.Tokenize(candidates[i].Text()))
	}
	vectors := nlp.ComputeTFIDF(docs)
	targetVec := vectors[0]

	scored := make([]ScoredCandidate, 0, len(candidates))
	for i := range candidates {
		nlpScore := nlp.CosineSimilarity(targetVec, vectors[i+1])

		final := nlpScore
		if settings.PoolSource == "nearby" && settings.ProximityBias > 0 {
			dist := settings.MaxDistance
			if candidates[i].Distance != nil {
				dist = *candidates[i].Distance
			}
			prox := 0.0
			if settings.MaxDistance > 0 {
				prox = math.Max(0, 1-dist/settings.MaxDistance)
			}
			final = (1-settings.ProximityBias)*nlpScore + settings.ProximityBias*prox
		}

		scored = append(scored, ScoredCandidate{
			NodeID: candidates[i].NodeID,
			Score:  math.Round(final*10000) / 10000,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topCandidates {
		scored = scored[:topCandidates]
	}
	return scored
}

// ScorePair is one target-plus-pool scoring request.
type ScorePair struct {
	SpellID    string      `json:"spellId"`
	Spell      spell.Item  `json:"spell"`
	Candidates []Candidate `json:"candidates"`
}

// ScoreRequest is a batch of scoring pairs.
type ScoreRequest struct {
	Pairs    []ScorePair   `json:"pairs"`
	Settings ScoreSettings `json:"settings"`
}

// PairScore is the ranked result for one pair.
type PairScore struct {
	SpellID       string            `json:"spellId"`
	BestMatch     string            `json:"bestMatch"`
	Score         float64           `json:"score"`
	TopCandidates []ScoredCandidate `json:"topCandidates"`
}

// ScoreResult is the batch response.
type ScoreResult struct {
	Scores []PairScore `json:"scores"`
}

// ScoreBatch scores every pair in the request. Pairs with an empty
// candidate pool produce no entry.
func (s *Scorer) ScoreBatch(req ScoreRequest) *ScoreResult {
	settings := req.Settings
	if settings.MaxDistance == 0 && settings.ProximityBias == 0 && settings.PoolSource == "" {
		settings = DefaultScoreSettings()
	}

	result := &ScoreResult{}
	for _, pair := range req.Pairs {
		ranked := s.ScoreCandidates(pair.Spell, pair.Candidates, settings)
		if len(ranked) == 0 {
			continue
		}
		result.Scores = append(result.Scores, PairScore{
			SpellID:       pair.SpellID,
			BestMatch:     ranked[0].NodeID,
			Score:         ranked[0].Score,
			TopCandidates: ranked,
		})
	}
	return result
}
