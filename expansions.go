package rnnt

import (
	"fmt"
	"sort"

	"golang.org/x/exp/constraints"
)

// Expansion is one candidate continuation of a hypothesis: the label to
// append and the total score the hypothesis would have after appending it.
type Expansion[F constraints.Float] struct {
	Label int32
	Score F
}

// IsPrefix reports whether pref is a strict prefix of x. Beam search uses
// it to detect duplicate hypotheses whose compacted transcripts differ only
// by pending blanks.
func IsPrefix(x, pref []int32) bool {
	if len(pref) >= len(x) {
		return false
	}
	for i := range pref {
		if pref[i] != x[i] {
			return false
		}
	}
	return true
}

// SelectKExpansions filters candidate continuations per hypothesis with an
// adaptive threshold: candidates scoring within gamma of each hypothesis's
// best candidate survive, ordered best first. topkLabels and topkLogps list
// the top-k labels and log-probabilities for each hypothesis; hypScores
// holds the current hypothesis scores. A hypothesis with no candidates
// yields a single zero-label expansion carrying its unchanged score.
func SelectKExpansions[F constraints.Float](hypScores []F, topkLabels [][]int32, topkLogps [][]F, gamma F) ([][]Expansion[F], error) {
	if len(topkLabels) != len(hypScores) || len(topkLogps) != len(hypScores) {
		return nil, fmt.Errorf("top-k arrays must cover %d hypotheses, got %d labels, %d logps: %w",
			len(hypScores), len(topkLabels), len(topkLogps), ErrInvalidArgument)
	}
	out := make([][]Expansion[F], len(hypScores))
	for i, score := range hypScores {
		if len(topkLabels[i]) != len(topkLogps[i]) {
			return nil, fmt.Errorf("hypothesis %d: %d labels vs %d logps: %w",
				i, len(topkLabels[i]), len(topkLogps[i]), ErrInvalidArgument)
		}
		if len(topkLabels[i]) == 0 {
			out[i] = []Expansion[F]{{Label: 0, Score: score}}
			continue
		}
		cands := make([]Expansion[F], len(topkLabels[i]))
		bestLabel := topkLabels[i][0]
		bestScore := score + topkLogps[i][0]
		for j := range cands {
			cands[j] = Expansion[F]{Label: topkLabels[i][j], Score: score + topkLogps[i][j]}
			if cands[j].Score > bestScore {
				bestLabel, bestScore = cands[j].Label, cands[j].Score
			}
		}
		kept := cands[:0]
		for _, c := range cands {
			if c.Score >= bestScore-gamma {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			// negative gamma can reject even the best candidate
			kept = append(kept, Expansion[F]{Label: bestLabel, Score: bestScore})
		}
		sort.SliceStable(kept, func(a, b int) bool { return kept[a].Score > kept[b].Score })
		out[i] = kept
	}
	return out, nil
}
