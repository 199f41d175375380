package rnnt

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// ConfidenceAggregation names a rule for folding a group of confidence
// scores into one value, e.g. frame confidences into a token confidence or
// token confidences into a word confidence.
type ConfidenceAggregation string

const (
	ConfidenceMean ConfidenceAggregation = "mean"
	ConfidenceMin  ConfidenceAggregation = "min"
	ConfidenceMax  ConfidenceAggregation = "max"
	ConfidenceProd ConfidenceAggregation = "prod"
)

func (a ConfidenceAggregation) valid() bool {
	switch a {
	case ConfidenceMean, ConfidenceMin, ConfidenceMax, ConfidenceProd:
		return true
	}
	return false
}

// AggregateConfidence folds scores with the selected rule. An empty input
// aggregates to zero.
func AggregateConfidence[F constraints.Float](agg ConfidenceAggregation, scores []F) (F, error) {
	if len(scores) == 0 {
		return 0, nil
	}
	switch agg {
	case ConfidenceMean:
		var sum F
		for _, s := range scores {
			sum += s
		}
		return sum / F(len(scores)), nil
	case ConfidenceMin:
		m := scores[0]
		for _, s := range scores[1:] {
			if s < m {
				m = s
			}
		}
		return m, nil
	case ConfidenceMax:
		m := scores[0]
		for _, s := range scores[1:] {
			if s > m {
				m = s
			}
		}
		return m, nil
	case ConfidenceProd:
		p := scores[0]
		for _, s := range scores[1:] {
			p *= s
		}
		return p, nil
	default:
		return 0, fmt.Errorf("unknown confidence aggregation %q: %w", agg, ErrInvalidArgument)
	}
}

// WordConfidences folds token confidences into one confidence per word.
// tokensPerWord lists how many consecutive tokens form each word; the
// counts must sum to len(tokenConf).
func WordConfidences[F constraints.Float](agg ConfidenceAggregation, tokenConf []F, tokensPerWord []int) ([]F, error) {
	total := 0
	for _, c := range tokensPerWord {
		if c <= 0 {
			return nil, fmt.Errorf("tokens per word must be > 0, got %d: %w", c, ErrInvalidArgument)
		}
		total += c
	}
	if total != len(tokenConf) {
		return nil, fmt.Errorf("word token counts sum to %d, have %d token confidences: %w", total, len(tokenConf), ErrInvalidArgument)
	}
	out := make([]F, len(tokensPerWord))
	start := 0
	for w, c := range tokensPerWord {
		v, err := AggregateConfidence(agg, tokenConf[start:start+c])
		if err != nil {
			return nil, err
		}
		out[w] = v
		start += c
	}
	return out, nil
}
