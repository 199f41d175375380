package rnnt

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/exp/constraints"
)

// WERResult holds word error rate counts for one or more reference and
// hypothesis pairs.
type WERResult struct {
	WER           float64 // (substitutions + insertions + deletions) / reference words
	Substitutions int
	Insertions    int
	Deletions     int
	RefWords      int
}

// ComputeWER calculates the word error rate between reference and decoded
// text. Both sides are normalized: lowercased, punctuation stripped,
// whitespace collapsed.
func ComputeWER(reference, hypothesis string) WERResult {
	ref := tokenizeWords(reference)
	hyp := tokenizeWords(hypothesis)

	n, m := len(ref), len(hyp)
	if n == 0 {
		return WERResult{}
	}

	// Edit-distance table, flat [n+1, m+1] row-major.
	w := m + 1
	d := make([]int, (n+1)*w)
	for i := 0; i <= n; i++ {
		d[i*w] = i
	}
	for j := 0; j <= m; j++ {
		d[j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if ref[i-1] == hyp[j-1] {
				d[i*w+j] = d[(i-1)*w+j-1]
				continue
			}
			d[i*w+j] = 1 + min(d[(i-1)*w+j-1], min(d[(i-1)*w+j], d[i*w+j-1]))
		}
	}

	// Walk the table back to split the distance into error kinds.
	var subs, ins, dels int
	for i, j := n, m; i > 0 || j > 0; {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1]:
			i--
			j--
		case i > 0 && j > 0 && d[i*w+j] == d[(i-1)*w+j-1]+1:
			subs++
			i--
			j--
		case i > 0 && d[i*w+j] == d[(i-1)*w+j]+1:
			dels++
			i--
		default:
			ins++
			j--
		}
	}

	return WERResult{
		WER:           float64(subs+ins+dels) / float64(n),
		Substitutions: subs,
		Insertions:    ins,
		Deletions:     dels,
		RefWords:      n,
	}
}

// EvalHypotheses accumulates WER counts of decoded hypotheses against
// reference transcripts, paired by index. Hypothesis.Text must be filled
// by the external tokenizer beforehand. The aggregate WER divides the
// summed error counts by the summed reference words.
func EvalHypotheses[F constraints.Float](references []string, hypotheses []Hypothesis[F]) (WERResult, error) {
	if len(references) != len(hypotheses) {
		return WERResult{}, fmt.Errorf("%d references vs %d hypotheses: %w", len(references), len(hypotheses), ErrInvalidArgument)
	}
	var agg WERResult
	for i := range references {
		r := ComputeWER(references[i], hypotheses[i].Text)
		agg.Substitutions += r.Substitutions
		agg.Insertions += r.Insertions
		agg.Deletions += r.Deletions
		agg.RefWords += r.RefWords
	}
	if agg.RefWords > 0 {
		agg.WER = float64(agg.Substitutions+agg.Insertions+agg.Deletions) / float64(agg.RefWords)
	}
	return agg, nil
}

// tokenizeWords lowercases text, strips punctuation, and splits on whitespace.
func tokenizeWords(s string) []string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Fields(s)
}
