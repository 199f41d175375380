package rnnt

import (
	"strings"

	"golang.org/x/exp/constraints"
)

// AlignmentPair is one frame-level decision: the raw joint output for the
// step and the label chosen from it (blank included).
type AlignmentPair[F constraints.Float] struct {
	Logits []F
	Label  int32
}

// Hypothesis is one decoded sequence for one utterance. Buffers produce it
// via the materializer; after that it owns its slices and is safe to keep
// across buffer reuse.
type Hypothesis[F constraints.Float] struct {
	Score     F       // cumulative or length-normalized log-probability
	YSequence []int32 // emitted label ids
	Timesteps []int32 // frame index of each emission, parallel to YSequence
	Length    int     // cached len(YSequence)
	Text      string  // filled by an external tokenizer, empty until then

	// Beam decomposition of Score. TokenScores holds the per-entry
	// log-probability contribution aligned with YSequence.
	LabelScore  F
	BlankScore  F
	TokenScores []F

	// Per-frame traces, grouped by frame in emission order.
	Alignments         [][]AlignmentPair[F]
	FrameConfidence    [][]F
	DurationConfidence [][]F

	TokenConfidence []F
	WordConfidence  []F

	// Opaque state owned by the external decoder and language model.
	DecState any
	LMState  any
}

// Words splits the decoded text on whitespace.
func (h *Hypothesis[F]) Words() []string {
	return strings.Fields(h.Text)
}

// NonBlankFrameConfidence picks one confidence value per emitted label out
// of the frame-grouped confidence trace, using the emission frame and the
// within-frame offset of each label. Returns nil when no labels were
// emitted or no confidence trace was kept.
func (h *Hypothesis[F]) NonBlankFrameConfidence() []F {
	if len(h.Timesteps) == 0 || h.FrameConfidence == nil {
		return nil
	}
	out := make([]F, 0, len(h.Timesteps))
	prev := int32(-1)
	offset := 0
	for _, t := range h.Timesteps {
		if t != prev {
			prev = t
			offset = 0
		} else {
			offset++
		}
		if int(t) < len(h.FrameConfidence) && offset < len(h.FrameConfidence[t]) {
			out = append(out, h.FrameConfidence[t][offset])
		}
	}
	return out
}

// NBestHypotheses holds the n best hypotheses for one utterance, best first.
type NBestHypotheses[F constraints.Float] struct {
	NBest []Hypothesis[F]
}

// Best returns the top hypothesis, or nil if the list is empty.
func (n *NBestHypotheses[F]) Best() *Hypothesis[F] {
	if len(n.NBest) == 0 {
		return nil
	}
	return &n.NBest[0]
}
