package rnnt

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// ToHypotheses materializes a greedy buffer into one Hypothesis per batch
// item, slicing each item to its current length. The records copy the
// buffer data, so they stay valid across Clear and reuse. batchSize <= 0
// materializes the whole batch; a batchSize above the buffer's fails with
// ErrInvalidArgument (graph-captured execution pads buffers past the
// logical batch, so callers pass the real size). When an alignment buffer
// is supplied, each item's frame trace is grouped by consecutive equal
// frame indices into Alignments, FrameConfidence and, when duration
// confidence is tracked, DurationConfidence.
func ToHypotheses[F constraints.Float](hyps *BatchedHyps[F], aligns *BatchedAlignments[F], batchSize int) ([]Hypothesis[F], error) {
	if batchSize <= 0 {
		batchSize = hyps.batchSize
	}
	if batchSize > hyps.batchSize {
		return nil, fmt.Errorf("batch size %d exceeds buffer batch size %d: %w", batchSize, hyps.batchSize, ErrInvalidArgument)
	}
	if aligns != nil && batchSize > aligns.batchSize {
		return nil, fmt.Errorf("batch size %d exceeds alignment buffer batch size %d: %w", batchSize, aligns.batchSize, ErrInvalidArgument)
	}
	out := make([]Hypothesis[F], batchSize)
	for b := 0; b < batchSize; b++ {
		n := hyps.currentLengths[b]
		base := b * hyps.capacity
		ySeq := make([]int32, n)
		ts := make([]int32, n)
		copy(ySeq, hyps.transcript[base:base+n])
		copy(ts, hyps.timesteps[base:base+n])
		out[b] = Hypothesis[F]{
			Score:     hyps.scores[b],
			YSequence: ySeq,
			Timesteps: ts,
			Length:    n,
		}
		if aligns != nil {
			groupAlignments(&out[b], aligns, b)
		}
	}
	return out, nil
}

// groupAlignments run-length groups item b's frame trace by frame index, in
// time order, and copies each group into the hypothesis.
func groupAlignments[F constraints.Float](h *Hypothesis[F], aligns *BatchedAlignments[F], b int) {
	n := aligns.currentLengths[b]
	base := b * aligns.capacity
	if aligns.opts.StoreAlignments {
		h.Alignments = make([][]AlignmentPair[F], 0, n)
	}
	if aligns.opts.StoreFrameConfidence {
		h.FrameConfidence = make([][]F, 0, n)
		if aligns.opts.WithDurationConfidence {
			h.DurationConfidence = make([][]F, 0, n)
		}
	}
	for start := 0; start < n; {
		end := start + 1
		for end < n && aligns.timesteps[base+end] == aligns.timesteps[base+start] {
			end++
		}
		if aligns.opts.StoreAlignments {
			group := make([]AlignmentPair[F], 0, end-start)
			for j := start; j < end; j++ {
				row := make([]F, aligns.logitsDim)
				copy(row, aligns.logits[(base+j)*aligns.logitsDim:(base+j+1)*aligns.logitsDim])
				group = append(group, AlignmentPair[F]{Logits: row, Label: aligns.labels[base+j]})
			}
			h.Alignments = append(h.Alignments, group)
		}
		if aligns.opts.StoreFrameConfidence {
			conf := make([]F, 0, end-start)
			var dur []F
			if aligns.opts.WithDurationConfidence {
				dur = make([]F, 0, end-start)
			}
			for j := start; j < end; j++ {
				conf = append(conf, aligns.frameConfidence[(base+j)*aligns.confWidth])
				if dur != nil {
					dur = append(dur, aligns.frameConfidence[(base+j)*aligns.confWidth+1])
				}
			}
			h.FrameConfidence = append(h.FrameConfidence, conf)
			if dur != nil {
				h.DurationConfidence = append(h.DurationConfidence, dur)
			}
		}
		start = end
	}
}
