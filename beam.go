package rnnt

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/exp/constraints"
)

// BatchedBeamHyps accumulates beam-search decoding state for a fixed batch
// and beam width. Every beam slot keeps a compacted, blank-free transcript
// used for duplicate-prefix checks, and a parallel full trace that records
// blank emissions too, so exact alignments stay reconstructible per beam.
// All per-beam sequences share flat [batch, beam, capacity] backing stores
// that double together when the longest full trace outgrows them.
//
// Reordering after beam re-ranking gathers every parallel buffer through
// preallocated shadow storage and swaps, so growth remains the only
// allocating per-step operation. Finalizing a hypothesis into the completed
// list materializes a record and therefore allocates.
type BatchedBeamHyps[F constraints.Float] struct {
	batchSize int
	beamSize  int
	capacity  int
	blankID   int32

	// per-(batch, beam) scalars, flat [batch*beam]
	currentLengths      []int   // compacted labels per beam
	fullCurrentLengths  []int   // full-trace entries per beam, blanks included
	scores              []F     // length-normalized score
	labelScores         []F     // cumulative label log-probability
	blankScores         []F     // cumulative blank log-probability
	lastTimestep        []int32 // frame cursor, starts at 0, advanced by blanks
	lastTimestepRepeats []int32 // consecutive labels emitted without a blank

	// per-(batch, beam) sequences, flat [batch*beam*capacity]
	transcript     []int32 // compacted label ids
	timesteps      []int32 // emission frame per compacted label
	totalScores    []F     // normalized score after each compacted label
	fullTranscript []int32 // full trace, blank entries hold blankID
	fullTimesteps  []int32 // frame per full-trace entry
	tokenScores    []F     // log-probability contribution per full-trace entry

	shadow *beamStorage[F]

	// finalized hypotheses per batch item, in encounter order
	completed [][]Hypothesis[F]
}

// beamStorage mirrors the gatherable buffers of BatchedBeamHyps; reorder
// gathers into it and swaps.
type beamStorage[F constraints.Float] struct {
	currentLengths      []int
	fullCurrentLengths  []int
	scores              []F
	labelScores         []F
	blankScores         []F
	lastTimestep        []int32
	lastTimestepRepeats []int32

	transcript     []int32
	timesteps      []int32
	totalScores    []F
	fullTranscript []int32
	fullTimesteps  []int32
	tokenScores    []F
}

// NewBatchedBeamHyps allocates beam-search storage for batchSize utterances
// with beamSize beams each and room for initCapacity full-trace entries per
// beam before the first growth. blankID is the label id recorded for blank
// entries in full traces and completed hypotheses.
func NewBatchedBeamHyps[F constraints.Float](batchSize, beamSize, initCapacity int, blankID int32) (*BatchedBeamHyps[F], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d: %w", batchSize, ErrInvalidArgument)
	}
	if beamSize <= 0 {
		return nil, fmt.Errorf("beam size must be > 0, got %d: %w", beamSize, ErrInvalidArgument)
	}
	if initCapacity <= 0 {
		return nil, fmt.Errorf("initial capacity must be > 0, got %d: %w", initCapacity, ErrInvalidArgument)
	}
	if blankID < 0 {
		return nil, fmt.Errorf("blank id must be >= 0, got %d: %w", blankID, ErrInvalidArgument)
	}
	slots := batchSize * beamSize
	h := &BatchedBeamHyps[F]{
		batchSize:           batchSize,
		beamSize:            beamSize,
		capacity:            initCapacity,
		blankID:             blankID,
		currentLengths:      make([]int, slots),
		fullCurrentLengths:  make([]int, slots),
		scores:              make([]F, slots),
		labelScores:         make([]F, slots),
		blankScores:         make([]F, slots),
		lastTimestep:        make([]int32, slots),
		lastTimestepRepeats: make([]int32, slots),
		transcript:          make([]int32, slots*initCapacity),
		timesteps:           make([]int32, slots*initCapacity),
		totalScores:         make([]F, slots*initCapacity),
		fullTranscript:      make([]int32, slots*initCapacity),
		fullTimesteps:       make([]int32, slots*initCapacity),
		tokenScores:         make([]F, slots*initCapacity),
		completed:           make([][]Hypothesis[F], batchSize),
	}
	h.shadow = &beamStorage[F]{
		currentLengths:      make([]int, slots),
		fullCurrentLengths:  make([]int, slots),
		scores:              make([]F, slots),
		labelScores:         make([]F, slots),
		blankScores:         make([]F, slots),
		lastTimestep:        make([]int32, slots),
		lastTimestepRepeats: make([]int32, slots),
		transcript:          make([]int32, slots*initCapacity),
		timesteps:           make([]int32, slots*initCapacity),
		totalScores:         make([]F, slots*initCapacity),
		fullTranscript:      make([]int32, slots*initCapacity),
		fullTimesteps:       make([]int32, slots*initCapacity),
		tokenScores:         make([]F, slots*initCapacity),
	}
	return h, nil
}

// BatchSize returns the fixed batch dimension.
func (h *BatchedBeamHyps[F]) BatchSize() int { return h.batchSize }

// BeamSize returns the fixed beam width.
func (h *BatchedBeamHyps[F]) BeamSize() int { return h.beamSize }

// Capacity returns the current per-beam full-trace capacity.
func (h *BatchedBeamHyps[F]) Capacity() int { return h.capacity }

// BlankID returns the label id recorded for blank entries.
func (h *BatchedBeamHyps[F]) BlankID() int32 { return h.blankID }

// CurrentLength returns the compacted label count of beam k for batch item b.
func (h *BatchedBeamHyps[F]) CurrentLength(b, k int) int {
	return h.currentLengths[b*h.beamSize+k]
}

// FullCurrentLength returns the full-trace entry count, blanks included.
func (h *BatchedBeamHyps[F]) FullCurrentLength(b, k int) int {
	return h.fullCurrentLengths[b*h.beamSize+k]
}

// Score returns the length-normalized score of beam k for batch item b.
func (h *BatchedBeamHyps[F]) Score(b, k int) F {
	return h.scores[b*h.beamSize+k]
}

// LastTimestep returns the frame cursor of beam k for batch item b. The
// cursor starts at 0 and advances by the blank count of each append; the
// next label lands on the frame it points at.
func (h *BatchedBeamHyps[F]) LastTimestep(b, k int) int32 {
	return h.lastTimestep[b*h.beamSize+k]
}

// LastTimestepRepeats returns how many consecutive labels beam k of batch
// item b has emitted without consuming a frame. Decoding loops consult it
// to cap symbols per frame; the buffer never enforces a cap.
func (h *BatchedBeamHyps[F]) LastTimestepRepeats(b, k int) int32 {
	return h.lastTimestepRepeats[b*h.beamSize+k]
}

// NumCompleted returns how many hypotheses batch item b has finalized.
func (h *BatchedBeamHyps[F]) NumCompleted(b int) int { return len(h.completed[b]) }

// Transcript returns the compacted, blank-free label sequence of beam k for
// batch item b. The slice aliases buffer storage and is valid until the
// next append, reorder or Clear; decoding loops use it for duplicate-prefix
// checks between steps.
func (h *BatchedBeamHyps[F]) Transcript(b, k int) []int32 {
	i := b*h.beamSize + k
	return h.transcript[i*h.capacity : i*h.capacity+h.currentLengths[i]]
}

// AppendLabels extends every beam by one non-blank label preceded by
// numBlanks blank frames. All arrays are flat [batch, beam] row-major.
// blankLogpsPerBlank carries one log-probability per preceding blank for
// each slot (rows may be nil when that slot has no blanks); it feeds the
// per-entry token scores while blankLogps carries the summed contribution.
// The frame cursor of each beam advances by its blank count, the label is
// recorded on the frame the cursor lands on, and the normalized score is
// recomputed as the cumulative label and blank mass over the full trace
// length.
func (h *BatchedBeamHyps[F]) AppendLabels(labels []int32, labelLogps, blankLogps []F, blankLogpsPerBlank [][]F, numBlanks []int32) error {
	if err := h.validateExtensions(labels, labelLogps, blankLogps, blankLogpsPerBlank, numBlanks); err != nil {
		return err
	}
	h.growForAppend(numBlanks)
	h.appendLabels(labels, labelLogps, blankLogps, blankLogpsPerBlank, numBlanks)
	return nil
}

// UpdateBeam reorders every per-beam buffer according to beamIdx and then
// appends the given extensions. beamIdx is flat [batch, beam]: for each new
// slot it names the old beam slot the extension descends from, repetitions
// allowed, so high-scoring beams duplicate and low-scoring ones drop out.
// Extension arrays are indexed by the new slot. The gather applies to all
// parallel buffers atomically; nothing is written if validation fails.
func (h *BatchedBeamHyps[F]) UpdateBeam(labels []int32, labelLogps, blankLogps []F, blankLogpsPerBlank [][]F, numBlanks []int32, beamIdx []int32) error {
	if err := h.validateExtensions(labels, labelLogps, blankLogps, blankLogpsPerBlank, numBlanks); err != nil {
		return err
	}
	if err := h.validateBeamIdx(beamIdx); err != nil {
		return err
	}
	h.gather(beamIdx)
	h.growForAppend(numBlanks)
	h.appendLabels(labels, labelLogps, blankLogps, blankLogpsPerBlank, numBlanks)
	return nil
}

// AddCompleted finalizes candidate hypotheses that left the live beam set.
// All arrays are flat [batch, beam] and indexed by candidate slot, like
// UpdateBeam: slot k of batch item b descends from old beam beamIdx[b,k],
// extends it with numBlanks[b,k] blanks and one terminal label, and is
// finalized exactly when becameInactiveLogps[b,k] is not -Inf. Finalized
// candidates are appended to the item's completed list in slot order. The
// record keeps the full trace: YSequence and Timesteps include the blank
// entries (as BlankID), TokenScores their per-entry contributions, and
// Score follows the same length-normalized rule as AppendLabels over the
// extended trace. The parent beam state is not modified; the caller stops
// extending retired beams.
func (h *BatchedBeamHyps[F]) AddCompleted(labels []int32, labelLogps, blankLogps []F, numBlanks []int32, beamIdx []int32, becameInactiveLogps []F, becameInactivePerBlank [][]F) error {
	slots := h.batchSize * h.beamSize
	if len(labels) != slots || len(labelLogps) != slots || len(blankLogps) != slots ||
		len(numBlanks) != slots || len(becameInactiveLogps) != slots || len(becameInactivePerBlank) != slots {
		return fmt.Errorf("candidate arrays must have %d slots, got %d labels, %d label logps, %d blank logps, %d blank counts, %d inactive logps, %d per-blank rows: %w",
			slots, len(labels), len(labelLogps), len(blankLogps), len(numBlanks), len(becameInactiveLogps), len(becameInactivePerBlank), ErrInvalidArgument)
	}
	if err := h.validateBeamIdx(beamIdx); err != nil {
		return err
	}
	for i := range numBlanks {
		if numBlanks[i] < 0 {
			return fmt.Errorf("slot %d: blank count %d must be >= 0: %w", i, numBlanks[i], ErrInvalidArgument)
		}
		if math.IsInf(float64(becameInactiveLogps[i]), -1) {
			continue
		}
		if int(numBlanks[i]) > len(becameInactivePerBlank[i]) {
			return fmt.Errorf("slot %d: %d blanks but %d per-blank scores: %w",
				i, numBlanks[i], len(becameInactivePerBlank[i]), ErrInvalidArgument)
		}
	}

	finalized := 0
	for b := 0; b < h.batchSize; b++ {
		for k := 0; k < h.beamSize; k++ {
			i := b*h.beamSize + k
			if math.IsInf(float64(becameInactiveLogps[i]), -1) {
				continue
			}
			parent := b*h.beamSize + int(beamIdx[i])
			base := parent * h.capacity
			n := int(numBlanks[i])
			parentLen := h.fullCurrentLengths[parent]
			length := parentLen + n + 1

			ySeq := make([]int32, length)
			ts := make([]int32, length)
			tok := make([]F, length)
			copy(ySeq, h.fullTranscript[base:base+parentLen])
			copy(ts, h.fullTimesteps[base:base+parentLen])
			copy(tok, h.tokenScores[base:base+parentLen])
			cursor := h.lastTimestep[parent]
			for j := 0; j < n; j++ {
				ySeq[parentLen+j] = h.blankID
				ts[parentLen+j] = cursor + int32(j)
				tok[parentLen+j] = becameInactivePerBlank[i][j]
			}
			ySeq[length-1] = labels[i]
			ts[length-1] = cursor + int32(n)
			tok[length-1] = labelLogps[i]

			cumLabel := h.labelScores[parent] + labelLogps[i]
			cumBlank := h.blankScores[parent] + blankLogps[i]
			h.completed[b] = append(h.completed[b], Hypothesis[F]{
				Score:       (cumLabel + cumBlank) / F(length),
				YSequence:   ySeq,
				Timesteps:   ts,
				Length:      length,
				LabelScore:  cumLabel,
				BlankScore:  cumBlank,
				TokenScores: tok,
			})
			finalized++
		}
	}
	if finalized > 0 {
		slog.Debug("beam hypotheses finalized", "count", finalized)
	}
	return nil
}

// BestHyps returns the highest-scoring completed hypothesis per batch item,
// first encountered winning ties. It fails with *EmptyBeamError naming the
// first batch item whose completed list is empty.
func (h *BatchedBeamHyps[F]) BestHyps() ([]Hypothesis[F], error) {
	out := make([]Hypothesis[F], h.batchSize)
	for b := range out {
		if len(h.completed[b]) == 0 {
			return nil, &EmptyBeamError{Batch: b}
		}
		best := 0
		for j := 1; j < len(h.completed[b]); j++ {
			if h.completed[b][j].Score > h.completed[b][best].Score {
				best = j
			}
		}
		out[b] = h.completed[b][best]
	}
	return out, nil
}

// NBestHyps returns up to n completed hypotheses per batch item, best
// first, ties kept in encounter order. It fails like BestHyps when a batch
// item has no completed hypotheses.
func (h *BatchedBeamHyps[F]) NBestHyps(n int) ([]NBestHypotheses[F], error) {
	if n <= 0 {
		return nil, fmt.Errorf("n must be > 0, got %d: %w", n, ErrInvalidArgument)
	}
	out := make([]NBestHypotheses[F], h.batchSize)
	for b := range out {
		if len(h.completed[b]) == 0 {
			return nil, &EmptyBeamError{Batch: b}
		}
		ranked := make([]Hypothesis[F], len(h.completed[b]))
		copy(ranked, h.completed[b])
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
		if len(ranked) > n {
			ranked = ranked[:n]
		}
		out[b] = NBestHypotheses[F]{NBest: ranked}
	}
	return out, nil
}

// Clear resets all beams and completed lists for a new batch of the same
// shape, keeping the backing storage and current capacity. Frame cursors
// restart at 0.
func (h *BatchedBeamHyps[F]) Clear() {
	clear(h.currentLengths)
	clear(h.fullCurrentLengths)
	clear(h.scores)
	clear(h.labelScores)
	clear(h.blankScores)
	clear(h.lastTimestep)
	clear(h.lastTimestepRepeats)
	clear(h.transcript)
	clear(h.timesteps)
	clear(h.totalScores)
	clear(h.fullTranscript)
	clear(h.fullTimesteps)
	clear(h.tokenScores)
	for b := range h.completed {
		h.completed[b] = h.completed[b][:0]
	}
}

func (h *BatchedBeamHyps[F]) validateExtensions(labels []int32, labelLogps, blankLogps []F, blankLogpsPerBlank [][]F, numBlanks []int32) error {
	slots := h.batchSize * h.beamSize
	if len(labels) != slots || len(labelLogps) != slots || len(blankLogps) != slots ||
		len(blankLogpsPerBlank) != slots || len(numBlanks) != slots {
		return fmt.Errorf("extension arrays must have %d slots, got %d labels, %d label logps, %d blank logps, %d per-blank rows, %d blank counts: %w",
			slots, len(labels), len(labelLogps), len(blankLogps), len(blankLogpsPerBlank), len(numBlanks), ErrInvalidArgument)
	}
	for i := range numBlanks {
		if numBlanks[i] < 0 {
			return fmt.Errorf("slot %d: blank count %d must be >= 0: %w", i, numBlanks[i], ErrInvalidArgument)
		}
		if int(numBlanks[i]) > len(blankLogpsPerBlank[i]) {
			return fmt.Errorf("slot %d: %d blanks but %d per-blank scores: %w",
				i, numBlanks[i], len(blankLogpsPerBlank[i]), ErrInvalidArgument)
		}
	}
	return nil
}

func (h *BatchedBeamHyps[F]) validateBeamIdx(beamIdx []int32) error {
	slots := h.batchSize * h.beamSize
	if len(beamIdx) != slots {
		return fmt.Errorf("beam index must have %d slots, got %d: %w", slots, len(beamIdx), ErrInvalidArgument)
	}
	for i, k := range beamIdx {
		if k < 0 || int(k) >= h.beamSize {
			return fmt.Errorf("slot %d: beam index %d outside beam of %d: %w", i, k, h.beamSize, ErrInvalidArgument)
		}
	}
	return nil
}

// growForAppend grows capacity if the longest prospective full trace would
// exceed it.
func (h *BatchedBeamHyps[F]) growForAppend(numBlanks []int32) {
	need := 0
	for i, l := range h.fullCurrentLengths {
		need = max(need, l+int(numBlanks[i])+1)
	}
	if need > h.capacity {
		h.grow(need)
	}
}

// appendLabels writes one compacted entry and numBlanks+1 full-trace
// entries per beam. Capacity must already fit the longest result.
func (h *BatchedBeamHyps[F]) appendLabels(labels []int32, labelLogps, blankLogps []F, blankLogpsPerBlank [][]F, numBlanks []int32) {
	for i := range labels {
		n := int(numBlanks[i])
		base := i * h.capacity
		blankStart := h.fullCurrentLengths[i]
		curLen := h.currentLengths[i] + 1
		fullLen := blankStart + n + 1
		h.currentLengths[i] = curLen
		h.fullCurrentLengths[i] = fullLen

		h.labelScores[i] += labelLogps[i]
		h.blankScores[i] += blankLogps[i]
		score := (h.labelScores[i] + h.blankScores[i]) / F(fullLen)
		h.scores[i] = score

		cursor := h.lastTimestep[i]
		for j := 0; j < n; j++ {
			h.fullTranscript[base+blankStart+j] = h.blankID
			h.fullTimesteps[base+blankStart+j] = cursor + int32(j)
			h.tokenScores[base+blankStart+j] = blankLogpsPerBlank[i][j]
		}
		cursor += int32(n)
		h.lastTimestep[i] = cursor

		h.transcript[base+curLen-1] = labels[i]
		h.timesteps[base+curLen-1] = cursor
		h.totalScores[base+curLen-1] = score
		h.fullTranscript[base+fullLen-1] = labels[i]
		h.fullTimesteps[base+fullLen-1] = cursor
		h.tokenScores[base+fullLen-1] = labelLogps[i]

		if n == 0 {
			h.lastTimestepRepeats[i]++
		} else {
			h.lastTimestepRepeats[i] = 1
		}
	}
}

// gather permutes every per-beam buffer along the beam axis through shadow
// storage and swaps, so slot k holds the state of old slot beamIdx[k]
// afterwards. Applied to all parallel buffers before any append writes.
func (h *BatchedBeamHyps[F]) gather(beamIdx []int32) {
	s := h.shadow
	beamGatherScalar(s.currentLengths, h.currentLengths, h.batchSize, h.beamSize, beamIdx)
	beamGatherScalar(s.fullCurrentLengths, h.fullCurrentLengths, h.batchSize, h.beamSize, beamIdx)
	beamGatherScalar(s.scores, h.scores, h.batchSize, h.beamSize, beamIdx)
	beamGatherScalar(s.labelScores, h.labelScores, h.batchSize, h.beamSize, beamIdx)
	beamGatherScalar(s.blankScores, h.blankScores, h.batchSize, h.beamSize, beamIdx)
	beamGatherScalar(s.lastTimestep, h.lastTimestep, h.batchSize, h.beamSize, beamIdx)
	beamGatherScalar(s.lastTimestepRepeats, h.lastTimestepRepeats, h.batchSize, h.beamSize, beamIdx)
	beamGatherRows(s.transcript, h.transcript, h.batchSize, h.beamSize, h.capacity, beamIdx)
	beamGatherRows(s.timesteps, h.timesteps, h.batchSize, h.beamSize, h.capacity, beamIdx)
	beamGatherRows(s.totalScores, h.totalScores, h.batchSize, h.beamSize, h.capacity, beamIdx)
	beamGatherRows(s.fullTranscript, h.fullTranscript, h.batchSize, h.beamSize, h.capacity, beamIdx)
	beamGatherRows(s.fullTimesteps, h.fullTimesteps, h.batchSize, h.beamSize, h.capacity, beamIdx)
	beamGatherRows(s.tokenScores, h.tokenScores, h.batchSize, h.beamSize, h.capacity, beamIdx)

	h.currentLengths, s.currentLengths = s.currentLengths, h.currentLengths
	h.fullCurrentLengths, s.fullCurrentLengths = s.fullCurrentLengths, h.fullCurrentLengths
	h.scores, s.scores = s.scores, h.scores
	h.labelScores, s.labelScores = s.labelScores, h.labelScores
	h.blankScores, s.blankScores = s.blankScores, h.blankScores
	h.lastTimestep, s.lastTimestep = s.lastTimestep, h.lastTimestep
	h.lastTimestepRepeats, s.lastTimestepRepeats = s.lastTimestepRepeats, h.lastTimestepRepeats
	h.transcript, s.transcript = s.transcript, h.transcript
	h.timesteps, s.timesteps = s.timesteps, h.timesteps
	h.totalScores, s.totalScores = s.totalScores, h.totalScores
	h.fullTranscript, s.fullTranscript = s.fullTranscript, h.fullTranscript
	h.fullTimesteps, s.fullTimesteps = s.fullTimesteps, h.fullTimesteps
	h.tokenScores, s.tokenScores = s.tokenScores, h.tokenScores
}

// grow doubles capacity until at least need full-trace entries fit per
// beam, copying all parallel buffers together. Shadow sequence storage is
// resized without copying; the next gather overwrites it fully.
func (h *BatchedBeamHyps[F]) grow(need int) {
	newCap := h.capacity
	for newCap < need {
		newCap *= 2
	}
	if newCap == h.capacity {
		return
	}
	slots := h.batchSize * h.beamSize
	h.transcript = regrowRows(h.transcript, slots, h.capacity, newCap)
	h.timesteps = regrowRows(h.timesteps, slots, h.capacity, newCap)
	h.totalScores = regrowRows(h.totalScores, slots, h.capacity, newCap)
	h.fullTranscript = regrowRows(h.fullTranscript, slots, h.capacity, newCap)
	h.fullTimesteps = regrowRows(h.fullTimesteps, slots, h.capacity, newCap)
	h.tokenScores = regrowRows(h.tokenScores, slots, h.capacity, newCap)
	h.shadow.transcript = make([]int32, slots*newCap)
	h.shadow.timesteps = make([]int32, slots*newCap)
	h.shadow.totalScores = make([]F, slots*newCap)
	h.shadow.fullTranscript = make([]int32, slots*newCap)
	h.shadow.fullTimesteps = make([]int32, slots*newCap)
	h.shadow.tokenScores = make([]F, slots*newCap)
	slog.Debug("beam buffer grown", "batch_size", h.batchSize, "beam_size", h.beamSize, "old_capacity", h.capacity, "new_capacity", newCap)
	h.capacity = newCap
}

func beamGatherScalar[T any](dst, src []T, batchSize, beamSize int, beamIdx []int32) {
	for b := 0; b < batchSize; b++ {
		for k := 0; k < beamSize; k++ {
			dst[b*beamSize+k] = src[b*beamSize+int(beamIdx[b*beamSize+k])]
		}
	}
}

func beamGatherRows[T any](dst, src []T, batchSize, beamSize, width int, beamIdx []int32) {
	for b := 0; b < batchSize; b++ {
		for k := 0; k < beamSize; k++ {
			srcRow := (b*beamSize + int(beamIdx[b*beamSize+k])) * width
			dstRow := (b*beamSize + k) * width
			copy(dst[dstRow:dstRow+width], src[srcRow:srcRow+width])
		}
	}
}

func regrowRows[T any](src []T, rows, oldWidth, newWidth int) []T {
	dst := make([]T, rows*newWidth)
	for r := 0; r < rows; r++ {
		copy(dst[r*newWidth:], src[r*oldWidth:(r+1)*oldWidth])
	}
	return dst
}
