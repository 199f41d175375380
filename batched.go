package rnnt

import (
	"fmt"
	"log/slog"

	"golang.org/x/exp/constraints"
)

// BatchedHyps accumulates greedy decoding results for a fixed batch of
// utterances. Per-item label sequences share one flat [batch, capacity]
// backing store; capacity doubles when any sequence fills it, and that
// growth is the only allocating operation after construction.
//
// A buffer belongs to exactly one decoding loop. Calls must not overlap.
type BatchedHyps[F constraints.Float] struct {
	batchSize int
	capacity  int

	currentLengths []int   // labels emitted per item
	transcript     []int32 // [batch, capacity] label ids
	timesteps      []int32 // [batch, capacity] emission frame per label
	scores         []F     // cumulative log-probability per item

	// frame-repeat bookkeeping, consulted by loops that cap the number
	// of symbols emitted on a single frame
	lastTimestep        []int32 // frame of the most recent emission, -1 before any
	lastTimestepRepeats []int32 // consecutive emissions on that frame
}

// NewBatchedHyps allocates storage for batchSize utterances with room for
// initCapacity labels per utterance before the first growth.
func NewBatchedHyps[F constraints.Float](batchSize, initCapacity int) (*BatchedHyps[F], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d: %w", batchSize, ErrInvalidArgument)
	}
	if initCapacity <= 0 {
		return nil, fmt.Errorf("initial capacity must be > 0, got %d: %w", initCapacity, ErrInvalidArgument)
	}
	h := &BatchedHyps[F]{
		batchSize:           batchSize,
		capacity:            initCapacity,
		currentLengths:      make([]int, batchSize),
		transcript:          make([]int32, batchSize*initCapacity),
		timesteps:           make([]int32, batchSize*initCapacity),
		scores:              make([]F, batchSize),
		lastTimestep:        make([]int32, batchSize),
		lastTimestepRepeats: make([]int32, batchSize),
	}
	for b := range h.lastTimestep {
		h.lastTimestep[b] = -1
	}
	return h, nil
}

// BatchSize returns the fixed batch dimension.
func (h *BatchedHyps[F]) BatchSize() int { return h.batchSize }

// Capacity returns the current per-item label capacity.
func (h *BatchedHyps[F]) Capacity() int { return h.capacity }

// CurrentLength returns the number of labels emitted for batch item b.
func (h *BatchedHyps[F]) CurrentLength(b int) int { return h.currentLengths[b] }

// Score returns the cumulative log-probability of batch item b.
func (h *BatchedHyps[F]) Score(b int) F { return h.scores[b] }

// LastTimestep returns the frame of the most recent emission for batch
// item b, or -1 if nothing has been emitted since construction or Clear.
func (h *BatchedHyps[F]) LastTimestep(b int) int32 { return h.lastTimestep[b] }

// LastTimestepRepeats returns how many consecutive labels batch item b has
// emitted on its current frame. Decoding loops consult it to cap the
// symbols emitted per frame; the buffer itself never enforces a cap.
func (h *BatchedHyps[F]) LastTimestepRepeats(b int) int32 { return h.lastTimestepRepeats[b] }

// AddResults appends one label for each listed batch item. activeIndices,
// labels, frameIndices and scores are parallel arrays; items not listed
// stay untouched. Capacity grows first if any item has filled it. A call
// with no active indices is a no-op.
func (h *BatchedHyps[F]) AddResults(activeIndices, labels, frameIndices []int32, scores []F) error {
	if len(activeIndices) == 0 {
		return nil
	}
	n := len(activeIndices)
	if len(labels) != n || len(frameIndices) != n || len(scores) != n {
		return fmt.Errorf("parallel arrays for %d active items, got %d labels, %d frame indices, %d scores: %w",
			n, len(labels), len(frameIndices), len(scores), ErrInvalidArgument)
	}
	for _, b := range activeIndices {
		if b < 0 || int(b) >= h.batchSize {
			return fmt.Errorf("active index %d outside batch of %d: %w", b, h.batchSize, ErrInvalidArgument)
		}
	}
	maxLen := 0
	for _, l := range h.currentLengths {
		maxLen = max(maxLen, l)
	}
	if maxLen >= h.capacity {
		h.grow(maxLen + 1)
	}
	h.AddResultsNoChecks(activeIndices, labels, frameIndices, scores)
	return nil
}

// AddResultsNoChecks is AddResults without validation or growth, for
// pre-allocated execution where every step is known to fit. The caller
// guarantees indices are in range and every write cursor is below capacity.
func (h *BatchedHyps[F]) AddResultsNoChecks(activeIndices, labels, frameIndices []int32, scores []F) {
	for i, bi := range activeIndices {
		b := int(bi)
		pos := h.currentLengths[b]
		h.transcript[b*h.capacity+pos] = labels[i]
		h.timesteps[b*h.capacity+pos] = frameIndices[i]
		h.scores[b] += scores[i]
		if h.lastTimestep[b] == frameIndices[i] {
			h.lastTimestepRepeats[b]++
		} else {
			h.lastTimestepRepeats[b] = 1
		}
		h.lastTimestep[b] = frameIndices[i]
		h.currentLengths[b] = pos + 1
	}
}

// AddResultsMasked appends one label for every batch item whose mask entry
// is true. All arrays are indexed by batch item and must have the batch
// size as length; masked-out entries are ignored. The label and frame
// stores are written unconditionally at each item's cursor and the cursor
// advances by the mask value, so the update stays branch-free for
// graph-captured execution; growth is checked against the prospective
// maximum length across all items before anything is written.
func (h *BatchedHyps[F]) AddResultsMasked(activeMask []bool, labels, frameIndices []int32, scores []F) error {
	if len(activeMask) != h.batchSize || len(labels) != h.batchSize ||
		len(frameIndices) != h.batchSize || len(scores) != h.batchSize {
		return fmt.Errorf("per-batch arrays must have length %d, got %d mask, %d labels, %d frame indices, %d scores: %w",
			h.batchSize, len(activeMask), len(labels), len(frameIndices), len(scores), ErrInvalidArgument)
	}
	need := 0
	for b, l := range h.currentLengths {
		if activeMask[b] {
			l++
		}
		need = max(need, l)
	}
	if need >= h.capacity {
		h.grow(need + 1)
	}
	h.AddResultsMaskedNoChecks(activeMask, labels, frameIndices, scores)
	return nil
}

// AddResultsMaskedNoChecks is AddResultsMasked without validation or
// growth. Labels and frame indices are still written at every item's
// cursor regardless of the mask; only masked-in items advance the cursor
// and update score and repeat bookkeeping. The caller guarantees every
// cursor is below capacity.
func (h *BatchedHyps[F]) AddResultsMaskedNoChecks(activeMask []bool, labels, frameIndices []int32, scores []F) {
	for b := 0; b < h.batchSize; b++ {
		pos := h.currentLengths[b]
		h.transcript[b*h.capacity+pos] = labels[b]
		h.timesteps[b*h.capacity+pos] = frameIndices[b]
		if !activeMask[b] {
			continue
		}
		h.scores[b] += scores[b]
		if h.lastTimestep[b] == frameIndices[b] {
			h.lastTimestepRepeats[b]++
		} else {
			h.lastTimestepRepeats[b] = 1
		}
		h.lastTimestep[b] = frameIndices[b]
		h.currentLengths[b] = pos + 1
	}
}

// Clear resets the buffer for a new batch of the same shape, keeping the
// backing storage and current capacity.
func (h *BatchedHyps[F]) Clear() {
	clear(h.currentLengths)
	clear(h.transcript)
	clear(h.timesteps)
	clear(h.scores)
	for b := range h.lastTimestep {
		h.lastTimestep[b] = -1
	}
	clear(h.lastTimestepRepeats)
}

// grow doubles capacity until at least need labels fit per item, copying
// all parallel buffers together so indices stay aligned.
func (h *BatchedHyps[F]) grow(need int) {
	newCap := h.capacity
	for newCap < need {
		newCap *= 2
	}
	if newCap == h.capacity {
		return
	}
	h.transcript = regrowRows(h.transcript, h.batchSize, h.capacity, newCap)
	h.timesteps = regrowRows(h.timesteps, h.batchSize, h.capacity, newCap)
	slog.Debug("hypothesis buffer grown", "batch_size", h.batchSize, "old_capacity", h.capacity, "new_capacity", newCap)
	h.capacity = newCap
}
