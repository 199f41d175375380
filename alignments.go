package rnnt

import (
	"fmt"
	"log/slog"

	"golang.org/x/exp/constraints"
)

// AlignmentOptions selects which per-frame sections a BatchedAlignments
// keeps. Frame indices are always recorded.
type AlignmentOptions struct {
	StoreAlignments        bool // raw joint outputs and chosen labels
	StoreFrameConfidence   bool // per-frame confidence
	WithDurationConfidence bool // widen confidence to (label, duration) pairs
}

// BatchedAlignments records the per-frame decoding trace for a fixed batch:
// one entry per joint evaluation, blank decisions included. It is indexed
// per frame rather than per label, so its capacity grows independently of
// the hypothesis buffer it accompanies, with the same doubling discipline.
type BatchedAlignments[F constraints.Float] struct {
	batchSize int
	logitsDim int
	capacity  int
	confWidth int
	opts      AlignmentOptions

	currentLengths  []int
	timesteps       []int32 // [batch, capacity] frame index per entry
	logits          []F     // [batch, capacity, logitsDim], nil unless StoreAlignments
	labels          []int32 // [batch, capacity], nil unless StoreAlignments
	frameConfidence []F     // [batch, capacity, confWidth], nil unless StoreFrameConfidence
}

// NewBatchedAlignments allocates trace storage for batchSize utterances
// with room for initCapacity frames per utterance. logitsDim is the width
// of one joint output row and must be positive when alignments are stored.
func NewBatchedAlignments[F constraints.Float](batchSize, logitsDim, initCapacity int, opts AlignmentOptions) (*BatchedAlignments[F], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d: %w", batchSize, ErrInvalidArgument)
	}
	if initCapacity <= 0 {
		return nil, fmt.Errorf("initial capacity must be > 0, got %d: %w", initCapacity, ErrInvalidArgument)
	}
	if opts.StoreAlignments && logitsDim <= 0 {
		return nil, fmt.Errorf("logits dim must be > 0 to store alignments, got %d: %w", logitsDim, ErrInvalidArgument)
	}
	a := &BatchedAlignments[F]{
		batchSize:      batchSize,
		logitsDim:      logitsDim,
		capacity:       initCapacity,
		opts:           opts,
		currentLengths: make([]int, batchSize),
		timesteps:      make([]int32, batchSize*initCapacity),
	}
	if opts.StoreAlignments {
		a.logits = make([]F, batchSize*initCapacity*logitsDim)
		a.labels = make([]int32, batchSize*initCapacity)
	}
	if opts.StoreFrameConfidence {
		a.confWidth = 1
		if opts.WithDurationConfidence {
			a.confWidth = 2
		}
		a.frameConfidence = make([]F, batchSize*initCapacity*a.confWidth)
	}
	return a, nil
}

// BatchSize returns the fixed batch dimension.
func (a *BatchedAlignments[F]) BatchSize() int { return a.batchSize }

// Capacity returns the current per-item frame capacity.
func (a *BatchedAlignments[F]) Capacity() int { return a.capacity }

// CurrentLength returns the number of frames recorded for batch item b.
func (a *BatchedAlignments[F]) CurrentLength(b int) int { return a.currentLengths[b] }

// LogitsDim returns the width of one stored joint output row.
func (a *BatchedAlignments[F]) LogitsDim() int { return a.logitsDim }

// ConfidenceWidth returns the number of confidence values stored per frame:
// 1, 2 with duration confidence, or 0 when confidence is not stored.
func (a *BatchedAlignments[F]) ConfidenceWidth() int { return a.confWidth }

// Options returns the sections this buffer records.
func (a *BatchedAlignments[F]) Options() AlignmentOptions { return a.opts }

// AddResults records one frame entry for each listed batch item.
// frameIndices is parallel to activeIndices; logits is row-major
// [len(activeIndices), LogitsDim] and labels parallel, both given together
// or both nil; confidence is row-major [len(activeIndices),
// ConfidenceWidth] or nil. A section passed as nil leaves zero entries at
// this frame for items that record other sections.
func (a *BatchedAlignments[F]) AddResults(activeIndices, frameIndices []int32, logits []F, labels []int32, confidence []F) error {
	if len(activeIndices) == 0 {
		return nil
	}
	n := len(activeIndices)
	if err := a.validate(n, frameIndices, logits, labels, confidence); err != nil {
		return err
	}
	for _, b := range activeIndices {
		if b < 0 || int(b) >= a.batchSize {
			return fmt.Errorf("active index %d outside batch of %d: %w", b, a.batchSize, ErrInvalidArgument)
		}
	}
	maxLen := 0
	for _, l := range a.currentLengths {
		maxLen = max(maxLen, l)
	}
	if maxLen >= a.capacity {
		a.grow(maxLen + 1)
	}
	a.AddResultsNoChecks(activeIndices, frameIndices, logits, labels, confidence)
	return nil
}

// AddResultsNoChecks is AddResults without validation or growth. The
// caller guarantees indices are in range and every write cursor is below
// capacity.
func (a *BatchedAlignments[F]) AddResultsNoChecks(activeIndices, frameIndices []int32, logits []F, labels []int32, confidence []F) {
	storeAlign := a.opts.StoreAlignments && logits != nil && labels != nil
	storeConf := a.opts.StoreFrameConfidence && confidence != nil
	for i, bi := range activeIndices {
		b := int(bi)
		pos := a.currentLengths[b]
		a.timesteps[b*a.capacity+pos] = frameIndices[i]
		if storeAlign {
			copy(a.logits[(b*a.capacity+pos)*a.logitsDim:], logits[i*a.logitsDim:(i+1)*a.logitsDim])
			a.labels[b*a.capacity+pos] = labels[i]
		}
		if storeConf {
			copy(a.frameConfidence[(b*a.capacity+pos)*a.confWidth:], confidence[i*a.confWidth:(i+1)*a.confWidth])
		}
		a.currentLengths[b] = pos + 1
	}
}

// AddResultsMasked records one frame entry for every batch item whose mask
// entry is true. All arrays are indexed by batch item: frameIndices has the
// batch size as length, logits [batch, LogitsDim], confidence [batch,
// ConfidenceWidth]. Stores are written unconditionally at each item's
// cursor; only masked-in items advance the cursor.
func (a *BatchedAlignments[F]) AddResultsMasked(activeMask []bool, frameIndices []int32, logits []F, labels []int32, confidence []F) error {
	if len(activeMask) != a.batchSize {
		return fmt.Errorf("mask must have batch size %d, got %d: %w", a.batchSize, len(activeMask), ErrInvalidArgument)
	}
	if err := a.validate(a.batchSize, frameIndices, logits, labels, confidence); err != nil {
		return err
	}
	need := 0
	for b, l := range a.currentLengths {
		if activeMask[b] {
			l++
		}
		need = max(need, l)
	}
	if need >= a.capacity {
		a.grow(need + 1)
	}
	a.AddResultsMaskedNoChecks(activeMask, frameIndices, logits, labels, confidence)
	return nil
}

// AddResultsMaskedNoChecks is AddResultsMasked without validation or
// growth. The caller guarantees every cursor is below capacity.
func (a *BatchedAlignments[F]) AddResultsMaskedNoChecks(activeMask []bool, frameIndices []int32, logits []F, labels []int32, confidence []F) {
	storeAlign := a.opts.StoreAlignments && logits != nil && labels != nil
	storeConf := a.opts.StoreFrameConfidence && confidence != nil
	for b := 0; b < a.batchSize; b++ {
		pos := a.currentLengths[b]
		a.timesteps[b*a.capacity+pos] = frameIndices[b]
		if storeAlign {
			copy(a.logits[(b*a.capacity+pos)*a.logitsDim:], logits[b*a.logitsDim:(b+1)*a.logitsDim])
			a.labels[b*a.capacity+pos] = labels[b]
		}
		if storeConf {
			copy(a.frameConfidence[(b*a.capacity+pos)*a.confWidth:], confidence[b*a.confWidth:(b+1)*a.confWidth])
		}
		if activeMask[b] {
			a.currentLengths[b] = pos + 1
		}
	}
}

// Clear resets the trace for a new batch of the same shape, keeping the
// backing storage and current capacity.
func (a *BatchedAlignments[F]) Clear() {
	clear(a.currentLengths)
	clear(a.timesteps)
	clear(a.logits)
	clear(a.labels)
	clear(a.frameConfidence)
}

func (a *BatchedAlignments[F]) validate(n int, frameIndices []int32, logits []F, labels []int32, confidence []F) error {
	if len(frameIndices) != n {
		return fmt.Errorf("frame indices for %d items, got %d: %w", n, len(frameIndices), ErrInvalidArgument)
	}
	if a.opts.StoreAlignments && (logits != nil) != (labels != nil) {
		return fmt.Errorf("logits and labels must be passed together: %w", ErrInvalidArgument)
	}
	if a.opts.StoreAlignments && logits != nil {
		if len(logits) != n*a.logitsDim {
			return fmt.Errorf("logits for %d items of dim %d, got %d values: %w", n, a.logitsDim, len(logits), ErrInvalidArgument)
		}
		if len(labels) != n {
			return fmt.Errorf("labels for %d items, got %d: %w", n, len(labels), ErrInvalidArgument)
		}
	}
	if a.opts.StoreFrameConfidence && confidence != nil && len(confidence) != n*a.confWidth {
		return fmt.Errorf("confidence for %d items of width %d, got %d values: %w", n, a.confWidth, len(confidence), ErrInvalidArgument)
	}
	return nil
}

// grow doubles capacity until at least need frames fit per item, copying
// all recorded sections together so indices stay aligned.
func (a *BatchedAlignments[F]) grow(need int) {
	newCap := a.capacity
	for newCap < need {
		newCap *= 2
	}
	if newCap == a.capacity {
		return
	}
	a.timesteps = regrowRows(a.timesteps, a.batchSize, a.capacity, newCap)
	if a.logits != nil {
		a.logits = regrowRows(a.logits, a.batchSize, a.capacity*a.logitsDim, newCap*a.logitsDim)
		a.labels = regrowRows(a.labels, a.batchSize, a.capacity, newCap)
	}
	if a.frameConfidence != nil {
		a.frameConfidence = regrowRows(a.frameConfidence, a.batchSize, a.capacity*a.confWidth, newCap*a.confWidth)
	}
	slog.Debug("alignment buffer grown", "batch_size", a.batchSize, "old_capacity", a.capacity, "new_capacity", newCap)
	a.capacity = newCap
}
