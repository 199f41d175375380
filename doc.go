// Package rnnt provides batched hypothesis accumulation for streaming
// transducer (RNNT/TDT) decoding.
//
// Decoding state for a whole batch lives in flat, growable buffers:
// BatchedHyps for greedy decoding, BatchedAlignments for an optional
// per-frame trace, and BatchedBeamHyps for batched beam search. Each
// buffer is updated once per decoding step, by active-index list or by
// boolean mask, without allocating per step; capacity doubles in place
// when a sequence outgrows it. Finished buffers materialize into
// Hypothesis records via ToHypotheses (greedy) or BestHyps (beam).
//
// The decoding loop itself, together with the encoder, prediction
// network and joint that feed it, lives outside this package; the
// package example shows the wiring for a greedy loop.
package rnnt
