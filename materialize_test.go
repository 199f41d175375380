package rnnt

import (
	"errors"
	"math"
	"testing"
)

func TestToHypotheses(t *testing.T) {
	h, err := NewBatchedHyps[float64](2, 4)
	if err != nil {
		t.Fatal(err)
	}
	// item 0 emits 3, 5, 7 at frames 0, 2, 2
	appends := []struct {
		label int32
		frame int32
		score float64
	}{
		{3, 0, -0.1},
		{5, 2, -0.2},
		{7, 2, -0.3},
	}
	for _, a := range appends {
		if err := h.AddResults([]int32{0}, []int32{a.label}, []int32{a.frame}, []float64{a.score}); err != nil {
			t.Fatal(err)
		}
	}

	out, err := ToHypotheses(h, nil, 0)
	if err != nil {
		t.Fatalf("ToHypotheses() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if !equalInt32(out[0].YSequence, []int32{3, 5, 7}) {
		t.Errorf("YSequence = %v, want [3 5 7]", out[0].YSequence)
	}
	if !equalInt32(out[0].Timesteps, []int32{0, 2, 2}) {
		t.Errorf("Timesteps = %v, want [0 2 2]", out[0].Timesteps)
	}
	if out[0].Length != 3 {
		t.Errorf("Length = %d, want 3", out[0].Length)
	}
	if got, want := out[0].Score, -0.6; math.Abs(got-want) > 1e-12 {
		t.Errorf("Score = %v, want %v", got, want)
	}
	if out[1].Length != 0 || len(out[1].YSequence) != 0 {
		t.Errorf("item 1 = %+v, want empty hypothesis", out[1])
	}
}

func TestToHypothesesBatchSize(t *testing.T) {
	h, _ := NewBatchedHyps[float32](4, 2)

	// graph-captured execution pads the physical batch; the logical batch
	// materializes a prefix
	out, err := ToHypotheses(h, nil, 2)
	if err != nil {
		t.Fatalf("ToHypotheses(2) error = %v", err)
	}
	if len(out) != 2 {
		t.Errorf("len(out) = %d, want 2", len(out))
	}

	if _, err := ToHypotheses(h, nil, 5); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("oversized batch: error = %v, want ErrInvalidArgument", err)
	}

	a, _ := NewBatchedAlignments[float32](2, 0, 2, AlignmentOptions{})
	if _, err := ToHypotheses(h, a, 3); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("batch above alignment buffer: error = %v, want ErrInvalidArgument", err)
	}
}

func TestToHypothesesCopiesOutOfBuffer(t *testing.T) {
	h, _ := NewBatchedHyps[float32](1, 2)
	if err := h.AddResults([]int32{0}, []int32{9}, []int32{0}, []float32{-1}); err != nil {
		t.Fatal(err)
	}
	out, err := ToHypotheses(h, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	h.Clear()
	if err := h.AddResults([]int32{0}, []int32{4}, []int32{1}, []float32{-2}); err != nil {
		t.Fatal(err)
	}
	if !equalInt32(out[0].YSequence, []int32{9}) {
		t.Errorf("YSequence = %v after buffer reuse, want [9]", out[0].YSequence)
	}
}

// Run-length grouping over the frame trace: consecutive equal frame
// indices form one group each, in time order, and concatenating the groups
// reproduces the raw trace.
func TestAlignmentGrouping(t *testing.T) {
	const blank = 1024
	frames := []int32{0, 0, 1, 2, 2, 2}
	labels := []int32{blank, 3, blank, 5, blank, 7}

	a, err := NewBatchedAlignments[float64](1, 1, 8, AlignmentOptions{StoreAlignments: true})
	if err != nil {
		t.Fatal(err)
	}
	for i := range frames {
		if err := a.AddResults([]int32{0}, []int32{frames[i]}, []float64{0}, []int32{labels[i]}, nil); err != nil {
			t.Fatal(err)
		}
	}
	h, _ := NewBatchedHyps[float64](1, 4)

	out, err := ToHypotheses(h, a, 0)
	if err != nil {
		t.Fatal(err)
	}
	groups := out[0].Alignments
	if len(groups) != 3 {
		t.Fatalf("%d groups, want 3", len(groups))
	}
	for g, wantSize := range []int{2, 1, 3} {
		if len(groups[g]) != wantSize {
			t.Errorf("group %d size = %d, want %d", g, len(groups[g]), wantSize)
		}
	}
	var flat []int32
	for _, g := range groups {
		for _, p := range g {
			flat = append(flat, p.Label)
		}
	}
	if !equalInt32(flat, labels) {
		t.Errorf("concatenated groups = %v, want raw trace %v", flat, labels)
	}
}

func TestDurationConfidenceGrouping(t *testing.T) {
	a, err := NewBatchedAlignments[float64](1, 0, 4, AlignmentOptions{
		StoreFrameConfidence:   true,
		WithDurationConfidence: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	// two entries on frame 0, one on frame 1; each entry carries a (label,
	// duration) confidence pair
	entries := []struct {
		frame int32
		conf  []float64
	}{
		{0, []float64{0.9, 0.8}},
		{0, []float64{0.7, 0.6}},
		{1, []float64{0.5, 0.4}},
	}
	for _, e := range entries {
		if err := a.AddResults([]int32{0}, []int32{e.frame}, nil, nil, e.conf); err != nil {
			t.Fatal(err)
		}
	}
	h, _ := NewBatchedHyps[float64](1, 4)
	out, err := ToHypotheses(h, a, 0)
	if err != nil {
		t.Fatal(err)
	}
	fc, dc := out[0].FrameConfidence, out[0].DurationConfidence
	if len(fc) != 2 || len(dc) != 2 {
		t.Fatalf("groups = %d frame, %d duration, want 2 and 2", len(fc), len(dc))
	}
	if fc[0][0] != 0.9 || fc[0][1] != 0.7 || fc[1][0] != 0.5 {
		t.Errorf("FrameConfidence = %v, want [[0.9 0.7] [0.5]]", fc)
	}
	if dc[0][0] != 0.8 || dc[0][1] != 0.6 || dc[1][0] != 0.4 {
		t.Errorf("DurationConfidence = %v, want [[0.8 0.6] [0.4]]", dc)
	}
}
