package rnnt

import "testing"

func TestWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "single", text: "hello", want: 1},
		{name: "spaces_collapse", text: "  the   cat sat ", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Hypothesis[float32]{Text: tt.text}
			if got := len(h.Words()); got != tt.want {
				t.Errorf("len(Words()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNonBlankFrameConfidence(t *testing.T) {
	// two labels on frame 0, one on frame 1; the grouped trace holds one
	// confidence per joint evaluation on each frame
	h := Hypothesis[float64]{
		Timesteps: []int32{0, 0, 1},
		FrameConfidence: [][]float64{
			{0.9, 0.8, 0.7},
			{0.5},
		},
	}
	got := h.NonBlankFrameConfidence()
	want := []float64{0.9, 0.8, 0.5}
	if len(got) != len(want) {
		t.Fatalf("NonBlankFrameConfidence() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("confidence[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNonBlankFrameConfidenceEmpty(t *testing.T) {
	var h Hypothesis[float64]
	if got := h.NonBlankFrameConfidence(); got != nil {
		t.Errorf("NonBlankFrameConfidence() = %v, want nil for empty hypothesis", got)
	}
	h.Timesteps = []int32{0}
	if got := h.NonBlankFrameConfidence(); got != nil {
		t.Errorf("NonBlankFrameConfidence() = %v, want nil without a trace", got)
	}
}

func TestNBestBest(t *testing.T) {
	var empty NBestHypotheses[float32]
	if got := empty.Best(); got != nil {
		t.Errorf("Best() = %v on empty list, want nil", got)
	}
	n := NBestHypotheses[float32]{NBest: []Hypothesis[float32]{{Score: -1}, {Score: -2}}}
	if got := n.Best(); got == nil || got.Score != -1 {
		t.Errorf("Best() = %v, want score -1", got)
	}
}
