package rnnt

import (
	"errors"
	"testing"
)

func TestComputeWER(t *testing.T) {
	tests := []struct {
		name       string
		reference  string
		hypothesis string
		wantWER    float64
		wantSubs   int
		wantIns    int
		wantDels   int
		wantRef    int
	}{
		{
			name:       "identical",
			reference:  "the cat sat on the mat",
			hypothesis: "the cat sat on the mat",
			wantWER:    0.0,
			wantRef:    6,
		},
		{
			name:       "one_substitution",
			reference:  "the cat sat on the mat",
			hypothesis: "the cat sit on the mat",
			wantWER:    1.0 / 6.0,
			wantSubs:   1,
			wantRef:    6,
		},
		{
			name:       "one_insertion",
			reference:  "the cat sat",
			hypothesis: "the big cat sat",
			wantWER:    1.0 / 3.0,
			wantIns:    1,
			wantRef:    3,
		},
		{
			name:       "one_deletion",
			reference:  "the cat sat on the mat",
			hypothesis: "the cat on the mat",
			wantWER:    1.0 / 6.0,
			wantDels:   1,
			wantRef:    6,
		},
		{
			name:       "case_insensitive",
			reference:  "The Cat Sat",
			hypothesis: "the cat sat",
			wantWER:    0.0,
			wantRef:    3,
		},
		{
			name:       "punctuation_stripped",
			reference:  "Hello, world!",
			hypothesis: "hello world",
			wantWER:    0.0,
			wantRef:    2,
		},
		{
			name:       "empty_reference",
			reference:  "",
			hypothesis: "some words",
			wantWER:    0.0,
			wantRef:    0,
		},
		{
			name:       "empty_hypothesis",
			reference:  "some words",
			hypothesis: "",
			wantWER:    1.0,
			wantDels:   2,
			wantRef:    2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeWER(tt.reference, tt.hypothesis)
			if got.WER != tt.wantWER {
				t.Errorf("WER = %v, want %v", got.WER, tt.wantWER)
			}
			if got.Substitutions != tt.wantSubs {
				t.Errorf("Substitutions = %d, want %d", got.Substitutions, tt.wantSubs)
			}
			if got.Insertions != tt.wantIns {
				t.Errorf("Insertions = %d, want %d", got.Insertions, tt.wantIns)
			}
			if got.Deletions != tt.wantDels {
				t.Errorf("Deletions = %d, want %d", got.Deletions, tt.wantDels)
			}
			if got.RefWords != tt.wantRef {
				t.Errorf("RefWords = %d, want %d", got.RefWords, tt.wantRef)
			}
		})
	}
}

func TestEvalHypotheses(t *testing.T) {
	refs := []string{"the cat sat", "hello world"}
	hyps := []Hypothesis[float32]{
		{Text: "the cat sat"},
		{Text: "hello word"},
	}
	got, err := EvalHypotheses(refs, hyps)
	if err != nil {
		t.Fatalf("EvalHypotheses() error = %v", err)
	}
	if got.RefWords != 5 {
		t.Errorf("RefWords = %d, want 5", got.RefWords)
	}
	if got.Substitutions != 1 {
		t.Errorf("Substitutions = %d, want 1", got.Substitutions)
	}
	if got.WER != 1.0/5.0 {
		t.Errorf("WER = %v, want 0.2", got.WER)
	}
}

func TestEvalHypothesesMismatch(t *testing.T) {
	_, err := EvalHypotheses([]string{"a", "b"}, []Hypothesis[float32]{{Text: "a"}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}
