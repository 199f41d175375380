package rnnt

import "testing"

func BenchmarkAddResults(b *testing.B) {
	const batch = 32
	h, err := NewBatchedHyps[float32](batch, 1024)
	if err != nil {
		b.Fatal(err)
	}
	idx := make([]int32, batch)
	labels := make([]int32, batch)
	frames := make([]int32, batch)
	scores := make([]float32, batch)
	for i := range idx {
		idx[i] = int32(i)
		labels[i] = int32(i % 100)
		scores[i] = -0.5
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%512 == 0 {
			h.Clear()
		}
		frame := int32(i % 512)
		for j := range frames {
			frames[j] = frame
		}
		if err := h.AddResults(idx, labels, frames, scores); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAddResultsMasked(b *testing.B) {
	const batch = 32
	h, err := NewBatchedHyps[float32](batch, 1024)
	if err != nil {
		b.Fatal(err)
	}
	mask := make([]bool, batch)
	labels := make([]int32, batch)
	frames := make([]int32, batch)
	scores := make([]float32, batch)
	for i := range mask {
		mask[i] = i%4 != 0
		labels[i] = int32(i % 100)
		scores[i] = -0.5
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%512 == 0 {
			h.Clear()
		}
		frame := int32(i % 512)
		for j := range frames {
			frames[j] = frame
		}
		if err := h.AddResultsMasked(mask, labels, frames, scores); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBeamAppendLabels(b *testing.B) {
	const batch, beam = 8, 4
	h, err := NewBatchedBeamHyps[float32](batch, beam, 2048, 1024)
	if err != nil {
		b.Fatal(err)
	}
	slots := batch * beam
	labels := make([]int32, slots)
	labelLogps := make([]float32, slots)
	blankLogps := make([]float32, slots)
	perBlank := make([][]float32, slots)
	numBlanks := make([]int32, slots)
	for i := range labels {
		labels[i] = int32(i % 100)
		labelLogps[i] = -0.5
		blankLogps[i] = -0.1
		perBlank[i] = []float32{-0.1}
		numBlanks[i] = 1
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%512 == 0 {
			h.Clear()
		}
		if err := h.AppendLabels(labels, labelLogps, blankLogps, perBlank, numBlanks); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBeamUpdateBeam(b *testing.B) {
	const batch, beam = 8, 4
	h, err := NewBatchedBeamHyps[float32](batch, beam, 2048, 1024)
	if err != nil {
		b.Fatal(err)
	}
	slots := batch * beam
	labels := make([]int32, slots)
	labelLogps := make([]float32, slots)
	blankLogps := make([]float32, slots)
	perBlank := make([][]float32, slots)
	numBlanks := make([]int32, slots)
	beamIdx := make([]int32, slots)
	for i := range labels {
		labels[i] = int32(i % 100)
		labelLogps[i] = -0.5
		blankLogps[i] = -0.1
		perBlank[i] = []float32{-0.1}
		numBlanks[i] = 1
		beamIdx[i] = int32((i + 1) % beam)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%512 == 0 {
			h.Clear()
		}
		if err := h.UpdateBeam(labels, labelLogps, blankLogps, perBlank, numBlanks, beamIdx); err != nil {
			b.Fatal(err)
		}
	}
}
