package fingerprint

import (
	"errors"
	"testing"
)

func gridOf(size int, pix ...uint8) Grid {
	return Grid{Size: size, Pix: pix}
}

func TestExtract_BitLayout(t *testing.T) {
	// 2x2: mean = (0+100+200+40)/4 = 85
	fp, err := Extract(gridOf(2, 0, 100, 200, 40))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fp.Bits != 0b0110 {
		t.Errorf("bits = %b, want 110", fp.Bits)
	}
	if fp.HashSize != 2 || fp.Kind != KindAverage {
		t.Errorf("fingerprint params = (%d, %s), want (2, average)", fp.HashSize, fp.Kind)
	}
}

func TestExtract_EqualToMeanSetsBit(t *testing.T) {
	// Uniform grid: every sample equals the mean.
	g := NewGrid(8)
	for i := range g.Pix {
		g.Pix[i] = 77
	}
	fp, err := Extract(g)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fp.Bits != ^uint64(0) {
		t.Errorf("bits = %x, want all ones", fp.Bits)
	}
}

func TestExtract_ExactMean(t *testing.T) {
	// mean = 1/3; a truncated integer mean of 0 would set every bit.
	fp, err := Extract(gridOf(3, 1, 0, 0, 0, 0, 0, 0, 0, 0))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fp.Bits != 1 {
		t.Errorf("bits = %b, want 1", fp.Bits)
	}
}

func TestExtract_SmallGridLeavesHighBitsClear(t *testing.T) {
	g := NewGrid(4)
	for i := range g.Pix {
		if i%2 == 0 {
			g.Pix[i] = 255
		}
	}
	fp, err := Extract(g)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fp.Bits>>16 != 0 {
		t.Errorf("bits above 16 should be clear, got %x", fp.Bits)
	}
	if fp.Bits != 0x5555 {
		t.Errorf("bits = %x, want 5555", fp.Bits)
	}
}

func TestExtract_LargeGridUsesFirst64Samples(t *testing.T) {
	g := NewGrid(16)
	// Bright cells only beyond the first 64 samples.
	for i := 64; i < len(g.Pix); i++ {
		g.Pix[i] = 255
	}
	fp, err := Extract(g)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fp.Bits != 0 {
		t.Errorf("bits = %x, want 0 (first 64 samples are all below mean)", fp.Bits)
	}

	g.Pix[0] = 255
	fp, err = Extract(g)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fp.Bits != 1 {
		t.Errorf("bits = %x, want 1", fp.Bits)
	}
}

func TestExtract_NoOverflowAtMaxIntensity(t *testing.T) {
	g := NewGrid(255)
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	fp, err := Extract(g)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fp.Bits != ^uint64(0) {
		t.Errorf("bits = %x, want all ones", fp.Bits)
	}
}

func TestExtract_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		grid Grid
	}{
		{"zero size", Grid{Size: 0}},
		{"negative size", Grid{Size: -1, Pix: []uint8{1}}},
		{"too few samples", gridOf(3, 1, 2, 3)},
		{"too many samples", gridOf(1, 1, 2)},
		{"nil pixels", Grid{Size: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.grid)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Extract error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestValidateHashSize(t *testing.T) {
	if err := ValidateHashSize(8); err != nil {
		t.Errorf("ValidateHashSize(8) = %v", err)
	}
	if err := ValidateHashSize(0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ValidateHashSize(0) = %v, want ErrInvalidInput", err)
	}
	if err := ValidateHashSize(MaxHashSize); err != nil {
		t.Errorf("ValidateHashSize(%d) = %v", MaxHashSize, err)
	}
	if err := ValidateHashSize(100000); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ValidateHashSize(100000) = %v, want ErrInvalidInput", err)
	}
}

func TestTruncates(t *testing.T) {
	tests := []struct {
		size int
		want bool
	}{
		{4, false},
		{8, false},
		{9, true},
		{32, true},
	}
	for _, tt := range tests {
		if got := Truncates(tt.size); got != tt.want {
			t.Errorf("Truncates(%d) = %v, want %v", tt.size, got, tt.want)
		}
	}
}

func TestFingerprint_Comparable(t *testing.T) {
	a := Fingerprint{Bits: 1, HashSize: 8, Kind: KindAverage}
	if !a.Comparable(Fingerprint{Bits: 2, HashSize: 8, Kind: KindAverage}) {
		t.Error("same size and kind should be comparable")
	}
	if a.Comparable(Fingerprint{HashSize: 16, Kind: KindAverage}) {
		t.Error("different hash sizes should not be comparable")
	}
	if a.Comparable(Fingerprint{HashSize: 8, Kind: KindPerceptual}) {
		t.Error("different kinds should not be comparable")
	}
}
