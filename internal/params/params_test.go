package params

import (
	"errors"
	"math"
	"testing"
)

func TestDeriveTable(t *testing.T) {
	tests := []struct {
		intensity float64
		want      Params
	}{
		{0, Params{0, 0}},
		{0.05, Params{1, 3}},
		{0.10, Params{1, 2}},
		{0.15, Params{2, 1}},
		{0.40, Params{4, 4}},
		{0.50, Params{5, 5}},
		{0.85, Params{9, 5}},
		{0.90, Params{9, 6}},
		{0.95, Params{9, 5}},
		{1.00, Params{9, 4}},
	}
	for _, tt := range tests {
		if got := Derive(tt.intensity); got != tt.want {
			t.Errorf("Derive(%v) = %+v, want %+v", tt.intensity, got, tt.want)
		}
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	for step := 1; step <= 20; step++ {
		v := float64(step) * 0.05
		first := Derive(v)
		for range 3 {
			if got := Derive(v); got != first {
				t.Fatalf("Derive(%v) = %+v, then %+v", v, first, got)
			}
		}
	}
}

func TestEdgeEnhancementTableIsTotal(t *testing.T) {
	for pct := 0; pct <= 100; pct += 5 {
		p := Derive(float64(pct) / 100)
		if p.EdgeEnhancement < 0 || p.EdgeEnhancement > 9 {
			t.Errorf("Derive(%d%%).EdgeEnhancement = %d, out of range", pct, p.EdgeEnhancement)
		}
	}
	if got := Derive(1).EdgeEnhancement; got != 4 {
		t.Errorf("Derive(1).EdgeEnhancement = %d, want 4", got)
	}
}

func TestLevelOfAbstractionMonotonic(t *testing.T) {
	prev := -1
	for step := 0; step <= 100; step++ {
		v := float64(step) / 100
		level := Derive(v).LevelOfAbstraction
		if level < 0 || level > 9 {
			t.Fatalf("Derive(%v).LevelOfAbstraction = %d, out of [0, 9]", v, level)
		}
		if level < prev {
			t.Fatalf("level decreased at %v: %d < %d", v, level, prev)
		}
		prev = level
	}
	if prev != 9 {
		t.Errorf("level at 1.0 = %d, want 9 (clamped)", prev)
	}
}

func TestStoreSetIntensityAppliesTables(t *testing.T) {
	s := NewStore(DefaultConstants())

	p, err := s.SetIntensity(0.5)
	if err != nil {
		t.Fatalf("SetIntensity(0.5) error = %v", err)
	}
	if p != (Params{LevelOfAbstraction: 5, EdgeEnhancement: 5}) {
		t.Errorf("SetIntensity(0.5) = %+v, want level 5, edge 5", p)
	}

	c := s.Constants()
	if c.BFNA != 7 || c.BFNE != 7 || c.DoGTau != 0.97 {
		t.Errorf("constants = n_a %d n_e %d tau %v, want 7 7 0.97", c.BFNA, c.BFNE, c.DoGTau)
	}
	if s.Intensity() != 0.5 {
		t.Errorf("Intensity() = %v, want 0.5", s.Intensity())
	}
}

func TestStoreZeroBucketIsNoOp(t *testing.T) {
	s := NewStore(DefaultConstants())
	if _, err := s.SetIntensity(0.9); err != nil {
		t.Fatal(err)
	}
	before := s.Constants()

	if _, err := s.SetIntensity(0); err != nil {
		t.Fatal(err)
	}
	after := s.Constants()
	if after.BFNE != before.BFNE || after.DoGTau != before.DoGTau || after.BFNA != before.BFNA {
		t.Errorf("intensity 0 changed constants: %+v -> %+v", before, after)
	}
}

func TestStoreRejectsOutOfRange(t *testing.T) {
	s := NewStore(DefaultConstants())
	for _, v := range []float64{-0.05, 1.01, math.NaN(), math.Inf(1)} {
		if _, err := s.SetIntensity(v); !errors.Is(err, ErrIntensityRange) {
			t.Errorf("SetIntensity(%v) error = %v, want ErrIntensityRange", v, err)
		}
	}
}

func TestStoresAreIndependent(t *testing.T) {
	image := NewStore(DefaultConstants())
	video := NewStore(DefaultConstants())

	if _, err := image.SetIntensity(0.15); err != nil {
		t.Fatal(err)
	}
	before := image.Constants()

	for step := 1; step <= 20; step++ {
		if _, err := video.SetIntensity(float64(step) * 0.05); err != nil {
			t.Fatal(err)
		}
		if got := image.Constants(); got != before {
			t.Fatalf("video intensity %v perturbed image constants", float64(step)*0.05)
		}
	}
}

func TestConstantsValidate(t *testing.T) {
	if err := DefaultConstants().Validate(); err != nil {
		t.Errorf("DefaultConstants().Validate() = %v", err)
	}

	c := DefaultConstants()
	c.CQNBins = 0
	if err := c.Validate(); err == nil {
		t.Error("Validate() with zero bins should fail")
	}

	c = DefaultConstants()
	c.DefaultSize = 0
	if err := c.Validate(); err == nil {
		t.Error("Validate() with zero default size should fail")
	}
}

func TestResolutionScale(t *testing.T) {
	c := DefaultConstants()
	if got := c.ResolutionScale(2, 512); got != 1 {
		t.Errorf("ResolutionScale(2, 512) = %v, want 1", got)
	}
	if got := c.ResolutionScale(2, 1024); got != 2 {
		t.Errorf("ResolutionScale(2, 1024) = %v, want 2", got)
	}
}
