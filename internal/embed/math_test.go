package embed

import (
	"math"
	"testing"
)

func TestNormalize_UnitLength(t *testing.T) {
	v := Normalize([]float32{3, 4})
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-6 {
		t.Errorf("magnitude = %f, want 1", math.Sqrt(sum))
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("v = %v, want [0.6 0.8]", v)
	}
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	for i, x := range v {
		if x != 0 {
			t.Errorf("v[%d] = %f, want 0", i, x)
		}
	}
}

func TestCosine_Identical(t *testing.T) {
	a := []float32{1, 2, 3}
	if got := Cosine(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("Cosine(a, a) = %f, want 1", got)
	}
}

func TestCosine_Orthogonal(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("got %f, want 0", got)
	}
}

func TestCosine_Opposite(t *testing.T) {
	got := Cosine([]float32{1, 0}, []float32{-1, 0})
	if math.Abs(got+1) > 1e-9 {
		t.Errorf("got %f, want -1", got)
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("got %f, want 0 on dimension mismatch", got)
	}
}

func TestCosine_ZeroMagnitude(t *testing.T) {
	if got := Cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("got %f, want 0 for zero-magnitude input", got)
	}
}

func TestNormalizeInput(t *testing.T) {
	if got := normalizeInput("  InVoice "); got != "invoice" {
		t.Errorf("got %q", got)
	}
}
