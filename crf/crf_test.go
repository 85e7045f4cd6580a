package crf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestDecodePrefersHighEmissions(t *testing.T) {
	l := NewLayer(2)
	emissions := mat.NewDense(2, 2, []float64{
		1.0, 0.5,
		0.3, 2.0,
	})
	l.Trans.W.Set(0, 0, 0.1)
	l.Trans.W.Set(0, 1, 0.2)
	l.Trans.W.Set(1, 0, 0.3)
	l.Trans.W.Set(1, 1, 0.1)

	// best path is [0, 1]: 1.0 + 0.2 + 2.0 = 3.2
	path := l.Decode(emissions)
	if len(path) != 2 || path[0] != 0 || path[1] != 1 {
		t.Errorf("path = %v, want [0 1]", path)
	}
}

func TestDecodeEmpty(t *testing.T) {
	l := NewLayer(3)
	if path := l.Decode(new(mat.Dense)); path != nil {
		t.Errorf("path = %v, want nil", path)
	}
}

func TestTransitionsInfluenceDecoding(t *testing.T) {
	l := NewLayer(2)
	// emissions slightly favor tag 1 at position 1, but a strongly negative
	// transition 0->1 should keep the path at tag 0.
	emissions := mat.NewDense(2, 2, []float64{
		2.0, 0.0,
		0.9, 1.0,
	})
	l.Trans.W.Set(0, 1, -5)

	path := l.Decode(emissions)
	if path[0] != 0 || path[1] != 0 {
		t.Errorf("path = %v, want [0 0]", path)
	}
}

func TestMarginalsSumToOne(t *testing.T) {
	l := NewLayer(3)
	emissions := mat.NewDense(4, 3, []float64{
		0.1, 0.9, 0.2,
		1.2, 0.4, 0.1,
		0.0, 0.0, 2.0,
		0.5, 0.5, 0.5,
	})
	m := l.Marginals(emissions)
	for i := range 4 {
		sum := 0.0
		for y := range 3 {
			sum += m.At(i, y)
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("marginals at %d sum to %g", i, sum)
		}
	}
}

func TestLossDecreasesForBetterEmissions(t *testing.T) {
	l := NewLayer(2)
	tags := []int{0, 1, 0}

	weak := mat.NewDense(3, 2, []float64{
		0.1, 0.0,
		0.0, 0.1,
		0.1, 0.0,
	})
	strong := mat.NewDense(3, 2, []float64{
		5.0, 0.0,
		0.0, 5.0,
		5.0, 0.0,
	})

	weakLoss, _ := l.Loss(weak, tags)
	strongLoss, _ := l.Loss(strong, tags)
	if strongLoss >= weakLoss {
		t.Errorf("strong emissions loss %g >= weak %g", strongLoss, weakLoss)
	}
	if strongLoss < 0 {
		t.Errorf("negative log-likelihood is negative: %g", strongLoss)
	}
}

func TestLossEmissionGradientNumerically(t *testing.T) {
	l := NewLayer(3)
	l.Trans.W.Set(0, 1, 0.5)
	l.Trans.W.Set(1, 2, -0.3)
	tags := []int{0, 2, 1}
	emissions := mat.NewDense(3, 3, []float64{
		0.2, -0.1, 0.4,
		1.0, 0.3, -0.5,
		0.0, 0.8, 0.1,
	})

	_, grad := l.Loss(emissions, tags)

	const h = 1e-6
	for i := range 3 {
		for y := range 3 {
			orig := emissions.At(i, y)
			emissions.Set(i, y, orig+h)
			lp, _ := l.Loss(emissions, tags)
			emissions.Set(i, y, orig-h)
			lm, _ := l.Loss(emissions, tags)
			emissions.Set(i, y, orig)

			want := (lp - lm) / (2 * h)
			if got := grad.At(i, y); math.Abs(got-want) > 1e-5 {
				t.Fatalf("grad[%d,%d] = %g, numerical %g", i, y, got, want)
			}
		}
	}
}

func TestLossTransitionGradientNumerically(t *testing.T) {
	l := NewLayer(2)
	tags := []int{0, 1, 1}
	emissions := mat.NewDense(3, 2, []float64{
		0.3, 0.1,
		-0.2, 0.6,
		0.5, 0.4,
	})

	l.Trans.ZeroGrad()
	l.Loss(emissions, tags)
	analytic := mat.DenseCopyOf(l.Trans.Grad)

	const h = 1e-6
	for a := range 2 {
		for b := range 2 {
			orig := l.Trans.W.At(a, b)
			l.Trans.W.Set(a, b, orig+h)
			lp, _ := l.Loss(emissions, tags)
			l.Trans.W.Set(a, b, orig-h)
			lm, _ := l.Loss(emissions, tags)
			l.Trans.W.Set(a, b, orig)

			want := (lp - lm) / (2 * h)
			if got := analytic.At(a, b); math.Abs(got-want) > 1e-5 {
				t.Fatalf("trans grad[%d,%d] = %g, numerical %g", a, b, got, want)
			}
		}
	}
}
