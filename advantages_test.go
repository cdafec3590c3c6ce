package mirrorrl

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestAdvantages(t *testing.T) {
	b := &Batch{
		Returns: []float64{3, 2, 1},
		Values:  []float64{1, 1, 2},
	}
	adv := Advantages(b)
	for i, expected := range []float64{2, 1, -1} {
		assertClose(t, "advantage", adv[i], expected)
	}
}

func TestNormalizeAdvantages(t *testing.T) {
	gen := rand.New(rand.NewSource(1337))
	adv := make([]float64, 1000)
	for i := range adv {
		adv[i] = gen.NormFloat64()*7 + 3
	}
	NormalizeAdvantages(adv, 0)
	mean, std := stat.MeanStdDev(adv, nil)
	if math.Abs(mean) > 1e-6 {
		t.Errorf("expected mean 0 but got %f", mean)
	}
	if math.Abs(std-1) > 1e-3 {
		t.Errorf("expected std 1 but got %f", std)
	}
}

func TestNormalizeAdvantagesConstant(t *testing.T) {
	for _, adv := range [][]float64{{5, 5, 5}, {2}, nil} {
		NormalizeAdvantages(adv, 1e-5)
		for _, x := range adv {
			if math.IsNaN(x) || x != 0 {
				t.Errorf("expected zero advantages but got %v", adv)
				break
			}
		}
	}
}
