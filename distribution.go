package mirrorrl

import (
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

var halfLog2Pi = 0.5 * math.Log(2*math.Pi)

// A Distribution is a batch of diagonal Gaussian action
// distributions.
//
// Action dimensions are modeled as conditionally
// independent, so per-sample quantities like LogProb are
// sums over the action dimensions.
type Distribution struct {
	// Mean stores the means, packed sample after sample.
	Mean anydiff.Res

	// LogStd stores the log standard deviations.
	// It has the same layout as Mean.
	LogStd anydiff.Res

	// BatchSize is the number of samples in the batch.
	BatchSize int
}

// ActionSize returns the number of action dimensions.
func (d *Distribution) ActionSize() int {
	return d.Mean.Output().Len() / d.BatchSize
}

// LogProb computes, for each sample in the batch, the
// log-density of the given actions.
func (d *Distribution) LogProb(actions anyvec.Vector) anydiff.Res {
	if actions.Len() != d.Mean.Output().Len() {
		panic("length mismatch")
	}
	c := actions.Creator()
	return anydiff.Pool(d.LogStd, func(logStd anydiff.Res) anydiff.Res {
		diff := anydiff.Sub(anydiff.NewConst(actions), d.Mean)
		invVar := anydiff.Exp(anydiff.Scale(logStd, c.MakeNumeric(-2)))
		sqErr := anydiff.Mul(anydiff.Square(diff), invVar)
		elems := anydiff.AddScalar(
			anydiff.Sub(anydiff.Scale(sqErr, c.MakeNumeric(-0.5)), logStd),
			c.MakeNumeric(-halfLog2Pi),
		)
		return d.sumSamples(elems)
	})
}

// Entropy computes the entropy of every action dimension
// of every sample.
//
// Unlike LogProb, the result is not summed across action
// dimensions.
func (d *Distribution) Entropy() anydiff.Res {
	c := d.LogStd.Output().Creator()
	return anydiff.AddScalar(d.LogStd, c.MakeNumeric(0.5+halfLog2Pi))
}

// KL computes KL(d || other) for every action dimension
// of every sample.
func (d *Distribution) KL(other *Distribution) anydiff.Res {
	if d.Mean.Output().Len() != other.Mean.Output().Len() {
		panic("length mismatch")
	}
	c := d.Mean.Output().Creator()
	variance := anydiff.Exp(anydiff.Scale(d.LogStd, c.MakeNumeric(2)))
	otherInvVar := anydiff.Exp(anydiff.Scale(other.LogStd, c.MakeNumeric(-2)))
	meanDiff := anydiff.Square(anydiff.Sub(d.Mean, other.Mean))
	return anydiff.AddScalar(
		anydiff.Add(
			anydiff.Sub(other.LogStd, d.LogStd),
			anydiff.Scale(
				anydiff.Mul(anydiff.Add(variance, meanDiff), otherInvVar),
				c.MakeNumeric(0.5),
			),
		),
		c.MakeNumeric(-0.5),
	)
}

// Sample draws one action per sample.
//
// If gen is nil, the global source in math/rand is used.
func (d *Distribution) Sample(gen *rand.Rand) anyvec.Vector {
	means := Components(d.Mean.Output())
	logStds := Components(d.LogStd.Output())
	res := make([]float64, len(means))
	for i, mean := range means {
		var noise float64
		if gen == nil {
			noise = rand.NormFloat64()
		} else {
			noise = gen.NormFloat64()
		}
		res[i] = mean + math.Exp(logStds[i])*noise
	}
	return makeVector(d.Mean.Output().Creator(), res)
}

// Mode returns the most likely actions, i.e. the means.
func (d *Distribution) Mode() anyvec.Vector {
	return d.Mean.Output().Copy()
}

// MeanColumn returns the means of one action dimension
// across the batch.
func (d *Distribution) MeanColumn(dim int) []float64 {
	size := d.ActionSize()
	means := Components(d.Mean.Output())
	res := make([]float64, d.BatchSize)
	for i := range res {
		res[i] = means[i*size+dim]
	}
	return res
}

func (d *Distribution) sumSamples(elems anydiff.Res) anydiff.Res {
	return anydiff.SumCols(&anydiff.Matrix{
		Data: elems,
		Rows: d.BatchSize,
		Cols: elems.Output().Len() / d.BatchSize,
	})
}
