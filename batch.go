package mirrorrl

import (
	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/stat"
)

// A Batch is a set of timesteps gathered by a Sampler.
//
// Timestep data is stored in parallel, flattened slices.
// A Batch should not be modified once it is produced.
type Batch struct {
	ObsSize int
	ActSize int

	// Observations stores ObsSize values per timestep.
	Observations []float64

	// Actions stores ActSize values per timestep.
	Actions []float64

	// Returns stores the discounted return observed from
	// each timestep.
	Returns []float64

	// Values stores the value estimate the policy made at
	// each timestep while sampling.
	Values []float64

	// EpReturns and EpLens store the undiscounted return
	// and the length of every episode in the batch.
	// They are only used for logging.
	EpReturns []float64
	EpLens    []int
}

// PackBatches joins multiple batches into one larger
// batch.
func PackBatches(bs []*Batch) *Batch {
	res := &Batch{}
	for _, b := range bs {
		if b.NumSteps() > 0 {
			res.ObsSize = b.ObsSize
			res.ActSize = b.ActSize
		}
		res.Observations = append(res.Observations, b.Observations...)
		res.Actions = append(res.Actions, b.Actions...)
		res.Returns = append(res.Returns, b.Returns...)
		res.Values = append(res.Values, b.Values...)
		res.EpReturns = append(res.EpReturns, b.EpReturns...)
		res.EpLens = append(res.EpLens, b.EpLens...)
	}
	return res
}

// NumSteps counts the total number of timesteps.
func (b *Batch) NumSteps() int {
	return len(b.Returns)
}

// Tensors creates the four per-timestep tensors.
func (b *Batch) Tensors(c anyvec.Creator) (obs, acts, rets, vals anyvec.Vector) {
	return makeVector(c, b.Observations), makeVector(c, b.Actions),
		makeVector(c, b.Returns), makeVector(c, b.Values)
}

// MeanEpReturn computes the mean episode return.
func (b *Batch) MeanEpReturn() float64 {
	return stat.Mean(b.EpReturns, nil)
}

// MeanEpLen computes the mean episode length.
func (b *Batch) MeanEpLen() float64 {
	lens := make([]float64, len(b.EpLens))
	for i, l := range b.EpLens {
		lens[i] = float64(l)
	}
	return stat.Mean(lens, nil)
}
