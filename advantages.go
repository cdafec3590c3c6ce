package mirrorrl

import "gonum.org/v1/gonum/stat"

// DefaultNormalizeEpsilon is the fudge factor used when
// normalizing advantages.
const DefaultNormalizeEpsilon = 1e-5

// Advantages computes return minus value for every
// timestep in the batch.
func Advantages(b *Batch) []float64 {
	res := make([]float64, b.NumSteps())
	for i, ret := range b.Returns {
		res[i] = ret - b.Values[i]
	}
	return res
}

// NormalizeAdvantages statistically normalizes the
// advantages in place, giving them a mean of zero and a
// standard deviation of one.
//
// The sample standard deviation is used.
// The epsilon is added to the standard deviation to
// prevent numerical issues when the advantages are
// nearly constant.
// If epsilon is 0, DefaultNormalizeEpsilon is used.
func NormalizeAdvantages(adv []float64, epsilon float64) {
	if len(adv) == 0 {
		return
	}
	if epsilon == 0 {
		epsilon = DefaultNormalizeEpsilon
	}
	mean, std := stat.MeanStdDev(adv, nil)
	if len(adv) == 1 {
		std = 0
	}
	normalizer := 1 / (std + epsilon)
	for i := range adv {
		adv[i] = (adv[i] - mean) * normalizer
	}
}
