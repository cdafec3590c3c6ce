package mirrorppo

import (
	"math"

	"github.com/symrl/mirrorrl"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/stat"
)

// UpdateResult summarizes a call to Update.
type UpdateResult struct {
	// Mean is the mean loss record over every minibatch
	// which produced a gradient step.
	// It is nil if NoUpdates is true.
	Mean      *LossRecord
	NoUpdates bool

	// Steps is the number of gradient steps taken.
	Steps int

	// Skipped is the number of minibatches discarded by
	// the numerical guard.
	Skipped int

	// Epochs is the number of epochs which were run,
	// including the one which triggered an early stop.
	Epochs       int
	EarlyStopped bool

	// KL is the last mean KL divergence that was measured.
	KL float64

	// MaxAction is the largest absolute action component
	// in any processed minibatch, or -Inf if there were
	// no minibatches.
	MaxAction float64

	// Statistics of the most recent clipped gradient.
	GradRMS float64
	GradMax float64
	GradVar float64
}

// Update runs several epochs of minibatch gradient steps
// on the policy.
//
// The old policy is the reference for probability ratios
// and KL divergences.
// It should hold a snapshot of the policy's parameters
// from before the batch was sampled.
//
// The advantages should correspond to the timesteps of
// the batch, and should usually be normalized.
func (p *PPO) Update(policy, old mirrorrl.Policy, b *mirrorrl.Batch,
	advantages []float64, m *mirrorrl.Mirror) *UpdateResult {
	c := mirrorrl.PolicyCreator(policy)
	params := policy.Parameters()
	res := &UpdateResult{MaxAction: math.Inf(-1)}

	var records []*LossRecord
	for epoch := 0; epoch < p.epochs(); epoch++ {
		res.Epochs++
		var epochRecords []*LossRecord
		var lastTerms *LossTerms
		partition := mirrorrl.MinibatchIndices(p.Rand, b.NumSteps(), p.MinibatchSize)
		for i, indices := range partition {
			mb := NewMinibatch(c, b, advantages, indices)
			res.MaxAction = math.Max(res.MaxAction, maxAbs(mb.Actions))

			terms, ok := p.Loss(policy, old, mb, m)
			lastTerms = terms
			if !ok {
				res.Skipped++
				if p.Logger != nil {
					p.Logger.LogSkip(epoch, i)
				}
				continue
			}

			grad := anydiff.NewGrad(params...)
			terms.Total.Propagate(anyvec.Ones(c, 1), grad)
			p.clipGrad(grad)
			res.GradRMS, res.GradMax, res.GradVar = gradStats(grad)
			p.step(grad)

			res.Steps++
			record := terms.LossRecord
			epochRecords = append(epochRecords, &record)
		}
		records = append(records, epochRecords...)

		if p.Logger != nil {
			p.Logger.LogEpoch(epoch, MeanLossRecord(epochRecords), res.GradRMS)
		}

		if lastTerms == nil {
			continue
		}
		res.KL = mirrorrl.MeanValue(lastTerms.Dist.KL(lastTerms.OldDist).Output())
		if res.KL > p.targetKL() {
			res.EarlyStopped = true
			if p.Logger != nil {
				p.Logger.LogEarlyStop(epoch, res.KL)
			}
			break
		}
	}

	res.Mean = MeanLossRecord(records)
	res.NoUpdates = res.Mean == nil
	return res
}

func (p *PPO) step(grad anydiff.Grad) {
	c := creatorFromGrad(grad)
	grad = p.transformer().Transform(grad)
	grad.Scale(c.MakeNumeric(-p.learningRate()))
	grad.AddToVars()
}

// clipGrad scales the gradient so that its L2 norm is at
// most the clip threshold.
func (p *PPO) clipGrad(grad anydiff.Grad) {
	var sqSum float64
	for _, vec := range grad {
		for _, x := range mirrorrl.Components(vec) {
			sqSum += x * x
		}
	}
	coef := p.gradClip() / (math.Sqrt(sqSum) + 1e-6)
	if coef < 1 {
		grad.Scale(creatorFromGrad(grad).MakeNumeric(coef))
	}
}

func gradStats(grad anydiff.Grad) (rms, max, variance float64) {
	var all []float64
	for _, vec := range grad {
		all = append(all, mirrorrl.Components(vec)...)
	}
	if len(all) == 0 {
		return
	}
	var sqSum float64
	for _, x := range all {
		sqSum += x * x
		max = math.Max(max, math.Abs(x))
	}
	rms = math.Sqrt(sqSum / float64(len(all)))
	if len(all) > 1 {
		variance = stat.Variance(all, nil)
	}
	return
}

func maxAbs(vec anyvec.Vector) float64 {
	res := math.Inf(-1)
	for _, x := range mirrorrl.Components(vec) {
		res = math.Max(res, math.Abs(x))
	}
	return res
}
