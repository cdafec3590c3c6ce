// Package mirrorppo implements Proximal Policy
// Optimization with a mirror symmetry loss.
//
// The symmetry loss penalizes policies whose actions are
// not equivariant under an environment's left/right
// mirror transforms.
// See https://arxiv.org/abs/1707.06347 for PPO itself.
package mirrorppo

import (
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
)

// Default settings for PPO.
const (
	DefaultEpsilon      = 0.2
	DefaultGradClip     = 0.05
	DefaultLearningRate = 1e-4
	DefaultOptimizerEps = 1e-5
	DefaultEpochs       = 3
	DefaultTargetKL     = 0.02
	DefaultMirrorWeight = 5
	DefaultLogProbLimit = 20
)

// PPO stores the hyper-parameters of the optimizer.
//
// A PPO keeps optimizer state between calls to Update,
// so the same PPO should be used for an entire training
// run.
type PPO struct {
	// Epsilon is the amount by which the probability
	// ratio may change before it is clipped.
	//
	// If 0, DefaultEpsilon is used.
	Epsilon float64

	// EntropyCoeff is the strength of the entropy bonus.
	EntropyCoeff float64

	// GradClip bounds the L2 norm of every gradient step.
	// This protects against pathological updates from
	// unlucky minibatches.
	//
	// If 0, DefaultGradClip is used.
	GradClip float64

	// LearningRate is the step size.
	//
	// If 0, DefaultLearningRate is used.
	LearningRate float64

	// OptimizerEps is the damping term of the default Adam
	// transformer, and the fudge factor for advantage
	// normalization.
	//
	// If 0, DefaultOptimizerEps is used.
	OptimizerEps float64

	// MinibatchSize is the number of timesteps per
	// gradient step.
	//
	// If 0, the whole batch is used for every step.
	// If larger than the batch, no steps are taken.
	MinibatchSize int

	// Epochs is the number of passes over a batch.
	//
	// If 0, DefaultEpochs is used.
	Epochs int

	// TargetKL is the mean KL divergence past which an
	// update stops early.
	//
	// If 0, DefaultTargetKL is used.
	TargetKL float64

	// MirrorWeight scales the mirror symmetry loss.
	//
	// If 0, DefaultMirrorWeight is used.
	MirrorWeight float64

	// NoMirrorLoss, if true, leaves the mirror loss out of
	// the objective, reducing the algorithm to vanilla
	// PPO with an entropy bonus.
	// The mirror loss is still computed and reported.
	NoMirrorLoss bool

	// LogProbLimit is the largest log-probability which
	// is considered numerically sane.
	// Minibatches with larger (or non-finite)
	// log-probabilities are skipped.
	//
	// If 0, DefaultLogProbLimit is used.
	LogProbLimit float64

	// Transformer transforms gradients before they are
	// applied.
	//
	// If nil, an anysgd.Adam is created on first use.
	Transformer anysgd.Transformer

	// Rand is used to shuffle minibatches.
	//
	// If nil, the global source in math/rand is used.
	Rand *rand.Rand

	// Logger, if non-nil, is used to log progress.
	Logger Logger
}

func (p *PPO) epsilon() float64 {
	if p.Epsilon == 0 {
		return DefaultEpsilon
	}
	return p.Epsilon
}

func (p *PPO) gradClip() float64 {
	if p.GradClip == 0 {
		return DefaultGradClip
	}
	return p.GradClip
}

func (p *PPO) learningRate() float64 {
	if p.LearningRate == 0 {
		return DefaultLearningRate
	}
	return p.LearningRate
}

func (p *PPO) optimizerEps() float64 {
	if p.OptimizerEps == 0 {
		return DefaultOptimizerEps
	}
	return p.OptimizerEps
}

func (p *PPO) epochs() int {
	if p.Epochs == 0 {
		return DefaultEpochs
	}
	return p.Epochs
}

func (p *PPO) targetKL() float64 {
	if p.TargetKL == 0 {
		return DefaultTargetKL
	}
	return p.TargetKL
}

func (p *PPO) mirrorWeight() float64 {
	if p.MirrorWeight == 0 {
		return DefaultMirrorWeight
	}
	return p.MirrorWeight
}

func (p *PPO) logProbLimit() float64 {
	if p.LogProbLimit == 0 {
		return DefaultLogProbLimit
	}
	return p.LogProbLimit
}

func (p *PPO) transformer() anysgd.Transformer {
	if p.Transformer == nil {
		p.Transformer = &anysgd.Adam{Damping: p.optimizerEps()}
	}
	return p.Transformer
}

func (p *PPO) clippedObjective(ratios, advantages anydiff.Res) anydiff.Res {
	epsilon := p.epsilon()
	c := ratios.Output().Creator()
	return anydiff.Pool(ratios, func(ratios anydiff.Res) anydiff.Res {
		clipped := anydiff.ClipRange(ratios, c.MakeNumeric(1-epsilon),
			c.MakeNumeric(1+epsilon))
		return anydiff.ElemMin(
			anydiff.Mul(clipped, advantages),
			anydiff.Mul(ratios, advantages),
		)
	})
}

func creatorFromGrad(g anydiff.Grad) anyvec.Creator {
	for _, v := range g {
		return v.Creator()
	}
	panic("empty gradient")
}
