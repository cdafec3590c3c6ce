package mirrorppo

import (
	"math"

	"github.com/symrl/mirrorrl"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A LossRecord stores the diagnostic loss terms for one
// minibatch, or an average over many minibatches.
type LossRecord struct {
	Actor   float64
	Entropy float64
	Critic  float64
	Ratio   float64
	Mirror  float64
}

func (l *LossRecord) add(other *LossRecord) {
	l.Actor += other.Actor
	l.Entropy += other.Entropy
	l.Critic += other.Critic
	l.Ratio += other.Ratio
	l.Mirror += other.Mirror
}

func (l *LossRecord) scale(s float64) {
	l.Actor *= s
	l.Entropy *= s
	l.Critic *= s
	l.Ratio *= s
	l.Mirror *= s
}

// MeanLossRecord averages a list of records.
// It returns nil for an empty list.
func MeanLossRecord(records []*LossRecord) *LossRecord {
	if len(records) == 0 {
		return nil
	}
	res := &LossRecord{}
	for _, r := range records {
		res.add(r)
	}
	res.scale(1 / float64(len(records)))
	return res
}

// A Minibatch is a subset of the timesteps in a batch.
type Minibatch struct {
	Size int

	Observations anyvec.Vector
	Actions      anyvec.Vector
	Returns      anyvec.Vector
	Advantages   anyvec.Vector
}

// NewMinibatch gathers the timesteps with the given
// indices into a Minibatch.
func NewMinibatch(c anyvec.Creator, b *mirrorrl.Batch, advantages []float64,
	indices []int) *Minibatch {
	obs := make([]float64, 0, len(indices)*b.ObsSize)
	acts := make([]float64, 0, len(indices)*b.ActSize)
	rets := make([]float64, 0, len(indices))
	advs := make([]float64, 0, len(indices))
	for _, i := range indices {
		obs = append(obs, b.Observations[i*b.ObsSize:(i+1)*b.ObsSize]...)
		acts = append(acts, b.Actions[i*b.ActSize:(i+1)*b.ActSize]...)
		rets = append(rets, b.Returns[i])
		advs = append(advs, advantages[i])
	}
	return &Minibatch{
		Size:         len(indices),
		Observations: c.MakeVectorData(c.MakeNumericList(obs)),
		Actions:      c.MakeVectorData(c.MakeNumericList(acts)),
		Returns:      c.MakeVectorData(c.MakeNumericList(rets)),
		Advantages:   c.MakeVectorData(c.MakeNumericList(advs)),
	}
}

// LossTerms is the result of evaluating the objective on
// a minibatch.
type LossTerms struct {
	// Total is the differentiable objective to minimize.
	// It is nil if the minibatch was skipped.
	Total anydiff.Res

	LossRecord

	// EntropyPenalty is the (negative) entropy term that
	// was added to Total.
	EntropyPenalty float64

	// Dist and OldDist are the action distributions of
	// the current and reference policies.
	Dist    *mirrorrl.Distribution
	OldDist *mirrorrl.Distribution
}

// Loss computes the objective for a minibatch.
//
// The reference policy is evaluated without gradients.
// The caller is responsible for back-propagating through
// the resulting Total.
//
// If the log-probabilities of the taken actions are not
// numerically sane, ok is false and only the
// distributions are set in the result.
func (p *PPO) Loss(policy, old mirrorrl.Policy, mb *Minibatch,
	m *mirrorrl.Mirror) (terms *LossTerms, ok bool) {
	c := mb.Observations.Creator()
	n := mb.Size

	values, dist := policy.Evaluate(mb.Observations, n)
	_, oldDist := old.Evaluate(mb.Observations, n)
	terms = &LossTerms{Dist: dist, OldDist: oldDist}

	logProbs := dist.LogProb(mb.Actions)
	oldLogProbs := anydiff.NewConst(oldDist.LogProb(mb.Actions).Output())
	if !p.saneLogProbs(logProbs.Output()) {
		return terms, false
	}

	ratios := anydiff.Exp(anydiff.Sub(logProbs, oldLogProbs))
	advantages := anydiff.NewConst(mb.Advantages)
	actorLoss := anydiff.Scale(
		mirrorrl.Mean(p.clippedObjective(ratios, advantages)),
		c.MakeNumeric(-1),
	)

	criticLoss := anydiff.Scale(
		mirrorrl.Mean(anydiff.Square(anydiff.Sub(anydiff.NewConst(mb.Returns), values))),
		c.MakeNumeric(0.5),
	)

	mirrorLoss := p.mirrorLoss(policy, mb, m)

	entropy := mirrorrl.Mean(dist.Entropy())
	entropyPenalty := anydiff.Scale(entropy, c.MakeNumeric(-p.EntropyCoeff))

	total := anydiff.Add(actorLoss, criticLoss)
	if !p.NoMirrorLoss {
		total = anydiff.Add(total, mirrorLoss)
	}
	terms.Total = anydiff.Add(total, entropyPenalty)

	terms.Actor = mirrorrl.Scalar(actorLoss)
	terms.Entropy = mirrorrl.Scalar(entropy)
	terms.Critic = mirrorrl.Scalar(criticLoss)
	terms.Ratio = mirrorrl.MeanValue(ratios.Output())
	terms.Mirror = mirrorrl.Scalar(mirrorLoss)
	terms.EntropyPenalty = mirrorrl.Scalar(entropyPenalty)

	return terms, true
}

// mirrorLoss measures how far the policy's deterministic
// actions are from the mirror image of its actions on
// mirrored observations.
func (p *PPO) mirrorLoss(policy mirrorrl.Policy, mb *Minibatch,
	m *mirrorrl.Mirror) anydiff.Res {
	c := mb.Observations.Creator()
	_, actions := policy.Act(mb.Observations, mb.Size)
	_, mirrorActions := policy.Act(m.Observation(mb.Observations, mb.Size), mb.Size)
	mirrorActions = m.Action(mirrorActions, mb.Size)
	return anydiff.Scale(
		mirrorrl.Mean(anydiff.Square(anydiff.Sub(actions, mirrorActions))),
		c.MakeNumeric(p.mirrorWeight()),
	)
}

func (p *PPO) saneLogProbs(logProbs anyvec.Vector) bool {
	limit := p.logProbLimit()
	for _, x := range mirrorrl.Components(logProbs) {
		if math.IsNaN(x) || math.IsInf(x, 0) || x > limit {
			return false
		}
	}
	return true
}
