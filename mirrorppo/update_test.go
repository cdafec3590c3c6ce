package mirrorppo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/symrl/mirrorrl"
	"github.com/symrl/mirrorrl/synthenv"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

type recordingLogger struct {
	StandardLogger

	epochs     []*LossRecord
	skips      int
	earlyStops int
}

func (r *recordingLogger) LogEpoch(epoch int, mean *LossRecord, gradRMS float64) {
	r.epochs = append(r.epochs, mean)
}

func (r *recordingLogger) LogSkip(epoch, minibatch int) {
	r.skips++
}

func (r *recordingLogger) LogEarlyStop(epoch int, kl float64) {
	r.earlyStops++
}

func TestUpdateSkipsUnstable(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	means := []float64{0.25, -0.5}
	b := &mirrorrl.Batch{ObsSize: 1, ActSize: 2}
	for i := 0; i < 8; i++ {
		b.Observations = append(b.Observations, float64(i))
		b.Actions = append(b.Actions, means...)
		b.Returns = append(b.Returns, 1)
		b.Values = append(b.Values, 0)
	}
	adv := mirrorrl.Advantages(b)

	for _, name := range []string{"LargeLogProb", "NaN"} {
		t.Run(name, func(t *testing.T) {
			policy := linearPolicy(c, 1, 0, means, -30)
			batch := b
			if name == "NaN" {
				policy = linearPolicy(c, 1, 0, means, 0)
				nanBatch := *b
				nanBatch.Actions = append([]float64{}, b.Actions...)
				for i := range nanBatch.Actions {
					nanBatch.Actions[i] = math.NaN()
				}
				batch = &nanBatch
			}
			old := copyPolicy(t, policy)
			logger := &recordingLogger{}
			p := &PPO{MinibatchSize: 4, Rand: rand.New(rand.NewSource(1)), Logger: logger}

			res := p.Update(policy, old, batch, adv, identityMirror(c, 1, 2))
			if !res.NoUpdates || res.Mean != nil {
				t.Error("expected no updates")
			}
			if res.Steps != 0 || res.Skipped != 6 || logger.skips != 6 {
				t.Errorf("expected 0 steps and 6 skips but got %d and %d", res.Steps,
					res.Skipped)
			}
			if res.Epochs != 3 || res.EarlyStopped {
				t.Errorf("expected 3 epochs without early stop but got %d", res.Epochs)
			}
			if len(logger.epochs) != 3 || logger.epochs[0] != nil {
				t.Error("every epoch should be logged with no record")
			}
			if !paramsEqual(policy, old) {
				t.Error("parameters should not change")
			}
		})
	}
}

func TestUpdateEarlyStop(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	gen := rand.New(rand.NewSource(1337))
	b := randomBatch(gen, 32, 3, 2)
	adv := mirrorrl.Advantages(b)
	mirrorrl.NormalizeAdvantages(adv, 0)

	t.Run("LargeSteps", func(t *testing.T) {
		policy := mirrorrl.NewGaussianMLP(c, 3, 2, []int{8}, 0)
		old := copyPolicy(t, policy)
		logger := &recordingLogger{}
		p := &PPO{LearningRate: 0.5, GradClip: 100, Logger: logger}
		res := p.Update(policy, old, b, adv, swapMirror(c))
		if !res.EarlyStopped || res.Epochs != 1 || res.Steps != 1 {
			t.Errorf("expected early stop after 1 epoch but got %d epochs (%d steps)",
				res.Epochs, res.Steps)
		}
		if res.KL <= DefaultTargetKL {
			t.Errorf("KL %f should exceed the target", res.KL)
		}
		if logger.earlyStops != 1 {
			t.Errorf("expected one early stop log but got %d", logger.earlyStops)
		}
	})

	t.Run("SmallSteps", func(t *testing.T) {
		policy := mirrorrl.NewGaussianMLP(c, 3, 2, []int{8}, 0)
		old := copyPolicy(t, policy)
		p := &PPO{LearningRate: 1e-6}
		res := p.Update(policy, old, b, adv, swapMirror(c))
		if res.EarlyStopped || res.Epochs != 3 || res.Steps != 3 {
			t.Errorf("expected 3 full epochs but got %d epochs (%d steps)",
				res.Epochs, res.Steps)
		}
		if res.Mean == nil || res.NoUpdates {
			t.Error("expected a mean record")
		}
	})
}

func TestUpdateImprovesActor(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	maker := synthenv.WalkerMaker(c, 1337, true)
	policy := linearPolicy(c, synthenv.WalkerObsSize, 0, []float64{0, 0}, -0.5)
	sampler := &mirrorrl.ParallelSampler{Seed: 1337}
	b, err := sampler.Sample(maker, policy, mirrorrl.SampleConfig{
		NumSteps:   200,
		MaxTrajLen: 50,
	})
	if err != nil {
		t.Fatal(err)
	}
	adv := mirrorrl.Advantages(b)
	mirrorrl.NormalizeAdvantages(adv, 0)
	m, err := mirrorrl.MakeMirror(maker)
	if err != nil {
		t.Fatal(err)
	}

	old := copyPolicy(t, policy)
	p := &PPO{Epochs: 1, LearningRate: 1e-3}
	mb := NewMinibatch(c, b, adv, allIndices(b.NumSteps()))
	before, ok := p.Loss(policy, old, mb, m)
	if !ok {
		t.Fatal("unexpected skip")
	}
	var advSum float64
	for _, a := range adv {
		advSum += a
	}
	assertClose(t, "initial actor loss", before.Actor, -advSum/float64(len(adv)))

	res := p.Update(policy, old, b, adv, m)
	if res.Steps != 1 {
		t.Fatalf("expected 1 step but got %d", res.Steps)
	}
	after, ok := p.Loss(policy, old, mb, m)
	if !ok {
		t.Fatal("unexpected skip")
	}
	if after.Actor >= before.Actor {
		t.Errorf("actor loss should decrease: %f -> %f", before.Actor, after.Actor)
	}
	if res.GradRMS <= 0 || res.GradMax <= 0 {
		t.Errorf("bad gradient stats: rms=%f max=%f", res.GradRMS, res.GradMax)
	}

	var maxAction float64
	for _, a := range b.Actions {
		maxAction = math.Max(maxAction, math.Abs(a))
	}
	assertClose(t, "max action", res.MaxAction, maxAction)
}

func TestUpdateKeepsOldPolicy(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	gen := rand.New(rand.NewSource(42))
	b := randomBatch(gen, 32, 3, 2)
	adv := mirrorrl.Advantages(b)
	mirrorrl.NormalizeAdvantages(adv, 0)

	policy := mirrorrl.NewGaussianMLP(c, 3, 2, []int{8}, 0)
	old := copyPolicy(t, policy)
	before := mirrorrl.ParamState(old)

	p := &PPO{LearningRate: 1e-3, Rand: rand.New(rand.NewSource(1))}
	res := p.Update(policy, old, b, adv, swapMirror(c))
	if res.Steps == 0 {
		t.Fatal("expected optimizer steps")
	}
	after := mirrorrl.ParamState(old)
	for i, v := range before {
		assertSimilar(t, after[i], v)
	}
	if paramsEqual(policy, old) {
		t.Error("policy parameters should change")
	}
}

func TestUpdateOversizedMinibatch(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	gen := rand.New(rand.NewSource(7))
	b := randomBatch(gen, 8, 3, 2)
	adv := mirrorrl.Advantages(b)

	policy := mirrorrl.NewGaussianMLP(c, 3, 2, []int{8}, 0)
	old := copyPolicy(t, policy)
	logger := &recordingLogger{}
	p := &PPO{MinibatchSize: 20, Logger: logger}
	res := p.Update(policy, old, b, adv, swapMirror(c))
	if !res.NoUpdates || res.Mean != nil {
		t.Error("expected no updates")
	}
	if res.Steps != 0 || res.Skipped != 0 {
		t.Errorf("expected no steps or skips but got %d and %d", res.Steps, res.Skipped)
	}
	if res.Epochs != DefaultEpochs {
		t.Errorf("expected %d epochs but got %d", DefaultEpochs, res.Epochs)
	}
	if !math.IsInf(res.MaxAction, -1) {
		t.Errorf("max action should be -Inf but got %f", res.MaxAction)
	}
	if len(logger.epochs) != DefaultEpochs {
		t.Errorf("expected %d epoch logs but got %d", DefaultEpochs, len(logger.epochs))
	}
	if !paramsEqual(policy, old) {
		t.Error("parameters should not change")
	}
}

func TestGradClipping(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	policy := linearPolicy(c, 1, 0, []float64{0}, 0)
	params := policy.Parameters()
	g := newTestGrad(c, params, 3)
	(&PPO{GradClip: 1}).clipGrad(g)
	rms, max, _ := gradStats(g)

	var sqSum float64
	var count int
	for _, v := range g {
		for _, x := range mirrorrl.Components(v) {
			sqSum += x * x
			count++
		}
	}
	if math.Abs(math.Sqrt(sqSum)-1) > 1e-5 {
		t.Errorf("expected norm 1 but got %f", math.Sqrt(sqSum))
	}
	assertClose(t, "rms", rms, math.Sqrt(sqSum/float64(count)))
	if max <= 0 {
		t.Error("max should be positive")
	}

	// Gradients under the threshold are left alone.
	small := newTestGrad(c, params, 1e-3)
	(&PPO{GradClip: 1}).clipGrad(small)
	for _, v := range small {
		for _, x := range mirrorrl.Components(v) {
			assertClose(t, "small grad", x, 1e-3)
		}
	}
}

func newTestGrad(c anyvec.Creator, params []*anydiff.Var, value float64) anydiff.Grad {
	g := anydiff.NewGrad(params...)
	for _, v := range g {
		v.AddScalar(c.MakeNumeric(value))
	}
	return g
}
