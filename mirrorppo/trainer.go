package mirrorppo

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/symrl/mirrorrl"
	"github.com/symrl/mirrorrl/telemetry"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// Default settings for Trainer.
const (
	DefaultNumSteps   = 5096
	DefaultMaxTrajLen = 400
	DefaultEvalSteps  = 800

	// MaxEvalWorkers bounds the number of workers used
	// for evaluation.
	MaxEvalWorkers = 24
)

// A Trainer runs the outer training loop: sampling,
// optimization, evaluation, and checkpointing.
type Trainer struct {
	// PPO performs the updates.
	PPO *PPO

	// Sampler gathers experience.
	//
	// If nil, a ParallelSampler is used.
	Sampler mirrorrl.Sampler

	// MakeEnv creates environments for the sampler, and
	// one environment for the mirror transforms.
	MakeEnv mirrorrl.EnvMaker

	// Policy is the policy being trained.
	Policy mirrorrl.Policy

	// OldPolicy holds the reference snapshot used for
	// ratios and KL divergences.
	// It must have the same architecture as Policy.
	//
	// If nil, Policy is copied with serializer.Copy, which
	// requires Policy to be a serializer.Serializer.
	OldPolicy mirrorrl.Policy

	// Sink receives metrics.
	// Evaluation and checkpointing only happen when Sink
	// is non-nil.
	Sink telemetry.Sink

	// Logger, if non-nil, logs iterations.
	Logger Logger

	// NumWorkers is the number of sampling workers.
	//
	// If 0, 1 is used.
	NumWorkers int

	// NumSteps is the number of timesteps to sample per
	// iteration.
	//
	// If 0, DefaultNumSteps is used.
	NumSteps int

	// MaxTrajLen is the maximum episode length.
	//
	// If 0, DefaultMaxTrajLen is used.
	MaxTrajLen int

	// EvalSteps determines the evaluation size.
	// It is divided by the number of evaluation workers
	// to get the number of timesteps to evaluate on.
	//
	// If 0, DefaultEvalSteps is used.
	EvalSteps int

	// SavePath is where the best policy is saved.
	SavePath string

	// Save saves a new best policy.
	//
	// If nil, the policy is saved to SavePath with
	// serializer.SaveAny.
	// If SavePath is also empty, nothing is saved.
	Save func(p mirrorrl.Policy) error
}

// runState is the state carried between iterations of a
// single call to Run.
type runState struct {
	bestReward float64
	totalSteps int
	startTime  time.Time
	mirror     *mirrorrl.Mirror
	histograms telemetry.HistogramSink
}

// Run performs training iterations.
//
// If the done channel is closed, this returns after the
// current iteration finishes.
func (t *Trainer) Run(iters int, done <-chan struct{}) (err error) {
	defer essentials.AddCtxTo("train", &err)

	if t.PPO == nil || t.MakeEnv == nil || t.Policy == nil {
		return errors.New("PPO, MakeEnv, and Policy are required")
	}
	if err := t.ensureOldPolicy(); err != nil {
		return err
	}
	mirror, err := mirrorrl.MakeMirror(t.MakeEnv)
	if err != nil {
		return essentials.AddCtx("make mirror", err)
	}
	state := &runState{
		bestReward: math.Inf(-1),
		startTime:  time.Now(),
		mirror:     mirror,
	}
	if h, ok := t.Sink.(telemetry.HistogramSink); ok {
		state.histograms = h
	}

	for iter := 0; iter < iters; iter++ {
		select {
		case <-done:
			return nil
		default:
		}
		if err := t.iteration(iter, state); err != nil {
			return essentials.AddCtx(fmt.Sprintf("iteration %d", iter), err)
		}
	}
	return nil
}

func (t *Trainer) iteration(iter int, state *runState) error {
	sampleStart := time.Now()
	batch, err := t.sampler().Sample(t.MakeEnv, t.Policy, mirrorrl.SampleConfig{
		NumSteps:   t.numSteps(),
		MaxTrajLen: t.maxTrajLen(),
		Workers:    t.numWorkers(),
	})
	if err != nil {
		return err
	}
	sampleTime := time.Since(sampleStart)
	state.totalSteps += batch.NumSteps()
	if t.Logger != nil {
		t.Logger.LogIteration(iter, batch.NumSteps(), state.totalSteps, batch.MeanEpReturn())
	}

	optimizeStart := time.Now()
	advantages := mirrorrl.Advantages(batch)
	mirrorrl.NormalizeAdvantages(advantages, t.PPO.optimizerEps())
	if err := mirrorrl.SnapshotParams(t.OldPolicy, t.Policy); err != nil {
		return err
	}
	result := t.PPO.Update(t.Policy, t.OldPolicy, batch, advantages, state.mirror)
	optimizeTime := time.Since(optimizeStart)

	var evalTime time.Duration
	if t.Sink != nil {
		evalStart := time.Now()
		evalReward, err := t.evaluate(iter, batch, result, state)
		if err != nil {
			return err
		}
		evalTime = time.Since(evalStart)
		t.recordTimes(iter, sampleTime, optimizeTime, evalTime)
		if err := t.Sink.Flush(); err != nil {
			return err
		}
		if err := t.checkpoint(evalReward, state); err != nil {
			return err
		}
	}

	if t.Logger != nil {
		t.Logger.LogTimes(sampleTime, optimizeTime, evalTime, time.Since(state.startTime))
	}
	return nil
}

// evaluate runs the policy deterministically, records
// the iteration's metrics, and returns the evaluation
// return.
func (t *Trainer) evaluate(iter int, batch *mirrorrl.Batch, result *UpdateResult,
	state *runState) (float64, error) {
	workers := min(t.numWorkers(), MaxEvalWorkers)
	evalBatch, err := t.sampler().Sample(t.MakeEnv, t.Policy, mirrorrl.SampleConfig{
		NumSteps:      max(t.evalSteps()/workers, 1),
		MaxTrajLen:    t.maxTrajLen(),
		Workers:       workers,
		Deterministic: true,
	})
	if err != nil {
		return 0, essentials.AddCtx("evaluate", err)
	}
	evalReward := evalBatch.MeanEpReturn()

	c := mirrorrl.PolicyCreator(t.Policy)
	obs, _, _, _ := batch.Tensors(c)
	_, dist := t.Policy.Evaluate(obs, batch.NumSteps())
	_, oldDist := t.OldPolicy.Evaluate(obs, batch.NumSteps())
	entropy := mirrorrl.MeanValue(dist.Entropy().Output())
	kl := mirrorrl.MeanValue(dist.KL(oldDist).Output())

	metrics := []telemetry.Row{
		{"Return (test)", evalReward},
		{"Return (batch)", batch.MeanEpReturn()},
		{"Mean Eplen", batch.MeanEpLen()},
		{"Mean KL Div", kl},
		{"Mean Entropy", entropy},
	}
	if t.Logger != nil {
		t.Logger.LogEval(iter, metrics)
	}

	s := t.Sink
	s.Record("Return (test)", evalReward, iter, "Return", "Iterations", "test")
	s.Record("Return (batch)", batch.MeanEpReturn(), iter, "Return", "Iterations", "batch")
	s.Record("Mean Eplen", batch.MeanEpLen(), iter, "Mean Eplen", "Iterations", "batch")
	s.Record("Mean KL Div", kl, iter, "Mean KL Div", "Iterations", "batch")
	s.Record("Mean Entropy", entropy, iter, "Mean Entropy", "Iterations", "batch")

	s.Record("Grad RMS", result.GradRMS, iter, "Gradients Info", "Iterations", "")
	s.Record("Grad Max", result.GradMax, iter, "Gradients Info", "Iterations", "")
	s.Record("Grad Var", result.GradVar, iter, "Gradients Info", "Iterations", "")
	s.Record("Max action", result.MaxAction, iter, "Action Info", "Iterations", "")
	s.Record("Skipped", float64(result.Skipped), iter, "Action Info", "Iterations", "")

	if result.Mean != nil {
		s.Record("Actor loss", result.Mean.Actor, iter, "Losses", "Iterations", "")
		s.Record("Entropy", result.Mean.Entropy, iter, "Losses", "Iterations", "")
		s.Record("Critic loss", result.Mean.Critic, iter, "Losses", "Iterations", "")
		s.Record("Ratio", result.Mean.Ratio, iter, "Losses", "Iterations", "")
		s.Record("Mirror loss", result.Mean.Mirror, iter, "Losses", "Iterations", "")
	}

	if state.histograms != nil {
		for i := 0; i < dist.ActionSize(); i++ {
			state.histograms.Histogram(fmt.Sprintf("Action Dist/action_%d", i),
				dist.MeanColumn(i), iter)
		}
	}

	return evalReward, nil
}

func (t *Trainer) recordTimes(iter int, sample, optimize, eval time.Duration) {
	t.Sink.Record("Sample Time", sample.Seconds(), iter, "Times", "Iterations", "")
	t.Sink.Record("Optimize Time", optimize.Seconds(), iter, "Times", "Iterations", "")
	t.Sink.Record("Eval Time", eval.Seconds(), iter, "Times", "Iterations", "")
}

// checkpoint saves the policy if the reward is a new
// high-water mark.
func (t *Trainer) checkpoint(reward float64, state *runState) error {
	if !(reward > state.bestReward) {
		return nil
	}
	state.bestReward = reward
	if t.Save != nil {
		if err := t.Save(t.Policy); err != nil {
			return essentials.AddCtx("save policy", err)
		}
	} else if t.SavePath != "" {
		s, ok := t.Policy.(serializer.Serializer)
		if !ok {
			return fmt.Errorf("save policy: %T is not a serializer.Serializer", t.Policy)
		}
		if err := serializer.SaveAny(t.SavePath, s); err != nil {
			return essentials.AddCtx("save policy", err)
		}
	} else {
		return nil
	}
	if t.Logger != nil {
		t.Logger.LogCheckpoint(t.SavePath, reward)
	}
	return nil
}

func (t *Trainer) ensureOldPolicy() error {
	if t.OldPolicy != nil {
		return nil
	}
	s, ok := t.Policy.(serializer.Serializer)
	if !ok {
		return fmt.Errorf("copy policy: %T is not a serializer.Serializer", t.Policy)
	}
	copied, err := serializer.Copy(s)
	if err != nil {
		return essentials.AddCtx("copy policy", err)
	}
	old, ok := copied.(mirrorrl.Policy)
	if !ok {
		return fmt.Errorf("copy policy: copy has type %T", copied)
	}
	t.OldPolicy = old
	return nil
}

func (t *Trainer) sampler() mirrorrl.Sampler {
	if t.Sampler == nil {
		t.Sampler = &mirrorrl.ParallelSampler{}
	}
	return t.Sampler
}

func (t *Trainer) numWorkers() int {
	if t.NumWorkers == 0 {
		return 1
	}
	return t.NumWorkers
}

func (t *Trainer) numSteps() int {
	if t.NumSteps == 0 {
		return DefaultNumSteps
	}
	return t.NumSteps
}

func (t *Trainer) maxTrajLen() int {
	if t.MaxTrajLen == 0 {
		return DefaultMaxTrajLen
	}
	return t.MaxTrajLen
}

func (t *Trainer) evalSteps() int {
	if t.EvalSteps == 0 {
		return DefaultEvalSteps
	}
	return t.EvalSteps
}
