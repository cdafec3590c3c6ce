package mirrorppo

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/symrl/mirrorrl"
	"github.com/symrl/mirrorrl/synthenv"
	"github.com/symrl/mirrorrl/telemetry"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/serializer"
)

type histogramRecorder struct {
	telemetry.SeriesLogger

	tags    map[string]int
	flushes int
}

func (h *histogramRecorder) Histogram(tag string, values []float64, step int) {
	if h.tags == nil {
		h.tags = map[string]int{}
	}
	h.tags[tag] = len(values)
}

func (h *histogramRecorder) Flush() error {
	h.flushes++
	return h.SeriesLogger.Flush()
}

type countingSampler struct {
	mirrorrl.ParallelSampler

	configs []mirrorrl.SampleConfig
}

func (c *countingSampler) Sample(maker mirrorrl.EnvMaker, p mirrorrl.Policy,
	cfg mirrorrl.SampleConfig) (*mirrorrl.Batch, error) {
	c.configs = append(c.configs, cfg)
	return c.ParallelSampler.Sample(maker, p, cfg)
}

func newTestTrainer(sink telemetry.Sink) *Trainer {
	c := anyvec64.DefaultCreator{}
	return &Trainer{
		PPO:        &PPO{Epochs: 1},
		Sampler:    &countingSampler{ParallelSampler: mirrorrl.ParallelSampler{Seed: 1}},
		MakeEnv:    synthenv.WalkerMaker(c, 1, false),
		Policy:     mirrorrl.NewGaussianMLP(c, synthenv.WalkerObsSize, synthenv.WalkerActSize, []int{8}, -0.5),
		Sink:       sink,
		NumWorkers: 2,
		NumSteps:   64,
		MaxTrajLen: 20,
		EvalSteps:  40,
	}
}

func TestTrainerRun(t *testing.T) {
	sink := &histogramRecorder{}
	trainer := newTestTrainer(sink)
	trainer.SavePath = filepath.Join(t.TempDir(), "policy")

	if err := trainer.Run(2, nil); err != nil {
		t.Fatal(err)
	}

	steps, values := sink.Series("Return", "Return (test)", "test")
	if len(steps) != 2 || len(values) != 2 || steps[0] != 0 || steps[1] != 1 {
		t.Errorf("unexpected test return series: %v %v", steps, values)
	}
	for _, group := range []string{"Mean Eplen", "Mean KL Div", "Mean Entropy"} {
		if steps, _ := sink.Series(group, group, "batch"); len(steps) != 2 {
			t.Errorf("missing series %s", group)
		}
	}
	for _, name := range []string{"Grad RMS", "Grad Max", "Grad Var"} {
		if steps, _ := sink.Series("Gradients Info", name, ""); len(steps) != 2 {
			t.Errorf("missing series %s", name)
		}
	}
	if steps, _ := sink.Series("Times", "Sample Time", ""); len(steps) != 2 {
		t.Error("missing sample times")
	}
	if sink.flushes != 2 {
		t.Errorf("expected 2 flushes but got %d", sink.flushes)
	}
	for _, tag := range []string{"Action Dist/action_0", "Action Dist/action_1"} {
		if sink.tags[tag] == 0 {
			t.Errorf("missing histogram %s", tag)
		}
	}

	sampler := trainer.Sampler.(*countingSampler)
	if len(sampler.configs) != 4 {
		t.Fatalf("expected 4 sample calls but got %d", len(sampler.configs))
	}
	eval := sampler.configs[1]
	if !eval.Deterministic || eval.NumSteps != 20 || eval.Workers != 2 {
		t.Errorf("bad evaluation config: %+v", eval)
	}
	if sampler.configs[0].Deterministic || sampler.configs[0].NumSteps != 64 {
		t.Errorf("bad training config: %+v", sampler.configs[0])
	}

	var loaded *mirrorrl.GaussianMLP
	if err := serializer.LoadAny(trainer.SavePath, &loaded); err != nil {
		t.Fatal(err)
	}
	if trainer.OldPolicy == nil {
		t.Error("reference policy should be created")
	}
}

func TestTrainerNoSink(t *testing.T) {
	trainer := newTestTrainer(nil)
	var saves int
	trainer.Save = func(p mirrorrl.Policy) error {
		saves++
		return nil
	}
	if err := trainer.Run(1, nil); err != nil {
		t.Fatal(err)
	}
	if saves != 0 {
		t.Error("should not checkpoint without evaluation")
	}
	if n := len(trainer.Sampler.(*countingSampler).configs); n != 1 {
		t.Errorf("expected 1 sample call but got %d", n)
	}
}

func TestTrainerDone(t *testing.T) {
	trainer := newTestTrainer(nil)
	done := make(chan struct{})
	close(done)
	if err := trainer.Run(5, done); err != nil {
		t.Fatal(err)
	}
	if n := len(trainer.Sampler.(*countingSampler).configs); n != 0 {
		t.Errorf("expected no sampling but got %d calls", n)
	}
}

func TestTrainerCheckpoint(t *testing.T) {
	trainer := newTestTrainer(nil)
	var saves int
	trainer.Save = func(p mirrorrl.Policy) error {
		saves++
		return nil
	}
	state := &runState{bestReward: -1e9}
	for _, reward := range []float64{1, 0.5, 1, 2} {
		if err := trainer.checkpoint(reward, state); err != nil {
			t.Fatal(err)
		}
	}
	if saves != 2 || state.bestReward != 2 {
		t.Errorf("expected 2 saves and best 2 but got %d and %f", saves, state.bestReward)
	}

	trainer.Save = func(p mirrorrl.Policy) error {
		return errors.New("disk full")
	}
	if err := trainer.checkpoint(3, state); err == nil {
		t.Error("expected save error")
	}
}

func TestTrainerMissingFields(t *testing.T) {
	if err := (&Trainer{}).Run(1, nil); err == nil {
		t.Error("expected error")
	}
}
