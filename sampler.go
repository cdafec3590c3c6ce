package mirrorrl

import (
	"math/rand"
	"sync"
	"time"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// DefaultDiscount is the reward discount factor used by
// ParallelSampler.
const DefaultDiscount = 0.99

// SampleConfig controls how much experience a Sampler
// gathers.
type SampleConfig struct {
	// NumSteps is the minimum number of timesteps to
	// gather across all workers.
	// Episodes are never cut short to meet this number,
	// so batches are usually a bit larger.
	NumSteps int

	// MaxTrajLen is the maximum length of an episode.
	//
	// If 0, episodes only end when the environment says
	// they are done.
	MaxTrajLen int

	// Workers is the number of environments to run in
	// parallel.
	//
	// If 0, 1 is used.
	Workers int

	// Deterministic, if true, makes the policy take its
	// most likely action instead of sampling one.
	Deterministic bool
}

// A Sampler runs a policy in environments to gather a
// Batch of experience.
//
// Sample blocks until the whole batch is ready.
type Sampler interface {
	Sample(maker EnvMaker, p Policy, cfg SampleConfig) (*Batch, error)
}

// ParallelSampler is a Sampler which runs one environment
// per worker Goroutine.
//
// The policy is only read during sampling, so it is safe
// to share it between workers.
type ParallelSampler struct {
	// Discount is the reward discount factor used to
	// compute returns.
	//
	// If 0, DefaultDiscount is used.
	Discount float64

	// Seed seeds the random number generators of the
	// workers.
	// Each call to Sample uses different generators.
	//
	// If 0, the current time is used.
	Seed int64

	lock  sync.Mutex
	calls int64
}

// Sample gathers a batch of experience.
func (s *ParallelSampler) Sample(maker EnvMaker, p Policy,
	cfg SampleConfig) (batch *Batch, err error) {
	defer essentials.AddCtxTo("sample", &err)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	quota := cfg.NumSteps / workers
	if quota < 1 {
		quota = 1
	}
	seed := s.nextSeed()

	batches := make([]*Batch, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gen := rand.New(rand.NewSource(seed + int64(i)))
			batches[i], errs[i] = s.worker(maker, p, cfg, quota, gen)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return PackBatches(batches), nil
}

func (s *ParallelSampler) worker(maker EnvMaker, p Policy, cfg SampleConfig,
	quota int, gen *rand.Rand) (*Batch, error) {
	rawEnv, err := maker()
	if err != nil {
		return nil, essentials.AddCtx("make env", err)
	}
	var env Env = rawEnv
	var limited *MaxStepsEnv
	if cfg.MaxTrajLen > 0 {
		limited = &MaxStepsEnv{Env: rawEnv, MaxSteps: cfg.MaxTrajLen}
		env = limited
	}

	c := PolicyCreator(p)
	res := &Batch{}
	for res.NumSteps() < quota {
		obs, err := env.Reset()
		if err != nil {
			return nil, essentials.AddCtx("reset env", err)
		}
		res.ObsSize = len(obs)

		var rewards []float64
		for {
			obsVec := makeVector(c, obs)
			values, dist := p.Evaluate(obsVec, 1)
			var action anyvec.Vector
			if cfg.Deterministic {
				action = dist.Mode()
			} else {
				action = dist.Sample(gen)
			}
			actSlice := append([]float64{}, Components(action)...)
			res.ActSize = len(actSlice)
			res.Observations = append(res.Observations, obs...)
			res.Actions = append(res.Actions, actSlice...)
			res.Values = append(res.Values, Scalar(values))

			var reward float64
			var done bool
			obs, reward, done, err = env.Step(actSlice)
			if err != nil {
				return nil, essentials.AddCtx("step env", err)
			}
			rewards = append(rewards, reward)
			if done {
				break
			}
		}

		var bootstrap float64
		if limited != nil && limited.Truncated() {
			values, _ := p.Act(makeVector(c, obs), 1)
			bootstrap = Scalar(values)
		}
		res.Returns = append(res.Returns, s.discountedReturns(rewards, bootstrap)...)

		var total float64
		for _, r := range rewards {
			total += r
		}
		res.EpReturns = append(res.EpReturns, total)
		res.EpLens = append(res.EpLens, len(rewards))
	}
	return res, nil
}

func (s *ParallelSampler) discountedReturns(rewards []float64, bootstrap float64) []float64 {
	discount := s.Discount
	if discount == 0 {
		discount = DefaultDiscount
	}
	res := make([]float64, len(rewards))
	sum := bootstrap
	for t := len(rewards) - 1; t >= 0; t-- {
		sum = rewards[t] + discount*sum
		res[t] = sum
	}
	return res
}

func (s *ParallelSampler) nextSeed() int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.Seed == 0 {
		s.Seed = time.Now().UnixNano()
	}
	s.calls++
	return s.Seed + s.calls*1000003
}
