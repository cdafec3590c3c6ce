// Package synthenv provides small synthetic environments
// with exact left/right symmetries.
package synthenv

import (
	"errors"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/symrl/mirrorrl"
	"github.com/unixpickle/anyvec"
)

// Walker settings.
const (
	WalkerObsSize = 5
	WalkerActSize = 2

	// WalkerPhaseStep is the clock advance per timestep.
	WalkerPhaseStep = math.Pi / 10

	// WalkerFallLimit is the leg displacement at which
	// the walker falls and the episode ends.
	WalkerFallLimit = 3

	walkerDT         = 0.2
	walkerActionCost = 0.01
	walkerInitNoise  = 0.05
)

// Walker is a two-legged toy walker driven by a gait
// clock.
//
// Observations are [left, right, speed, sin(phase),
// cos(phase)], and actions are [left velocity, right
// velocity].
// The left leg should track sin(phase) and the right leg
// should track the opposite, so swapping the legs while
// shifting the clock by half a cycle is a symmetry.
type Walker struct {
	gen *rand.Rand

	left, right float64
	phase       float64
	done        bool
}

// NewWalker creates a Walker with its own random seed.
func NewWalker(seed int64) *Walker {
	return &Walker{gen: rand.New(rand.NewSource(seed)), done: true}
}

// Reset starts a new episode at a random phase.
func (w *Walker) Reset() ([]float64, error) {
	w.phase = w.gen.Float64() * 2 * math.Pi
	w.left = math.Sin(w.phase) + (w.gen.Float64()*2-1)*walkerInitNoise
	w.right = -math.Sin(w.phase) + (w.gen.Float64()*2-1)*walkerInitNoise
	w.done = false
	return w.observation(), nil
}

// Step moves the legs and advances the clock.
func (w *Walker) Step(action []float64) ([]float64, float64, bool, error) {
	if w.done {
		return nil, 0, false, errors.New("step walker: episode is done")
	}
	if len(action) != WalkerActSize {
		return nil, 0, false, errors.New("step walker: bad action size")
	}
	w.left += action[0] * walkerDT
	w.right += action[1] * walkerDT
	w.phase = math.Mod(w.phase+WalkerPhaseStep, 2*math.Pi)

	reward := w.speed() - walkerActionCost*(action[0]*action[0]+action[1]*action[1])
	if math.Abs(w.left) > WalkerFallLimit || math.Abs(w.right) > WalkerFallLimit {
		w.done = true
		reward -= 1
	}
	return w.observation(), reward, w.done, nil
}

func (w *Walker) speed() float64 {
	s := math.Sin(w.phase)
	return 1 - 0.5*(math.Pow(w.left-s, 2)+math.Pow(w.right+s, 2))
}

func (w *Walker) observation() []float64 {
	return []float64{w.left, w.right, w.speed(), math.Sin(w.phase), math.Cos(w.phase)}
}

// NewSymmetricWalker wraps a Walker with its mirror
// transforms: the legs are swapped and the clock is
// shifted by half a cycle.
func NewSymmetricWalker(c anyvec.Creator, seed int64) (*mirrorrl.SymmetricEnv, error) {
	obsSym, err := mirrorrl.NewSymmetry(c, []int{1, 0, 2, 3, 4}, nil)
	if err != nil {
		return nil, err
	}
	actSym, err := mirrorrl.NewSymmetry(c, []int{1, 0}, nil)
	if err != nil {
		return nil, err
	}
	return &mirrorrl.SymmetricEnv{
		Env:         NewWalker(seed),
		ObsSymmetry: obsSym,
		ActSymmetry: actSym,
		Clock:       []int{3, 4},
	}, nil
}

// NewIdentityWalker wraps a Walker with mirror transforms
// that leave everything unchanged.
func NewIdentityWalker(c anyvec.Creator, seed int64) *mirrorrl.SymmetricEnv {
	return &mirrorrl.SymmetricEnv{
		Env:         NewWalker(seed),
		ObsSymmetry: mirrorrl.IdentitySymmetry(c, WalkerObsSize),
		ActSymmetry: mirrorrl.IdentitySymmetry(c, WalkerActSize),
	}
}

// WalkerMaker creates an EnvMaker for walkers.
//
// Each created walker gets a distinct seed derived from
// the given seed.
// If identity is true, the walkers have identity mirror
// transforms.
func WalkerMaker(c anyvec.Creator, seed int64, identity bool) mirrorrl.EnvMaker {
	var counter int64
	return func() (mirrorrl.MirrorEnv, error) {
		envSeed := seed + atomic.AddInt64(&counter, 1)
		if identity {
			return NewIdentityWalker(c, envSeed), nil
		}
		return NewSymmetricWalker(c, envSeed)
	}
}
