package mirrorrl

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Env is an instance of an RL environment.
type Env interface {
	Reset() (observation []float64, err error)
	Step(action []float64) (observation []float64, reward float64,
		done bool, err error)
}

// A MirrorEnv is an Env with a known left/right symmetry.
//
// The mirror methods operate on batches of packed vectors
// and must be pure.
// MirrorAction must be differentiable, since the mirror
// loss back-propagates through it.
type MirrorEnv interface {
	Env

	MirrorObservation(obs anyvec.Vector, batch int) anyvec.Vector
	MirrorClockObservation(obs anyvec.Vector, batch int, clockInds []int) anyvec.Vector
	MirrorAction(act anydiff.Res, batch int) anydiff.Res

	// ClockBased indicates that observations contain
	// phase features which MirrorClockObservation must
	// handle.
	ClockBased() bool

	// ClockIndices returns the clock feature indices.
	// It is only used when ClockBased returns true.
	ClockIndices() []int
}

// EnvMaker creates a new environment instance.
type EnvMaker func() (MirrorEnv, error)

// SymmetricEnv adds mirror transforms to an Env using a
// pair of Symmetries.
type SymmetricEnv struct {
	Env

	ObsSymmetry *Symmetry
	ActSymmetry *Symmetry

	// Clock lists observation indices holding gait clock
	// features, in (sin, cos) pairs.
	// If empty, the environment is not clock based.
	//
	// Mirroring shifts the clock by half a cycle, which
	// negates both features of each pair.
	Clock []int
}

// MirrorObservation mirrors observations using the
// observation Symmetry.
func (s *SymmetricEnv) MirrorObservation(obs anyvec.Vector, batch int) anyvec.Vector {
	return s.ObsSymmetry.Vec(obs, batch)
}

// MirrorClockObservation mirrors observations and then
// shifts the given clock features by half a cycle.
func (s *SymmetricEnv) MirrorClockObservation(obs anyvec.Vector, batch int,
	clockInds []int) anyvec.Vector {
	mirrored := s.ObsSymmetry.Vec(obs, batch)
	data := append([]float64{}, Components(mirrored)...)
	size := s.ObsSymmetry.Size()
	for i := 0; i < batch; i++ {
		for _, idx := range clockInds {
			data[i*size+idx] *= -1
		}
	}
	return makeVector(obs.Creator(), data)
}

// MirrorAction mirrors actions using the action
// Symmetry.
func (s *SymmetricEnv) MirrorAction(act anydiff.Res, batch int) anydiff.Res {
	return s.ActSymmetry.Res(act, batch)
}

// ClockBased returns true if Clock is non-empty.
func (s *SymmetricEnv) ClockBased() bool {
	return len(s.Clock) > 0
}

// ClockIndices returns s.Clock.
func (s *SymmetricEnv) ClockIndices() []int {
	return s.Clock
}

// MaxStepsEnv wraps an Env and ends episodes early if
// they run longer than MaxSteps timesteps.
//
// It reports whether an episode was cut short, since a
// truncated episode should be bootstrapped from the value
// function rather than treated as terminal.
type MaxStepsEnv struct {
	Env
	MaxSteps int

	steps     int
	truncated bool
}

// Reset resets the environment.
func (m *MaxStepsEnv) Reset() ([]float64, error) {
	m.steps = 0
	m.truncated = false
	return m.Env.Reset()
}

// Step takes a step in the environment.
func (m *MaxStepsEnv) Step(action []float64) ([]float64, float64, bool, error) {
	obs, rew, done, err := m.Env.Step(action)
	m.steps++
	if !done && m.steps == m.MaxSteps {
		done = true
		m.truncated = true
	}
	return obs, rew, done, err
}

// Truncated returns true if the last episode was ended
// by the step limit rather than by the environment.
func (m *MaxStepsEnv) Truncated() bool {
	return m.truncated
}
