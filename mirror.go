package mirrorrl

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Mirror maps minibatches into their mirrored
// counterparts using the transforms of a MirrorEnv.
//
// The choice between clock-based and plain observation
// mirroring is made once, when the Mirror is created.
type Mirror struct {
	env       MirrorEnv
	mirrorObs func(obs anyvec.Vector, batch int) anyvec.Vector
}

// NewMirror creates a Mirror for an environment.
func NewMirror(env MirrorEnv) *Mirror {
	m := &Mirror{env: env, mirrorObs: env.MirrorObservation}
	if env.ClockBased() {
		clock := env.ClockIndices()
		m.mirrorObs = func(obs anyvec.Vector, batch int) anyvec.Vector {
			return env.MirrorClockObservation(obs, batch, clock)
		}
	}
	return m
}

// MakeMirror creates a fresh environment and wraps it in
// a Mirror.
func MakeMirror(maker EnvMaker) (*Mirror, error) {
	env, err := maker()
	if err != nil {
		return nil, err
	}
	return NewMirror(env), nil
}

// Observation mirrors a batch of observations.
//
// This panics if the environment changes the shape of
// the batch.
func (m *Mirror) Observation(obs anyvec.Vector, batch int) anyvec.Vector {
	res := m.mirrorObs(obs, batch)
	if res.Len() != obs.Len() {
		panic(fmt.Sprintf("mirror observation: length %d became %d", obs.Len(), res.Len()))
	}
	return res
}

// Action maps a batch of actions (produced by the policy
// for mirrored observations) back into the original
// action frame.
//
// This panics if the environment changes the shape of
// the batch.
func (m *Mirror) Action(act anydiff.Res, batch int) anydiff.Res {
	res := m.env.MirrorAction(act, batch)
	if res.Output().Len() != act.Output().Len() {
		panic(fmt.Sprintf("mirror action: length %d became %d",
			act.Output().Len(), res.Output().Len()))
	}
	return res
}
