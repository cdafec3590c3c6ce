package mirrorrl

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Policy maps observations to action distributions and
// value estimates.
//
// Every method works on a batch of packed observation
// vectors.
type Policy interface {
	// Evaluate produces value estimates and the action
	// distribution for each observation.
	Evaluate(obs anyvec.Vector, batch int) (values anydiff.Res, dist *Distribution)

	// Act produces value estimates and deterministic
	// actions (the distribution means) without sampling.
	// The actions are differentiable.
	Act(obs anyvec.Vector, batch int) (values, actions anydiff.Res)

	// Parameters returns the trainable parameters.
	// The order must be stable, since parameter snapshots
	// are matched up by position.
	Parameters() []*anydiff.Var
}

// PolicyCreator returns the creator used by a policy's
// parameters.
func PolicyCreator(p Policy) anyvec.Creator {
	params := p.Parameters()
	if len(params) == 0 {
		panic("policy has no parameters")
	}
	return params[0].Vector.Creator()
}

// SnapshotParams copies the parameters of src into dst.
//
// The policies must have the same architecture.
// Only parameter values are copied; dst keeps its own
// structure and parameter pointers.
func SnapshotParams(dst, src Policy) error {
	return LoadParamState(dst, ParamState(src))
}

// ParamState copies the current parameter values of a
// policy.
func ParamState(p Policy) []anyvec.Vector {
	var res []anyvec.Vector
	for _, param := range p.Parameters() {
		res = append(res, param.Vector.Copy())
	}
	return res
}

// LoadParamState sets the parameters of a policy from a
// state produced by ParamState.
func LoadParamState(p Policy, state []anyvec.Vector) error {
	params := p.Parameters()
	if len(params) != len(state) {
		return fmt.Errorf("load param state: have %d params but state has %d",
			len(params), len(state))
	}
	for i, x := range state {
		if params[i].Vector.Len() != x.Len() {
			return errors.New("load param state: parameter size mismatch")
		}
	}
	for i, x := range state {
		params[i].Vector.Set(x)
	}
	return nil
}
