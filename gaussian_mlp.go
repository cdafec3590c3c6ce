package mirrorrl

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var g GaussianMLP
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeGaussianMLP)
}

// GaussianMLP is a Policy with separate actor and critic
// networks and a state-independent, trainable standard
// deviation for each action dimension.
type GaussianMLP struct {
	// Actor maps observations to action means.
	Actor anynet.Net

	// Critic maps observations to value estimates.
	Critic anynet.Net

	// LogStd stores one log standard deviation per action
	// dimension.
	LogStd *anydiff.Var
}

// NewGaussianMLP creates a GaussianMLP with tanh hidden
// layers of the given sizes.
//
// If hidden is empty, the actor and critic are linear.
func NewGaussianMLP(c anyvec.Creator, obsSize, actSize int, hidden []int,
	initLogStd float64) *GaussianMLP {
	logStd := c.MakeVector(actSize)
	logStd.AddScalar(c.MakeNumeric(initLogStd))
	return &GaussianMLP{
		Actor:  makeMLP(c, obsSize, actSize, hidden),
		Critic: makeMLP(c, obsSize, 1, hidden),
		LogStd: anydiff.NewVar(logStd),
	}
}

// DeserializeGaussianMLP deserializes a GaussianMLP.
func DeserializeGaussianMLP(d []byte) (g *GaussianMLP, err error) {
	defer essentials.AddCtxTo("deserialize GaussianMLP", &err)
	var actor, critic anynet.Net
	var logStd *anyvecsave.S
	if err := serializer.DeserializeAny(d, &actor, &critic, &logStd); err != nil {
		return nil, err
	}
	return &GaussianMLP{
		Actor:  actor,
		Critic: critic,
		LogStd: anydiff.NewVar(logStd.Vector),
	}, nil
}

// Evaluate applies the actor and the critic.
func (g *GaussianMLP) Evaluate(obs anyvec.Vector, batch int) (anydiff.Res, *Distribution) {
	in := anydiff.NewConst(obs)
	mean := g.Actor.Apply(in, batch)
	c := obs.Creator()
	logStd := anydiff.AddRepeated(anydiff.NewConst(c.MakeVector(mean.Output().Len())),
		g.LogStd)
	values := g.Critic.Apply(in, batch)
	return values, &Distribution{Mean: mean, LogStd: logStd, BatchSize: batch}
}

// Act applies the actor and the critic, producing the
// action means.
func (g *GaussianMLP) Act(obs anyvec.Vector, batch int) (values, actions anydiff.Res) {
	in := anydiff.NewConst(obs)
	return g.Critic.Apply(in, batch), g.Actor.Apply(in, batch)
}

// Parameters returns the actor parameters, the critic
// parameters, and LogStd, in that order.
func (g *GaussianMLP) Parameters() []*anydiff.Var {
	return append(anynet.AllParameters(g.Actor, g.Critic), g.LogStd)
}

// SerializerType returns the unique ID used to serialize
// a GaussianMLP with the serializer package.
func (g *GaussianMLP) SerializerType() string {
	return "github.com/symrl/mirrorrl.GaussianMLP"
}

// Serialize serializes the policy.
func (g *GaussianMLP) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		g.Actor,
		g.Critic,
		&anyvecsave.S{Vector: g.LogStd.Vector},
	)
}

func makeMLP(c anyvec.Creator, inSize, outSize int, hidden []int) anynet.Net {
	var res anynet.Net
	for _, size := range hidden {
		res = append(res, anynet.NewFC(c, inSize, size), anynet.Tanh)
		inSize = size
	}
	return append(res, anynet.NewFC(c, inSize, outSize))
}
