package synthenv

import (
	"math"
	"math/rand"
	"testing"

	"github.com/symrl/mirrorrl"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestWalkerSymmetry(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env, err := NewSymmetricWalker(c, 1)
	if err != nil {
		t.Fatal(err)
	}
	m := mirrorrl.NewMirror(env)
	w := env.Env.(*Walker)
	obs, err := w.Reset()
	if err != nil {
		t.Fatal(err)
	}

	mirrored := &Walker{
		gen:   rand.New(rand.NewSource(2)),
		left:  w.right,
		right: w.left,
		phase: w.phase + math.Pi,
	}
	assertClose(t, m.Observation(c.MakeVectorData(obs), 1).Data().([]float64),
		mirrored.observation())

	gen := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		action := []float64{gen.NormFloat64(), gen.NormFloat64()}
		mirroredAction := m.Action(anydiff.NewConst(c.MakeVectorData(action)), 1)

		obs, rew, done, err := w.Step(action)
		if err != nil {
			t.Fatal(err)
		}
		mObs, mRew, mDone, err := mirrored.Step(mirroredAction.Output().Data().([]float64))
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(rew-mRew) > 1e-8 || done != mDone {
			t.Fatalf("step %d: reward %f (done=%v) vs mirrored %f (done=%v)", i, rew,
				done, mRew, mDone)
		}
		assertClose(t, m.Observation(c.MakeVectorData(obs), 1).Data().([]float64), mObs)
		if done {
			break
		}
	}
}

func TestWalkerDone(t *testing.T) {
	w := NewWalker(1)
	if _, _, _, err := w.Step([]float64{0, 0}); err == nil {
		t.Error("expected error before reset")
	}
	if _, err := w.Reset(); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := w.Step([]float64{0}); err == nil {
		t.Error("expected error for bad action")
	}
	var done bool
	for i := 0; i < 100 && !done; i++ {
		var err error
		_, _, done, err = w.Step([]float64{10, 0})
		if err != nil {
			t.Fatal(err)
		}
	}
	if !done {
		t.Error("walker should fall")
	}
}

func TestWalkerMaker(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	maker := WalkerMaker(c, 5, true)
	env1, err := maker()
	if err != nil {
		t.Fatal(err)
	}
	env2, err := maker()
	if err != nil {
		t.Fatal(err)
	}
	if env1.ClockBased() {
		t.Error("identity walker should not be clock based")
	}
	obs1, _ := env1.Reset()
	obs2, _ := env2.Reset()
	if obs1[3] == obs2[3] {
		t.Error("walkers should have different seeds")
	}
	obs := c.MakeVectorData(obs1)
	assertClose(t, mirrorrl.NewMirror(env1).Observation(obs, 1).Data().([]float64), obs1)

	symmetric, err := WalkerMaker(c, 5, false)()
	if err != nil {
		t.Fatal(err)
	}
	if !symmetric.ClockBased() {
		t.Error("symmetric walker should be clock based")
	}
}

func assertClose(t *testing.T, actual, expected []float64) {
	t.Helper()
	if len(actual) != len(expected) {
		t.Fatalf("expected %v but got %v", expected, actual)
	}
	for i, x := range expected {
		if math.Abs(actual[i]-x) > 1e-8 {
			t.Fatalf("expected %v but got %v", expected, actual)
		}
	}
}
