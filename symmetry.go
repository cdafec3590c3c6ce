package mirrorrl

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/mat"
)

// A Symmetry is a signed permutation of vector components.
//
// Component j of a mirrored vector is Signs[j] times
// component Perm[j] of the original vector.
// Applying a Symmetry is linear, so it can be used on raw
// vectors and on differentiable results alike.
type Symmetry struct {
	Perm  []int
	Signs []float64

	matrix *mat.Dense
	layer  *anynet.FC
}

// NewSymmetry creates a Symmetry from a permutation and a
// list of signs.
//
// If signs is nil, every sign is 1.
func NewSymmetry(c anyvec.Creator, perm []int, signs []float64) (*Symmetry, error) {
	if signs == nil {
		signs = make([]float64, len(perm))
		for i := range signs {
			signs[i] = 1
		}
	}
	if len(signs) != len(perm) {
		return nil, fmt.Errorf("new symmetry: %d signs for %d components",
			len(signs), len(perm))
	}
	seen := make([]bool, len(perm))
	for _, src := range perm {
		if src < 0 || src >= len(perm) || seen[src] {
			return nil, fmt.Errorf("new symmetry: invalid permutation %v", perm)
		}
		seen[src] = true
	}

	size := len(perm)
	m := mat.NewDense(size, size, nil)
	for dst, src := range perm {
		m.Set(dst, src, signs[dst])
	}

	// The layer's weights are never part of a gradient, so
	// the mapping stays fixed while gradients flow through.
	layer := &anynet.FC{
		InCount:  size,
		OutCount: size,
		Weights:  anydiff.NewVar(makeVector(c, m.RawMatrix().Data)),
		Biases:   anydiff.NewVar(c.MakeVector(size)),
	}

	return &Symmetry{
		Perm:   append([]int{}, perm...),
		Signs:  append([]float64{}, signs...),
		matrix: m,
		layer:  layer,
	}, nil
}

// IdentitySymmetry creates a Symmetry which leaves every
// vector unchanged.
func IdentitySymmetry(c anyvec.Creator, size int) *Symmetry {
	perm := make([]int, size)
	for i := range perm {
		perm[i] = i
	}
	s, err := NewSymmetry(c, perm, nil)
	if err != nil {
		panic(err)
	}
	return s
}

// Size returns the number of components in a vector.
func (s *Symmetry) Size() int {
	return len(s.Perm)
}

// Matrix returns the matrix M such that a mirrored
// vector is M times the original (column) vector.
func (s *Symmetry) Matrix() mat.Matrix {
	return s.matrix
}

// Vec mirrors a batch of vectors.
//
// This panics if the batch does not match the size of
// the Symmetry.
func (s *Symmetry) Vec(vec anyvec.Vector, batch int) anyvec.Vector {
	if vec.Len() != batch*s.Size() {
		panic(fmt.Sprintf("symmetry: expected %d components but got %d",
			batch*s.Size(), vec.Len()))
	}
	in := mat.NewDense(batch, s.Size(), append([]float64{}, Components(vec)...))
	var out mat.Dense
	out.Mul(in, s.matrix.T())
	return makeVector(vec.Creator(), out.RawMatrix().Data)
}

// Res mirrors a batch of vectors in a differentiable way.
func (s *Symmetry) Res(r anydiff.Res, batch int) anydiff.Res {
	if r.Output().Len() != batch*s.Size() {
		panic(fmt.Sprintf("symmetry: expected %d components but got %d",
			batch*s.Size(), r.Output().Len()))
	}
	return s.layer.Apply(r, batch)
}
