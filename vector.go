package mirrorrl

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Components converts a vector into a slice of float64
// values.
//
// The result may alias the vector's data for float64
// vectors, so it should not be modified.
func Components(vec anyvec.Vector) []float64 {
	switch data := vec.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return data
	default:
		panic(fmt.Sprintf("unsupported numeric list: %T", data))
	}
}

// Scalar returns the first component of a result.
// It is meant for single-value results like losses.
func Scalar(r anydiff.Res) float64 {
	return Components(r.Output())[0]
}

// Mean averages every component of a result, producing a
// single-component result.
func Mean(r anydiff.Res) anydiff.Res {
	c := r.Output().Creator()
	return anydiff.Scale(anydiff.Sum(r), c.MakeNumeric(1/float64(r.Output().Len())))
}

// MeanValue averages the components of a vector.
func MeanValue(vec anyvec.Vector) float64 {
	var sum float64
	for _, x := range Components(vec) {
		sum += x
	}
	return sum / float64(vec.Len())
}

// makeVector creates a vector from float64 data.
func makeVector(c anyvec.Creator, data []float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(data))
}
