package mirrorrl

import "math/rand"

// MinibatchIndices randomly partitions the timesteps
// 0 through n-1 into groups of the given size.
//
// If the size does not divide n, the leftover timesteps
// are dropped, so a size larger than n produces no
// groups at all.
// If size is 0, a single group with every timestep is
// produced.
//
// If gen is nil, the global source in math/rand is used.
func MinibatchIndices(gen *rand.Rand, n, size int) [][]int {
	if size <= 0 {
		size = n
	}
	if size == 0 || size > n {
		return nil
	}
	var perm []int
	if gen == nil {
		perm = rand.Perm(n)
	} else {
		perm = gen.Perm(n)
	}
	var res [][]int
	for i := 0; i+size <= n; i += size {
		res = append(res, perm[i:i+size])
	}
	return res
}
