// Package mirrorrl provides the building blocks for
// training symmetric locomotion policies: environments
// with mirror transforms, Gaussian action distributions,
// policies, and parallel experience sampling.
//
// The training algorithm itself lives in the mirrorppo
// sub-package.
package mirrorrl
