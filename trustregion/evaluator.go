// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

// Evaluator computes the objective value of a least-squares problem
//
//	½ ‖ 𝒇(𝐱) ‖²
//
// together with its residuals, gradient and Jacobian, and applies
// tangent-space steps to the parameter vector.
//
// The parameter vector has NumParameters entries, steps and gradients have
// NumEffectiveParameters entries (fewer when parameters live on a manifold),
// and the residual vector has NumResiduals entries.
type Evaluator interface {
	NumParameters() int
	NumEffectiveParameters() int
	NumResiduals() int

	// Evaluate computes the cost at x. Any of residuals, gradient and
	// jacobian may be nil to skip that computation. Returns false when the
	// evaluation produces non-finite values.
	Evaluate(x []float64, cost *float64, residuals, gradient []float64, jacobian Jacobian) bool

	// Plus computes xPlusDelta = x ⊞ delta, the retraction of the step
	// delta at the point x. Returns false when the retraction is
	// infeasible or undefined.
	Plus(x, delta, xPlusDelta []float64) bool
}

// Jacobian is the opaque matrix handle shared between the evaluator and the
// trust region strategy. The minimizer never mutates its structure, it only
// scales its columns.
type Jacobian interface {
	// RightMultiply accumulates out += J·x.
	RightMultiply(x, out []float64)
	// SquaredColumnNorm stores the squared Euclidean norm of every column in out.
	SquaredColumnNorm(out []float64)
	// ScaleColumns multiplies column i by scale[i].
	ScaleColumns(scale []float64)
	NumCols() int
}

// InnerMinimizer refines an accepted candidate point in place, typically by
// coordinate descent over independent parameter blocks.
type InnerMinimizer interface {
	Minimize(x []float64)
}
