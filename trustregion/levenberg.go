// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LinearSolver solves the damped least-squares system
//
//	𝚖𝚒𝚗 ‖ 𝐉·h − 𝒇 ‖² + ‖ 𝐃·h ‖²
//
// for h, where 𝐃 = 𝚍𝚒𝚊𝚐(diagonal). The strategy negates the solution to
// obtain a descent step. NumIterations reports the internal iteration count
// (1 for direct factorizations).
type LinearSolver interface {
	Solve(jacobian Jacobian, residuals, diagonal, step []float64) (status LinearSolverStatus, numIterations int)
}

// LevenbergOptions tune the trust region geometry.
// The zero value selects the defaults.
type LevenbergOptions struct {
	InitialRadius float64 // default 1e4
	MaxRadius     float64 // default 1e32
	// The diagonal of 𝐉ᵀ𝐉 is clamped into this range before damping,
	// keeping the regularization bounded away from zero and infinity.
	MinDiagonal float64 // default 1e-6
	MaxDiagonal float64 // default 1e32
}

// Levenberg implements the classic Levenberg-Marquardt trust region:
// the model problem is damped with a Jacobi-scaled diagonal 𝐃/√μ where μ is
// the current radius, so shrinking the region grows the damping.
type Levenberg struct {
	solver LinearSolver

	radius      float64
	maxRadius   float64
	minDiagonal float64
	maxDiagonal float64

	decreaseFactor float64
	reuseDiagonal  bool

	diagonal []float64
	damping  []float64
}

// NewLevenberg creates a Levenberg-Marquardt strategy backed by the given
// linear solver. A nil opts selects the defaults.
func NewLevenberg(solver LinearSolver, opts *LevenbergOptions) *Levenberg {
	o := LevenbergOptions{}
	if opts != nil {
		o = *opts
	}
	if o.InitialRadius <= zero {
		o.InitialRadius = 1e4
	}
	if o.MaxRadius <= zero {
		o.MaxRadius = 1e32
	}
	if o.MinDiagonal <= zero {
		o.MinDiagonal = 1e-6
	}
	if o.MaxDiagonal <= zero {
		o.MaxDiagonal = 1e32
	}
	return &Levenberg{
		solver:         solver,
		radius:         o.InitialRadius,
		maxRadius:      o.MaxRadius,
		minDiagonal:    o.MinDiagonal,
		maxDiagonal:    o.MaxDiagonal,
		decreaseFactor: two,
	}
}

// ComputeStep solves the damped system and negates the solution into a
// descent step. The damping diagonal is recomputed from the Jacobian column
// norms unless the previous step was rejected, in which case the point has
// not moved and the diagonal is reused.
func (s *Levenberg) ComputeStep(opts PerSolveOptions, jacobian Jacobian, residuals, step []float64) StrategySummary {
	_ = opts
	n := jacobian.NumCols()
	if len(s.diagonal) != n {
		s.diagonal = make([]float64, n)
		s.damping = make([]float64, n)
	}
	if !s.reuseDiagonal {
		jacobian.SquaredColumnNorm(s.diagonal)
		for i, d := range s.diagonal {
			s.diagonal[i] = math.Min(math.Max(d, s.minDiagonal), s.maxDiagonal)
		}
	}
	for i, d := range s.diagonal {
		s.damping[i] = math.Sqrt(d / s.radius)
	}

	status, iters := s.solver.Solve(jacobian, residuals, s.damping, step)
	if status == LinearSolverSuccess {
		// The solver computes h minimizing ‖J·h − f‖, the step is its negation.
		floats.Scale(-one, step[:n])
		for _, v := range step[:n] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				status = LinearSolverFailure
				break
			}
		}
	}
	return StrategySummary{Status: status, NumIterations: iters}
}

// StepAccepted grows the region following Algorithm 6.18 of Madsen, Nielsen
// and Tingleff, "Methods for Non-linear Least Squares Problems".
func (s *Levenberg) StepAccepted(stepQuality float64) {
	s.radius /= math.Max(one/3.0, one-math.Pow(two*stepQuality-one, 3))
	s.radius = math.Min(s.maxRadius, s.radius)
	s.decreaseFactor = two
	s.reuseDiagonal = false
}

// StepRejected shrinks the region, doubling the shrink factor so repeated
// rejections back off geometrically faster.
func (s *Levenberg) StepRejected(stepQuality float64) {
	_ = stepQuality
	s.radius /= s.decreaseFactor
	s.decreaseFactor *= two
	s.reuseDiagonal = true
}

// StepIsInvalid treats the step as a rejection with no solution quality.
func (s *Levenberg) StepIsInvalid() {
	s.StepRejected(zero)
}

func (s *Levenberg) Radius() float64 {
	return s.radius
}
