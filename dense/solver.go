// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dense

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/leastsq/trustregion"
)

// Solver solves the damped least-squares systems produced by the
// Levenberg-Marquardt strategy,
//
//	𝚖𝚒𝚗 ‖ 𝐉·h − 𝒇 ‖² + ‖ 𝐃·h ‖²
//
// by a QR factorization of the stacked (m+n)×n system
//
//	[ 𝐉 ]       [ 𝒇 ]
//	[ 𝐃 ] · h = [ 0 ]
//
// which avoids forming the squared-condition normal equations.
// It implements trustregion.LinearSolver for dense Jacobians.
type Solver struct {
	rows, cols int
	a          *mat.Dense
	b          *mat.VecDense
	h          *mat.VecDense
	qr         mat.QR
}

// NewSolver creates a solver for systems with the given dimensions.
func NewSolver(numResiduals, numParameters int) *Solver {
	m, n := numResiduals, numParameters
	return &Solver{
		rows: m, cols: n,
		a: mat.NewDense(m+n, n, nil),
		b: mat.NewVecDense(m+n, nil),
		h: mat.NewVecDense(n, nil),
	}
}

// Solve computes the damped solution into step. A factorization breakdown
// or a non-finite solution is reported as a recoverable failure; non-finite
// inputs are fatal since no amount of damping can repair them.
func (s *Solver) Solve(jacobian trustregion.Jacobian, residuals, diagonal, step []float64) (trustregion.LinearSolverStatus, int) {
	j, ok := jacobian.(*Jacobian)
	if !ok || j.NumRows() != s.rows || j.NumCols() != s.cols {
		return trustregion.LinearSolverFatalError, 0
	}
	for _, v := range residuals {
		if math.IsNaN(v) {
			return trustregion.LinearSolverFatalError, 0
		}
	}

	m, n := s.rows, s.cols
	s.a.Slice(0, m, 0, n).(*mat.Dense).Copy(j.m)
	lower := s.a.Slice(m, m+n, 0, n).(*mat.Dense)
	lower.Zero()
	for i := 0; i < n; i++ {
		lower.Set(i, i, diagonal[i])
	}
	for i := 0; i < m; i++ {
		s.b.SetVec(i, residuals[i])
	}
	for i := 0; i < n; i++ {
		s.b.SetVec(m+i, 0)
	}

	s.qr.Factorize(s.a)
	if err := s.qr.SolveVecTo(s.h, false, s.b); err != nil {
		return trustregion.LinearSolverFailure, 1
	}
	for i := 0; i < n; i++ {
		v := s.h.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return trustregion.LinearSolverFailure, 1
		}
		step[i] = v
	}
	return trustregion.LinearSolverSuccess, 1
}
