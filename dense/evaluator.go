// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dense

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/leastsq/numdiff"
	"github.com/curioloop/leastsq/trustregion"
)

// ResidualFunc evaluates the residual vector f(x).
// Returns false when the evaluation is undefined at x.
type ResidualFunc func(x, f []float64) bool

// JacobianFunc fills the m×n Jacobian ∂𝒇/∂𝐱 at x.
// Returns false when the evaluation is undefined at x.
type JacobianFunc func(x []float64, jac *mat.Dense) bool

// Bound represents the box constraint for one parameter.
// A NaN endpoint means unbounded on that side.
type Bound struct {
	Lower, Upper float64
}

// Evaluator computes the least-squares objective ½‖𝒇(𝐱)‖² over ℝⁿ with
// optional box constraints. It implements trustregion.Evaluator: the Plus
// retraction is the Euclidean update projected onto the feasible box.
type Evaluator struct {
	N, M int
	// Residuals evaluates the residual vector. Required.
	Residuals ResidualFunc
	// Jacobian analytic Jacobian; approximated by finite differences when nil.
	Jacobian JacobianFunc
	// Bounds optional box constraints, one per parameter.
	Bounds []Bound
	// Method finite difference scheme used when Jacobian is nil.
	Method numdiff.Method

	fd   numdiff.Approx
	fbuf []float64
	jbuf *mat.Dense
}

// Init validates the evaluator and allocates its scratch space.
func (e *Evaluator) Init() error {
	switch {
	case e.N <= 0:
		return errors.New("problem dimension must greater than 0")
	case e.M <= 0:
		return errors.New("residual number must greater than 0")
	case e.Residuals == nil:
		return errors.New("residual function is required")
	case e.Bounds != nil && len(e.Bounds) != e.N:
		return errors.New("bounds size must equal to n")
	}
	for k, b := range e.Bounds {
		l, u := !math.IsNaN(b.Lower), !math.IsNaN(b.Upper)
		if l && u && b.Lower > b.Upper {
			return fmt.Errorf("bound range at %d has no feasible solution", k)
		}
	}
	e.fbuf = make([]float64, e.M)
	e.jbuf = mat.NewDense(e.M, e.N, nil)
	if e.Jacobian == nil {
		e.fd = numdiff.Approx{
			N: e.N, M: e.M,
			Eval:   e.evalResiduals,
			Method: e.Method,
			Bounds: e.fdBounds(),
		}
		if err := e.fd.Init(); err != nil {
			return err
		}
	}
	return nil
}

// Constrained reports whether any parameter carries a bound.
func (e *Evaluator) Constrained() bool {
	return len(e.Bounds) > 0
}

func (e *Evaluator) NumParameters() int          { return e.N }
func (e *Evaluator) NumEffectiveParameters() int { return e.N }
func (e *Evaluator) NumResiduals() int           { return e.M }

// Evaluate computes the cost at x, and optionally the residual vector, the
// gradient 𝐉ᵀ𝒇 and the Jacobian.
func (e *Evaluator) Evaluate(x []float64, cost *float64, residuals, gradient []float64, jacobian trustregion.Jacobian) bool {
	f := residuals
	if f == nil {
		f = e.fbuf
	}
	if !e.evalResiduals(x, f) {
		return false
	}
	*cost = 0.5 * floats.Dot(f, f)

	if gradient == nil && jacobian == nil {
		return true
	}

	var jd *Jacobian
	if jacobian != nil {
		jd = jacobian.(*Jacobian)
	} else {
		jd = &Jacobian{m: e.jbuf}
	}
	if e.Jacobian != nil {
		if !e.Jacobian(x, jd.m) {
			return false
		}
	} else {
		r := jd.m.RawMatrix()
		if r.Stride != r.Cols {
			panic("jacobian matrix must be contiguous")
		}
		if !e.fd.Jacobian(x, f, r.Data) {
			return false
		}
	}
	if !matFinite(jd.m) {
		return false
	}

	if gradient != nil {
		for i := range gradient {
			gradient[i] = 0
		}
		jd.LeftMultiply(f, gradient)
	}
	return true
}

// Plus computes xPlusDelta = x + delta projected onto the feasible box.
func (e *Evaluator) Plus(x, delta, xPlusDelta []float64) bool {
	for i := range x {
		v := x[i] + delta[i]
		if math.IsNaN(v) {
			return false
		}
		xPlusDelta[i] = v
	}
	for i, b := range e.Bounds {
		if !math.IsNaN(b.Lower) && xPlusDelta[i] < b.Lower {
			xPlusDelta[i] = b.Lower
		}
		if !math.IsNaN(b.Upper) && xPlusDelta[i] > b.Upper {
			xPlusDelta[i] = b.Upper
		}
	}
	return true
}

func (e *Evaluator) evalResiduals(x, f []float64) bool {
	if !e.Residuals(x, f) {
		return false
	}
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (e *Evaluator) fdBounds() []numdiff.Bound {
	if e.Bounds == nil {
		return nil
	}
	bounds := make([]numdiff.Bound, len(e.Bounds))
	for i, b := range e.Bounds {
		bounds[i] = numdiff.Bound{Lower: b.Lower, Upper: b.Upper}
	}
	return bounds
}

func matFinite(m *mat.Dense) bool {
	r := m.RawMatrix()
	for i := 0; i < r.Rows; i++ {
		for _, v := range r.Data[i*r.Stride : i*r.Stride+r.Cols] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
