// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dense

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/leastsq/numdiff"
)

// expResiduals models yᵢ - a·exp(b·tᵢ) over three samples.
var expT = []float64{0, 1, 2}
var expY = []float64{2 * math.Exp(0), 2 * math.Exp(1), 2 * math.Exp(2)}

func expEvaluator(analytic bool) *Evaluator {
	e := &Evaluator{
		N: 2, M: 3,
		Residuals: func(x, f []float64) bool {
			for i := range f {
				f[i] = expY[i] - x[0]*math.Exp(x[1]*expT[i])
			}
			return true
		},
		Method: numdiff.Central,
	}
	if analytic {
		e.Jacobian = func(x []float64, jac *mat.Dense) bool {
			for i := range expT {
				g := math.Exp(x[1] * expT[i])
				jac.Set(i, 0, -g)
				jac.Set(i, 1, -x[0]*expT[i]*g)
			}
			return true
		}
	}
	return e
}

func TestEvaluateAnalytic(t *testing.T) {

	e := expEvaluator(true)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}

	x := []float64{2, 1} // exact fit
	var cost float64
	residuals := make([]float64, 3)
	gradient := make([]float64, 2)
	jac := NewJacobian(3, 2)

	if !e.Evaluate(x, &cost, residuals, gradient, jac) {
		t.Fatal("TestEvaluateAnalytic: Evaluation Failed")
	}
	switch {
	case cost != 0:
		t.Fatalf("TestEvaluateAnalytic: Cost %e", cost)
	case gradient[0] != 0 || gradient[1] != 0:
		t.Fatalf("TestEvaluateAnalytic: Gradient %v", gradient)
	case jac.Matrix().At(0, 0) != -1:
		t.Fatalf("TestEvaluateAnalytic: J(0,0) = %f", jac.Matrix().At(0, 0))
	}
}

func TestFiniteDifferenceMatchesAnalytic(t *testing.T) {

	fd, an := expEvaluator(false), expEvaluator(true)
	if err := fd.Init(); err != nil {
		t.Fatal(err)
	}
	if err := an.Init(); err != nil {
		t.Fatal(err)
	}

	x := []float64{1.5, 0.3}
	var cost float64
	jfd, jan := NewJacobian(3, 2), NewJacobian(3, 2)

	if !fd.Evaluate(x, &cost, nil, nil, jfd) || !an.Evaluate(x, &cost, nil, nil, jan) {
		t.Fatal("TestFiniteDifferenceMatchesAnalytic: Evaluation Failed")
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			a, b := jfd.Matrix().At(i, j), jan.Matrix().At(i, j)
			if math.Abs(a-b) > 1e-6*math.Max(1, math.Abs(b)) {
				t.Fatalf("TestFiniteDifferenceMatchesAnalytic: J(%d,%d) = %g Want %g", i, j, a, b)
			}
		}
	}
}

func TestGradientIsJtF(t *testing.T) {

	e := expEvaluator(true)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}

	x := []float64{1, 0.5}
	var cost float64
	residuals := make([]float64, 3)
	gradient := make([]float64, 2)
	jac := NewJacobian(3, 2)

	if !e.Evaluate(x, &cost, residuals, gradient, jac) {
		t.Fatal("TestGradientIsJtF: Evaluation Failed")
	}

	want := make([]float64, 2)
	jac.LeftMultiply(residuals, want)
	if gradient[0] != want[0] || gradient[1] != want[1] {
		t.Fatalf("TestGradientIsJtF: Gradient %v Want %v", gradient, want)
	}

	half := 0.0
	for _, r := range residuals {
		half += 0.5 * r * r
	}
	if math.Abs(cost-half) > 1e-12 {
		t.Fatalf("TestGradientIsJtF: Cost %g Want %g", cost, half)
	}
}

func TestPlusProjectsOntoBox(t *testing.T) {

	nan := math.NaN()
	e := &Evaluator{
		N: 2, M: 1,
		Residuals: func(x, f []float64) bool { f[0] = x[0]; return true },
		Bounds:    []Bound{{Lower: -1, Upper: 1}, {Lower: nan, Upper: 0}},
	}
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	if !e.Constrained() {
		t.Fatal("TestPlusProjectsOntoBox: Not Constrained")
	}

	out := make([]float64, 2)
	if !e.Plus([]float64{0, 0}, []float64{5, -5}, out) {
		t.Fatal("TestPlusProjectsOntoBox: Plus Failed")
	}
	if out[0] != 1 || out[1] != -5 {
		t.Fatalf("TestPlusProjectsOntoBox: Projection %v", out)
	}

	if e.Plus([]float64{0, 0}, []float64{nan, 0}, out) {
		t.Fatal("TestPlusProjectsOntoBox: NaN Step Not Rejected")
	}
}

func TestNonFiniteResidualRejected(t *testing.T) {

	e := &Evaluator{
		N: 1, M: 1,
		Residuals: func(x, f []float64) bool {
			f[0] = math.Log(x[0]) // -Inf at 0, NaN below
			return true
		},
	}
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}

	var cost float64
	if e.Evaluate([]float64{0}, &cost, nil, nil, nil) {
		t.Fatal("TestNonFiniteResidualRejected: Inf Accepted")
	}
	if e.Evaluate([]float64{-1}, &cost, nil, nil, nil) {
		t.Fatal("TestNonFiniteResidualRejected: NaN Accepted")
	}
	if !e.Evaluate([]float64{1}, &cost, nil, nil, nil) {
		t.Fatal("TestNonFiniteResidualRejected: Finite Rejected")
	}
}

func TestEvaluatorValidation(t *testing.T) {

	residuals := func(x, f []float64) bool { return true }
	cases := []Evaluator{
		{N: 0, M: 1, Residuals: residuals},
		{N: 1, M: 0, Residuals: residuals},
		{N: 1, M: 1},
		{N: 2, M: 1, Residuals: residuals, Bounds: make([]Bound, 1)},
		{N: 1, M: 1, Residuals: residuals, Bounds: []Bound{{Lower: 1, Upper: -1}}},
	}
	for i := range cases {
		if err := cases[i].Init(); err == nil {
			t.Fatalf("TestEvaluatorValidation: Case %d Not Rejected", i)
		}
	}
}
