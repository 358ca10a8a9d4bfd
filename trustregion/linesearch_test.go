// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

import (
	"math"
	"testing"
)

// costOnlyEvaluator wraps a scalar objective for the search, which never
// asks for residuals or derivatives.
func costOnlyEvaluator(f func(x float64) (float64, bool)) *fakeEvaluator {
	return &fakeEvaluator{
		np: 1, ne: 1, nr: 1,
		evaluate: func(x []float64, cost *float64, residuals, gradient []float64, jacobian Jacobian) bool {
			c, ok := f(x[0])
			*cost = c
			return ok
		},
	}
}

func searchTol() *SearchTol {
	tol := &SearchTol{}
	tol.defaults()
	return tol
}

func TestArmijoFullStep(t *testing.T) {

	eval := costOnlyEvaluator(func(x float64) (float64, bool) { return half * x * x, true })

	x, delta := []float64{1}, []float64{-1}
	scratchD, scratchX := []float64{0}, []float64{0}

	stepSize, ok, evals := armijoSearch(eval, searchTol(), x, delta, 0.5, -1, scratchD, scratchX)
	switch {
	case !ok:
		t.Fatal("TestArmijoFullStep: Search Failed")
	case stepSize != 1:
		t.Fatalf("TestArmijoFullStep: Step Size %f", stepSize)
	case evals != 1:
		t.Fatalf("TestArmijoFullStep: %d Evaluations", evals)
	}
}

func TestArmijoBacktracksOvershoot(t *testing.T) {

	eval := costOnlyEvaluator(func(x float64) (float64, bool) { return half * x * x, true })

	// The step overshoots the minimum by an order of magnitude; the quadratic
	// interpolant recovers the right scale in one contraction.
	x, delta := []float64{1}, []float64{-10}
	scratchD, scratchX := []float64{0}, []float64{0}

	stepSize, ok, evals := armijoSearch(eval, searchTol(), x, delta, 0.5, -10, scratchD, scratchX)
	switch {
	case !ok:
		t.Fatal("TestArmijoBacktracksOvershoot: Search Failed")
	case math.Abs(stepSize-0.1) > 1e-12:
		t.Fatalf("TestArmijoBacktracksOvershoot: Step Size %f", stepSize)
	case evals != 2:
		t.Fatalf("TestArmijoBacktracksOvershoot: %d Evaluations", evals)
	}
}

func TestArmijoRejectsNonDescent(t *testing.T) {

	eval := costOnlyEvaluator(func(x float64) (float64, bool) { return half * x * x, true })

	x, delta := []float64{1}, []float64{1}
	scratchD, scratchX := []float64{0}, []float64{0}

	_, ok, evals := armijoSearch(eval, searchTol(), x, delta, 0.5, 1, scratchD, scratchX)
	if ok || evals != 0 {
		t.Fatalf("TestArmijoRejectsNonDescent: ok %v evals %d", ok, evals)
	}
}

func TestArmijoEvaluationFailureForcesMaxContraction(t *testing.T) {

	eval := costOnlyEvaluator(func(x float64) (float64, bool) { return 0, false })

	x, delta := []float64{1}, []float64{-1}
	scratchD, scratchX := []float64{0}, []float64{0}

	stepSize, ok, _ := armijoSearch(eval, searchTol(), x, delta, 0.5, -1, scratchD, scratchX)
	if ok {
		t.Fatal("TestArmijoEvaluationFailureForcesMaxContraction: Unexpected Success")
	}
	if stepSize >= searchMinStepSize {
		t.Fatalf("TestArmijoEvaluationFailureForcesMaxContraction: Step Size %e", stepSize)
	}
}

func TestArmijoContractionClamping(t *testing.T) {

	// Scripted trial costs drive the interpolant outside the clamp bounds.
	script := func(costs ...float64) *fakeEvaluator {
		calls := 0
		return costOnlyEvaluator(func(x float64) (float64, bool) {
			c := costs[calls]
			calls++
			return c, true
		})
	}

	x, delta := []float64{1}, []float64{-1}
	scratchD, scratchX := []float64{0}, []float64{0}

	// Barely-failing trial: the interpolated scale exceeds the upper bound
	// and is clamped to MinStepContraction.
	tol := &SearchTol{SufficientDecrease: 0.5}
	tol.defaults()
	stepSize, ok, _ := armijoSearch(script(0.6, 0), tol, x, delta, 1, -1, scratchD, scratchX)
	if !ok || math.Abs(stepSize-searchMinContraction) > 1e-12 {
		t.Fatalf("TestArmijoContractionClamping: Upper Clamp Step Size %f", stepSize)
	}

	// Wildly-failing trial: the interpolated scale collapses and is clamped
	// to MaxStepContraction.
	stepSize, ok, _ = armijoSearch(script(1e6, 0), searchTol(), x, delta, 1, -1, scratchD, scratchX)
	if !ok || math.Abs(stepSize-searchMaxContraction) > 1e-15 {
		t.Fatalf("TestArmijoContractionClamping: Lower Clamp Step Size %f", stepSize)
	}
}
