// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

import (
	"math"
)

const (
	searchSufficientDecrease = 1e-4
	searchMaxContraction     = 1e-3
	searchMinContraction     = 0.6
	searchMinStepSize        = 1e-9
	searchMaxIterations      = 20
)

// SearchTol configures the Armijo backtracking search used to pull a
// trust-region step back into the feasible region on constrained problems.
// The zero value of any field selects its default.
type SearchTol struct {
	// SufficientDecrease ɑ in the Armijo condition
	//   𝒇(𝐱 + λ𝐝) ≤ 𝒇(𝐱) + ɑλ 𝐠ᵀ𝐝
	SufficientDecrease float64
	// MaxStepContraction lower bound on the per-iteration shrink ratio.
	MaxStepContraction float64
	// MinStepContraction upper bound on the per-iteration shrink ratio.
	MinStepContraction float64
	// MinStepSize the search gives up below this step length.
	MinStepSize float64
	// MaxIterations bound on backtracking iterations.
	MaxIterations int
}

func (t *SearchTol) defaults() {
	if t.SufficientDecrease <= zero {
		t.SufficientDecrease = searchSufficientDecrease
	}
	if t.MaxStepContraction <= zero {
		t.MaxStepContraction = searchMaxContraction
	}
	if t.MinStepContraction <= zero {
		t.MinStepContraction = searchMinContraction
	}
	if t.MinStepSize <= zero {
		t.MinStepSize = searchMinStepSize
	}
	if t.MaxIterations <= 0 {
		t.MaxIterations = searchMaxIterations
	}
}

// armijoSearch backtracks along delta from x until the candidate satisfies
// the sufficient decrease condition. slope is the directional derivative
// 𝐠ᵀ𝐝 at x. trialDelta and trialX are caller-provided scratch vectors.
//
// Each trial step is interpolated from a quadratic fit through 𝒇(𝐱), the
// slope and the failed trial value, clamped into the contraction bounds. A
// trial point that cannot be retracted or evaluated behaves like one with
// infinite cost and forces the maximum contraction.
//
// Returns the accepted step scale, whether the search succeeded, and the
// number of cost evaluations performed.
func armijoSearch(eval Evaluator, tol *SearchTol, x, delta []float64, cost, slope float64, trialDelta, trialX []float64) (stepSize float64, ok bool, evals int) {
	stepSize = one
	if slope >= zero {
		// Not a descent direction.
		return stepSize, false, 0
	}
	for i := 0; i < tol.MaxIterations; i++ {
		for j, d := range delta {
			trialDelta[j] = stepSize * d
		}
		trialCost := math.Inf(1)
		if eval.Plus(x, trialDelta, trialX) {
			evals++
			var c float64
			if eval.Evaluate(trialX, &c, nil, nil, nil) {
				trialCost = c
			}
		}

		if trialCost <= cost+tol.SufficientDecrease*stepSize*slope {
			return stepSize, true, evals
		}

		next := tol.MaxStepContraction * stepSize
		if !math.IsInf(trialCost, 1) {
			// Minimize the quadratic interpolant of φ(0), φ′(0), φ(λ).
			q := -slope * stepSize * stepSize / (two * (trialCost - cost - slope*stepSize))
			lo, hi := tol.MaxStepContraction*stepSize, tol.MinStepContraction*stepSize
			next = math.Min(math.Max(q, lo), hi)
		}
		stepSize = next
		if stepSize < tol.MinStepSize {
			return stepSize, false, evals
		}
	}
	return stepSize, false, evals
}
