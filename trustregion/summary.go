// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

import (
	"time"
)

// IterationSummary records the state of the minimizer at the end of one
// iteration of the main loop, including iteration zero.
type IterationSummary struct {
	Iteration int

	// StepIsValid whether the step passed the model cost change check.
	// Always false for iteration zero.
	StepIsValid bool
	// StepIsSuccessful whether the step was accepted and x advanced.
	// Always false for iteration zero.
	StepIsSuccessful bool

	// Cost the objective value at the end of the iteration (fixed cost included).
	Cost float64
	// CostChange the change in objective value produced by the step.
	CostChange float64
	// GradientMaxNorm infinity norm of the projected gradient.
	GradientMaxNorm float64
	// GradientNorm Euclidean norm of the projected gradient.
	GradientNorm float64
	// StepNorm Euclidean distance between x and the candidate point.
	StepNorm float64
	// RelativeDecrease ratio of actual to model-predicted cost decrease.
	RelativeDecrease float64
	// TrustRegionRadius the strategy radius after step feedback.
	TrustRegionRadius float64
	// Eta the forcing-sequence tolerance handed to the linear solver.
	Eta float64

	LinearSolverIterations int
	StepSolverTime         time.Duration
	IterationTime          time.Duration
	CumulativeTime         time.Duration
}

// CallbackDecision is returned by iteration callbacks to steer the solve.
type CallbackDecision int

const (
	// CallbackContinue keep iterating.
	CallbackContinue CallbackDecision = iota
	// CallbackTerminate stop with UserSuccess, keeping the best point found.
	CallbackTerminate
	// CallbackAbort stop with UserFailure, keeping the best point found.
	CallbackAbort
)

// Callback is invoked once per finalized iteration with its summary.
// Callbacks run on the minimizer goroutine and are the only mid-loop
// cancellation path.
type Callback func(IterationSummary) CallbackDecision

// Summary is the record of a complete solve.
type Summary struct {
	Termination TerminationType
	// Message explains the termination with the exact values and
	// thresholds of the triggering comparison.
	Message string

	InitialCost float64
	FinalCost   float64
	FixedCost   float64

	NumSuccessfulSteps     int
	NumUnsuccessfulSteps   int
	NumInnerIterationSteps int
	NumLineSearchSteps     int

	IsConstrained bool

	// Iterations one record per loop iteration, iteration zero included.
	Iterations []IterationSummary
}

// IsSolutionUsable reports whether the returned parameters reflect a valid
// improvement over the starting point, even when the run did not converge.
func (s *Summary) IsSolutionUsable() bool {
	switch s.Termination {
	case Convergence, NoConvergence, UserSuccess:
		return true
	}
	return false
}
