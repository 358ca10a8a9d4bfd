// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

const (
	zero = 0.0
	half = 0.5
	one  = 1.0
	two  = 2.0
)

// TerminationType describes why a solve stopped.
type TerminationType int

const (
	// Convergence the minimizer found a point satisfying one of the tolerances.
	Convergence TerminationType = iota
	// NoConvergence the iteration or time budget ran out before any tolerance was met.
	// The best point found so far is still usable.
	NoConvergence
	// Failure the solver hit a numerical problem it could not recover from.
	Failure
	// UserSuccess a callback finished the solve early.
	UserSuccess
	// UserFailure a callback aborted the solve.
	UserFailure
)

func (t TerminationType) String() string {
	switch t {
	case Convergence:
		return "CONVERGENCE"
	case NoConvergence:
		return "NO_CONVERGENCE"
	case Failure:
		return "FAILURE"
	case UserSuccess:
		return "USER_SUCCESS"
	case UserFailure:
		return "USER_FAILURE"
	}
	return "UNKNOWN"
}

// LinearSolverStatus reports the outcome of the linear solve inside a strategy.
type LinearSolverStatus int

const (
	// LinearSolverSuccess the computed step is usable.
	LinearSolverSuccess LinearSolverStatus = iota
	// LinearSolverFailure the solve failed for numerical reasons.
	// The minimizer shrinks the trust region and retries.
	LinearSolverFailure
	// LinearSolverFatalError the solve failed for non-numeric reasons
	// and retrying cannot help.
	LinearSolverFatalError
)

func (s LinearSolverStatus) String() string {
	switch s {
	case LinearSolverSuccess:
		return "LINEAR_SOLVER_SUCCESS"
	case LinearSolverFailure:
		return "LINEAR_SOLVER_FAILURE"
	case LinearSolverFatalError:
		return "LINEAR_SOLVER_FATAL_ERROR"
	}
	return "UNKNOWN"
}
