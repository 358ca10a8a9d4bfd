// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

// PerSolveOptions are passed to the strategy on every step computation.
type PerSolveOptions struct {
	// Eta is the forcing-sequence tolerance for inexact linear solves:
	//   ‖ 𝐇·h + 𝐠 ‖ ≤ η ‖ 𝐠 ‖
	Eta float64
	// DumpFilenameBase, when non-empty, names the file the current
	// (Jacobian, residuals, step) triple is dumped to.
	DumpFilenameBase string
}

// StrategySummary reports the outcome of a single step computation.
type StrategySummary struct {
	Status        LinearSolverStatus
	NumIterations int
}

// Strategy computes candidate trust-region steps and adapts the size of its
// region from the minimizer's accept/reject feedback.
//
// A successful ComputeStep does not make the step valid on its own: validity
// is determined by the minimizer from the model cost change.
type Strategy interface {
	// ComputeStep solves for a step within the current trust region given
	// the Jacobian and residuals at the current point. The step slice has
	// NumEffectiveParameters entries and is overwritten.
	ComputeStep(opts PerSolveOptions, jacobian Jacobian, residuals, step []float64) StrategySummary

	// StepAccepted tells the strategy the last step was taken with the
	// given quality (relative decrease), letting it grow the region.
	StepAccepted(stepQuality float64)

	// StepRejected tells the strategy the last step was rejected, letting
	// it shrink the region.
	StepRejected(stepQuality float64)

	// StepIsInvalid tells the strategy the last step failed the model cost
	// check and the region must shrink before retrying.
	StepIsInvalid()

	// Radius reports the current trust region radius.
	Radius() float64
}
