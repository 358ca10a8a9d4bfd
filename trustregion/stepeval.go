// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

// StepEvaluator rates candidate steps by comparing the actual cost decrease
// against the decrease predicted by the quadratic model.
//
// StepQuality is only meaningful for a positive model cost change; the
// minimizer guarantees it is never called with modelCostChange ≤ 0.
type StepEvaluator interface {
	// StepQuality returns the ratio of actual to model-predicted decrease
	// for a step arriving at candidateCost.
	StepQuality(candidateCost, modelCostChange float64) float64
	// StepAccepted updates the reference state after the minimizer takes
	// the step.
	StepAccepted(candidateCost, modelCostChange float64)
}

func newStepEvaluator(cost float64, nonmonotonic bool, window int) StepEvaluator {
	if nonmonotonic {
		return &nonmonotonicStepEvaluator{
			window:        window,
			minimumCost:   cost,
			currentCost:   cost,
			referenceCost: cost,
			candidateCost: cost,
		}
	}
	return &monotonicStepEvaluator{referenceCost: cost}
}

// monotonicStepEvaluator compares every candidate against the last accepted
// cost, so any accepted step strictly decreases the objective.
type monotonicStepEvaluator struct {
	referenceCost float64
}

func (e *monotonicStepEvaluator) StepQuality(candidateCost, modelCostChange float64) float64 {
	return (e.referenceCost - candidateCost) / modelCostChange
}

func (e *monotonicStepEvaluator) StepAccepted(candidateCost, modelCostChange float64) {
	_ = modelCostChange
	e.referenceCost = candidateCost
}

// nonmonotonicStepEvaluator implements the step acceptance algorithm of
// Ph. L. Toint (Algorithm 10.1.2, Conn, Gould & Toint, "Trust Region
// Methods"): candidates are also compared against the worst cost in a
// bounded recent history, so temporary increases that escape shallow local
// structure can be accepted. Away from the neighborhood of a new minimum the
// reference cost trails the iterate by at most `window` accepted steps.
type nonmonotonicStepEvaluator struct {
	window int

	minimumCost   float64
	currentCost   float64
	referenceCost float64
	candidateCost float64

	accumulatedReferenceModelCostChange float64
	accumulatedCandidateModelCostChange float64

	numConsecutiveNonmonotonicSteps int
}

func (e *nonmonotonicStepEvaluator) StepQuality(candidateCost, modelCostChange float64) float64 {
	relativeDecrease := (e.currentCost - candidateCost) / modelCostChange
	historicalRelativeDecrease := (e.referenceCost - candidateCost) /
		(e.accumulatedReferenceModelCostChange + modelCostChange)
	return max(relativeDecrease, historicalRelativeDecrease)
}

func (e *nonmonotonicStepEvaluator) StepAccepted(candidateCost, modelCostChange float64) {
	e.currentCost = candidateCost
	e.accumulatedCandidateModelCostChange += modelCostChange
	e.accumulatedReferenceModelCostChange += modelCostChange

	if e.currentCost < e.minimumCost {
		// A new global minimum restarts the history.
		e.minimumCost = e.currentCost
		e.numConsecutiveNonmonotonicSteps = 0
		e.candidateCost = e.currentCost
		e.accumulatedCandidateModelCostChange = zero
	} else {
		e.numConsecutiveNonmonotonicSteps++
		if e.currentCost > e.candidateCost {
			e.candidateCost = e.currentCost
			e.accumulatedCandidateModelCostChange = zero
		}
	}

	// Once the window fills up, the worst cost seen inside it becomes the
	// reference against which future steps are rated.
	if e.numConsecutiveNonmonotonicSteps == e.window {
		e.referenceCost = e.candidateCost
		e.accumulatedReferenceModelCostChange = e.accumulatedCandidateModelCostChange
	}
}
