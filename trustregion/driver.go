// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
)

// iterDriver is the main driver for the trust region iteration, responsible
// for evaluation, step computation, acceptance and convergence detection.
type iterDriver struct {
	minimizer *Minimizer
	workspace *Workspace
	// out receives the best parameters seen so far, so the solve returns a
	// usable point even when it ends on an unsuccessful tail.
	out []float64
}

// mainLoop runs the iteration until one of the termination criteria fires.
// Every exit path leaves the workspace summary with a termination type and a
// message naming the triggering comparison.
func (d *iterDriver) mainLoop() {
	spec := &d.minimizer.minSpec
	ctx := &d.workspace.iterCtx
	log := spec.logger

	ctx.startTime = time.Now()
	ctx.iterStartTime = ctx.startTime

	if !d.iterationZero() {
		d.logTermination()
		return
	}
	copy(d.out, ctx.x)
	ctx.minimumCost = ctx.cost
	ctx.innerEnabled = spec.inner != nil
	ctx.stepEvaluator = newStepEvaluator(ctx.cost, spec.step.Nonmonotonic, spec.step.NonmonotonicWindow)

	for d.finalizeIteration() {
		ctx.iterStartTime = time.Now()
		last := ctx.summary.Iterations[len(ctx.summary.Iterations)-1].Iteration
		ctx.iteration = IterationSummary{Iteration: last + 1, Eta: spec.step.Eta}

		if !d.computeStep() {
			d.logTermination()
			return
		}
		if !ctx.iteration.StepIsValid {
			if !d.handleInvalidStep() {
				d.logTermination()
				return
			}
			continue
		}

		ctx.numInvalidSteps = 0
		// Undo the Jacobian column scaling.
		for i, s := range ctx.trustRegionStep {
			ctx.delta[i] = s * ctx.scale[i]
		}

		if spec.constrained {
			d.doLineSearch()
		}

		newCost := math.Inf(1)
		if spec.evaluator.Plus(ctx.x, ctx.delta, ctx.xPlusDelta) {
			var c float64
			if spec.evaluator.Evaluate(ctx.xPlusDelta, &c, nil, nil, nil) {
				newCost = c
			} else if log.enable(LogTrace) {
				log.log("Step failed to evaluate, treating it as a step with infinite cost.\n")
			}
		} else if log.enable(LogTrace) {
			log.log("Plus(x, delta) failed, treating it as a step with infinite cost.\n")
		}

		if !math.IsInf(newCost, 1) && ctx.innerEnabled {
			newCost = d.doInnerIterations(newCost)
		}

		ctx.iteration.CostChange = ctx.cost - newCost
		ctx.iteration.StepNorm = distance(ctx.x, ctx.xPlusDelta)

		stepSizeTolerance := spec.stop.ParameterTolerance * (ctx.xNorm + spec.stop.ParameterTolerance)
		if ctx.iteration.StepNorm <= stepSizeTolerance {
			ctx.summary.Message = fmt.Sprintf(
				"Parameter tolerance reached. Relative step norm: %e <= %e.",
				ctx.iteration.StepNorm/(ctx.xNorm+spec.stop.ParameterTolerance),
				spec.stop.ParameterTolerance)
			ctx.summary.Termination = Convergence
			d.logTermination()
			return
		}

		if math.Abs(ctx.iteration.CostChange) <= spec.stop.FunctionTolerance*ctx.cost {
			ctx.summary.Message = fmt.Sprintf(
				"Function tolerance reached. |cost change|/cost: %e <= %e.",
				math.Abs(ctx.iteration.CostChange)/ctx.cost,
				spec.stop.FunctionTolerance)
			ctx.summary.Termination = Convergence
			d.logTermination()
			return
		}

		ctx.iteration.RelativeDecrease = ctx.stepEvaluator.StepQuality(newCost, ctx.modelCostChange)
		ctx.iteration.StepIsSuccessful = ctx.innerWereUseful ||
			ctx.iteration.RelativeDecrease > spec.step.MinRelativeDecrease

		if !ctx.iteration.StepIsSuccessful {
			ctx.summary.NumUnsuccessfulSteps++
			spec.strategy.StepRejected(ctx.iteration.RelativeDecrease)
			ctx.iteration.Cost = newCost + spec.fixedCost
			continue
		}

		ctx.summary.NumSuccessfulSteps++
		spec.strategy.StepAccepted(ctx.iteration.RelativeDecrease)
		ctx.stepEvaluator.StepAccepted(newCost, ctx.modelCostChange)

		copy(ctx.x, ctx.xPlusDelta)
		ctx.xNorm = floats.Norm(ctx.x, 2)
		if !d.evalGradientAndJacobian() {
			d.logTermination()
			return
		}

		if ctx.cost < ctx.minimumCost {
			ctx.minimumCost = ctx.cost
			copy(d.out, ctx.x)
		}
	}
	d.logTermination()
}

// iterationZero projects the initial point onto the feasible set when the
// problem is constrained, then evaluates cost, gradient and Jacobian there.
func (d *iterDriver) iterationZero() bool {
	spec := &d.minimizer.minSpec
	ctx := &d.workspace.iterCtx

	ctx.iteration = IterationSummary{Iteration: 0, Eta: spec.step.Eta}
	ctx.xNorm = floats.Norm(ctx.x, 2)

	if spec.constrained {
		for i := range ctx.delta {
			ctx.delta[i] = zero
		}
		if !spec.evaluator.Plus(ctx.x, ctx.delta, ctx.xPlusDelta) {
			ctx.summary.Message = "Unable to project initial point onto the feasible set."
			ctx.summary.Termination = Failure
			return false
		}
		copy(ctx.x, ctx.xPlusDelta)
		ctx.xNorm = floats.Norm(ctx.x, 2)
	}

	if !d.evalGradientAndJacobian() {
		return false
	}

	ctx.summary.InitialCost = ctx.cost + spec.fixedCost
	return true
}

// evalGradientAndJacobian evaluates everything at the current x, applies the
// Jacobi column scaling and computes the projected gradient norms.
func (d *iterDriver) evalGradientAndJacobian() bool {
	spec := &d.minimizer.minSpec
	ctx := &d.workspace.iterCtx

	if !spec.evaluator.Evaluate(ctx.x, &ctx.cost, ctx.residuals, ctx.gradient, spec.jacobian) {
		ctx.summary.Message = "Residual and Jacobian evaluation failed."
		ctx.summary.Termination = Failure
		return false
	}

	ctx.iteration.Cost = ctx.cost + spec.fixedCost

	if !spec.step.NoJacobiScaling {
		if ctx.iteration.Iteration == 0 {
			// The scale improves the conditioning of the Jacobian and is
			// computed once, never afterwards.
			spec.jacobian.SquaredColumnNorm(ctx.scale)
			for i := range ctx.scale {
				ctx.scale[i] = one / (one + math.Sqrt(ctx.scale[i]))
			}
		}
		spec.jacobian.ScaleColumns(ctx.scale)
	}

	for i, g := range ctx.gradient {
		ctx.negGradient[i] = -g
	}
	if !spec.evaluator.Plus(ctx.x, ctx.negGradient, ctx.projGradientStep) {
		ctx.summary.Message = "projected_gradient_step = Plus(x, -gradient) failed."
		ctx.summary.Termination = Failure
		return false
	}

	maxNorm, sqNorm := zero, zero
	for i, x := range ctx.x {
		v := math.Abs(x - ctx.projGradientStep[i])
		maxNorm = math.Max(maxNorm, v)
		sqNorm += v * v
	}
	ctx.iteration.GradientMaxNorm = maxNorm
	ctx.iteration.GradientNorm = math.Sqrt(sqNorm)
	return true
}

// finalizeIteration records timing and radius, appends the iteration record,
// runs the callbacks and checks the boundary termination criteria.
// Returns true when the minimizer can continue.
func (d *iterDriver) finalizeIteration() bool {
	spec := &d.minimizer.minSpec
	ctx := &d.workspace.iterCtx
	log := spec.logger

	ctx.iteration.TrustRegionRadius = spec.strategy.Radius()
	now := time.Now()
	ctx.iteration.IterationTime = now.Sub(ctx.iterStartTime)
	ctx.iteration.CumulativeTime = now.Sub(ctx.startTime)
	ctx.summary.Iterations = append(ctx.summary.Iterations, ctx.iteration)

	if log.enable(LogIter) {
		log.log("iter %4d  cost %13.6e  change %13.6e  |gradient| %10.3e  |step| %10.3e  tr radius %10.3e\n",
			ctx.iteration.Iteration, ctx.iteration.Cost, ctx.iteration.CostChange,
			ctx.iteration.GradientMaxNorm, ctx.iteration.StepNorm, ctx.iteration.TrustRegionRadius)
	}

	for _, callback := range spec.callbacks {
		switch callback(ctx.iteration) {
		case CallbackTerminate:
			ctx.summary.Message = "Terminated by user callback."
			ctx.summary.Termination = UserSuccess
			return false
		case CallbackAbort:
			ctx.summary.Message = "Aborted by user callback."
			ctx.summary.Termination = UserFailure
			return false
		}
	}

	if elapsed := now.Sub(ctx.startTime); elapsed >= spec.stop.MaxSolverTime {
		ctx.summary.Message = fmt.Sprintf(
			"Maximum solver time reached: %v >= %v.", elapsed, spec.stop.MaxSolverTime)
		ctx.summary.Termination = NoConvergence
		return false
	}

	if ctx.iteration.Iteration >= spec.stop.MaxIterations {
		ctx.summary.Message = "Maximum number of iterations reached."
		ctx.summary.Termination = NoConvergence
		return false
	}

	if (ctx.iteration.StepIsSuccessful || ctx.iteration.Iteration == 0) &&
		ctx.iteration.GradientMaxNorm <= spec.stop.GradientTolerance {
		ctx.summary.Message = fmt.Sprintf(
			"Gradient tolerance reached. Gradient max norm: %e <= %e.",
			ctx.iteration.GradientMaxNorm, spec.stop.GradientTolerance)
		ctx.summary.Termination = Convergence
		return false
	}

	if ctx.iteration.TrustRegionRadius < spec.stop.MinTrustRegionRadius {
		ctx.summary.Message = fmt.Sprintf(
			"Minimum trust region radius reached: %e < %e.",
			ctx.iteration.TrustRegionRadius, spec.stop.MinTrustRegionRadius)
		ctx.summary.Termination = Convergence
		return false
	}

	return true
}

// computeStep asks the strategy for a candidate step and validates it
// against the quadratic model. A recoverable solver failure marks the step
// invalid; only a fatal solver error terminates the solve.
func (d *iterDriver) computeStep() bool {
	spec := &d.minimizer.minSpec
	ctx := &d.workspace.iterCtx
	log := spec.logger

	start := time.Now()
	opts := PerSolveOptions{Eta: spec.step.Eta}
	if _, found := slices.BinarySearch(spec.dump.Iterations, ctx.iteration.Iteration); found {
		opts.DumpFilenameBase = filepath.Join(spec.dump.Directory,
			fmt.Sprintf("leastsq_iteration_%03d", ctx.iteration.Iteration))
	}

	strategySummary := spec.strategy.ComputeStep(opts, spec.jacobian, ctx.residuals, ctx.trustRegionStep)

	if strategySummary.Status == LinearSolverFatalError {
		ctx.summary.Message = "Linear solver failed due to unrecoverable non-numeric causes."
		ctx.summary.Termination = Failure
		return false
	}

	ctx.iteration.StepSolverTime = time.Since(start)
	ctx.iteration.LinearSolverIterations = strategySummary.NumIterations

	if strategySummary.Status == LinearSolverFailure {
		ctx.iteration.StepIsValid = false
		return true
	}

	// The quadratic model predicts
	//   𝚗𝚎𝚠_𝚖𝚘𝚍𝚎𝚕_𝚌𝚘𝚜𝚝 = ½ ‖ 𝒇 + 𝐉·h ‖²
	// hence
	//   𝚖𝚘𝚍𝚎𝚕_𝚌𝚘𝚜𝚝_𝚌𝚑𝚊𝚗𝚐𝚎 = -(𝐉·h)ᵀ(𝒇 + 𝐉·h/2)
	for i := range ctx.modelResiduals {
		ctx.modelResiduals[i] = zero
	}
	spec.jacobian.RightMultiply(ctx.trustRegionStep, ctx.modelResiduals)
	change := zero
	for i, m := range ctx.modelResiduals {
		change -= m * (ctx.residuals[i] + m/two)
	}
	ctx.modelCostChange = change

	// A non-positive change means the model predicts no improvement, which
	// signals numerical trouble in the linear solve.
	ctx.iteration.StepIsValid = change > zero
	if !ctx.iteration.StepIsValid && log.enable(LogTrace) {
		log.log("Invalid step: current cost: %e absolute model cost change: %e relative model cost change: %e\n",
			ctx.cost, change, change/ctx.cost)
	}

	if opts.DumpFilenameBase != "" {
		if err := dumpIteration(opts.DumpFilenameBase, spec.jacobian, ctx.residuals, ctx.trustRegionStep); err != nil && log.enable(LogLast) {
			log.log("Dumping iteration %d failed: %v\n", ctx.iteration.Iteration, err)
		}
	}
	return true
}

// handleInvalidStep treats an invalid step as a zero-length unsuccessful
// step so the strategy shrinks the region and the loop retries, bounded by
// the consecutive invalid step budget.
func (d *iterDriver) handleInvalidStep() bool {
	spec := &d.minimizer.minSpec
	ctx := &d.workspace.iterCtx

	ctx.numInvalidSteps++
	if ctx.numInvalidSteps >= spec.stop.MaxInvalidSteps {
		ctx.summary.Message = fmt.Sprintf(
			"Number of consecutive invalid steps more than: %d.", spec.stop.MaxInvalidSteps)
		ctx.summary.Termination = Failure
		return false
	}

	ctx.summary.NumUnsuccessfulSteps++
	spec.strategy.StepIsInvalid()

	// The callbacks still run for this iteration, so fill the record as a
	// step of length zero and no progress.
	last := ctx.summary.Iterations[len(ctx.summary.Iterations)-1]
	ctx.iteration.Cost = ctx.cost + spec.fixedCost
	ctx.iteration.CostChange = zero
	ctx.iteration.GradientMaxNorm = last.GradientMaxNorm
	ctx.iteration.GradientNorm = last.GradientNorm
	ctx.iteration.StepNorm = zero
	ctx.iteration.RelativeDecrease = zero
	return true
}

// doInnerIterations refines the candidate point and folds the extra
// improvement into the model cost change, so the relative decrease fed to
// the step evaluator accounts for it. Refinement disables itself once its
// relative progress drops below the inner tolerance.
func (d *iterDriver) doInnerIterations(newCost float64) float64 {
	spec := &d.minimizer.minSpec
	ctx := &d.workspace.iterCtx
	log := spec.logger

	ctx.summary.NumInnerIterationSteps++
	copy(ctx.innerX, ctx.xPlusDelta)
	spec.inner.Minimize(ctx.innerX)

	innerCost := math.Inf(1)
	var c float64
	if spec.evaluator.Evaluate(ctx.innerX, &c, nil, nil, nil) {
		innerCost = c
		copy(ctx.xPlusDelta, ctx.innerX)
	} else if log.enable(LogTrace) {
		log.log("Inner iteration failed.\n")
	}

	if math.IsInf(innerCost, 1) {
		return newCost
	}

	if log.enable(LogTrace) {
		log.log("Inner iteration succeeded; current cost: %e trust region step cost: %e inner iteration cost: %e\n",
			ctx.cost, newCost, innerCost)
	}

	ctx.modelCostChange += newCost - innerCost
	ctx.innerWereUseful = innerCost < ctx.cost

	progress := one - innerCost/newCost
	ctx.innerEnabled = progress > spec.step.InnerTolerance
	if !ctx.innerEnabled && log.enable(LogTrace) {
		log.log("Disabling inner iterations. Progress: %e\n", progress)
	}
	return innerCost
}

// doLineSearch pulls the step back along itself until the candidate point
// satisfies the Armijo condition, keeping constrained steps feasible and
// decreasing.
func (d *iterDriver) doLineSearch() {
	spec := &d.minimizer.minSpec
	ctx := &d.workspace.iterCtx

	slope := floats.Dot(ctx.gradient, ctx.delta)
	stepSize, ok, evals := armijoSearch(spec.evaluator, &spec.search,
		ctx.x, ctx.delta, ctx.cost, slope, ctx.lineDelta, ctx.lineX)
	ctx.summary.NumLineSearchSteps += evals
	if ok {
		floats.Scale(stepSize, ctx.delta)
	}
}

func (d *iterDriver) logTermination() {
	ctx := &d.workspace.iterCtx
	if log := d.minimizer.logger; log.enable(LogLast) {
		log.log("Terminating: %s %s\n", ctx.summary.Termination, ctx.summary.Message)
	}
}

// distance computes ‖ a - b ‖₂.
func distance(a, b []float64) float64 {
	sq := zero
	for i, v := range a {
		d := v - b[i]
		sq += d * d
	}
	return math.Sqrt(sq)
}
