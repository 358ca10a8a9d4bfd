// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

import (
	"errors"
	"math"
	"os"
	"slices"
	"time"
)

// Termination specifies the stopping criteria for the minimizer.
// The zero value of any field selects its default.
type Termination struct {
	// The iteration stop when the number of iterations exceeds limit (default 50).
	MaxIterations int
	// The iteration stop when the wall clock spent on the solve exceeds
	// limit. Checked only at iteration boundaries.
	MaxSolverTime time.Duration
	// The iteration will stop when the objective value satisfies:
	//   |𝒇ₖ - 𝒇ₖ₊₁| ≤ 𝚏𝚝𝚘𝚕 × 𝒇ₖ
	FunctionTolerance float64 // default 1e-6
	// The iteration will stop when the projected gradient satisfies:
	//   ‖ 𝐱 - ⊞(𝐱, -𝐠) ‖∞ ≤ 𝚐𝚝𝚘𝚕
	GradientTolerance float64 // default 1e-10
	// The iteration will stop when the step satisfies:
	//   ‖ 𝐱ₖ₊₁ - 𝐱ₖ ‖ ≤ 𝚡𝚝𝚘𝚕 × (‖ 𝐱ₖ ‖ + 𝚡𝚝𝚘𝚕)
	ParameterTolerance float64 // default 1e-8
	// The iteration stop once the trust region radius falls below limit.
	MinTrustRegionRadius float64 // default 1e-32
	// The solve fails after this many consecutive invalid steps (default 5).
	MaxInvalidSteps int
}

// StepControl tunes how candidate steps are computed and rated.
type StepControl struct {
	// Eta forcing-sequence tolerance handed to the linear solver (default 1e-1).
	Eta float64
	// MinRelativeDecrease a step is accepted when the relative decrease
	// exceeds this ratio (default 1e-3).
	MinRelativeDecrease float64
	// NoJacobiScaling disables the per-column Jacobian scaling computed on
	// iteration zero.
	NoJacobiScaling bool
	// Nonmonotonic selects the Toint nonmonotonic step evaluator.
	Nonmonotonic bool
	// NonmonotonicWindow bounds the nonmonotonic cost history (default 5).
	NonmonotonicWindow int
	// InnerTolerance disables inner iterations once their relative
	// improvement drops below this ratio (default 1e-3).
	InnerTolerance float64
}

// DumpOptions requests per-iteration dumps of the linear least-squares
// problem handed to the strategy.
type DumpOptions struct {
	// Iterations the iterations to dump, in any order.
	Iterations []int
	// Directory where dump files are written.
	Directory string
}

// Problem specifies a trust-region nonlinear least-squares solve.
type Problem struct {
	// Evaluator computes cost, residuals, gradient and Jacobian. Required.
	Evaluator Evaluator
	// Jacobian the matrix handle written by the evaluator and read by the
	// strategy. Required.
	Jacobian Jacobian
	// Strategy computes candidate steps. Required.
	Strategy Strategy
	// Inner optional refinement applied to accepted candidate points.
	Inner InnerMinimizer
	// Constrained marks problems whose Plus projects onto a feasible set;
	// steps are then pulled back by an Armijo search before retraction.
	Constrained bool
	// FixedCost contribution of residual blocks held out of the problem,
	// folded into every reported cost.
	FixedCost float64

	Stop Termination // Stop condition
	Step StepControl // Step acceptance control
	// Search optional line-search tolerances for constrained problems.
	Search *SearchTol
	// Dump optional per-iteration problem dumps.
	Dump *DumpOptions
	// Callbacks invoked once per finalized iteration.
	Callbacks []Callback
}

type minSpec struct {
	numParameters int
	numEffective  int
	numResiduals  int

	evaluator   Evaluator
	jacobian    Jacobian
	strategy    Strategy
	inner       InnerMinimizer
	constrained bool
	fixedCost   float64

	stop      Termination
	step      StepControl
	search    SearchTol
	dump      DumpOptions
	callbacks []Callback
	logger    Logger
}

// New creates a new trust-region minimizer for the given problem.
func (p *Problem) New(logger *Logger) (minimizer *Minimizer, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}

	stop, step := p.Stop, p.Step
	if stop.MaxIterations == 0 {
		stop.MaxIterations = 50
	}
	if stop.MaxSolverTime <= 0 {
		stop.MaxSolverTime = math.MaxInt64
	}
	if stop.FunctionTolerance == zero {
		stop.FunctionTolerance = 1e-6
	}
	if stop.GradientTolerance == zero {
		stop.GradientTolerance = 1e-10
	}
	if stop.ParameterTolerance == zero {
		stop.ParameterTolerance = 1e-8
	}
	if stop.MinTrustRegionRadius == zero {
		stop.MinTrustRegionRadius = 1e-32
	}
	if stop.MaxInvalidSteps == 0 {
		stop.MaxInvalidSteps = 5
	}
	if step.Eta == zero {
		step.Eta = 1e-1
	}
	if step.MinRelativeDecrease == zero {
		step.MinRelativeDecrease = 1e-3
	}
	if step.NonmonotonicWindow == 0 {
		step.NonmonotonicWindow = 5
	}
	if step.InnerTolerance == zero {
		step.InnerTolerance = 1e-3
	}

	var search SearchTol
	if p.Search != nil {
		search = *p.Search
	}
	search.defaults()

	var dump DumpOptions
	if p.Dump != nil {
		dump.Directory = p.Dump.Directory
		dump.Iterations = slices.Clone(p.Dump.Iterations)
		slices.Sort(dump.Iterations)
	}

	switch {
	case p.Evaluator == nil:
		err = errors.New("evaluator is required")
	case p.Jacobian == nil:
		err = errors.New("jacobian is required")
	case p.Strategy == nil:
		err = errors.New("trust region strategy is required")
	case p.Evaluator.NumParameters() <= 0:
		err = errors.New("problem dimension must greater than 0")
	case p.Evaluator.NumEffectiveParameters() <= 0 ||
		p.Evaluator.NumEffectiveParameters() > p.Evaluator.NumParameters():
		err = errors.New("effective dimension must lie in (0, dimension]")
	case p.Evaluator.NumResiduals() <= 0:
		err = errors.New("residual number must greater than 0")
	case stop.MaxIterations < 0:
		err = errors.New("max iteration must not less than 0")
	case stop.MaxInvalidSteps <= 0:
		err = errors.New("invalid step budget must greater than 0")
	case stop.FunctionTolerance < zero || stop.GradientTolerance < zero || stop.ParameterTolerance < zero:
		err = errors.New("tolerance must not less than 0")
	case stop.MinTrustRegionRadius < zero:
		err = errors.New("min trust region radius must not less than 0")
	case step.MinRelativeDecrease < zero:
		err = errors.New("min relative decrease must not less than 0")
	case step.Nonmonotonic && step.NonmonotonicWindow <= 0:
		err = errors.New("nonmonotonic window must greater than 0")
	}

	if err != nil {
		return
	}

	minimizer = &Minimizer{
		minSpec{
			numParameters: p.Evaluator.NumParameters(),
			numEffective:  p.Evaluator.NumEffectiveParameters(),
			numResiduals:  p.Evaluator.NumResiduals(),
			evaluator:     p.Evaluator,
			jacobian:      p.Jacobian,
			strategy:      p.Strategy,
			inner:         p.Inner,
			constrained:   p.Constrained,
			fixedCost:     p.FixedCost,
			stop:          stop,
			step:          step,
			search:        search,
			dump:          dump,
			callbacks:     slices.Clone(p.Callbacks),
			logger:        *logger,
		},
	}
	return
}

// Minimizer drives the trust-region iteration for one problem.
type Minimizer struct {
	minSpec
}

// Workspace contains the per-run state of the minimizer.
type Workspace struct {
	numParameters int
	numEffective  int
	numResiduals  int
	iterCtx
}

type iterCtx struct {
	x                []float64 // parameters
	xPlusDelta       []float64 // parameters
	projGradientStep []float64 // parameters
	innerX           []float64 // parameters
	lineX            []float64 // parameters

	gradient        []float64 // effective parameters
	negGradient     []float64 // effective parameters
	trustRegionStep []float64 // effective parameters
	delta           []float64 // effective parameters
	lineDelta       []float64 // effective parameters
	scale           []float64 // effective parameters

	residuals      []float64 // residuals
	modelResiduals []float64 // residuals

	xNorm           float64
	cost            float64
	minimumCost     float64
	modelCostChange float64

	innerEnabled    bool
	innerWereUseful bool
	numInvalidSteps int

	stepEvaluator StepEvaluator

	startTime     time.Time
	iterStartTime time.Time

	iteration IterationSummary
	summary   Summary
}

// Result contains the final result of the optimization process.
type Result struct {
	OK      bool      // Whether the optimization converged.
	Cost    float64   // Objective value at the returned point (fixed cost included).
	X       []float64 // The best parameters found.
	Summary           // Optimization summary.
}

// Init allocates the workspace for the minimizer.
// To avoid race conditions, separate workspaces need to be created for each
// goroutine. But multiple workspaces could share one minimizer.
func (m *Minimizer) Init() *Workspace {
	w := new(Workspace)
	w.numParameters = m.numParameters
	w.numEffective = m.numEffective
	w.numResiduals = m.numResiduals

	np, ne, nr := w.numParameters, w.numEffective, w.numResiduals
	w.x = make([]float64, np)
	w.xPlusDelta = make([]float64, np)
	w.projGradientStep = make([]float64, np)
	w.gradient = make([]float64, ne)
	w.negGradient = make([]float64, ne)
	w.trustRegionStep = make([]float64, ne)
	w.delta = make([]float64, ne)
	w.scale = make([]float64, ne)
	w.residuals = make([]float64, nr)
	w.modelResiduals = make([]float64, nr)
	if m.inner != nil {
		w.innerX = make([]float64, np)
	}
	if m.constrained {
		w.lineX = make([]float64, np)
		w.lineDelta = make([]float64, ne)
	}
	return w
}

func (w *Workspace) reset(x []float64) {
	copy(w.x, x)
	for i := range w.scale {
		w.scale[i] = one
	}
	w.xNorm = zero
	w.cost = zero
	w.minimumCost = math.Inf(1)
	w.modelCostChange = zero
	w.innerEnabled = false
	w.innerWereUseful = false
	w.numInvalidSteps = 0
	w.stepEvaluator = nil
	w.iteration = IterationSummary{}
	w.summary = Summary{Termination: NoConvergence}
}

// Fit runs the minimization from the initial guess x using workspace w.
func (m *Minimizer) Fit(x []float64, w *Workspace) *Result {

	if len(x) != m.numParameters {
		panic("initial x dimension not match spec")
	}

	if w.numParameters != m.numParameters ||
		w.numEffective != m.numEffective ||
		w.numResiduals != m.numResiduals {
		panic("workspace dimension not match spec")
	}

	w.reset(x)
	w.summary.FixedCost = m.fixedCost
	w.summary.IsConstrained = m.constrained

	driver := iterDriver{
		minimizer: m,
		workspace: w,
		out:       slices.Clone(x),
	}

	driver.mainLoop()

	summary := w.summary
	summary.FinalCost = math.Inf(1)
	if !math.IsInf(w.minimumCost, 1) {
		summary.FinalCost = w.minimumCost + m.fixedCost
	}
	ok := summary.Termination == Convergence || summary.Termination == UserSuccess
	return &Result{
		OK:      ok,
		Cost:    summary.FinalCost,
		X:       driver.out,
		Summary: summary,
	}
}
