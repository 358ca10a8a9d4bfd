// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

import (
	"testing"
)

func TestProblemValidation(t *testing.T) {

	valid := func() Problem {
		return Problem{
			Evaluator: bowlEvaluator(),
			Jacobian:  newFakeJacobian(1, 1),
			Strategy:  newtonStrategy(),
		}
	}

	cases := []struct {
		name   string
		broken func(p *Problem)
		want   string
	}{
		{"NoEvaluator", func(p *Problem) { p.Evaluator = nil }, "evaluator is required"},
		{"NoJacobian", func(p *Problem) { p.Jacobian = nil }, "jacobian is required"},
		{"NoStrategy", func(p *Problem) { p.Strategy = nil }, "trust region strategy is required"},
		{"NegativeIterations", func(p *Problem) { p.Stop.MaxIterations = -1 }, "max iteration must not less than 0"},
		{"NegativeTolerance", func(p *Problem) { p.Stop.GradientTolerance = -1 }, "tolerance must not less than 0"},
		{"NegativeRadius", func(p *Problem) { p.Stop.MinTrustRegionRadius = -1 }, "min trust region radius must not less than 0"},
		{"NegativeDecrease", func(p *Problem) { p.Step.MinRelativeDecrease = -1 }, "min relative decrease must not less than 0"},
		{"BadWindow", func(p *Problem) {
			p.Step.Nonmonotonic = true
			p.Step.NonmonotonicWindow = -1
		}, "nonmonotonic window must greater than 0"},
	}

	for _, c := range cases {
		p := valid()
		c.broken(&p)
		_, err := p.New(nil)
		if err == nil || err.Error() != c.want {
			t.Fatalf("TestProblemValidation: %s: err %v", c.name, err)
		}
	}

	p := valid()
	m, err := p.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	// Zero values select the documented defaults.
	switch {
	case m.stop.MaxIterations != 50:
		t.Fatal("TestProblemValidation: Default MaxIterations")
	case m.stop.FunctionTolerance != 1e-6:
		t.Fatal("TestProblemValidation: Default FunctionTolerance")
	case m.stop.GradientTolerance != 1e-10:
		t.Fatal("TestProblemValidation: Default GradientTolerance")
	case m.stop.ParameterTolerance != 1e-8:
		t.Fatal("TestProblemValidation: Default ParameterTolerance")
	case m.stop.MinTrustRegionRadius != 1e-32:
		t.Fatal("TestProblemValidation: Default MinTrustRegionRadius")
	case m.stop.MaxInvalidSteps != 5:
		t.Fatal("TestProblemValidation: Default MaxInvalidSteps")
	case m.step.MinRelativeDecrease != 1e-3:
		t.Fatal("TestProblemValidation: Default MinRelativeDecrease")
	case m.step.NonmonotonicWindow != 5:
		t.Fatal("TestProblemValidation: Default NonmonotonicWindow")
	}
}

func TestFitDimensionMismatchPanics(t *testing.T) {

	p := Problem{
		Evaluator: bowlEvaluator(),
		Jacobian:  newFakeJacobian(1, 1),
		Strategy:  newtonStrategy(),
	}
	m, err := p.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("TestFitDimensionMismatchPanics: No Panic")
		}
	}()
	m.Fit([]float64{0, 0}, m.Init())
}
