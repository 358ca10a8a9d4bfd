package numdiff

import (
	"errors"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference in interior
	// points and fall back to a one-sided difference near a bound.
	Central
)

// Bound limits the range of function evaluation for one variable.
// A NaN endpoint means unbounded on that side.
type Bound struct {
	Lower, Upper float64
}

// Approx estimates the Jacobian ∂𝒇/∂𝐱 of a residual function
// 𝒇(𝐱) : ℝⁿ → ℝᵐ by finite differences.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
type Approx struct {
	N, M int
	// Eval evaluates the residual vector f(x).
	// Returns false when the evaluation produces non-finite values.
	Eval func(x, f []float64) bool
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute the absolute step size as
	//   h = RelStep × 𝚜𝚒𝚐𝚗(x₀) × 𝚖𝚊𝚡(1, |x₀|)
	// with RelStep selected automatically when zero
	// (√ε forward, ∛ε central).
	RelStep float64
	// Lower and upper bounds on independent variables.
	// Trial points never leave the bounds.
	Bounds []Bound

	xt, f1, f2 []float64
}

// Init validates the spec and allocates the evaluation scratch.
func (a *Approx) Init() error {
	switch {
	case a.N <= 0 || a.M <= 0:
		return errors.New("approx dimension must greater than 0")
	case a.Eval == nil:
		return errors.New("evaluation target is required")
	case a.Bounds != nil && len(a.Bounds) != a.N:
		return errors.New("bounds size must equal to n")
	case a.RelStep < 0:
		return errors.New("relative step must not less than 0")
	}
	if a.RelStep == 0 {
		if a.Method == Central {
			a.RelStep = cubeEps
		} else {
			a.RelStep = sqrtEps
		}
	}
	a.xt = make([]float64, a.N)
	a.f1 = make([]float64, a.M)
	a.f2 = make([]float64, a.M)
	return nil
}

// Jacobian approximates the m×n Jacobian at x into out (row-major,
// out[i×n+j] = ∂fᵢ/∂xⱼ). For the Forward method f0 must hold f(x); it is
// ignored by Central unless a bound forces a one-sided difference.
// Returns false when any residual evaluation fails.
func (a *Approx) Jacobian(x, f0, out []float64) bool {
	n, m := a.N, a.M
	if len(x) != n || len(out) != m*n {
		panic("approx dimension not match spec")
	}
	copy(a.xt, x)
	for j := 0; j < n; j++ {
		h := a.step(x[j])
		lo, hi := a.span(j)

		switch {
		case a.Method == Central &&
			math.Min(x[j]-h, x[j]+h) >= lo && math.Max(x[j]-h, x[j]+h) <= hi:
			a.xt[j] = x[j] + h
			if !a.Eval(a.xt, a.f1) {
				return false
			}
			a.xt[j] = x[j] - h
			if !a.Eval(a.xt, a.f2) {
				return false
			}
			for i := 0; i < m; i++ {
				out[i*n+j] = (a.f1[i] - a.f2[i]) / (two * h)
			}

		default:
			// One-sided difference, flipped away from a violated bound.
			if x[j]+h > hi || x[j]+h < lo {
				h = -h
			}
			a.xt[j] = x[j] + h
			if !a.Eval(a.xt, a.f1) {
				return false
			}
			base := f0
			if base == nil {
				if !a.Eval(x, a.f2) {
					return false
				}
				base = a.f2
			}
			for i := 0; i < m; i++ {
				out[i*n+j] = (a.f1[i] - base[i]) / h
			}
		}
		a.xt[j] = x[j]
	}
	return true
}

func (a *Approx) step(x float64) float64 {
	s := one
	if x < 0 {
		s = -one
	}
	return a.RelStep * s * math.Max(one, math.Abs(x))
}

func (a *Approx) span(j int) (lo, hi float64) {
	lo, hi = math.Inf(-1), math.Inf(1)
	if a.Bounds == nil {
		return
	}
	b := a.Bounds[j]
	if !math.IsNaN(b.Lower) {
		lo = b.Lower
	}
	if !math.IsNaN(b.Upper) {
		hi = b.Upper
	}
	return
}

const (
	one = 1.0
	two = 2.0
)
