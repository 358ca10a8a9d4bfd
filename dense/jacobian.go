// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dense provides dense, gonum-backed collaborators for the trust
// region minimizer: a Jacobian handle, a residual evaluator with optional
// box constraints, and a QR linear solver for the damped model problem.
package dense

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Jacobian is a dense Jacobian handle backed by a gonum matrix.
// It implements trustregion.Jacobian and trustregion.Dumper.
type Jacobian struct {
	m *mat.Dense
}

// NewJacobian creates an empty rows×cols Jacobian.
func NewJacobian(rows, cols int) *Jacobian {
	return &Jacobian{m: mat.NewDense(rows, cols, nil)}
}

// Matrix exposes the backing matrix for the evaluator to fill.
func (j *Jacobian) Matrix() *mat.Dense {
	return j.m
}

func (j *Jacobian) NumRows() int {
	r, _ := j.m.Dims()
	return r
}

func (j *Jacobian) NumCols() int {
	_, c := j.m.Dims()
	return c
}

// RightMultiply accumulates out += J·x.
func (j *Jacobian) RightMultiply(x, out []float64) {
	r := j.m.RawMatrix()
	for i := 0; i < r.Rows; i++ {
		row := r.Data[i*r.Stride : i*r.Stride+r.Cols]
		out[i] += floats.Dot(row, x)
	}
}

// LeftMultiply accumulates out += Jᵀ·x.
func (j *Jacobian) LeftMultiply(x, out []float64) {
	r := j.m.RawMatrix()
	for i := 0; i < r.Rows; i++ {
		row := r.Data[i*r.Stride : i*r.Stride+r.Cols]
		floats.AddScaled(out, x[i], row)
	}
}

// SquaredColumnNorm stores the squared Euclidean norm of every column in out.
func (j *Jacobian) SquaredColumnNorm(out []float64) {
	r := j.m.RawMatrix()
	for c := 0; c < r.Cols; c++ {
		out[c] = 0
	}
	for i := 0; i < r.Rows; i++ {
		row := r.Data[i*r.Stride : i*r.Stride+r.Cols]
		for c, v := range row {
			out[c] += v * v
		}
	}
}

// ScaleColumns multiplies column c by scale[c].
func (j *Jacobian) ScaleColumns(scale []float64) {
	r := j.m.RawMatrix()
	for i := 0; i < r.Rows; i++ {
		row := r.Data[i*r.Stride : i*r.Stride+r.Cols]
		floats.Mul(row, scale)
	}
}

// DumpTo writes the matrix in a plain text layout.
func (j *Jacobian) DumpTo(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%.17g\n", mat.Formatted(j.m))
	return err
}
