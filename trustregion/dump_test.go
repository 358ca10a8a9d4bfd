// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDumpSelectedIterations(t *testing.T) {

	dir := t.TempDir()

	p := Problem{
		Evaluator: bowlEvaluator(),
		Jacobian:  newFakeJacobian(1, 1),
		Strategy:  newtonStrategy(),
		Step:      StepControl{NoJacobiScaling: true},
		Dump:      &DumpOptions{Iterations: []int{1}, Directory: dir},
	}
	m, err := p.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	r := m.Fit([]float64{0}, m.Init())
	if !r.OK {
		t.Fatal("TestDumpSelectedIterations: Not Converge")
	}

	data, err := os.ReadFile(filepath.Join(dir, "leastsq_iteration_001.txt"))
	if err != nil {
		t.Fatal(err)
	}
	dump := string(data)
	if !strings.Contains(dump, "# residuals 1") || !strings.Contains(dump, "# step 1") {
		t.Fatalf("TestDumpSelectedIterations: Dump Content %q", dump)
	}

	// Iteration zero was not requested.
	if _, err := os.Stat(filepath.Join(dir, "leastsq_iteration_000.txt")); !os.IsNotExist(err) {
		t.Fatal("TestDumpSelectedIterations: Unexpected Dump For Iteration 0")
	}
}
