// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustregion

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Dumper is implemented by Jacobian handles that can serialize their
// contents for per-iteration problem dumps.
type Dumper interface {
	DumpTo(w io.Writer) error
}

// dumpIteration writes the (Jacobian, residuals, step) triple of the current
// iteration to base+".txt", so a failing linear solve can be reproduced
// offline.
func dumpIteration(base string, jacobian Jacobian, residuals, step []float64) error {
	f, err := os.Create(base + ".txt")
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# residuals %d\n", len(residuals))
	for _, r := range residuals {
		fmt.Fprintf(w, "% .17g\n", r)
	}
	fmt.Fprintf(w, "# step %d\n", len(step))
	for _, s := range step {
		fmt.Fprintf(w, "% .17g\n", s)
	}
	if d, ok := jacobian.(Dumper); ok {
		fmt.Fprintf(w, "# jacobian cols %d\n", jacobian.NumCols())
		if err := d.DumpTo(w); err != nil {
			return err
		}
	}
	return w.Flush()
}
