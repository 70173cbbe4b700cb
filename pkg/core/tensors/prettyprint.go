// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"bytes"
	"fmt"
)

// MaxElementsToPrint limits how many elements String prints before summarizing.
var MaxElementsToPrint = 32

// String implements fmt.Stringer. Large buffers are summarized, see Summary.
func (b *Buffer) String() string {
	if b == nil {
		return "Buffer(nil)"
	}
	if b.Size() > MaxElementsToPrint {
		return fmt.Sprintf("Buffer%s{sum=%g, norm²=%g}", b.shape, b.Sum(), b.SquaredNorm())
	}
	return b.Summary(6)
}

// Summary returns a multi-line representation of the Buffer's content, one inner row per line.
// Inspired by numpy output.
func (b *Buffer) Summary(precision int) string {
	var buf bytes.Buffer
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&buf, format, args...) }
	dims := b.shape.Dimensions
	w("%s{", b.shape)
	for i := range dims[0] {
		for j := range dims[1] {
			if dims[0]*dims[1] > 1 {
				w("\n  [%d,%d]: ", i, j)
			}
			w("[")
			for k := range dims[2] {
				if k > 0 {
					w(", ")
				}
				w("%.*g", precision, b.flat[b.shape.FlatIndex(i, j, k)])
			}
			w("]")
		}
	}
	if dims[0]*dims[1] > 1 {
		w("\n")
	}
	w("}")
	return buf.String()
}
