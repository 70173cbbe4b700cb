// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import "iter"

// Iter iterates sequentially, in row-major order, over all indices of the shape.
//
// It yields the flat index (counter) and the (i, j, k) index.
func (s Shape) Iter() iter.Seq2[int, [Rank]int] {
	return func(yield func(int, [Rank]int) bool) {
		if !s.Ok() {
			return
		}
		flatIdx := 0
		for i := range s.Dimensions[0] {
			for j := range s.Dimensions[1] {
				for k := range s.Dimensions[2] {
					if !yield(flatIdx, [Rank]int{i, j, k}) {
						return
					}
					flatIdx++
				}
			}
		}
	}
}
