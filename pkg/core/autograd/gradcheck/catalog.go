// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gradcheck

import (
	"math/rand/v2"

	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// catalogSeed makes the catalog inputs reproducible.
const catalogSeed = 42

// RandomBuffer returns a buffer filled with normally distributed values scaled by stddev.
func RandomBuffer(rng *rand.Rand, shape shapes.Shape, stddev float64) *tensors.Buffer {
	return tensors.New(shape, func(_, _, _ int) float64 { return rng.NormFloat64() * stddev })
}

// Catalog returns at least one Case per backward rule of the autograd package, with
// reproducible random inputs.
func Catalog() []Case {
	rng := rand.New(rand.NewPCG(catalogSeed, catalogSeed))
	random := func(outer, middle, inner int) *tensors.Buffer {
		return RandomBuffer(rng, shapes.Make(outer, middle, inner), 1.0)
	}
	positive := func(outer, middle, inner int) *tensors.Buffer {
		return tensors.New(shapes.Make(outer, middle, inner), func(_, _, _ int) float64 { return 0.5 + rng.Float64() })
	}

	return []Case{
		{
			Name: "Add", Op: autograd.OpTypeAdd,
			Inputs:  []*tensors.Buffer{random(2, 3, 4), random(2, 3, 4)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Add(x[0], x[1]) },
		},
		{
			Name: "AddBroadcast", Op: autograd.OpTypeAdd,
			Inputs:  []*tensors.Buffer{random(2, 3, 4), random(1, 1, 4)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Add(x[0], x[1]) },
		},
		{
			Name: "SubBroadcast", Op: autograd.OpTypeSub,
			Inputs:  []*tensors.Buffer{random(2, 1, 4), random(2, 3, 1)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Sub(x[0], x[1]) },
		},
		{
			Name: "Mul", Op: autograd.OpTypeMul,
			Inputs:  []*tensors.Buffer{random(2, 3, 4), random(2, 3, 4)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Mul(x[0], x[1]) },
		},
		{
			Name: "MulBroadcast", Op: autograd.OpTypeMul,
			Inputs:  []*tensors.Buffer{random(2, 3, 4), random(1, 3, 1)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Mul(x[0], x[1]) },
		},
		{
			Name: "MulSelf", Op: autograd.OpTypeMul,
			Inputs:  []*tensors.Buffer{random(1, 2, 3)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Mul(x[0], x[0]) },
		},
		{
			Name: "MulScalar", Op: autograd.OpTypeMulScalar,
			Inputs:  []*tensors.Buffer{random(2, 2, 3)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.MulScalar(x[0], -1.5) },
		},
		{
			Name: "MatMulShared", Op: autograd.OpTypeLinear,
			Inputs:  []*tensors.Buffer{random(2, 3, 4), random(1, 4, 5)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.MatMul(x[0], x[1]) },
		},
		{
			Name: "MatMulBatched", Op: autograd.OpTypeLinear,
			Inputs:  []*tensors.Buffer{random(2, 3, 4), random(2, 4, 2)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.MatMul(x[0], x[1]) },
		},
		{
			Name: "Linear", Op: autograd.OpTypeLinear,
			Inputs:  []*tensors.Buffer{random(2, 3, 4), random(1, 4, 5), random(1, 1, 5)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Linear(x[0], x[1], x[2]) },
		},
		{
			Name: "Gelu", Op: autograd.OpTypeGelu,
			Inputs:  []*tensors.Buffer{RandomBuffer(rng, shapes.Make(2, 3, 4), 2.0)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Gelu(x[0]) },
		},
		{
			Name: "Silu", Op: autograd.OpTypeSilu,
			Inputs:  []*tensors.Buffer{RandomBuffer(rng, shapes.Make(2, 3, 4), 2.0)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Silu(x[0]) },
		},
		{
			Name: "Softmax", Op: autograd.OpTypeSoftmax,
			Inputs:  []*tensors.Buffer{random(2, 3, 5)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Softmax(x[0]) },
		},
		{
			Name: "RMSNorm", Op: autograd.OpTypeRMSNorm,
			Inputs: []*tensors.Buffer{random(2, 3, 6), positive(1, 1, 6)},
			Forward: func(x []autograd.Node) autograd.Node {
				return autograd.RMSNorm(x[0], x[1], autograd.DefaultRMSNormEpsilon)
			},
		},
		{
			Name: "RMSNormNoWeight", Op: autograd.OpTypeRMSNorm,
			Inputs: []*tensors.Buffer{random(1, 4, 3)},
			Forward: func(x []autograd.Node) autograd.Node {
				return autograd.RMSNorm(x[0], autograd.Node{}, 1e-3)
			},
		},
		{
			Name: "Mean", Op: autograd.OpTypeMean,
			Inputs:  []*tensors.Buffer{random(3, 2, 2)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.Mean(x[0]) },
		},
		{
			Name: "MeanSquaredError", Op: autograd.OpTypeMeanSquaredError,
			Inputs:  []*tensors.Buffer{random(2, 3, 2), random(2, 3, 2)},
			Forward: func(x []autograd.Node) autograd.Node { return autograd.MeanSquaredError(x[0], x[1]) },
		},
		{
			Name: "CrossEntropyFromLogits", Op: autograd.OpTypeCrossEntropy,
			Inputs: []*tensors.Buffer{RandomBuffer(rng, shapes.Make(2, 3, 4), 2.0)},
			Forward: func(x []autograd.Node) autograd.Node {
				return autograd.CrossEntropyFromLogits(x[0], []int{0, 3, autograd.IgnoreIndex, 1, 2, 2})
			},
		},
		{
			Name: "Block", Op: autograd.OpTypeLinear,
			Inputs: []*tensors.Buffer{random(2, 3, 4), random(1, 4, 4), random(1, 1, 4), positive(1, 1, 4)},
			Forward: func(x []autograd.Node) autograd.Node {
				// Residual block: x + Silu(Linear(RMSNorm(x))).
				normalized := autograd.RMSNorm(x[0], x[3], autograd.DefaultRMSNormEpsilon)
				return autograd.Add(x[0], autograd.Silu(autograd.Linear(normalized, x[1], x[2])))
			},
		},
	}
}
