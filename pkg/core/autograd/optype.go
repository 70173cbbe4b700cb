// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import "fmt"

// OpType identifies the operation that created a Node.
type OpType int

const (
	OpTypeLeaf OpType = iota
	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeMulScalar
	OpTypeLinear
	OpTypeGelu
	OpTypeSilu
	OpTypeSoftmax
	OpTypeRMSNorm
	OpTypeMean
	OpTypeMeanSquaredError
	OpTypeCrossEntropy
)

var opTypeNames = [...]string{
	OpTypeLeaf:             "Leaf",
	OpTypeAdd:              "Add",
	OpTypeSub:              "Sub",
	OpTypeMul:              "Mul",
	OpTypeMulScalar:        "MulScalar",
	OpTypeLinear:           "Linear",
	OpTypeGelu:             "Gelu",
	OpTypeSilu:             "Silu",
	OpTypeSoftmax:          "Softmax",
	OpTypeRMSNorm:          "RMSNorm",
	OpTypeMean:             "Mean",
	OpTypeMeanSquaredError: "MeanSquaredError",
	OpTypeCrossEntropy:     "CrossEntropy",
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if op < 0 || int(op) >= len(opTypeNames) {
		return fmt.Sprintf("OpType(%d)", int(op))
	}
	return opTypeNames[op]
}
