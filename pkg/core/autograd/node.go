// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// Node is a handle to one value recorded on a Tape: the value buffer, a gradient slot shared by
// every copy of the handle, and optionally the backward edge to the operation that created it.
//
// Node is meant to be passed by value. The zero Node is invalid.
type Node struct {
	tape *Tape
	slot int
	id   NodeId
}

// entry returns the tape row for the node, or panics if the handle is invalid or stale.
func (n Node) entry() *entry {
	n.AssertValid()
	return &n.tape.entries[n.slot]
}

// Ok returns whether the node is a valid handle: created by a Tape and not discarded by Tape.Truncate.
func (n Node) Ok() bool {
	return n.tape != nil && n.slot < len(n.tape.entries) && n.tape.entries[n.slot].id == n.id
}

// AssertValid panics if the node is the zero Node, or if it was discarded by Tape.Truncate.
func (n Node) AssertValid() {
	if n.tape == nil {
		exceptions.Panicf("Node is nil (zero value)")
	}
	if !n.Ok() {
		exceptions.Panicf("Node #%d is stale: it was discarded from %s", n.id, n.tape)
	}
}

// Id is the process-unique id of the node.
func (n Node) Id() NodeId { return n.id }

// Tape that holds this Node.
func (n Node) Tape() *Tape { return n.tape }

// Value returns the node's value buffer. It must be treated as read-only.
func (n Node) Value() *tensors.Buffer { return n.entry().value }

// Shape of the node's value.
func (n Node) Shape() shapes.Shape { return n.entry().value.Shape() }

// RequiresGrad returns whether gradients are accumulated for this node.
func (n Node) RequiresGrad() bool { return n.entry().requiresGrad }

// IsLeaf returns whether the node has no backward edge: it's an input, a parameter, a constant,
// a detached value, or the output of an operation none of whose inputs require gradients.
func (n Node) IsLeaf() bool { return n.entry().creator == nil }

// Op returns the type of operation that created the node, or OpTypeLeaf.
func (n Node) Op() OpType {
	creator := n.entry().creator
	if creator == nil {
		return OpTypeLeaf
	}
	return creator.Type()
}

// Inputs returns the nodes the creator operation consumed. Leaves have no inputs.
func (n Node) Inputs() []Node {
	creator := n.entry().creator
	if creator == nil {
		return nil
	}
	return creator.inputs()
}

// Grad returns the accumulated gradient, or nil if the gradient slot is empty.
//
// The returned buffer is the slot itself, shared by every handle of the node: treat it as
// read-only, use SetGrad to replace it.
func (n Node) Grad() *tensors.Buffer { return n.entry().grad }

// GradOrZeros returns the accumulated gradient, or a zero buffer shaped like the value if the slot
// is empty. An empty slot means no path reached the node, which is equivalent to a zero gradient.
func (n Node) GradOrZeros() *tensors.Buffer {
	e := n.entry()
	if e.grad == nil {
		return tensors.Zeros(e.value.Shape())
	}
	return e.grad
}

// SetGrad overwrites the gradient slot with a copy of grad. A nil grad empties the slot.
// Like AccumulateGrad, it is a no-op if the node doesn't require gradients.
//
// It is used, for instance, by gradient clipping, which rescales the gradients before the
// optimizer reads them. Backward rules never use it: they always use AccumulateGrad.
func (n Node) SetGrad(grad *tensors.Buffer) {
	e := n.entry()
	if !e.requiresGrad {
		return
	}
	if grad == nil {
		e.grad = nil
		return
	}
	if grad.Shape() != e.value.Shape() {
		shapeMismatchf("Node.SetGrad(%s): gradient shape %s differs from value shape %s", n, grad.Shape(), e.value.Shape())
	}
	e.grad = grad.Clone()
}

// ZeroGrad empties the gradient slot. Since the slot is shared, this affects every handle of the node.
func (n Node) ZeroGrad() {
	n.entry().grad = nil
}

// AccumulateGrad adds delta to the gradient slot: if the slot is empty it's set to a copy of delta,
// otherwise delta is summed into it.
//
// It is a no-op if the node doesn't require gradients.
func (n Node) AccumulateGrad(delta *tensors.Buffer) {
	e := n.entry()
	if !e.requiresGrad {
		return
	}
	if delta.Shape() != e.value.Shape() {
		shapeMismatchf("Node.AccumulateGrad(%s): gradient shape %s differs from value shape %s", n, delta.Shape(), e.value.Shape())
	}
	if e.grad == nil {
		// A copy, so no two slots ever share storage.
		e.grad = delta.Clone()
		return
	}
	e.grad.AddInPlace(delta)
}

// SetValue replaces the value of a leaf node with a copy of value.
//
// This is the optimizer's parameter update: it is not a graph operation, it creates no node nor
// backward edge. The previous buffer is left untouched, so operations already recorded with the
// old value still back-propagate with it. It panics if the node is not a leaf, or if the shape
// differs.
func (n Node) SetValue(value *tensors.Buffer) {
	e := n.entry()
	if e.creator != nil {
		exceptions.Panicf("Node.SetValue(%s): only leaf nodes can have their value overwritten", n)
	}
	if value.Shape() != e.value.Shape() {
		shapeMismatchf("Node.SetValue(%s): new value shape %s differs from %s", n, value.Shape(), e.value.Shape())
	}
	e.value = value.Clone()
}

// String implements fmt.Stringer.
func (n Node) String() string {
	if n.tape == nil {
		return "Node(nil)"
	}
	if !n.Ok() {
		return fmt.Sprintf("Node#%d(stale)", n.id)
	}
	e := &n.tape.entries[n.slot]
	str := fmt.Sprintf("Node#%d(%s)%s", n.id, n.Op(), e.value.Shape())
	if e.requiresGrad {
		str += "[RequiresGrad]"
	}
	return str
}
