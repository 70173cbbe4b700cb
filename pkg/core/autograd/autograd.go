// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package autograd is an eager reverse-mode automatic differentiation engine.
//
// Operations (Add, Mul, Linear, Gelu, Softmax, RMSNorm, CrossEntropyFromLogits, ...) compute their
// values immediately, and at the same time record on a Tape how to back-propagate gradients to
// their inputs. Node.Backward then replays the recorded graph in reverse to accumulate gradients
// on every node that requires them.
//
// The main elements in the package are:
//
//   - Tape: the arena holding every node's value, gradient slot and backward edge. Nodes are
//     addressed by a stable index within the tape.
//
//   - Node: a small handle (tape + index) to one value in the graph. Copying a Node only copies
//     the handle, so every copy observes the same gradient slot.
//
//   - Leaves: nodes created with Tape.New, Tape.Parameter or Tape.Constant. Parameters are the
//     trainable leaves whose final gradients are read by an optimizer.
//
// ## Errors
//
// Following the graph building convention of GoMLX, operations don't return errors: incompatible
// shapes panic with an error wrapping ErrShapeMismatch, and misuse of handles panics with a
// descriptive error. Use TryBackward, or exceptions.TryCatch, at the boundaries where an error
// return is preferred.
//
// ## Concurrency
//
// A Tape and its Nodes are not safe for concurrent use: building and back-propagating are
// synchronous and single-threaded.
package autograd

import (
	"fmt"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/google/uuid"
)

// NodeId is a process-unique identifier of a node. It identifies the node, not its value: two
// nodes holding numerically equal values have different ids.
type NodeId int64

// InvalidNodeId is the id of the zero Node.
const InvalidNodeId = NodeId(0)

var lastNodeId atomic.Int64

func newNodeId() NodeId {
	return NodeId(lastNodeId.Add(1))
}

// entry is one row of the Tape's table.
type entry struct {
	id           NodeId
	value        *tensors.Buffer
	grad         *tensors.Buffer // nil is the empty slot.
	requiresGrad bool
	creator      gradFn // nil for leaves.
}

// Tape is the arena that owns the values, gradient slots and backward edges of all the nodes
// created on it.
//
// A node's inputs are always created before the node itself, so they live in lower slots: the
// recorded graph is a DAG by construction.
type Tape struct {
	name    string
	entries []entry
}

// NewTape creates an empty Tape. If name is empty, a unique name is generated.
func NewTape(name string) *Tape {
	if name == "" {
		name = fmt.Sprintf("tape_%s", uuid.NewString())
	}
	return &Tape{name: name}
}

// Name of the tape, used for logging.
func (t *Tape) Name() string { return t.name }

// String implements fmt.Stringer.
func (t *Tape) String() string {
	return fmt.Sprintf("Tape(%q, %d nodes)", t.name, len(t.entries))
}

// Len returns the number of nodes currently on the tape.
func (t *Tape) Len() int { return len(t.entries) }

// Memory returns the bytes used by the values and gradients stored in the tape.
func (t *Tape) Memory() uintptr {
	var memory uintptr
	for ii := range t.entries {
		e := &t.entries[ii]
		memory += e.value.Memory()
		if e.grad != nil {
			memory += e.grad.Memory()
		}
	}
	return memory
}

// Mark returns a position in the tape that can later be passed to Truncate.
//
// Typical use in a training loop: create the parameters, take a Mark, and after each training
// step Truncate to the mark, so the per-step graph doesn't grow the tape unboundedly.
func (t *Tape) Mark() int { return len(t.entries) }

// Truncate discards every node created after the given mark. Handles to discarded nodes become
// stale and panic when used. Nodes before the mark (e.g. parameters) keep their values and
// gradients.
func (t *Tape) Truncate(mark int) {
	if mark < 0 || mark > len(t.entries) {
		exceptions.Panicf("Tape.Truncate(%d): invalid mark for %s", mark, t)
	}
	for ii := mark; ii < len(t.entries); ii++ {
		t.entries[ii] = entry{}
	}
	t.entries = t.entries[:mark]
}

// New creates a leaf node holding value, with an empty gradient slot.
//
// The tape takes ownership of value: it must not be modified afterwards. Node.SetValue replaces
// the buffer instead of modifying it.
func (t *Tape) New(value *tensors.Buffer, requiresGrad bool) Node {
	if value == nil {
		exceptions.Panicf("Tape.New: nil value for %s", t)
	}
	return t.record(value, requiresGrad, nil)
}

// Parameter creates a trainable leaf node, same as New(value, true).
func (t *Tape) Parameter(value *tensors.Buffer) Node {
	return t.New(value, true)
}

// Constant creates a leaf node that never receives gradients, same as New(value, false).
func (t *Tape) Constant(value *tensors.Buffer) Node {
	return t.New(value, false)
}

// record appends an entry and returns its handle.
func (t *Tape) record(value *tensors.Buffer, requiresGrad bool, creator gradFn) Node {
	id := newNodeId()
	slot := len(t.entries)
	t.entries = append(t.entries, entry{
		id:           id,
		value:        value,
		requiresGrad: requiresGrad,
		creator:      creator,
	})
	return Node{tape: t, slot: slot, id: id}
}

// recordOp records the output of an operation. The backward edge (built lazily by newGradFn) is
// only created if any of the inputs requires gradients.
func (t *Tape) recordOp(value *tensors.Buffer, inputs []Node, newGradFn func() gradFn) Node {
	if !anyRequiresGrad(inputs) {
		return t.record(value, false, nil)
	}
	return t.record(value, true, newGradFn())
}

func anyRequiresGrad(nodes []Node) bool {
	for _, node := range nodes {
		if node.RequiresGrad() {
			return true
		}
	}
	return false
}

// validateInputs checks that all nodes are valid and belong to the same tape, and returns the tape.
func validateInputs(opName string, nodes ...Node) *Tape {
	var tape *Tape
	for ii, node := range nodes {
		node.AssertValid()
		if tape == nil {
			tape = node.tape
		} else if node.tape != tape {
			exceptions.Panicf("%s: input #%d belongs to %s, but previous inputs belong to %s",
				opName, ii, node.tape, tape)
		}
	}
	return tape
}
