// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import (
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// TopologicalOrder returns every node reachable from root through backward edges, each exactly
// once, in an order where every node comes after all of its inputs. The root is the last element.
//
// Nodes are identified by their slot on the tape, never by their values.
func TopologicalOrder(root Node) []Node {
	tape := validateInputs("TopologicalOrder", root)
	visited := make([]bool, root.slot+1)
	order := make([]Node, 0, root.slot+1)

	// Iterative DFS postorder: long chains (e.g. deep residual stacks) won't exhaust the Go stack.
	type frame struct {
		node      Node
		inputs    []Node
		nextInput int
	}
	stack := []frame{{node: root, inputs: root.Inputs()}}
	visited[root.slot] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.nextInput < len(top.inputs) {
			input := top.inputs[top.nextInput]
			top.nextInput++
			if input.tape != tape {
				exceptions.Panicf("TopologicalOrder: %s has input %s from a different tape", top.node, input)
			}
			input.AssertValid()
			if visited[input.slot] {
				continue
			}
			visited[input.slot] = true
			stack = append(stack, frame{node: input, inputs: input.Inputs()})
			continue
		}
		order = append(order, top.node)
		stack = stack[:len(stack)-1]
	}
	return order
}

// Backward back-propagates from n, accumulating into the gradient slot of every node reachable
// from n that requires gradients.
//
// The seed gradient is all ones, shaped like n: for a scalar loss this is the usual dLoss/dLoss=1.
//
// Gradients of non-leaf nodes are temporaries of one pass: they are cleared at the start of every
// call. Leaf gradients are not cleared: calling Backward twice without ZeroGrad in between sums the
// gradients of both calls into the leaves. This is what gradient accumulation over several batches
// relies on.
//
// If n doesn't require gradients, Backward is a no-op.
//
// It panics if any backward rule finds incompatible shapes, see TryBackward for an error returning
// version.
func (n Node) Backward() {
	n.AssertValid()
	if !n.RequiresGrad() {
		klog.V(2).Infof("Backward(%s): node doesn't require gradients, nothing to do", n)
		return
	}
	order := TopologicalOrder(n)
	if klog.V(2).Enabled() {
		klog.Infof("Backward(%s): %d nodes reachable, tape uses %s", n, len(order), humanize.Bytes(uint64(n.tape.Memory())))
	}

	// Clear per-pass gradients of intermediate nodes.
	for _, node := range order {
		if !node.IsLeaf() {
			node.ZeroGrad()
		}
	}

	n.AccumulateGrad(tensors.Ones(n.Shape()))
	for ii := len(order) - 1; ii >= 0; ii-- {
		node := order[ii]
		creator := node.entry().creator
		if creator == nil {
			continue
		}
		v := node.GradOrZeros()
		if klog.V(3).Enabled() {
			klog.Infof("Backward: %s <- |v|²=%g", node, v.SquaredNorm())
		}
		backwardStep(creator, v)
	}
}

// backwardStep dispatches the local derivative of one operation, given v, the gradient of the
// operation's output.
func backwardStep(creator gradFn, v *tensors.Buffer) {
	switch fn := creator.(type) {
	case *gradFnAdd:
		fn.a.AccumulateGrad(sumToShape(v, fn.a.Shape()))
		fn.b.AccumulateGrad(sumToShape(v, fn.b.Shape()))
	case *gradFnSub:
		fn.a.AccumulateGrad(sumToShape(v, fn.a.Shape()))
		if fn.b.RequiresGrad() {
			negated := sumToShape(v, fn.b.Shape()).Clone()
			negated.ScaleInPlace(-1)
			fn.b.AccumulateGrad(negated)
		}
	case *gradFnMul:
		mulBackward(fn, v)
	case *gradFnMulScalar:
		scaled := v.Clone()
		scaled.ScaleInPlace(fn.factor)
		fn.x.AccumulateGrad(scaled)
	case *gradFnLinear:
		linearBackward(fn, v)
	case *gradFnGelu:
		fn.x.AccumulateGrad(elementwiseBackward(fn.xValue, v, geluDerivative))
	case *gradFnSilu:
		fn.x.AccumulateGrad(elementwiseBackward(fn.xValue, v, siluDerivative))
	case *gradFnSoftmax:
		softmaxBackward(fn, v)
	case *gradFnRMSNorm:
		rmsNormBackward(fn, v)
	case *gradFnMean:
		scale := v.Value() / float64(fn.n)
		fn.x.AccumulateGrad(tensors.Full(fn.x.Shape(), scale))
	case *gradFnMeanSquaredError:
		mseBackward(fn, v)
	case *gradFnCrossEntropy:
		crossEntropyBackward(fn, v)
	default:
		exceptions.Panicf("backward rule for %T (%s) not implemented", creator, creator.Type())
	}
}

// sumToShape reduce-sums grad over the axes where shape has dimension 1 and grad doesn't, that is,
// the axes that were broadcast in the forward pass. It returns grad itself if the shapes are equal.
func sumToShape(grad *tensors.Buffer, shape shapes.Shape) *tensors.Buffer {
	gradShape := grad.Shape()
	if gradShape == shape {
		return grad
	}
	for axis := range shapes.Rank {
		if shape.Dimensions[axis] != gradShape.Dimensions[axis] && shape.Dimensions[axis] != 1 {
			shapeMismatchf("cannot reduce gradient shaped %s to %s", gradShape, shape)
		}
	}
	reduced := tensors.Zeros(shape)
	src, dst := grad.Flat(), reduced.Flat()
	for flatIdx, indices := range gradShape.Iter() {
		for axis := range shapes.Rank {
			if shape.Dimensions[axis] == 1 {
				indices[axis] = 0
			}
		}
		dst[shape.FlatIndex(indices[0], indices[1], indices[2])] += src[flatIdx]
	}
	return reduced
}
