// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ErrShapeMismatch is wrapped by the errors panicked by operations given inputs with incompatible
// shapes. It can be tested with errors.Is on the error recovered by exceptions.TryCatch or returned
// by TryBackward.
var ErrShapeMismatch = errors.New("shape mismatch")

// shapeMismatchf panics with an error wrapping ErrShapeMismatch, with a stack trace.
func shapeMismatchf(format string, args ...any) {
	panic(errors.WithStack(errors.WithMessagef(ErrShapeMismatch, format, args...)))
}

// TryBackward runs root.Backward() and returns any panic as an error.
//
// Errors are returned as is, other panic values are converted to errors with a stack trace.
func TryBackward(root Node) (err error) {
	exception := exceptions.Try(func() { root.Backward() })
	if exception == nil {
		return nil
	}
	if e, ok := exception.(error); ok {
		return errors.WithMessagef(e, "backward from %s failed", root)
	}
	return errors.Errorf("backward from %s failed: %v", root, exception)
}
