// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"code.hybscloud.com/kont"
)

// Step evaluates a producer protocol until its first submit.
// Returns (result, nil) on completion, or (zero, suspension) if pending.
func Step[R any](protocol kont.Expr[R]) (R, *kont.Suspension[R]) {
	return kont.StepExpr(protocol)
}

// Advance dispatches the suspended submit on src without blocking.
//
// On success the suspension is consumed and the protocol runs to its next
// submit or to completion. On iox.ErrWouldBlock the throttle policy
// refused the message; the suspension is returned unconsumed and may be
// retried once replies have drained, for example from a proactor loop.
func Advance[R any](src *SourceSession, susp *kont.Suspension[R]) (R, *kont.Suspension[R], error) {
	sop, ok := susp.Op().(sourceDispatcher)
	if !ok {
		panic("mbus: unhandled effect in Advance")
	}
	v, err := sop.DispatchSource(src)
	if err != nil {
		var zero R
		return zero, susp, err
	}
	result, next := susp.Resume(v)
	return result, next, nil
}
