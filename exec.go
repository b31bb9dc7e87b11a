// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// sourceHandler implements kont.Handler for producer effects.
// Waits on iox.ErrWouldBlock, turning backpressure into blocking
// evaluation for Exec/ExecExpr.
type sourceHandler[R any] struct {
	src *SourceSession
}

// Dispatch implements kont.Handler via structural interface assertion.
func (h sourceHandler[R]) Dispatch(op kont.Operation) (kont.Resumed, bool) {
	sop, ok := op.(sourceDispatcher)
	if !ok {
		panic("mbus: unhandled effect in sourceHandler")
	}
	return dispatchWait(h.src, sop), true
}

// dispatchWait retries DispatchSource until the session stops pushing
// back, waiting with iox.Backoff between attempts. Progress depends on
// replies draining on network goroutines.
func dispatchWait(src *SourceSession, sop sourceDispatcher) kont.Resumed {
	var bo iox.Backoff
	for {
		v, err := sop.DispatchSource(src)
		if err == nil {
			return v
		}
		bo.Wait()
	}
}

// Exec runs a Cont-world producer protocol against src.
// Submits blocked by the throttle policy are retried with adaptive
// backoff on the calling goroutine.
func Exec[R any](src *SourceSession, protocol kont.Eff[R]) R {
	h := sourceHandler[R]{src: src}
	return kont.Handle(protocol, h)
}

// ExecExpr runs an Expr-world producer protocol against src.
// Submits blocked by the throttle policy are retried with adaptive
// backoff on the calling goroutine.
func ExecExpr[R any](src *SourceSession, protocol kont.Expr[R]) R {
	h := sourceHandler[R]{src: src}
	return kont.HandleExpr(protocol, h)
}
