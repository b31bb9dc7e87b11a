// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"code.hybscloud.com/kont"
)

// exprReturnFrame is the pre-boxed terminal frame shared by the Expr
// constructors.
var exprReturnFrame kont.Frame = kont.ReturnFrame{}

// identityResume is the identity resume function for EffectFrame construction.
func identityResume(v kont.Erased) kont.Erased { return v }

// ExprSubmitThen submits msg, ignores the outcome and continues with next.
// Fuses ExprPerform(Submit{Msg: msg}) + ExprThen.
func ExprSubmitThen[B any](msg *Message, next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = Submit{Msg: msg}
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}

func submitBindUnwind[B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func(Outcome) kont.Expr[B])
	result := f(current.(Outcome))
	return kont.Erased(result.Value), result.Frame
}

// ExprSubmitBind submits msg and passes the outcome to f.
// Fuses ExprPerform(Submit{Msg: msg}) + ExprBind.
func ExprSubmitBind[B any](msg *Message, f func(Outcome) kont.Expr[B]) kont.Expr[B] {
	return exprSubmit(Submit{Msg: msg}, f)
}

// ExprSubmitNameBind resolves route, submits msg along it and passes the
// outcome to f.
func ExprSubmitNameBind[B any](msg *Message, route string, parseIfNotFound bool, f func(Outcome) kont.Expr[B]) kont.Expr[B] {
	return exprSubmit(Submit{Msg: msg, Route: route, ParseIfNotFound: parseIfNotFound}, f)
}

func exprSubmit[B any](op Submit, f func(Outcome) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = submitBindUnwind[B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = op
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}
