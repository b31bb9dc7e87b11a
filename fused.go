// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"code.hybscloud.com/kont"
)

// SubmitBind submits msg and passes the outcome to f.
// Fuses Perform(Submit{Msg: msg}) + Bind.
func SubmitBind[B any](msg *Message, f func(Outcome) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Submit{Msg: msg}), f)
}

// SubmitThen submits msg, ignores the outcome and continues with next.
// Fuses Perform(Submit{Msg: msg}) + Then.
func SubmitThen[B any](msg *Message, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Submit{Msg: msg}), next)
}

// SubmitNameBind resolves route, submits msg along it and passes the
// outcome to f.
func SubmitNameBind[B any](msg *Message, route string, parseIfNotFound bool, f func(Outcome) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Submit{Msg: msg, Route: route, ParseIfNotFound: parseIfNotFound}), f)
}

// SubmitAll submits msgs in order and returns how many were accepted.
// A rejection other than backpressure does not stop the remaining submits.
func SubmitAll(msgs []*Message) kont.Eff[int] {
	return submitAll(msgs, 0)
}

func submitAll(msgs []*Message, n int) kont.Eff[int] {
	if len(msgs) == 0 {
		return kont.Pure(n)
	}
	return SubmitBind(msgs[0], func(o Outcome) kont.Eff[int] {
		if o.IsRight() {
			return submitAll(msgs[1:], n+1)
		}
		return submitAll(msgs[1:], n)
	})
}
