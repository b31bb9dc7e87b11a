// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"errors"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Outcome is what a Submit resumes with: Right once the session accepted
// the message, Left carrying the rejection otherwise.
type Outcome = kont.Either[*SendError, struct{}]

// accepted is the pre-boxed Right outcome, avoiding a heap escape per
// accepted submit.
var accepted kont.Resumed = kont.Right[*SendError](struct{}{})

// sourceDispatcher is the structural interface for producer operations.
// DispatchSource is non-blocking: it returns iox.ErrWouldBlock while the
// session's throttle policy refuses the message.
type sourceDispatcher interface {
	DispatchSource(src *SourceSession) (kont.Resumed, error)
}

// Submit is the effect operation for handing a message to a source session.
// Perform(Submit{Msg: m}) sends m along its current route; with Route set it
// resolves Route first, parsing it when ParseIfNotFound is set and the
// routing table has no entry.
//
// Backpressure suspends the operation; every other rejection resumes the
// protocol with a Left outcome that returns the message.
type Submit struct {
	kont.Phantom[Outcome]
	Msg             *Message
	Route           string
	ParseIfNotFound bool
}

// DispatchSource handles Submit on the session.
// Non-blocking: returns iox.ErrWouldBlock on SendQueueFull, leaving the
// message with the operation for the next attempt.
func (s Submit) DispatchSource(src *SourceSession) (kont.Resumed, error) {
	var err error
	if s.Route != "" {
		err = src.SendName(s.Msg, s.Route, s.ParseIfNotFound)
	} else {
		err = src.Send(s.Msg)
	}
	if err == nil {
		return accepted, nil
	}
	if errors.Is(err, iox.ErrWouldBlock) {
		return nil, iox.ErrWouldBlock
	}
	var se *SendError
	if !errors.As(err, &se) {
		panic("mbus: unexpected send failure: " + err.Error())
	}
	return kont.Left[*SendError, struct{}](se), nil
}
