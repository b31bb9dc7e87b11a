// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"code.hybscloud.com/iox"
)

// SendError is the recoverable failure of a send.
// Msg hands the rejected message back to the caller, unmodified;
// the session never keeps a message it refused.
//
// errors.Is matches the ErrorCode of the failure. SendQueueFull also
// matches iox.ErrWouldBlock: admission rejection is backpressure, and
// the caller may retry once replies drain.
type SendError struct {
	Code   ErrorCode
	Reason string
	Msg    *Message
}

// Error implements error.
func (e *SendError) Error() string {
	return e.Code.String() + ": " + e.Reason
}

// Is implements errors.Is matching on the error code.
func (e *SendError) Is(target error) bool {
	if c, ok := target.(ErrorCode); ok {
		return c == e.Code
	}
	return e.Code == SendQueueFull && target == iox.ErrWouldBlock
}

func rejected(code ErrorCode, reason string, msg *Message) *SendError {
	return &SendError{Code: code, Reason: reason, Msg: msg}
}
