// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"fmt"
	"strconv"
)

// ErrorCode identifies a message bus error condition.
// Codes in [TransientError, FatalError) are transient: the same request may
// succeed if resent later. Codes at or above FatalError are fatal.
//
// ErrorCode implements error so that errors.Is can match a code directly:
//
//	if errors.Is(err, mbus.SendQueueFull) { ... }
type ErrorCode uint32

const (
	// NoError is the zero code.
	NoError ErrorCode = 0

	// TransientError is the base of the transient class.
	TransientError ErrorCode = 100000
	// SendQueueFull means the throttle policy refused the message.
	SendQueueFull ErrorCode = TransientError + 1
	// NoAddressForService means no service answers to the first hop.
	NoAddressForService ErrorCode = TransientError + 2
	// SendAborted means the message was dropped before it reached a service.
	SendAborted ErrorCode = TransientError + 6
	// AppTransientError is the base for application defined transient codes.
	AppTransientError ErrorCode = TransientError + 50000

	// FatalError is the base of the fatal class.
	FatalError ErrorCode = 200000
	// SendQueueClosed means the source session no longer accepts messages.
	SendQueueClosed ErrorCode = FatalError + 1
	// IllegalRoute means the route could not be resolved.
	IllegalRoute ErrorCode = FatalError + 2
	// NoServicesForRoute means the route has no hops.
	NoServicesForRoute ErrorCode = FatalError + 3
	// Timeout means the message ran out of time before it was answered.
	Timeout ErrorCode = FatalError + 4
	// NetworkShutdown means the network was closed while the message was in flight.
	NetworkShutdown ErrorCode = FatalError + 12
	// AppFatalError is the base for application defined fatal codes.
	AppFatalError ErrorCode = FatalError + 50000
)

var codeNames = map[ErrorCode]string{
	NoError:             "NONE",
	SendQueueFull:       "SEND_QUEUE_FULL",
	NoAddressForService: "NO_ADDRESS_FOR_SERVICE",
	SendAborted:         "SEND_ABORTED",
	SendQueueClosed:     "SEND_QUEUE_CLOSED",
	IllegalRoute:        "ILLEGAL_ROUTE",
	NoServicesForRoute:  "NO_SERVICES_FOR_ROUTE",
	Timeout:             "TIMEOUT",
	NetworkShutdown:     "NETWORK_SHUTDOWN",
}

// String returns the symbolic name of the code.
// Unnamed codes render as APP_TRANSIENT_ERROR+n, APP_FATAL_ERROR+n or the bare number.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	switch {
	case c >= AppFatalError:
		return "APP_FATAL_ERROR+" + strconv.FormatUint(uint64(c-AppFatalError), 10)
	case c >= AppTransientError && c < FatalError:
		return "APP_TRANSIENT_ERROR+" + strconv.FormatUint(uint64(c-AppTransientError), 10)
	}
	return strconv.FormatUint(uint64(c), 10)
}

// Error implements error.
func (c ErrorCode) Error() string { return c.String() }

// IsTransient reports whether c belongs to the transient class.
func (c ErrorCode) IsTransient() bool { return c >= TransientError && c < FatalError }

// IsFatal reports whether c belongs to the fatal class.
func (c ErrorCode) IsFatal() bool { return c >= FatalError }

// Error is one error record carried by a Reply.
type Error struct {
	Code    ErrorCode
	Message string
	// Service names the hop that produced the error, if known.
	Service string
}

// Error implements error.
func (e *Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("[%s @ %s]: %s", e.Code, e.Service, e.Message)
	}
	return fmt.Sprintf("[%s]: %s", e.Code, e.Message)
}

// Is reports whether target is the ErrorCode of e.
func (e *Error) Is(target error) bool {
	c, ok := target.(ErrorCode)
	return ok && c == e.Code
}
