// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout is the time budget given to messages sent without one.
const DefaultTimeout = 180 * time.Second

// Network carries messages to services and brings their replies back.
//
// Dispatch takes ownership of msg and must not block. It may be called
// from a reply handler running on a network goroutine. The reply is later
// handed to Deliver on a network goroutine.
//
// Sync returns once every delivery the network had already started when
// Sync was called has finished. Called after ReplyGate.Close, it
// guarantees no gate-protected delivery for that gate is still running.
type Network interface {
	Dispatch(msg *Message)
	Sync()
}

// SourceSessionParams configures a SourceSession.
type SourceSessionParams struct {
	// ReplyHandler receives every reply. Required.
	ReplyHandler ReplyHandler
	// Throttle is the admission policy. Nil accepts everything.
	Throttle ThrottlePolicy
	// Timeout is applied to messages sent without a time budget.
	Timeout time.Duration
	// Routing resolves route names for SendName.
	Routing RoutingTable
	// TraceLevel, when non-zero, raises the trace level of messages sent
	// with a lower one.
	TraceLevel int
	// Logger receives session lifecycle events.
	Logger zerolog.Logger
}

// DefaultSourceSessionParams returns params with the default timeout and a
// dynamic throttle policy.
func DefaultSourceSessionParams() SourceSessionParams {
	return SourceSessionParams{
		Throttle: NewDynamicThrottlePolicy(),
		Timeout:  DefaultTimeout,
		Logger:   zerolog.Nop(),
	}
}

// SetReplyHandler sets the reply handler.
func (p SourceSessionParams) SetReplyHandler(h ReplyHandler) SourceSessionParams {
	p.ReplyHandler = h
	return p
}

// SetThrottlePolicy sets the throttle policy.
func (p SourceSessionParams) SetThrottlePolicy(t ThrottlePolicy) SourceSessionParams {
	p.Throttle = t
	return p
}

// SetTimeout sets the default timeout.
func (p SourceSessionParams) SetTimeout(d time.Duration) SourceSessionParams {
	p.Timeout = d
	return p
}

// SetRouting sets the routing table.
func (p SourceSessionParams) SetRouting(t RoutingTable) SourceSessionParams {
	p.Routing = t
	return p
}
