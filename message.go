// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import "time"

// routable is the state shared by messages and replies: the handler
// chain, the trace and the context value restored by chain pops.
type routable struct {
	chain   HandlerChain
	trace   Trace
	context any
}

// PushHandler pushes h onto the handler chain, recording the current
// context value.
func (r *routable) PushHandler(h ReplyHandler) {
	r.chain.Push(h, r.context)
}

// popHandler pops the top handler and restores the context recorded
// when it was pushed.
func (r *routable) popHandler() ReplyHandler {
	h, ctx := r.chain.Pop()
	r.context = ctx
	return h
}

// Chain returns the handler chain.
func (r *routable) Chain() *HandlerChain { return &r.chain }

// Trace returns the trace context.
func (r *routable) Trace() *Trace { return &r.trace }

// Context returns the context value. After a handler pop it is the value
// that was current when that handler was pushed.
func (r *routable) Context() any { return r.context }

// SetContext sets the context value.
func (r *routable) SetContext(ctx any) { r.context = ctx }

// Message is one outbound request. A message has a single owner at any time:
// handing it to Send transfers ownership to the session, and a rejected
// send hands it back through SendError.Msg.
type Message struct {
	routable

	// Payload is opaque to the bus.
	Payload any

	route         Route
	timeReceived  time.Time
	timeRemaining time.Duration
	approxSize    int
}

// NewMessage returns a message carrying payload.
func NewMessage(payload any) *Message {
	return &Message{Payload: payload}
}

// Route returns the route the message will follow.
func (m *Message) Route() Route { return m.route }

// SetRoute sets the route.
func (m *Message) SetRoute(r Route) { m.route = r }

// TimeReceived returns the time the message entered its current session.
func (m *Message) TimeReceived() time.Time { return m.timeReceived }

// SetTimeReceivedNow stamps the message as received now.
func (m *Message) SetTimeReceivedNow() { m.timeReceived = time.Now() }

// TimeRemaining returns the time budget relative to TimeReceived.
// Zero means unset.
func (m *Message) TimeRemaining() time.Duration { return m.timeRemaining }

// SetTimeRemaining sets the time budget.
func (m *Message) SetTimeRemaining(d time.Duration) { m.timeRemaining = d }

// TimeRemainingNow returns what is left of the budget at this instant.
func (m *Message) TimeRemainingNow() time.Duration {
	if m.timeReceived.IsZero() {
		return m.timeRemaining
	}
	return m.timeRemaining - time.Since(m.timeReceived)
}

// IsExpired reports whether a set time budget has run out.
func (m *Message) IsExpired() bool {
	return m.timeRemaining > 0 && m.TimeRemainingNow() <= 0
}

// ApproxSize returns the caller supplied size estimate in bytes.
func (m *Message) ApproxSize() int { return m.approxSize }

// SetApproxSize sets the size estimate used by size based throttling.
func (m *Message) SetApproxSize(n int) { m.approxSize = n }

// Reply is produced for exactly one message. It inherits the message's
// handler chain, context and trace unchanged; that inheritance is the
// only correlation between the two.
type Reply struct {
	routable

	// Payload is opaque to the bus.
	Payload any

	msg    *Message
	errors []Error
}

// NewReply builds the reply to msg, moving msg's handler chain, context
// and trace onto it. msg is left with an empty chain and is retained as
// the reply's original message.
func NewReply(msg *Message, payload any) *Reply {
	r := &Reply{Payload: payload, msg: msg}
	r.chain.swap(&msg.chain)
	r.context, msg.context = msg.context, nil
	r.trace, msg.trace = msg.trace, Trace{level: msg.trace.level}
	return r
}

// Message returns the message this reply answers.
func (r *Reply) Message() *Message { return r.msg }

// AddError appends an error record.
func (r *Reply) AddError(e Error) { r.errors = append(r.errors, e) }

// Errors returns the error records.
func (r *Reply) Errors() []Error { return r.errors }

// HasErrors reports whether any error was recorded.
func (r *Reply) HasErrors() bool { return len(r.errors) > 0 }

// HasFatalErrors reports whether any recorded error is fatal.
func (r *Reply) HasFatalErrors() bool {
	for i := range r.errors {
		if r.errors[i].Code.IsFatal() {
			return true
		}
	}
	return false
}

// Deliver pops the top handler off the reply's chain and invokes it.
// Each hop of the return path calls Deliver once; the chain is exhausted
// when the original sender's handler has been reached.
func Deliver(reply *Reply) {
	h := reply.popHandler()
	h.HandleReply(reply)
}
