// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

// ThrottlePolicy is the admission control of a source session.
//
// All methods are called with the session lock held, one call at a time.
// Implementations must not block and must not call back into the session;
// they get no internal locking from the session beyond that lock.
type ThrottlePolicy interface {
	// CanSend reports whether msg may be accepted with pendingCount
	// messages already in flight. It must not mutate policy state.
	CanSend(msg *Message, pendingCount int) bool
	// ProcessMessage records an accepted message.
	ProcessMessage(msg *Message)
	// ProcessReply records a completed exchange.
	ProcessReply(reply *Reply)
}

// Unlimited accepts every message.
type Unlimited struct{}

// CanSend always reports true.
func (Unlimited) CanSend(*Message, int) bool { return true }

// ProcessMessage is a no-op.
func (Unlimited) ProcessMessage(*Message) {}

// ProcessReply is a no-op.
func (Unlimited) ProcessReply(*Reply) {}

// StaticThrottlePolicy caps the number of pending messages and the sum of
// their approximate sizes. A zero limit disables that cap.
//
// The size of each accepted message is stored as the message context
// value; the session pushes its own handler after ProcessMessage, so the
// value comes back on the reply when that handler pops.
type StaticThrottlePolicy struct {
	maxPendingCount int
	maxPendingSize  int64
	pendingSize     int64
}

// NewStaticThrottlePolicy returns a policy with no caps.
func NewStaticThrottlePolicy() *StaticThrottlePolicy {
	return &StaticThrottlePolicy{}
}

// SetMaxPendingCount sets the pending message cap.
func (p *StaticThrottlePolicy) SetMaxPendingCount(n int) *StaticThrottlePolicy {
	p.maxPendingCount = n
	return p
}

// MaxPendingCount returns the pending message cap.
func (p *StaticThrottlePolicy) MaxPendingCount() int { return p.maxPendingCount }

// SetMaxPendingSize sets the pending byte cap.
func (p *StaticThrottlePolicy) SetMaxPendingSize(n int64) *StaticThrottlePolicy {
	p.maxPendingSize = n
	return p
}

// MaxPendingSize returns the pending byte cap.
func (p *StaticThrottlePolicy) MaxPendingSize() int64 { return p.maxPendingSize }

// PendingSize returns the bytes currently accounted as in flight.
func (p *StaticThrottlePolicy) PendingSize() int64 { return p.pendingSize }

// CanSend implements ThrottlePolicy.
func (p *StaticThrottlePolicy) CanSend(_ *Message, pendingCount int) bool {
	if p.maxPendingCount > 0 && pendingCount >= p.maxPendingCount {
		return false
	}
	if p.maxPendingSize > 0 && p.pendingSize >= p.maxPendingSize {
		return false
	}
	return true
}

// ProcessMessage implements ThrottlePolicy.
func (p *StaticThrottlePolicy) ProcessMessage(msg *Message) {
	size := int64(msg.ApproxSize())
	msg.SetContext(size)
	p.pendingSize += size
}

// ProcessReply implements ThrottlePolicy.
func (p *StaticThrottlePolicy) ProcessReply(reply *Reply) {
	size, _ := reply.Context().(int64)
	p.pendingSize -= size
	if p.pendingSize < 0 {
		panic("mbus: static throttle pending size underflow")
	}
}
