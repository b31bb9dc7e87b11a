// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"code.hybscloud.com/atomix"
)

// ReplyGate sits between a session and the network. Outbound messages
// pass through it and every reply comes back through it, so a reply
// arriving on a network goroutine after the session has shut down stops
// here instead of reaching the session.
//
// The gate is reference counted: the session holds one reference and each
// message in flight holds one. After Close, no new delivery into the
// session begins; deliveries already past the closed check may finish.
type ReplyGate struct {
	sender MessageHandler
	refs   atomix.Uint32
	closed atomix.Uint32
}

// NewReplyGate returns an open gate forwarding messages to sender,
// holding one reference for its creator.
func NewReplyGate(sender MessageHandler) *ReplyGate {
	g := &ReplyGate{sender: sender}
	g.refs.Add(1)
	return g
}

// HandleMessage pushes the gate onto msg's chain and forwards msg.
// The message holds a gate reference until its reply passes back.
func (g *ReplyGate) HandleMessage(msg *Message) {
	g.AddRef()
	msg.PushHandler(g)
	g.sender.HandleMessage(msg)
}

// HandleReply forwards reply to the next handler unless the gate is closed,
// in which case the reply is dropped. Either way the message's reference
// is released.
func (g *ReplyGate) HandleReply(reply *Reply) {
	if g.closed.Load() == 0 {
		Deliver(reply)
	}
	g.Release()
}

// Close stops delivery of replies that have not yet reached the gate.
func (g *ReplyGate) Close() {
	g.closed.Add(1)
}

// IsClosed reports whether Close has been called.
func (g *ReplyGate) IsClosed() bool { return g.closed.Load() != 0 }

// AddRef takes a reference.
func (g *ReplyGate) AddRef() { g.refs.Add(1) }

// Release drops a reference. Releasing more references than were taken
// panics.
func (g *ReplyGate) Release() {
	if g.refs.Add(^uint32(0)) == ^uint32(0) {
		panic("mbus: reply gate reference underflow")
	}
}

// Refs returns the number of outstanding references.
func (g *ReplyGate) Refs() uint32 { return g.refs.Load() }
