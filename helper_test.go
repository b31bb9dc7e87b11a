// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus_test

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/mbus"
)

// waitTimeout bounds every wait in the tests.
const waitTimeout = 5 * time.Second

// holdNet is an mbus.Network that keeps dispatched messages until the
// test answers them, so tests decide when replies arrive.
type holdNet struct {
	msgs  chan *mbus.Message
	syncs atomix.Uint32
}

func newHoldNet() *holdNet {
	return &holdNet{msgs: make(chan *mbus.Message, 4096)}
}

func (n *holdNet) Dispatch(msg *mbus.Message) { n.msgs <- msg }

func (n *holdNet) Sync() { n.syncs.Add(1) }

// next returns the next dispatched message. Test goroutine only.
func (n *holdNet) next(tb testing.TB) *mbus.Message {
	tb.Helper()
	select {
	case msg := <-n.msgs:
		return msg
	case <-time.After(waitTimeout):
		tb.Fatal("no message dispatched")
		return nil
	}
}

// answer replies to msg with its own payload on the calling goroutine.
func answer(msg *mbus.Message) {
	mbus.Deliver(mbus.NewReply(msg, msg.Payload))
}

// replyLog is a reply handler recording every reply it receives.
type replyLog struct {
	mu      sync.Mutex
	replies []*mbus.Reply
	ch      chan *mbus.Reply
}

func newReplyLog() *replyLog {
	return &replyLog{ch: make(chan *mbus.Reply, 4096)}
}

func (l *replyLog) HandleReply(r *mbus.Reply) {
	l.mu.Lock()
	l.replies = append(l.replies, r)
	l.mu.Unlock()
	l.ch <- r
}

func (l *replyLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.replies)
}

// next returns the next reply received. Test goroutine only.
func (l *replyLog) next(tb testing.TB) *mbus.Reply {
	tb.Helper()
	select {
	case r := <-l.ch:
		return r
	case <-time.After(waitTimeout):
		tb.Fatal("no reply received")
		return nil
	}
}

// unlimitedSession returns a session without throttling over a holdNet.
func unlimitedSession(h mbus.ReplyHandler) (*mbus.SourceSession, *holdNet) {
	net := newHoldNet()
	params := mbus.DefaultSourceSessionParams().
		SetReplyHandler(h).
		SetThrottlePolicy(nil)
	return mbus.NewSourceSession(net, params), net
}

// refuseAll is a throttle policy that admits nothing.
type refuseAll struct{}

func (refuseAll) CanSend(*mbus.Message, int) bool { return false }
func (refuseAll) ProcessMessage(*mbus.Message)    { panic("refuseAll: ProcessMessage") }
func (refuseAll) ProcessReply(*mbus.Reply)        { panic("refuseAll: ProcessReply") }

// closeAsync runs src.Close on a goroutine and returns a channel closed
// when it returns.
func closeAsync(src *mbus.SourceSession) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		src.Close()
		close(done)
	}()
	return done
}

func returned(ch <-chan struct{}, within time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(within):
		return false
	}
}
