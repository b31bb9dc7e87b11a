// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/mbus"
)

func TestSendConcurrentPendingCount(t *testing.T) {
	skipRace(t)
	log := newReplyLog()
	src, net := unlimitedSession(log)

	const producers, perProducer = 8, 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := src.Send(mbus.NewMessage(i)); err != nil {
					t.Errorf("send: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	const n = producers * perProducer
	if got := src.PendingCount(); got != n {
		t.Fatalf("pending got %d, want %d", got, n)
	}
	for i := 0; i < n; i++ {
		answer(net.next(t))
	}
	if got := src.PendingCount(); got != 0 {
		t.Fatalf("pending after replies got %d, want 0", got)
	}
	if got := log.len(); got != n {
		t.Fatalf("replies got %d, want %d", got, n)
	}
	src.Close()
}

func TestCloseWithoutPendingReturns(t *testing.T) {
	skipRace(t)
	src, net := unlimitedSession(newReplyLog())
	if !returned(closeAsync(src), waitTimeout) {
		t.Fatal("Close blocked with nothing pending")
	}
	if !src.IsClosed() {
		t.Fatal("session not closed")
	}
	if net.syncs.Load() != 1 {
		t.Fatalf("network synced %d times, want 1", net.syncs.Load())
	}
	if refs := src.ReplyGate().Refs(); refs != 0 {
		t.Fatalf("gate refs got %d, want 0", refs)
	}
}

func TestCloseBlocksUntilDrained(t *testing.T) {
	skipRace(t)
	src, net := unlimitedSession(newReplyLog())

	const k = 3
	for i := 0; i < k; i++ {
		if err := src.Send(mbus.NewMessage(i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	msgs := make([]*mbus.Message, k)
	for i := range msgs {
		msgs[i] = net.next(t)
	}

	done := closeAsync(src)
	for i := 0; i < k-1; i++ {
		answer(msgs[i])
		if returned(done, 20*time.Millisecond) {
			t.Fatalf("Close returned after %d of %d replies", i+1, k)
		}
	}
	answer(msgs[k-1])
	if !returned(done, waitTimeout) {
		t.Fatal("Close did not return after the last reply")
	}
	if got := src.PendingCount(); got != 0 {
		t.Fatalf("pending got %d, want 0", got)
	}
}

func TestCloseScenarioTwoSends(t *testing.T) {
	skipRace(t)
	src, net := unlimitedSession(newReplyLog())

	for i := 0; i < 2; i++ {
		if err := src.Send(mbus.NewMessage(i)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if got := src.PendingCount(); got != 2 {
		t.Fatalf("pending got %d, want 2", got)
	}
	first, second := net.next(t), net.next(t)

	answer(first)
	if got := src.PendingCount(); got != 1 {
		t.Fatalf("pending got %d, want 1", got)
	}
	done := closeAsync(src)
	if returned(done, 20*time.Millisecond) {
		t.Fatal("Close returned with one reply pending")
	}
	answer(second)
	if !returned(done, waitTimeout) {
		t.Fatal("Close did not return after the second reply")
	}
}

func TestSendAfterCloseReturnsMessage(t *testing.T) {
	skipRace(t)
	src, _ := unlimitedSession(newReplyLog())
	src.Close()

	msg := mbus.NewMessage("late")
	err := src.Send(msg)
	if !errors.Is(err, mbus.SendQueueClosed) {
		t.Fatalf("got %v, want SEND_QUEUE_CLOSED", err)
	}
	var se *mbus.SendError
	if !errors.As(err, &se) {
		t.Fatalf("got %T, want *mbus.SendError", err)
	}
	if se.Msg != msg {
		t.Fatal("rejected message not handed back")
	}
	if msg.Chain().Len() != 0 {
		t.Fatalf("chain got %d handlers, want 0", msg.Chain().Len())
	}
	if !msg.TimeReceived().IsZero() || msg.TimeRemaining() != 0 {
		t.Fatal("rejected message was stamped")
	}
	if msg.Payload != "late" {
		t.Fatalf("payload got %v", msg.Payload)
	}
}

func TestThrottleRejectionKeepsPending(t *testing.T) {
	skipRace(t)
	net := newHoldNet()
	src := mbus.NewSourceSession(net, mbus.DefaultSourceSessionParams().
		SetReplyHandler(newReplyLog()).
		SetThrottlePolicy(refuseAll{}))

	msg := mbus.NewMessage(1)
	err := src.Send(msg)
	if !errors.Is(err, mbus.SendQueueFull) {
		t.Fatalf("got %v, want SEND_QUEUE_FULL", err)
	}
	if !errors.Is(err, iox.ErrWouldBlock) {
		t.Fatal("SEND_QUEUE_FULL should match iox.ErrWouldBlock")
	}
	if errors.Is(err, mbus.SendQueueClosed) {
		t.Fatal("SEND_QUEUE_FULL matched SEND_QUEUE_CLOSED")
	}
	var se *mbus.SendError
	if !errors.As(err, &se) || se.Msg != msg {
		t.Fatal("rejected message not handed back")
	}
	if got := src.PendingCount(); got != 0 {
		t.Fatalf("pending got %d, want 0", got)
	}
	if msg.Chain().Len() != 0 {
		t.Fatal("rejected message carries handlers")
	}
	src.Close()
}

func TestDefaultTimeoutApplied(t *testing.T) {
	skipRace(t)
	net := newHoldNet()
	src := mbus.NewSourceSession(net, mbus.DefaultSourceSessionParams().
		SetReplyHandler(newReplyLog()).
		SetThrottlePolicy(mbus.Unlimited{}).
		SetTimeout(5000*time.Millisecond))

	msg := mbus.NewMessage(nil)
	if err := src.Send(msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := msg.TimeRemaining(); got != 5000*time.Millisecond {
		t.Fatalf("time remaining got %s, want 5s", got)
	}
	if msg.TimeReceived().IsZero() {
		t.Fatal("time received not stamped")
	}

	explicit := mbus.NewMessage(nil)
	explicit.SetTimeRemaining(time.Second)
	if err := src.Send(explicit); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := explicit.TimeRemaining(); got != time.Second {
		t.Fatalf("explicit time remaining got %s, want 1s", got)
	}

	if src.SetTimeout(2*time.Second) != src {
		t.Fatal("SetTimeout should return the session")
	}
	if got := src.Timeout(); got != 2*time.Second {
		t.Fatalf("timeout got %s, want 2s", got)
	}
	later := mbus.NewMessage(nil)
	if err := src.Send(later); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := later.TimeRemaining(); got != 2*time.Second {
		t.Fatalf("later time remaining got %s, want 2s", got)
	}
	if got := msg.TimeRemaining(); got != 5000*time.Millisecond {
		t.Fatalf("earlier message changed to %s", got)
	}

	for i := 0; i < 3; i++ {
		answer(net.next(t))
	}
	src.Close()
}

func TestReplyHandlerReentersSession(t *testing.T) {
	skipRace(t)
	type reentry struct {
		pending int
		err     error
	}
	seen := make(chan reentry, 1)
	var src *mbus.SourceSession
	src, net := unlimitedSession(mbus.ReplyHandlerFunc(func(r *mbus.Reply) {
		if r.Message().Payload == "first" {
			seen <- reentry{pending: src.PendingCount(), err: src.Send(mbus.NewMessage("second"))}
		}
	}))

	if err := src.Send(mbus.NewMessage("first")); err != nil {
		t.Fatalf("send: %v", err)
	}
	first := net.next(t)
	delivered := make(chan struct{})
	go func() {
		answer(first)
		close(delivered)
	}()
	if !returned(delivered, waitTimeout) {
		t.Fatal("reply handler blocked calling back into the session")
	}
	got := <-seen
	if got.pending != 0 || got.err != nil {
		t.Fatalf("inside the handler pending %d err %v, want 0 and nil", got.pending, got.err)
	}
	if src.PendingCount() != 1 {
		t.Fatalf("pending got %d, want the re-sent message", src.PendingCount())
	}

	second := net.next(t)
	if second.Payload != "second" {
		t.Fatalf("dispatched %v, want the re-sent message", second.Payload)
	}
	answer(second)
	if !returned(closeAsync(src), waitTimeout) {
		t.Fatal("close did not return")
	}
}

func TestSendNameIllegalRoute(t *testing.T) {
	skipRace(t)
	net := newHoldNet()
	routes := mbus.NewRoutes().Add("bar", mbus.ParseRoute("docproc/cluster.default"))
	src := mbus.NewSourceSession(net, mbus.DefaultSourceSessionParams().
		SetReplyHandler(newReplyLog()).
		SetRouting(routes))
	defer src.Close()

	msg := mbus.NewMessage("payload")
	err := src.SendName(msg, "foo", false)
	if !errors.Is(err, mbus.IllegalRoute) {
		t.Fatalf("got %v, want ILLEGAL_ROUTE", err)
	}
	var se *mbus.SendError
	if !errors.As(err, &se) || se.Msg != msg {
		t.Fatal("rejected message not handed back")
	}
	if !strings.Contains(se.Reason, "'foo'") {
		t.Fatalf("reason %q does not name the route", se.Reason)
	}
	if !msg.Route().IsEmpty() || msg.Chain().Len() != 0 {
		t.Fatal("rejected message was modified")
	}
	if got := src.PendingCount(); got != 0 {
		t.Fatalf("pending got %d, want 0", got)
	}

	if err := src.SendName(msg, "bar", false); err != nil {
		t.Fatalf("send bar: %v", err)
	}
	bar := net.next(t)
	if got := bar.Route().String(); got != "docproc/cluster.default" {
		t.Fatalf("route got %q", got)
	}
	answer(bar)

	parsed := mbus.NewMessage(nil)
	if err := src.SendName(parsed, "a/b c", true); err != nil {
		t.Fatalf("send parsed: %v", err)
	}
	m := net.next(t)
	if m.Route().NumHops() != 2 || m.Route().Hop(0).String() != "a/b" {
		t.Fatalf("parsed route got %q", m.Route())
	}
	answer(m)
}

func TestSendNameWithoutRoutingTable(t *testing.T) {
	skipRace(t)
	src, net := unlimitedSession(newReplyLog())
	defer src.Close()

	err := src.SendName(mbus.NewMessage(nil), "foo", false)
	if !errors.Is(err, mbus.IllegalRoute) {
		t.Fatalf("got %v, want ILLEGAL_ROUTE", err)
	}
	if err := src.SendName(mbus.NewMessage(nil), "foo", true); err != nil {
		t.Fatalf("lenient send: %v", err)
	}
	m := net.next(t)
	if got := m.Route().String(); got != "foo" {
		t.Fatalf("route got %q, want foo", got)
	}
	answer(m)
}

func TestReplyRestoresSenderContext(t *testing.T) {
	skipRace(t)
	log := newReplyLog()
	net := newHoldNet()
	policy := mbus.NewStaticThrottlePolicy().SetMaxPendingSize(1 << 20)
	src := mbus.NewSourceSession(net, mbus.DefaultSourceSessionParams().
		SetReplyHandler(log).
		SetThrottlePolicy(policy))
	defer src.Close()

	msg := mbus.NewMessage("ping")
	msg.SetContext("caller")
	msg.SetApproxSize(100)
	if err := src.Send(msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	m := net.next(t)
	if m != msg {
		t.Fatal("network received a different message")
	}
	// reply handler, session, gate
	if got := m.Chain().Len(); got != 3 {
		t.Fatalf("chain got %d handlers, want 3", got)
	}
	if policy.PendingSize() != 100 {
		t.Fatalf("pending size got %d, want 100", policy.PendingSize())
	}
	answer(m)

	r := log.next(t)
	if r.Context() != "caller" {
		t.Fatalf("reply context got %v, want caller", r.Context())
	}
	if r.Message() != msg {
		t.Fatal("reply does not reference its message")
	}
	if r.Chain().Len() != 0 {
		t.Fatalf("chain not exhausted: %d", r.Chain().Len())
	}
	if policy.PendingSize() != 0 {
		t.Fatalf("pending size got %d, want 0", policy.PendingSize())
	}
}

func TestSessionTraceNotes(t *testing.T) {
	skipRace(t)
	log := newReplyLog()
	net := newHoldNet()
	params := mbus.DefaultSourceSessionParams().SetReplyHandler(log)
	params.TraceLevel = mbus.TraceLevelComponent
	src := mbus.NewSourceSession(net, params)
	defer src.Close()

	msg := mbus.NewMessage(nil)
	msg.SetApproxSize(42)
	if err := src.Send(msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	answer(net.next(t))
	r := log.next(t)
	trace := r.Trace().String()
	if !strings.Contains(trace, "accepted a 42 byte message. 1 message(s) now pending.") {
		t.Fatalf("missing accept note in %q", trace)
	}
	if !strings.Contains(trace, "received reply. 0 message(s) now pending.") {
		t.Fatalf("missing reply note in %q", trace)
	}
}

func TestClosedGateDropsReply(t *testing.T) {
	skipRace(t)
	log := newReplyLog()
	src, net := unlimitedSession(log)

	if err := src.Send(mbus.NewMessage(nil)); err != nil {
		t.Fatalf("send: %v", err)
	}
	m := net.next(t)
	gate := src.ReplyGate()
	if gate.Refs() != 2 {
		t.Fatalf("gate refs got %d, want 2", gate.Refs())
	}
	gate.Close()
	answer(m)
	if log.len() != 0 {
		t.Fatal("reply delivered through a closed gate")
	}
	if got := src.PendingCount(); got != 1 {
		t.Fatalf("pending got %d, want 1", got)
	}
	if gate.Refs() != 1 {
		t.Fatalf("gate refs got %d, want 1", gate.Refs())
	}
}

func TestNewSourceSessionRequiresReplyHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	mbus.NewSourceSession(newHoldNet(), mbus.DefaultSourceSessionParams())
}

func TestHandleReplyUnderflowPanics(t *testing.T) {
	skipRace(t)
	src, _ := unlimitedSession(newReplyLog())
	defer src.Close()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	src.HandleReply(mbus.NewReply(mbus.NewMessage(nil), nil))
}

func TestSessionSerialsIncrease(t *testing.T) {
	skipRace(t)
	a, _ := unlimitedSession(newReplyLog())
	b, _ := unlimitedSession(newReplyLog())
	defer a.Close()
	defer b.Close()
	if b.Serial() <= a.Serial() {
		t.Fatalf("serials not increasing: %d then %d", a.Serial(), b.Serial())
	}
}
