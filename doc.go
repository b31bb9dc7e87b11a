// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mbus provides the producer side of an asynchronous message bus:
// a [SourceSession] accepts outbound messages, applies admission control
// and routes each eventually arriving reply back to its sender.
//
// # Architecture
//
//   - Correlation: every message carries a [HandlerChain]. Each hop pushes
//     itself on the way out and the reply is handed back by popping, so a
//     reply reaches its sender without any correlation-ID table.
//   - Admission: a pluggable [ThrottlePolicy] ([Unlimited],
//     [StaticThrottlePolicy], [DynamicThrottlePolicy]) runs inside the
//     session lock. Rejection is [SendQueueFull], which also matches
//     [code.hybscloud.com/iox.ErrWouldBlock].
//   - Ordering: a [Sequencer] hands accepted messages to the network in
//     accept order through a lock-free SPSC lane from
//     [code.hybscloud.com/lfq].
//   - Shutdown: a reference counted [ReplyGate] stands between the network
//     and the session. [SourceSession.Close] stops accepting, waits for
//     every pending reply, then closes the gate and syncs the network.
//
// # Failures
//
// [SourceSession.Send] returns a [*SendError] on rejection whose Msg field
// hands the untouched message back: [IllegalRoute], [SendQueueClosed] and
// [SendQueueFull]. Broken invariants (pending count underflow, a missing
// reply handler, a pop from an empty chain) panic.
//
// # Effects
//
// Producer protocols may also be written as effects on
// [code.hybscloud.com/kont]. [Submit] resumes with an [Outcome];
// [Exec] and [ExecExpr] wait out backpressure with adaptive backoff while
// [Step] and [Advance] surface it as iox.ErrWouldBlock for proactor loops.
//
// # Example
//
//	net := memnet.New(memnet.Config{Workers: 4})
//	net.Register("echo", memnet.Echo)
//	src := mbus.NewSourceSession(net, mbus.DefaultSourceSessionParams().
//		SetReplyHandler(mbus.ReplyHandlerFunc(func(r *mbus.Reply) { /* ... */ })))
//	if err := src.SendRoute(mbus.NewMessage("ping"), mbus.ParseRoute("echo")); err != nil {
//		var se *mbus.SendError
//		if errors.As(err, &se) {
//			retry(se.Msg)
//		}
//	}
//	src.Close()
package mbus
