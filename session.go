// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"fmt"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"github.com/rs/zerolog"
)

// Serial is a monotonically increasing session identifier.
type Serial = uint32

// serials is the global counter behind Serial.
var serials atomix.Uint32

// SourceSession is the producer side of the bus: it accepts messages,
// applies admission control and routes every reply back to the reply
// handler it was configured with.
//
// Send and HandleReply may be called from any number of goroutines.
// The session moves through three states: open, closing once Close is
// called, and done once the last pending reply has come back.
type SourceSession struct {
	serial    Serial
	net       Network
	gate      *ReplyGate
	sequencer *Sequencer
	handler   ReplyHandler
	routing   RoutingTable
	log       zerolog.Logger

	mu         sync.Mutex
	cond       sync.Cond
	throttle   ThrottlePolicy
	timeout    time.Duration
	traceLevel int
	pending    int
	closed     bool
	done       bool

	teardown sync.Once
}

// NewSourceSession creates an open session sending through net.
// It panics if params has no reply handler.
func NewSourceSession(net Network, params SourceSessionParams) *SourceSession {
	if params.ReplyHandler == nil {
		panic("mbus: source session requires a reply handler")
	}
	s := &SourceSession{
		serial:     serials.Add(1),
		net:        net,
		handler:    params.ReplyHandler,
		routing:    params.Routing,
		log:        params.Logger,
		throttle:   params.Throttle,
		timeout:    params.Timeout,
		traceLevel: params.TraceLevel,
	}
	s.cond.L = &s.mu
	s.gate = NewReplyGate(MessageHandlerFunc(net.Dispatch))
	s.sequencer = NewSequencer(s.gate)
	s.log = s.log.With().Uint32("session", s.serial).Logger()
	s.log.Debug().Dur("timeout", s.timeout).Msg("source session created")
	return s
}

// Serial returns the serial number of the session.
func (s *SourceSession) Serial() Serial { return s.serial }

// SendName resolves name in the routing table and sends msg along it.
// When the name is unknown and parseIfNotFound is set, name is parsed as
// a route instead; otherwise the send fails with IllegalRoute.
func (s *SourceSession) SendName(msg *Message, name string, parseIfNotFound bool) error {
	if s.routing == nil {
		if !parseIfNotFound {
			return s.reject(IllegalRoute, "No routing table available.", msg)
		}
		msg.SetRoute(ParseRoute(name))
		return s.Send(msg)
	}
	route, ok := s.routing.Route(name)
	if !ok {
		if !parseIfNotFound {
			return s.reject(IllegalRoute, fmt.Sprintf("Route '%s' not found.", name), msg)
		}
		route = ParseRoute(name)
	}
	msg.SetRoute(route)
	return s.Send(msg)
}

// SendRoute sets route on msg and sends it.
func (s *SourceSession) SendRoute(msg *Message, route Route) error {
	msg.SetRoute(route)
	return s.Send(msg)
}

// Send accepts msg for delivery along its current route.
// On rejection it returns a *SendError holding msg, unmodified.
func (s *SourceSession) Send(msg *Message) error {
	now := time.Now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.reject(SendQueueClosed, "Source session is closed.", msg)
	}
	if s.throttle != nil && !s.throttle.CanSend(msg, s.pending) {
		n := s.pending
		s.mu.Unlock()
		return s.reject(SendQueueFull, fmt.Sprintf("Too much pending data (%d messages).", n), msg)
	}
	msg.timeReceived = now
	if msg.timeRemaining == 0 {
		msg.timeRemaining = s.timeout
	}
	if s.traceLevel > msg.trace.level {
		msg.trace.SetLevel(s.traceLevel)
	}
	msg.PushHandler(s.handler)
	if s.throttle != nil {
		s.throttle.ProcessMessage(msg)
	}
	s.pending++
	n := s.pending
	s.mu.Unlock()

	if msg.trace.ShouldTrace(TraceLevelComponent) {
		msg.trace.Trace(TraceLevelComponent, fmt.Sprintf(
			"Source session accepted a %d byte message. %d message(s) now pending.", msg.ApproxSize(), n))
	}
	msg.PushHandler(s)
	s.sequencer.HandleMessage(msg)
	return nil
}

func (s *SourceSession) reject(code ErrorCode, reason string, msg *Message) error {
	s.log.Debug().Stringer("code", code).Str("reason", reason).Msg("send rejected")
	return rejected(code, reason, msg)
}

// HandleReply implements ReplyHandler. It is reached through the reply
// gate on a network goroutine, settles the session's bookkeeping and
// passes the reply on to the next handler outside the session lock.
func (s *SourceSession) HandleReply(reply *Reply) {
	s.mu.Lock()
	if s.pending <= 0 {
		s.mu.Unlock()
		panic("mbus: source session pending count underflow")
	}
	s.pending--
	if s.throttle != nil {
		s.throttle.ProcessReply(reply)
	}
	n := s.pending
	done := s.closed && s.pending == 0
	s.mu.Unlock()

	if reply.trace.ShouldTrace(TraceLevelComponent) {
		reply.trace.Trace(TraceLevelComponent, fmt.Sprintf(
			"Source session received reply. %d message(s) now pending.", n))
	}
	Deliver(reply)
	if done {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
		s.cond.Broadcast()
	}
}

// Close stops accepting messages and blocks until every pending reply has
// been delivered. It then closes the reply gate, stops the sequencer and
// syncs the network, so that no reply reaches the session afterwards.
//
// Close must not be called from a reply handler of the same session.
func (s *SourceSession) Close() {
	s.mu.Lock()
	s.closed = true
	if s.pending == 0 {
		s.done = true
	}
	s.log.Debug().Int("pending", s.pending).Msg("source session closing")
	for !s.done {
		s.cond.Wait()
	}
	s.mu.Unlock()
	s.log.Debug().Msg("source session drained")

	s.teardown.Do(func() {
		s.gate.Close()
		s.sequencer.Stop()
		s.net.Sync()
		s.gate.Release()
		s.log.Debug().Uint32("gate_refs", s.gate.Refs()).Msg("source session destroyed")
	})
}

// SetTimeout sets the timeout given to messages sent from now on without
// a time budget of their own.
func (s *SourceSession) SetTimeout(d time.Duration) *SourceSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
	return s
}

// Timeout returns the current default timeout.
func (s *SourceSession) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// PendingCount returns the number of accepted messages whose reply has not
// yet come back.
func (s *SourceSession) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// IsClosed reports whether Close has been called.
func (s *SourceSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ReplyGate returns the session's reply gate.
func (s *SourceSession) ReplyGate() *ReplyGate { return s.gate }
