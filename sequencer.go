// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"sync"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// laneCapacity is the bounded capacity of a sequencer lane.
const laneCapacity = 256

// Sequencer hands messages to its sender in the order they were handed to
// it, whatever goroutines they arrive from.
//
// Producers are serialized by a mutex in front of a bounded SPSC lane,
// and a single lane goroutine drains it in FIFO order. When the lane is
// full, messages spill into a backlog behind it, so HandleMessage never
// waits for the sender. Once the backlog is non-empty every later message
// joins it until the lane goroutine has taken it over.
type Sequencer struct {
	sender MessageHandler

	mu      sync.Mutex
	lane    lfq.SPSC[*Message]
	slot    *Message
	backlog []*Message
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewSequencer starts a sequencer forwarding to sender.
func NewSequencer(sender MessageHandler) *Sequencer {
	s := &Sequencer{
		sender: sender,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.lane.Init(laneCapacity)
	go s.run()
	return s
}

// HandleMessage enqueues msg behind every message enqueued before it.
// It does not wait for the sender. It panics after Stop.
func (s *Sequencer) HandleMessage(msg *Message) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		panic("mbus: message handed to a stopped sequencer")
	}
	if len(s.backlog) == 0 {
		s.slot = msg
		err := s.lane.Enqueue(&s.slot)
		s.slot = nil
		switch {
		case err == nil:
			s.mu.Unlock()
			s.signal()
			return
		case !iox.IsWouldBlock(err):
			s.mu.Unlock()
			panic("mbus: sequencer lane: " + err.Error())
		}
	}
	s.backlog = append(s.backlog, msg)
	s.mu.Unlock()
	s.signal()
}

func (s *Sequencer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sequencer) run() {
	defer close(s.done)
	for {
		s.drain()
		select {
		case <-s.wake:
		case <-s.stop:
			s.drain()
			return
		}
	}
}

// drain forwards the lane, then the backlog that queued up behind it,
// until both are empty.
func (s *Sequencer) drain() {
	for {
		for {
			msg, err := s.lane.Dequeue()
			if err != nil {
				break
			}
			s.sender.HandleMessage(msg)
		}
		s.mu.Lock()
		backlog := s.backlog
		s.backlog = nil
		s.mu.Unlock()
		if len(backlog) == 0 {
			return
		}
		for i, msg := range backlog {
			backlog[i] = nil
			s.sender.HandleMessage(msg)
		}
	}
}

// Stop forwards whatever is still queued and stops the lane goroutine.
// Handing a message to a stopped sequencer panics.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.stop) })
	<-s.done
}
