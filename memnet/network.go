// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memnet is an in-process [mbus.Network]. Messages are answered
// by services registered under the name of the first hop of their route,
// on a fixed pool of delivery goroutines.
package memnet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/mbus"
)

// Service answers one message. A returned *mbus.Error is copied onto the
// reply as is; any other error becomes an AppFatalError.
type Service func(msg *mbus.Message) (any, error)

// Echo answers every message with its own payload.
func Echo(msg *mbus.Message) (any, error) { return msg.Payload, nil }

// Config configures a Network.
type Config struct {
	// Workers is the number of delivery goroutines. Defaults to 1.
	Workers int
	// QueueSize is the initial capacity of the dispatch queue. The queue
	// grows past it; Dispatch never waits for a worker. Defaults to 1024.
	QueueSize int
	// Latency delays every delivery, simulating a remote hop.
	Latency time.Duration
	// Logger receives network lifecycle events.
	Logger zerolog.Logger
}

// job is one dispatched message and its dispatch sequence number.
type job struct {
	msg *mbus.Message
	seq uint64
}

// Network is an in-process mbus.Network.
type Network struct {
	cfg Config
	log zerolog.Logger

	smu      sync.RWMutex
	services map[string]Service

	mu     sync.Mutex
	cond   sync.Cond
	closed bool
	queue  []job
	issued uint64

	// Every job with seq <= low has finished. ahead holds finished
	// sequence numbers above low+1.
	wmu   sync.Mutex
	low   uint64
	ahead map[uint64]struct{}

	delivered atomix.Uint32
	group     errgroup.Group
	closeOnce sync.Once
}

// New starts a network with cfg.Workers delivery goroutines.
func New(cfg Config) *Network {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	n := &Network{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "memnet").Logger(),
		services: make(map[string]Service),
		queue:    make([]job, 0, cfg.QueueSize),
		ahead:    make(map[uint64]struct{}),
	}
	n.cond.L = &n.mu
	for i := 0; i < cfg.Workers; i++ {
		n.group.Go(n.work)
	}
	n.log.Debug().Int("workers", cfg.Workers).Int("queue", cfg.QueueSize).Msg("network started")
	return n
}

// Register makes svc answer messages whose first hop is name.
func (n *Network) Register(name string, svc Service) {
	n.smu.Lock()
	defer n.smu.Unlock()
	n.services[name] = svc
}

// Unregister removes the service registered under name.
func (n *Network) Unregister(name string) {
	n.smu.Lock()
	defer n.smu.Unlock()
	delete(n.services, name)
}

// Dispatch implements mbus.Network. It queues msg and returns without
// waiting for a worker. After Close, msg is answered with NetworkShutdown
// on the calling goroutine.
func (n *Network) Dispatch(msg *mbus.Message) {
	n.mu.Lock()
	n.issued++
	j := job{msg: msg, seq: n.issued}
	if n.closed {
		n.mu.Unlock()
		n.fail(msg, mbus.NetworkShutdown, "Network is shut down.", "")
		n.finish(j.seq)
		return
	}
	n.queue = append(n.queue, j)
	n.mu.Unlock()
	n.cond.Signal()
}

// Sync implements mbus.Network: it waits, with adaptive backoff, until
// every message dispatched before the call has been delivered. Messages
// dispatched later do not hold it up. It must not be called from a
// delivery goroutine.
func (n *Network) Sync() {
	n.mu.Lock()
	target := n.issued
	n.mu.Unlock()
	var bo iox.Backoff
	for n.finished() < target {
		bo.Wait()
	}
}

// Delivered returns the number of replies delivered so far.
func (n *Network) Delivered() uint32 { return n.delivered.Load() }

// Close answers every queued message and stops the delivery goroutines.
// Messages dispatched afterwards are answered with NetworkShutdown.
func (n *Network) Close() error {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		n.mu.Unlock()
		n.cond.Broadcast()
	})
	err := n.group.Wait()
	n.log.Debug().Uint32("delivered", n.delivered.Load()).Msg("network closed")
	return err
}

func (n *Network) work() error {
	n.mu.Lock()
	for {
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return nil
		}
		j := n.queue[0]
		n.queue[0] = job{}
		n.queue = n.queue[1:]
		n.mu.Unlock()

		n.process(j.msg)
		n.finish(j.seq)
		n.mu.Lock()
	}
}

// finish records job seq as delivered and advances the watermark.
func (n *Network) finish(seq uint64) {
	n.wmu.Lock()
	defer n.wmu.Unlock()
	if seq != n.low+1 {
		n.ahead[seq] = struct{}{}
		return
	}
	n.low = seq
	for {
		if _, ok := n.ahead[n.low+1]; !ok {
			return
		}
		delete(n.ahead, n.low+1)
		n.low++
	}
}

func (n *Network) finished() uint64 {
	n.wmu.Lock()
	defer n.wmu.Unlock()
	return n.low
}

func (n *Network) process(msg *mbus.Message) {
	if n.cfg.Latency > 0 {
		time.Sleep(n.cfg.Latency)
	}
	route := msg.Route()
	if route.IsEmpty() {
		n.fail(msg, mbus.NoServicesForRoute, "Route has no hops.", "")
		return
	}
	name := route.Hop(0).String()
	if msg.IsExpired() {
		n.fail(msg, mbus.Timeout, fmt.Sprintf("Timed out after %s.", msg.TimeRemaining()), name)
		return
	}
	n.smu.RLock()
	svc, ok := n.services[name]
	n.smu.RUnlock()
	if !ok {
		n.fail(msg, mbus.NoAddressForService, fmt.Sprintf("No address for service '%s'.", name), name)
		return
	}
	payload, err := svc(msg)
	reply := mbus.NewReply(msg, payload)
	if err != nil {
		reply.AddError(serviceError(err, name))
	}
	n.deliver(reply)
}

func serviceError(err error, service string) mbus.Error {
	var me *mbus.Error
	if errors.As(err, &me) {
		out := *me
		if out.Service == "" {
			out.Service = service
		}
		return out
	}
	return mbus.Error{Code: mbus.AppFatalError, Message: err.Error(), Service: service}
}

func (n *Network) fail(msg *mbus.Message, code mbus.ErrorCode, text, service string) {
	reply := mbus.NewReply(msg, nil)
	reply.AddError(mbus.Error{Code: code, Message: text, Service: service})
	n.log.Debug().Stringer("code", code).Str("service", service).Msg("message failed")
	n.deliver(reply)
}

func (n *Network) deliver(reply *mbus.Reply) {
	reply.Trace().Trace(mbus.TraceLevelSendReceive, "memnet delivering reply.")
	mbus.Deliver(reply)
	n.delivered.Add(1)
}
