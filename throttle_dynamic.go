// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"math"
	"time"
)

// dynamicIdleTime is how long a session may stay silent before the
// window collapses to what is actually in flight.
const dynamicIdleTime = 60 * time.Second

// DynamicThrottlePolicy adapts a send window to observed throughput.
//
// Every windowSize*resizeRate accepted messages it measures the rate of
// successful replies. While the rate improves the window grows by
// weight*windowSizeIncrement; when it drops and window efficiency falls
// under the threshold the window backs off. The window is clamped to
// [minWindowSize, maxWindowSize]. Static caps still apply on top.
type DynamicThrottlePolicy struct {
	StaticThrottlePolicy

	now func() time.Time

	numSent             int
	numOk               int
	numPending          int
	resizeRate          float64
	resizeTime          time.Time
	timeOfLastMessage   time.Time
	efficiencyThreshold float64
	windowSizeIncrement float64
	windowSize          float64
	maxWindowSize       float64
	minWindowSize       float64
	decrementFactor     float64
	windowSizeBackOff   float64
	weight              float64
	localMaxThroughput  float64
	maxThroughput       float64
}

// NewDynamicThrottlePolicy returns a policy with the default tuning.
func NewDynamicThrottlePolicy() *DynamicThrottlePolicy {
	return NewDynamicThrottlePolicyClock(time.Now)
}

// NewDynamicThrottlePolicyClock is NewDynamicThrottlePolicy with an
// injected clock.
func NewDynamicThrottlePolicyClock(now func() time.Time) *DynamicThrottlePolicy {
	t := now()
	return &DynamicThrottlePolicy{
		now:                 now,
		resizeRate:          3,
		resizeTime:          t,
		timeOfLastMessage:   t,
		efficiencyThreshold: 1,
		windowSizeIncrement: 20,
		windowSize:          20,
		maxWindowSize:       math.MaxInt32,
		minWindowSize:       20,
		decrementFactor:     2,
		windowSizeBackOff:   0.9,
		weight:              1,
	}
}

// SetEfficiencyThreshold sets the efficiency under which the window backs off.
func (p *DynamicThrottlePolicy) SetEfficiencyThreshold(v float64) *DynamicThrottlePolicy {
	p.efficiencyThreshold = v
	return p
}

// SetWindowSizeIncrement sets the growth step and raises the window to at least it.
func (p *DynamicThrottlePolicy) SetWindowSizeIncrement(v float64) *DynamicThrottlePolicy {
	p.windowSizeIncrement = v
	p.windowSize = math.Max(p.windowSize, v)
	return p
}

// SetWindowSizeBackOff sets the multiplicative back-off factor.
func (p *DynamicThrottlePolicy) SetWindowSizeBackOff(v float64) *DynamicThrottlePolicy {
	p.windowSizeBackOff = math.Max(0, math.Min(1, v))
	return p
}

// SetWindowSizeDecrementFactor sets how many increments a back-off removes at most.
func (p *DynamicThrottlePolicy) SetWindowSizeDecrementFactor(v float64) *DynamicThrottlePolicy {
	p.decrementFactor = v
	return p
}

// SetResizeRate sets the resize period as a multiple of the window size.
func (p *DynamicThrottlePolicy) SetResizeRate(v float64) *DynamicThrottlePolicy {
	p.resizeRate = math.Max(2, v)
	return p
}

// SetWeight sets the growth weight.
func (p *DynamicThrottlePolicy) SetWeight(v float64) *DynamicThrottlePolicy {
	p.weight = math.Max(0, v)
	return p
}

// SetMaxThroughput sets the throughput, in replies per millisecond, at
// which the window stops growing. Zero disables it.
func (p *DynamicThrottlePolicy) SetMaxThroughput(v float64) *DynamicThrottlePolicy {
	p.maxThroughput = v
	return p
}

// SetMinWindowSize sets the window floor.
func (p *DynamicThrottlePolicy) SetMinWindowSize(v float64) *DynamicThrottlePolicy {
	p.minWindowSize = v
	p.windowSize = math.Max(p.minWindowSize, p.windowSize)
	return p
}

// SetMaxWindowSize sets the window ceiling.
func (p *DynamicThrottlePolicy) SetMaxWindowSize(v float64) *DynamicThrottlePolicy {
	p.maxWindowSize = v
	p.windowSize = math.Min(p.maxWindowSize, p.windowSize)
	return p
}

// WindowSize returns the current window.
func (p *DynamicThrottlePolicy) WindowSize() float64 { return p.windowSize }

// effectiveWindow is the window after an idle collapse, computed without
// committing it.
func (p *DynamicThrottlePolicy) effectiveWindow(t time.Time, pendingCount int) float64 {
	if t.Sub(p.timeOfLastMessage) > dynamicIdleTime {
		return math.Max(p.minWindowSize, math.Min(p.windowSize, float64(pendingCount)+p.windowSizeIncrement))
	}
	return p.windowSize
}

// CanSend implements ThrottlePolicy.
func (p *DynamicThrottlePolicy) CanSend(msg *Message, pendingCount int) bool {
	if !p.StaticThrottlePolicy.CanSend(msg, pendingCount) {
		return false
	}
	window := p.effectiveWindow(p.now(), pendingCount)
	floored := math.Floor(window)
	carry := float64(p.numSent) < window*p.resizeRate*(window-floored)
	limit := int(floored)
	if carry {
		limit++
	}
	return pendingCount < limit
}

// ProcessMessage implements ThrottlePolicy.
func (p *DynamicThrottlePolicy) ProcessMessage(msg *Message) {
	p.StaticThrottlePolicy.ProcessMessage(msg)
	t := p.now()
	p.windowSize = p.effectiveWindow(t, p.numPending)
	p.timeOfLastMessage = t
	p.numPending++

	p.numSent++
	if float64(p.numSent) < p.windowSize*p.resizeRate {
		return
	}
	elapsed := float64(t.Sub(p.resizeTime)) / float64(time.Millisecond)
	p.resizeTime = t
	if elapsed <= 0 {
		elapsed = 1
	}
	throughput := float64(p.numOk) / elapsed
	p.numSent = 0
	p.numOk = 0

	switch {
	case p.maxThroughput > 0 && throughput > p.maxThroughput*0.95:
		// at capacity, hold the window
	case throughput >= p.localMaxThroughput:
		p.localMaxThroughput = throughput
		p.windowSize += p.weight * p.windowSizeIncrement
	default:
		efficiency := 0.0
		if throughput > 0 {
			period := 1.0
			for throughput*period/p.windowSize < 2 {
				period *= 10
			}
			for throughput*period/p.windowSize > 2 {
				period *= 0.1
			}
			efficiency = throughput * period / p.windowSize
		}
		if efficiency < p.efficiencyThreshold {
			p.windowSize = math.Min(p.windowSize*p.windowSizeBackOff, p.windowSize-p.decrementFactor*p.windowSizeIncrement)
			p.localMaxThroughput = 0
		} else {
			p.windowSize += p.weight * p.windowSizeIncrement
		}
	}
	p.windowSize = math.Max(p.minWindowSize, p.windowSize)
	p.windowSize = math.Min(p.maxWindowSize, p.windowSize)
}

// ProcessReply implements ThrottlePolicy.
func (p *DynamicThrottlePolicy) ProcessReply(reply *Reply) {
	p.StaticThrottlePolicy.ProcessReply(reply)
	if p.numPending > 0 {
		p.numPending--
	}
	if !reply.HasErrors() {
		p.numOk++
	}
}
