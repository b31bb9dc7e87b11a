// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

// ReplyHandler receives replies popped off a handler chain.
// HandleReply may run on any goroutine, typically a network delivery worker.
type ReplyHandler interface {
	HandleReply(reply *Reply)
}

// ReplyHandlerFunc adapts a function to ReplyHandler.
type ReplyHandlerFunc func(reply *Reply)

// HandleReply calls f(reply).
func (f ReplyHandlerFunc) HandleReply(reply *Reply) { f(reply) }

// MessageHandler accepts ownership of a message for onward delivery.
type MessageHandler interface {
	HandleMessage(msg *Message)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(msg *Message)

// HandleMessage calls f(msg).
func (f MessageHandlerFunc) HandleMessage(msg *Message) { f(msg) }

// frame is one chain entry: the handler and the routable context
// observed when the handler was pushed.
type frame struct {
	handler ReplyHandler
	context any
}

// HandlerChain is the LIFO sequence of reply handlers carried by a
// message and inherited unchanged by its reply. Correlation between a
// reply and its sender is the chain itself: nothing is looked up.
//
// A HandlerChain is owned by exactly one routable at a time and is not
// safe for concurrent use.
type HandlerChain struct {
	frames []frame
}

// Push appends h as the most recent handler, remembering ctx so that
// Pop can restore it.
func (c *HandlerChain) Push(h ReplyHandler, ctx any) {
	if h == nil {
		panic("mbus: push of nil reply handler")
	}
	c.frames = append(c.frames, frame{handler: h, context: ctx})
}

// Pop removes and returns the most recently pushed handler together
// with the context recorded at push time.
// Pop on an empty chain is a correlation defect and panics.
func (c *HandlerChain) Pop() (ReplyHandler, any) {
	n := len(c.frames)
	if n == 0 {
		panic("mbus: pop from empty handler chain")
	}
	f := c.frames[n-1]
	c.frames[n-1] = frame{}
	c.frames = c.frames[:n-1]
	return f.handler, f.context
}

// Len reports the number of handlers on the chain.
func (c *HandlerChain) Len() int { return len(c.frames) }

// swap exchanges the contents of two chains.
func (c *HandlerChain) swap(other *HandlerChain) {
	c.frames, other.frames = other.frames, c.frames
}
