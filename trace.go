// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"strings"
	"time"
)

// Trace levels. A note is recorded when its level is at or below the
// trace level of the routable.
const (
	TraceLevelNone        = 0
	TraceLevelError       = 1
	TraceLevelSendReceive = 4
	TraceLevelSplitMerge  = 5
	TraceLevelComponent   = 6
	TraceLevelMax         = 9
)

// TraceNote is a single timestamped trace entry.
type TraceNote struct {
	Time  time.Time
	Level int
	Note  string
}

// Trace is the best-effort trace context of a routable. It moves from a
// message to its reply together with the handler chain.
// Recording a note never affects delivery.
type Trace struct {
	level int
	notes []TraceNote
}

// Level returns the trace level.
func (t *Trace) Level() int { return t.level }

// SetLevel sets the trace level, clamped to [TraceLevelNone, TraceLevelMax].
func (t *Trace) SetLevel(level int) {
	t.level = min(max(level, TraceLevelNone), TraceLevelMax)
}

// ShouldTrace reports whether a note at level would be recorded.
func (t *Trace) ShouldTrace(level int) bool {
	return level > TraceLevelNone && level <= t.level
}

// Trace records note if level passes ShouldTrace.
func (t *Trace) Trace(level int, note string) {
	if !t.ShouldTrace(level) {
		return
	}
	t.notes = append(t.notes, TraceNote{Time: time.Now(), Level: level, Note: note})
}

// Notes returns the recorded notes in recording order.
func (t *Trace) Notes() []TraceNote { return t.notes }

// Clear drops all recorded notes. The level is kept.
func (t *Trace) Clear() { t.notes = nil }

// String renders the notes one per line.
func (t *Trace) String() string {
	var b strings.Builder
	for i, n := range t.notes {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(n.Time.Format(time.RFC3339Nano))
		b.WriteByte(' ')
		b.WriteString(n.Note)
	}
	return b.String()
}
