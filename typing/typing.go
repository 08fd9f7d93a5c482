// Package typing implements the per-conversation "is typing" indicator.
//
// An Indicator is a two-state machine:
//
//	Idle   --keystroke (non-blank)--> Typing   publish(true)
//	Typing --keystroke-------------> Typing   restart quiet timer
//	Typing --quiet period elapsed--> Idle     publish(false)
//	Typing --send / close----------> Idle     publish(false)
//
// The quiet timer comes from an injected Clock so tests can drive it
// without waiting on the wall clock.
package typing

import (
	"strings"
	"sync"
	"time"
)

// DefaultQuietPeriod is how long input must be idle before the indicator
// falls back to Idle on its own.
const DefaultQuietPeriod = 2 * time.Second

// Clock schedules the quiet timer.
type Clock interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// RealClock uses time.AfterFunc.
type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type State int

const (
	Idle State = iota
	Typing
)

func (s State) String() string {
	if s == Typing {
		return "typing"
	}
	return "idle"
}

// Publisher is told about every Idle/Typing transition.
type Publisher func(isTyping bool)

type Indicator struct {
	clock   Clock
	quiet   time.Duration
	publish Publisher

	mu    sync.Mutex
	state State
	stop  func() bool
	// gen invalidates timers that fire after being replaced or cancelled.
	gen uint64
}

// NewIndicator creates an Idle indicator. A nil clock means RealClock and a
// non-positive quiet period means DefaultQuietPeriod.
func NewIndicator(clock Clock, quiet time.Duration, publish Publisher) *Indicator {
	if clock == nil {
		clock = RealClock{}
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if publish == nil {
		publish = func(bool) {}
	}
	return &Indicator{clock: clock, quiet: quiet, publish: publish}
}

// Keystroke records an edit of the input box. text is the box's content
// after the edit; blank input does not start typing.
func (i *Indicator) Keystroke(text string) {
	i.mu.Lock()
	if i.state == Idle && strings.TrimSpace(text) == "" {
		i.mu.Unlock()
		return
	}

	started := i.state == Idle
	i.state = Typing
	i.restartTimer()
	i.mu.Unlock()

	if started {
		i.publish(true)
	}
}

// Sent cancels the quiet timer when a message is sent.
func (i *Indicator) Sent() {
	i.cancel()
}

// Close cancels the quiet timer when the conversation is closed.
func (i *Indicator) Close() {
	i.cancel()
}

func (i *Indicator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Indicator) cancel() {
	i.mu.Lock()
	wasTyping := i.state == Typing
	i.stopTimer()
	i.state = Idle
	i.mu.Unlock()

	if wasTyping {
		i.publish(false)
	}
}

// restartTimer must be called with mu held.
func (i *Indicator) restartTimer() {
	i.stopTimer()
	gen := i.gen
	i.stop = i.clock.AfterFunc(i.quiet, func() { i.expire(gen) })
}

// stopTimer must be called with mu held.
func (i *Indicator) stopTimer() {
	i.gen++
	if i.stop != nil {
		i.stop()
		i.stop = nil
	}
}

func (i *Indicator) expire(gen uint64) {
	i.mu.Lock()
	if gen != i.gen || i.state != Typing {
		i.mu.Unlock()
		return
	}
	i.state = Idle
	i.stop = nil
	i.mu.Unlock()

	i.publish(false)
}
