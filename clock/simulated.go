/*
Copyright (c) 2017 Alexander Klauer

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package clock provides clock sources for timer callouts:
// the host's monotonic clock, and a simulated clock whose time only
// moves when told to.
package clock

import(
	"fmt"
	"sync"
)

// Simulated is a clock source whose time is set manually.
// Moving the time to or past the programmed deadline delivers the
// interrupt synchronously, on the goroutine moving the time.
// Arming a deadline that has already passed does not interrupt by itself;
// the interrupt is delivered on the next call to Set or Advance,
// even if that call does not move the time.
type Simulated struct {
	// mu protects the fields below.
	mu sync.Mutex

	// now is the current time.
	now uint64

	// deadline is the programmed deadline.
	deadline uint64

	// armed indicates whether deadline is programmed.
	armed bool

	// arms counts calls to Arm.
	arms int

	// handler is the interrupt handler.
	handler func()
}

// NewSimulated creates a new disarmed simulated clock source
// starting at time start.
func NewSimulated( start uint64 ) *Simulated {
	return &Simulated{
		now: start,
	}
}

// Now returns the current simulated time.
func ( s *Simulated ) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.now
}

// Arm programs the comparator.
func ( s *Simulated ) Arm( deadline uint64 ) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = deadline
	s.armed = true
	s.arms++
}

// Disarm cancels the programmed deadline.
func ( s *Simulated ) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
}

// Attach installs the interrupt handler.
func ( s *Simulated ) Attach( handler func() ) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Deadline returns the programmed deadline
// and whether a deadline is programmed at all.
func ( s *Simulated ) Deadline() ( uint64, bool ) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deadline, s.armed
}

// Arms returns the number of times the comparator has been programmed.
func ( s *Simulated ) Arms() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.arms
}

// Set moves the time to now and delivers the interrupt if the programmed
// deadline has been reached. Moving the time backwards causes a panic.
func ( s *Simulated ) Set( now uint64 ) {
	s.mu.Lock()
	if now < s.now {
		s.mu.Unlock()
		panic( fmt.Sprintf( "Simulated time moved backwards from %d to %d", s.now, now ) )
	}
	s.now = now
	var handler func()
	if s.armed && s.deadline <= now {
		s.armed = false
		handler = s.handler
	}
	s.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// Advance moves the time forward by delta ticks.
func ( s *Simulated ) Advance( delta uint64 ) {
	s.Set( s.Now() + delta )
}
