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

package clock

import(
	"sync"
	"time"
)

// System is a clock source on the host's monotonic clock.
// Ticks are nanoseconds. Interrupts are delivered on a separate goroutine.
type System struct {
	// mu protects the fields below.
	mu sync.Mutex

	// timer delivers the interrupt. It is reset, not recreated,
	// so that arming does not allocate.
	timer *time.Timer

	// deadline is the programmed deadline.
	deadline monotonicTime

	// armed indicates whether deadline is programmed.
	armed bool

	// stopped is set by Stop.
	stopped bool

	// handler is the interrupt handler.
	handler func()
}

// NewSystem creates a new disarmed system clock source.
func NewSystem() *System {
	result := &System{
		deadline: inTheFuture,
	}
	result.timer = time.AfterFunc( time.Hour, result.expire )
	result.timer.Stop()

	return result
}

// Now returns the current monotonic time.
func ( s *System ) Now() uint64 {
	return uint64( monotonicNow() )
}

// Arm programs the interrupt for deadline.
func ( s *System ) Arm( deadline uint64 ) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.deadline = monotonicTime( deadline )
	s.armed = true
	s.timer.Stop()
	s.timer.Reset( s.deadline.Until( monotonicNow() ) )
}

// Disarm cancels the programmed interrupt.
func ( s *System ) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	s.deadline = inTheFuture
	s.timer.Stop()
}

// Attach installs the interrupt handler.
func ( s *System ) Attach( handler func() ) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Stop disarms the clock source for good.
// Subsequent calls to Arm have no effect.
func ( s *System ) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.armed = false
	s.timer.Stop()
}

// expire runs when the timer elapses.
// A timer that elapses for a deadline since moved or cancelled is ignored.
func ( s *System ) expire() {
	s.mu.Lock()
	if !s.armed || monotonicNow().Before( s.deadline ) {
		s.mu.Unlock()
		return
	}
	s.armed = false
	s.deadline = inTheFuture
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler()
	}
}
