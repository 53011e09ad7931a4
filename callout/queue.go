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

package callout

import(
	"github.com/TheCount/callout/cpu"
	"sync/atomic"
)

// Register mirrors the hardware comparator of one processor
// as programmed by its queue.
type Register struct {
	// Deadline is the requested fire time,
	// or EndOfAllTime if nothing is programmed.
	Deadline uint64 `json:"deadline"`

	// IsSet indicates whether a deadline is currently programmed.
	IsSet bool `json:"isSet"`

	// HasExpired is latched by the interrupt path and cleared once the
	// dispatcher has consumed the interrupt.
	HasExpired bool `json:"hasExpired"`
}

// Queue is the timer queue of one processor.
//
// All mutations happen under the processor's guard. Whenever the guard is
// not held, the register's deadline equals the deadline of the earliest
// armed entry, and the register is unset if no entry is armed.
type Queue struct {
	// sys is the system the queue belongs to.
	sys *System

	// cpu is the processor owning the queue.
	cpu *cpu.Processor

	// clock is the processor's clock source.
	clock ClockSource

	// list holds the armed entries.
	list entryList

	// reg mirrors the programmed comparator.
	reg Register

	// epoch counts dispatch rounds.
	epoch uint64

	// pending is set when an interrupt is waiting to be dispatched.
	pending atomic.Bool
}

// newQueue creates the queue for processor p.
func newQueue( sys *System, p *cpu.Processor, clock ClockSource ) *Queue {
	return &Queue{
		sys: sys,
		cpu: p,
		clock: clock,
		reg: Register{
			Deadline: EndOfAllTime,
		},
	}
}

// CPU returns the processor owning the queue.
func ( q *Queue ) CPU() *cpu.Processor {
	return q.cpu
}

// Now returns the current time of the queue's clock source.
func ( q *Queue ) Now() uint64 {
	return q.clock.Now()
}

// Enter arms e at deadline on this queue.
//
// If e is already armed, its previous position is removed first,
// possibly on another processor's queue. The return value reports
// whether e was armed before the call. Passing EndOfAllTime as deadline
// disarms e. Enter never blocks on anything but the processor guards
// and never allocates.
func ( q *Queue ) Enter( e *CallEntry, deadline uint64 ) bool {
	return q.enter( e, deadline, false, nil )
}

// Enter1 works like Enter, but additionally binds param1,
// the second parameter passed to the callout function.
func ( q *Queue ) Enter1( e *CallEntry, param1 any, deadline uint64 ) bool {
	return q.enter( e, deadline, true, param1 )
}

// enter implements Enter and Enter1.
func ( q *Queue ) enter( e *CallEntry, deadline uint64, setParam1 bool, param1 any ) bool {
	if e.fn == nil {
		panic( "callout: enter on uninitialized entry" )
	}

	// An entry armed on another queue is unlinked there first,
	// under that queue's guard. An unlinked entry is claimed for q
	// before it is inserted, so two processors arming it at the same
	// time never both link it.
	wasArmed := false
	linked := false
	var g cpu.Guard
	for {
		oq := e.lockQueue( &g )
		if oq == q {
			linked = true
			break
		}
		if oq != nil {
			oq.unlink( e )
			e.state.CompareAndSwap( uint32( Armed ), uint32( Idle ) )
			oq.reprogram( false )
			wasArmed = true
			g.Restore()
			continue
		}
		g = q.cpu.Disable()
		if deadline == EndOfAllTime || e.queue.CompareAndSwap( nil, q ) {
			break
		}
		// Claimed by another processor in the meantime.
		g.Restore()
	}
	defer g.Restore()
	if linked {
		q.list.Remove( e )
		wasArmed = true
	}
	if setParam1 {
		e.param1 = param1
	}
	q.sys.stats.entered.AddGuarded( &g, 1 )
	if wasArmed {
		q.sys.stats.rearmed.AddGuarded( &g, 1 )
	}

	if deadline == EndOfAllTime {
		if linked {
			e.queue.Store( nil )
			e.state.CompareAndSwap( uint32( Armed ), uint32( Idle ) )
		}
	} else {
		e.deadline = deadline
		e.epoch = q.epoch
		e.state.Store( uint32( Armed ) )
		q.list.Insert( e )
	}
	q.reprogram( false )

	return wasArmed
}

// unlink removes e from the queue.
// The queue's guard must be held and e must be linked into q.
// The state of e is left alone.
func ( q *Queue ) unlink( e *CallEntry ) {
	q.list.Remove( e )
	e.queue.Store( nil )
}

// reprogram brings the comparator in line with the head of the queue.
// Unless force is set, the clock source is only touched if the head
// deadline differs from the programmed one.
// The queue's guard must be held.
func ( q *Queue ) reprogram( force bool ) {
	head := q.list.Front()
	if head == nil {
		if q.reg.IsSet || force {
			q.reg.IsSet = false
			q.reg.Deadline = EndOfAllTime
			q.clock.Disarm()
		}
		return
	}
	if force || !q.reg.IsSet || q.reg.Deadline != head.deadline {
		q.reg.IsSet = true
		q.reg.Deadline = head.deadline
		q.clock.Arm( head.deadline )
	}
}

// Register returns the current state of the comparator mirror.
func ( q *Queue ) Register() Register {
	g := q.cpu.Disable()
	defer g.Restore()

	return q.reg
}

// Len returns the number of armed entries.
func ( q *Queue ) Len() int {
	g := q.cpu.Disable()
	defer g.Restore()

	return q.list.Len()
}

// Pending returns the deadlines of all armed entries in firing order.
// Unlike the arm and cancel paths, Pending allocates; it is meant for
// introspection from other processors.
func ( q *Queue ) Pending() []uint64 {
	g := q.cpu.Disable()
	defer g.Restore()
	result := make( []uint64, 0, q.list.Len() )
	for e := q.list.Front(); e != nil; e = e.next {
		result = append( result, e.deadline )
	}

	return result
}
