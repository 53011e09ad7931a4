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

// EndOfAllTime is the reserved deadline meaning "nothing armed".
// It must not be passed as a deadline to Enter or Enter1;
// doing so disarms the entry instead.
const EndOfAllTime uint64 = ^uint64( 0 )

// State is the lifecycle state of a CallEntry.
type State uint32

const(
	// Idle indicates that the entry is not linked into any queue.
	Idle State = iota

	// Armed indicates that the entry is linked into exactly one queue
	// and waits for its deadline.
	Armed

	// Firing indicates that the dispatcher has claimed the entry and its
	// callback has not returned yet.
	Firing
)

// String returns the name of the state.
func ( s State ) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Firing:
		return "firing"
	default:
		return "unknown"
	}
}

// Func is a callout function.
// It runs at interrupt priority on the processor owning the queue
// and must neither block nor run for long.
type Func func( param0, param1 any )

// CallEntry is a reusable callout record.
//
// Storage is owned by the client, usually by embedding the entry in a
// larger structure. The subsystem only links and unlinks it, so arming
// never allocates. An entry must not be copied after Initialize and must
// not be discarded while armed or firing.
type CallEntry struct {
	// next and prev link the entry into its queue's list.
	// Both are protected by the owning queue's guard.
	next, prev *CallEntry

	// queue is the queue the entry is linked into, or nil.
	// It changes only under that queue's guard.
	queue atomic.Pointer[Queue]

	// state holds a State.
	state atomic.Uint32

	// deadline is the absolute tick count the entry is armed for.
	deadline uint64

	// epoch is the dispatch round of the owning queue
	// in which the entry was armed.
	epoch uint64

	// fn and param0 are bound by Initialize.
	fn Func
	param0 any

	// param1 is bound by Enter1.
	param1 any
}

// Initialize binds the callout function and its first parameter.
// Initialize may only be called on an idle entry.
// A nil function, or an entry that is armed or firing, causes a panic.
func ( e *CallEntry ) Initialize( fn Func, param0 any ) {
	if fn == nil {
		panic( "callout: nil callout function" )
	}
	if e.State() != Idle || e.queue.Load() != nil {
		panic( "callout: initialize on busy entry" )
	}
	e.next = nil
	e.prev = nil
	e.deadline = EndOfAllTime
	e.fn = fn
	e.param0 = param0
	e.param1 = nil
}

// State returns the current state of the entry.
// The result may be stale by the time it is inspected.
func ( e *CallEntry ) State() State {
	return State( e.state.Load() )
}

// lockQueue returns the queue the entry is linked into with that queue's
// guard held, or nil if the entry is not linked.
// On a non-nil result the caller must restore the guard.
func ( e *CallEntry ) lockQueue( g *cpu.Guard ) *Queue {
	for {
		q := e.queue.Load()
		if q == nil {
			return nil
		}
		*g = q.cpu.Disable()
		if e.queue.Load() == q {
			return q
		}
		// The entry moved while we waited for the guard.
		g.Restore()
	}
}

// Cancel disarms the entry.
//
// Cancel returns true if the entry was armed; its callback will then not
// run for this arm cycle. If the entry is idle, or the dispatcher has
// already claimed it, Cancel returns false and changes nothing; in the
// latter case the callback runs or is running.
func ( e *CallEntry ) Cancel() bool {
	var g cpu.Guard
	q := e.lockQueue( &g )
	if q == nil {
		return false
	}
	defer g.Restore()
	q.unlink( e )
	e.state.CompareAndSwap( uint32( Armed ), uint32( Idle ) )
	q.sys.stats.cancelled.AddGuarded( &g, 1 )
	q.reprogram( false )

	return true
}

// IsDelayed returns the deadline of an armed entry.
// If the entry is not armed, armed is false and deadline is zero.
func ( e *CallEntry ) IsDelayed() ( deadline uint64, armed bool ) {
	var g cpu.Guard
	if e.lockQueue( &g ) == nil {
		return 0, false
	}
	deadline = e.deadline
	g.Restore()

	return deadline, true
}
