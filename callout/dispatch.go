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

// Interrupt is the dispatcher entry point bound to the clock source.
// It latches the expiry in the register and drains the queue.
func ( q *Queue ) Interrupt() {
	g := q.cpu.Disable()
	q.reg.HasExpired = true
	q.sys.stats.interrupts.AddGuarded( &g, 1 )
	g.Restore()
	q.Dispatch()
}

// Dispatch fires all due entries in deadline order and reprograms the
// comparator for the new head of the queue.
//
// The dispatcher never runs twice at the same time on one processor.
// A call made while a dispatch is active, for example from a callout
// function, only marks the queue pending; the active dispatcher then runs
// another round before it returns.
func ( q *Queue ) Dispatch() {
	q.pending.Store( true )
	for q.pending.Load() && q.cpu.BeginInterrupt() {
		q.pending.Store( false )
		q.round()
	}
}

// round runs one dispatch round.
// Entries armed during the round are left for the next interrupt even if
// they are already due, so one interrupt fires a bounded number of entries.
func ( q *Queue ) round() {
	defer q.cpu.EndInterrupt()

	g := q.cpu.Disable()
	q.epoch++
	epoch := q.epoch
	now := q.clock.Now()
	g.Restore()

	// A callout function that panics leaves the round early;
	// the comparator must still follow the head of the queue.
	finished := false
	defer func() {
		if !finished {
			g := q.cpu.Disable()
			q.reg.HasExpired = false
			q.reprogram( true )
			g.Restore()
		}
	}()

	for {
		g = q.cpu.Disable()
		e := q.list.Front()
		if e == nil || e.deadline > now || e.epoch == epoch {
			q.reg.HasExpired = false
			q.reprogram( true )
			g.Restore()
			finished = true
			return
		}

		// Claiming the entry and unlinking it happen under the guard;
		// from here on Cancel reports false.
		q.unlink( e )
		e.state.CompareAndSwap( uint32( Armed ), uint32( Firing ) )
		fn, param0, param1 := e.fn, e.param0, e.param1
		q.sys.stats.fired.AddGuarded( &g, 1 )
		q.sys.stats.lateTicks.AddGuarded( &g, now - e.deadline )
		g.Restore()

		fire( e, fn, param0, param1 )
	}
}

// fire runs the callout function of e.
// The entry returns to Idle afterwards unless the function rearmed it.
func fire( e *CallEntry, fn Func, param0, param1 any ) {
	defer e.state.CompareAndSwap( uint32( Firing ), uint32( Idle ) )
	fn( param0, param1 )
}
