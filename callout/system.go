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

// Package callout implements timer callouts:
// run a function at or after an absolute time on a given processor.
//
// Each processor owns one timer queue and one hardware comparator,
// reached through a ClockSource. Clients arm caller-owned CallEntry
// records with Queue.Enter and disarm them with CallEntry.Cancel.
// When the comparator fires, the clock source invokes Queue.Interrupt,
// which runs the due entries in deadline order, equal deadlines in
// arming order, and programs the comparator for the next deadline.
//
// Arming, cancelling and dispatching never allocate and never block
// on anything but the per-processor guard.
package callout

import(
	"errors"
	"fmt"
	"github.com/TheCount/callout/cpu"
	"github.com/TheCount/callout/percpu"
)

// ClockSource is the monotonic clock and comparator of one processor.
type ClockSource interface {
	// Now returns the current monotonic time in ticks.
	Now() uint64

	// Arm programs the comparator to interrupt at or after deadline.
	// A deadline in the past interrupts at the next clock event:
	// right away for a free-running clock, on the next time step for a
	// clock that is moved explicitly.
	// Arm replaces any previously programmed deadline.
	Arm( deadline uint64 )

	// Disarm cancels the programmed deadline, if any.
	Disarm()

	// Attach installs the interrupt handler to be invoked
	// when the programmed deadline has been reached.
	Attach( handler func() )
}

// Stats are summed callout statistics.
type Stats struct {
	// Entered counts Enter and Enter1 calls.
	Entered uint64 `json:"entered"`

	// Rearmed counts Enter and Enter1 calls on armed entries.
	Rearmed uint64 `json:"rearmed"`

	// Cancelled counts successful Cancel calls.
	Cancelled uint64 `json:"cancelled"`

	// Fired counts callout function invocations.
	Fired uint64 `json:"fired"`

	// Interrupts counts comparator interrupts.
	Interrupts uint64 `json:"interrupts"`

	// LateTicks sums the ticks between deadline and dispatch
	// over all fired entries.
	LateTicks uint64 `json:"lateTicks"`
}

// counters are the per-processor counters behind Stats.
type counters struct {
	entered *percpu.Counter
	rearmed *percpu.Counter
	cancelled *percpu.Counter
	fired *percpu.Counter
	interrupts *percpu.Counter
	lateTicks *percpu.Counter
}

// newCounters creates counters for n processors.
func newCounters( n int ) counters {
	return counters{
		entered: percpu.NewCounter( n ),
		rearmed: percpu.NewCounter( n ),
		cancelled: percpu.NewCounter( n ),
		fired: percpu.NewCounter( n ),
		interrupts: percpu.NewCounter( n ),
		lateTicks: percpu.NewCounter( n ),
	}
}

// System is the set of per-processor timer queues.
type System struct {
	// cpus is the processor table.
	cpus cpu.Table

	// queues holds one queue per processor, indexed by processor id.
	queues []*Queue

	// stats are the callout statistics.
	stats counters
}

// Initialize prepares one processor and one timer queue per clock source
// and attaches each queue's dispatcher to its clock source.
// Processor ids follow the order of sources.
// It must be called before any entry is armed.
func Initialize( sources []ClockSource ) ( *System, error ) {
	if len( sources ) == 0 {
		return nil, errors.New( "No clock sources" )
	}
	for i, source := range sources {
		if source == nil {
			return nil, fmt.Errorf( "Clock source for processor %d is nil", i )
		}
	}
	result := &System{
		cpus: cpu.Boot( len( sources ) ),
		queues: make( []*Queue, len( sources ) ),
		stats: newCounters( len( sources ) ),
	}
	for i, source := range sources {
		result.queues[i] = newQueue( result, result.cpus[i], source )
	}
	for _, q := range result.queues {
		q.clock.Disarm()
		q.clock.Attach( q.Interrupt )
	}

	return result, nil
}

// NumCPU returns the number of processors.
func ( s *System ) NumCPU() int {
	return len( s.queues )
}

// Queue returns the timer queue of processor id.
// An id out of range causes a panic.
func ( s *System ) Queue( id int ) *Queue {
	return s.queues[id]
}

// Processors returns the processor table.
func ( s *System ) Processors() cpu.Table {
	return s.cpus
}

// Stats returns the statistics summed over all processors.
func ( s *System ) Stats() Stats {
	return Stats{
		Entered: s.stats.entered.Sum(),
		Rearmed: s.stats.rearmed.Sum(),
		Cancelled: s.stats.cancelled.Sum(),
		Fired: s.stats.fired.Sum(),
		Interrupts: s.stats.interrupts.Sum(),
		LateTicks: s.stats.lateTicks.Sum(),
	}
}

// CPUStats returns the statistics of processor id.
func ( s *System ) CPUStats( id int ) Stats {
	return Stats{
		Entered: s.stats.entered.Load( id ),
		Rearmed: s.stats.rearmed.Load( id ),
		Cancelled: s.stats.cancelled.Load( id ),
		Fired: s.stats.fired.Load( id ),
		Interrupts: s.stats.interrupts.Load( id ),
		LateTicks: s.stats.lateTicks.Load( id ),
	}
}
