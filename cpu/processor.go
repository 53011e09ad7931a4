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

// Package cpu provides processor contexts and the preemption guard
// protecting per-processor state.
//
// A Go program has no notion of the processor it runs on, so a Processor
// is an explicit context handed to whoever mutates per-processor state.
// All code touching the state of one Processor brackets the access with
// a Guard obtained from Disable.
package cpu

import(
	"fmt"
	"sync"
	"sync/atomic"
)

// Processor is the execution context of one logical processor.
// Processors are created at boot and never destroyed.
type Processor struct {
	// id is the index of the processor in its Table.
	id int

	// mu is held for the duration of a guarded section.
	mu sync.Mutex

	// level is the preemption disable level.
	// It is nonzero exactly while a Guard is held.
	level atomic.Int32

	// interrupt is set while an interrupt handler runs on the processor.
	interrupt atomic.Bool
}

// New creates the context for processor id.
// A negative id causes a panic.
func New( id int ) *Processor {
	if id < 0 {
		panic( fmt.Sprintf( "Bad processor id: %d", id ) )
	}

	return &Processor{
		id: id,
	}
}

// ID returns the processor's index.
func ( p *Processor ) ID() int {
	return p.id
}

// Preemptible reports whether no guarded section is currently active
// on the processor.
func ( p *Processor ) Preemptible() bool {
	return p.level.Load() == 0
}

// InInterrupt reports whether an interrupt handler is running on the
// processor.
func ( p *Processor ) InInterrupt() bool {
	return p.interrupt.Load()
}

// BeginInterrupt marks the start of interrupt handling.
// Interrupt handlers do not nest: if a handler is already running,
// BeginInterrupt returns false and the caller must not run its handler.
func ( p *Processor ) BeginInterrupt() bool {
	return p.interrupt.CompareAndSwap( false, true )
}

// EndInterrupt marks the end of interrupt handling started with a
// successful BeginInterrupt.
func ( p *Processor ) EndInterrupt() {
	p.interrupt.Store( false )
}

// Disable disables preemption and local interrupts on the processor
// and returns the guard that restores them.
// Guarded sections do not nest; Disable blocks until the processor's
// current guarded section, if any, has been restored.
func ( p *Processor ) Disable() Guard {
	p.mu.Lock()
	prior := p.level.Add( 1 ) - 1

	return Guard{
		p: p,
		prior: prior,
		held: true,
	}
}

// Table is the set of processors of the system, indexed by processor id.
type Table []*Processor

// Boot creates the processor table for n processors.
// A negative n causes a panic.
func Boot( n int ) Table {
	if n < 0 {
		panic( fmt.Sprintf( "Bad processor count: %d", n ) )
	}
	result := make( Table, n )
	for i := range result {
		result[i] = New( i )
	}

	return result
}
