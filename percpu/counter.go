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

// Package percpu provides counters with one slot per processor.
//
// A processor only ever increments its own slot, inside a guarded
// section, so increments never contend across processors.
// Readers sum all slots without stopping the writers.
package percpu

import(
	"fmt"
	"github.com/TheCount/callout/cpu"
	"sync/atomic"
)

// cacheLine is the assumed size of a cache line in bytes.
const cacheLine = 64

// slot is one processor's share of a Counter,
// padded so that neighbouring slots do not share a cache line.
type slot struct {
	value atomic.Uint64
	_ [cacheLine - 8]byte
}

// Counter is a statistics counter with one slot per processor.
type Counter struct {
	slots []slot
}

// NewCounter creates a counter for n processors.
// A negative n causes a panic.
func NewCounter( n int ) *Counter {
	if n < 0 {
		panic( fmt.Sprintf( "Bad processor count: %d", n ) )
	}

	return &Counter{
		slots: make( []slot, n ),
	}
}

// Add adds delta to the slot of processor p.
// Add takes p's guard itself and must not be called
// while the caller already holds it; use AddGuarded then.
func ( c *Counter ) Add( p *cpu.Processor, delta uint64 ) {
	g := p.Disable()
	defer g.Restore()
	c.AddGuarded( &g, delta )
}

// AddGuarded adds delta to the slot of the processor guarded by g.
// If g has already been restored, AddGuarded panics.
func ( c *Counter ) AddGuarded( g *cpu.Guard, delta uint64 ) {
	if !g.Held() {
		panic( "percpu: counter update outside guarded section" )
	}
	c.slots[g.Processor().ID()].value.Add( delta )
}

// Load returns the value of processor id's slot.
func ( c *Counter ) Load( id int ) uint64 {
	return c.slots[id].value.Load()
}

// Sum returns the sum over all slots.
// The result is not a snapshot: increments racing with Sum
// may or may not be included.
func ( c *Counter ) Sum() uint64 {
	var result uint64
	for i := range c.slots {
		result += c.slots[i].value.Load()
	}

	return result
}

// Len returns the number of slots.
func ( c *Counter ) Len() int {
	return len( c.slots )
}
