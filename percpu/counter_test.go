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

package percpu

import(
	"github.com/TheCount/callout/cpu"
	"sync"
	"testing"
)

func assertPanic( t *testing.T ) {
	r := recover()
	if r == nil {
		t.Error( "No panic" )
	}
}

func TestNewCounter( t *testing.T ) {
	for i := 0; i < 8; i++ {
		c := NewCounter( i )
		if c.Len() != i {
			t.Errorf( "Counter has %d slots, expected %d", c.Len(), i )
		}
		if c.Sum() != 0 {
			t.Error( "Fresh counter not zero" )
		}
	}

	defer assertPanic( t )
	c := NewCounter( -1 )
	t.Errorf( "Got %v instead of panic", c )
}

func TestCounterSlots( t *testing.T ) {
	table := cpu.Boot( 3 )
	c := NewCounter( len( table ) )
	c.Add( table[0], 1 )
	c.Add( table[1], 10 )
	c.Add( table[2], 100 )
	c.Add( table[2], 100 )
	if c.Load( 0 ) != 1 || c.Load( 1 ) != 10 || c.Load( 2 ) != 200 {
		t.Errorf( "Unexpected slots: %d %d %d", c.Load( 0 ), c.Load( 1 ), c.Load( 2 ) )
	}
	if c.Sum() != 211 {
		t.Errorf( "Sum is %d, expected 211", c.Sum() )
	}
}

func TestAddGuarded( t *testing.T ) {
	p := cpu.New( 0 )
	c := NewCounter( 1 )
	g := p.Disable()
	c.AddGuarded( &g, 5 )
	g.Restore()
	if c.Sum() != 5 {
		t.Errorf( "Sum is %d, expected 5", c.Sum() )
	}

	defer assertPanic( t )
	c.AddGuarded( &g, 1 )
}

func TestConcurrentAdd( t *testing.T ) {
	const rounds = 10000
	table := cpu.Boot( 4 )
	c := NewCounter( len( table ) )
	var wg sync.WaitGroup
	for _, p := range table {
		for w := 0; w < 2; w++ {
			wg.Add( 1 )
			go func( p *cpu.Processor ) {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					c.Add( p, 1 )
				}
			}( p )
		}
	}
	wg.Wait()
	for i := range table {
		if c.Load( i ) != 2 * rounds {
			t.Errorf( "Slot %d is %d, expected %d", i, c.Load( i ), 2 * rounds )
		}
	}
	if c.Sum() != uint64( len( table ) * 2 * rounds ) {
		t.Errorf( "Sum is %d", c.Sum() )
	}
}
