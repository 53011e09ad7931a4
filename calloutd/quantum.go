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

package main

import(
	"errors"
	"fmt"
	"github.com/TheCount/callout/callout"
	"github.com/TheCount/callout/clock"
	"github.com/TheCount/callout/percpu"
	"time"
)

// configuration keys
const (
	kQuantum = "quantum"
	kTicks = "ticks"
)

// vQuantumTicks is the default quantum length.
var vQuantumTicks = clock.Ticks( 10 * time.Millisecond )

// quantumTimer is the scheduler quantum of one processor.
// It re-arms itself on every expiry.
type quantumTimer struct {
	entry callout.CallEntry
	queue *callout.Queue
	ticks uint64
	expiries *percpu.Counter
}

// quanta are the quantum timers of all processors.
type quanta struct {
	timers []*quantumTimer

	// expiries counts quantum expiries per processor.
	expiries *percpu.Counter
}

// quantumExpired is the quantum timer callout.
func quantumExpired( param0, param1 any ) {
	t := param0.( *quantumTimer )
	t.expiries.Add( t.queue.CPU(), 1 )
	t.arm()
}

// arm arms the quantum timer one quantum from now.
func ( t *quantumTimer ) arm() {
	now := t.queue.Now()
	if t.ticks >= callout.EndOfAllTime - now {
		t.queue.Enter( &t.entry, callout.EndOfAllTime - 1 )
		return
	}
	t.queue.Enter( &t.entry, now + t.ticks )
}

// startQuanta arms a quantum timer on every processor
// according to a configuration.
func startQuanta( conf config, sys *callout.System ) ( *quanta, error ) {
	ticks := vQuantumTicks
	if quantumConf, err := conf.GetSubConfig( kQuantum ); err == nil {
		if ticks, err = quantumConf.GetUInt64OrDefault( kTicks, vQuantumTicks ); err != nil {
			return nil, fmt.Errorf( "Unable to read quantum ticks: %v", err )
		}
	}
	if ticks == 0 {
		return nil, errors.New( "Quantum must be at least one tick" )
	}
	result := &quanta{
		expiries: percpu.NewCounter( sys.NumCPU() ),
	}
	for i := 0; i < sys.NumCPU(); i++ {
		t := &quantumTimer{
			queue: sys.Queue( i ),
			ticks: ticks,
			expiries: result.expiries,
		}
		t.entry.Initialize( quantumExpired, t )
		result.timers = append( result.timers, t )
	}
	for _, t := range result.timers {
		t.arm()
	}

	return result, nil
}

// stop cancels all quantum timers.
// A timer whose callout is running may re-arm itself once more.
func ( q *quanta ) stop() {
	for _, t := range q.timers {
		t.entry.Cancel()
	}
}
