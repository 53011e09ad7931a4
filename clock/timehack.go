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
	"math"
	"time"
	_ "unsafe" // for go:linkname
)

//go:linkname nanotime runtime.nanotime
func nanotime() int64

// monotonicTime describes a concept of time that is unaffected by clock
// adjustments. One tick is one nanosecond.
type monotonicTime uint64

const(
	// Farthest monotonic time point in the future
	inTheFuture monotonicTime = math.MaxUint64
)

// monotonicNow returns the current monotonic time.
func monotonicNow() monotonicTime {
	return monotonicTime( nanotime() )
}

// Until returns the duration from now until t.
// Time points in the past yield zero,
// time points too far in the future are clamped.
func ( t monotonicTime ) Until( now monotonicTime ) time.Duration {
	if t <= now {
		return 0
	}
	delta := uint64( t - now )
	if delta > math.MaxInt64 {
		return time.Duration( math.MaxInt64 )
	}

	return time.Duration( delta )
}

// Before checks whether time instant t is before u.
func ( t monotonicTime ) Before( u monotonicTime ) bool {
	return t < u
}

// Ticks converts a duration into monotonic ticks.
// Negative durations yield zero.
func Ticks( d time.Duration ) uint64 {
	if d < 0 {
		return 0
	}

	return uint64( d )
}
