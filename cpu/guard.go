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

package cpu

// Guard is an active guarded section on one processor.
// A Guard must not be copied once obtained.
type Guard struct {
	// p is the guarded processor.
	p *Processor

	// prior is the preemption disable level saved by Disable.
	prior int32

	// held is cleared by the first call to Restore.
	held bool
}

// Processor returns the guarded processor.
func ( g *Guard ) Processor() *Processor {
	return g.p
}

// Held reports whether the guard has not been restored yet.
func ( g *Guard ) Held() bool {
	return g.held
}

// Restore restores the preemption and interrupt state saved by Disable.
// Only the first call has an effect, so a deferred Restore may be
// combined with an early one on a fast path.
func ( g *Guard ) Restore() {
	if !g.held {
		return
	}
	g.held = false
	g.p.level.Store( g.prior )
	g.p.mu.Unlock()
}
