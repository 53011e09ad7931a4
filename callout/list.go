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

// entryList is an intrusive list of armed entries
// sorted by ascending deadline.
// Entries with equal deadlines are kept in insertion order.
//
// Timer queues hold tens of entries, not thousands,
// so a linear insertion scan is cheaper than keeping a heap.
type entryList struct {
	// head is the entry with the earliest deadline.
	head *CallEntry

	// tail is the entry with the latest deadline.
	tail *CallEntry

	// length is the number of linked entries.
	length int
}

// Len returns the number of entries in the list.
func ( l *entryList ) Len() int {
	return l.length
}

// Front returns the entry with the earliest deadline.
// If the list is empty, nil is returned.
func ( l *entryList ) Front() *CallEntry {
	return l.head
}

// Insert links e into the list according to e.deadline.
// e is placed behind all entries with a deadline not after its own.
// The search starts at the tail since new deadlines tend to be late ones.
func ( l *entryList ) Insert( e *CallEntry ) {
	at := l.tail
	for at != nil && at.deadline > e.deadline {
		at = at.prev
	}

	// Link e behind at, or at the front if at is nil.
	e.prev = at
	if at == nil {
		e.next = l.head
		l.head = e
	} else {
		e.next = at.next
		at.next = e
	}
	if e.next == nil {
		l.tail = e
	} else {
		e.next.prev = e
	}
	l.length++
}

// Remove unlinks e from the list.
// e must be linked into l.
func ( l *entryList ) Remove( e *CallEntry ) {
	if e.prev == nil {
		l.head = e.next
	} else {
		e.prev.next = e.next
	}
	if e.next == nil {
		l.tail = e.prev
	} else {
		e.next.prev = e.prev
	}
	e.next = nil
	e.prev = nil
	l.length--
}
