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

package mbclock

import(
	"encoding/binary"
	"errors"
	"github.com/TheCount/callout/callout"
	"github.com/goburrow/modbus"
	"sync"
	"testing"
	"time"
)

// device simulates a comparator device.
type device struct {
	mu sync.Mutex
	counter uint64
	compare uint64
	control uint16
	fail bool
}

// update latches the status bit.
// d.mu must be held.
func ( d *device ) update() {
	if d.control & ControlEnable != 0 && d.counter >= d.compare {
		d.control |= ControlStatus
	}
}

// advance advances the device counter.
func ( d *device ) advance( delta uint64 ) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counter += delta
	d.update()
}

// setFail makes requests fail.
func ( d *device ) setFail( fail bool ) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

// registers returns the compare and control registers.
func ( d *device ) registers() ( uint64, uint16 ) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.compare, d.control
}

var errDevice = errors.New( "device failure" )

// deviceClient is a modbus client talking to a device.
// Methods not used by comparators are left unimplemented.
type deviceClient struct {
	modbus.Client
	d *device
}

func ( c *deviceClient ) ReadInputRegisters( address, quantity uint16 ) ( []byte, error ) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.d.fail {
		return nil, errDevice
	}
	if address != counterAddress || quantity != wordsPerTick {
		return nil, errors.New( "bad input register access" )
	}
	result := make( []byte, 8 )
	binary.BigEndian.PutUint64( result, c.d.counter )
	return result, nil
}

func ( c *deviceClient ) ReadHoldingRegisters( address, quantity uint16 ) ( []byte, error ) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.d.fail {
		return nil, errDevice
	}
	if address != controlAddress || quantity != 1 {
		return nil, errors.New( "bad holding register access" )
	}
	result := make( []byte, 2 )
	binary.BigEndian.PutUint16( result, c.d.control )
	return result, nil
}

func ( c *deviceClient ) WriteSingleRegister( address, value uint16 ) ( []byte, error ) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.d.fail {
		return nil, errDevice
	}
	if address != controlAddress {
		return nil, errors.New( "bad holding register write" )
	}
	c.d.control = value &^ ControlStatus
	c.d.update()
	return []byte{ byte( value >> 8 ), byte( value ) }, nil
}

func ( c *deviceClient ) WriteMultipleRegisters( address, quantity uint16, value []byte ) ( []byte, error ) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.d.fail {
		return nil, errDevice
	}
	if address != compareAddress || quantity != wordsPerTick || len( value ) != 8 {
		return nil, errors.New( "bad compare write" )
	}
	c.d.compare = binary.BigEndian.Uint64( value )
	c.d.control &^= ControlStatus
	c.d.update()
	return []byte{ 0, byte( address ), 0, byte( quantity ) }, nil
}

// testHandler is a handler for a bus of simulated devices.
type testHandler struct {
	modbus.ClientHandler
	devices map[byte]*device
	connects int
	closes int
}

func newTestHandler( slaveIds ...byte ) *testHandler {
	result := &testHandler{
		devices: make( map[byte]*device ),
	}
	for _, id := range slaveIds {
		result.devices[id] = &device{}
	}
	return result
}

func ( h *testHandler ) MakeClient( slaveId byte ) modbus.Client {
	return &deviceClient{ d: h.devices[slaveId] }
}

func ( h *testHandler ) Connect() error {
	h.connects++
	return nil
}

func ( h *testHandler ) Close() error {
	h.closes++
	return nil
}

// counterHandler counts interrupts.
type counterHandler struct {
	mu sync.Mutex
	n int
}

func ( h *counterHandler ) interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.n++
}

func ( h *counterHandler ) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

func TestComparatorNow( t *testing.T ) {
	h := newTestHandler( 1 )
	b := newBus( h )
	c := b.Comparator( 1 )
	if c.SlaveId() != 1 {
		t.Errorf( "Bad slave ID %d", c.SlaveId() )
	}
	h.devices[1].advance( 42 )
	if now := c.Now(); now != 42 {
		t.Errorf( "Expected time 42, got %d", now )
	}
	h.devices[1].setFail( true )
	h.devices[1].advance( 8 )
	if now := c.Now(); now != 42 {
		t.Errorf( "Expected last known time 42 on failure, got %d", now )
	}
	h.devices[1].setFail( false )
	if now := c.Now(); now != 50 {
		t.Errorf( "Expected time 50, got %d", now )
	}
}

func TestComparatorFires( t *testing.T ) {
	h := newTestHandler( 1 )
	b := newBus( h )
	c := b.Comparator( 1 )
	var counter counterHandler
	c.Attach( counter.interrupt )
	c.Arm( 100 )
	compare, control := h.devices[1].registers()
	if compare != 100 || control != ControlEnable {
		t.Fatalf( "Bad registers after arm: compare %d, control %d", compare, control )
	}
	b.poll()
	if counter.count() != 0 {
		t.Error( "Comparator fired early" )
	}
	h.devices[1].advance( 100 )
	b.poll()
	if counter.count() != 1 {
		t.Errorf( "Expected one interrupt, got %d", counter.count() )
	}
	if _, control = h.devices[1].registers(); control != 0 {
		t.Errorf( "Expiry not acknowledged, control %d", control )
	}
	b.poll()
	if counter.count() != 1 {
		t.Errorf( "Interrupt delivered twice" )
	}
}

func TestComparatorPastDeadline( t *testing.T ) {
	h := newTestHandler( 1 )
	b := newBus( h )
	c := b.Comparator( 1 )
	var counter counterHandler
	c.Attach( counter.interrupt )
	h.devices[1].advance( 50 )
	c.Arm( 10 )
	b.poll()
	if counter.count() != 1 {
		t.Errorf( "Expected one interrupt for past deadline, got %d", counter.count() )
	}
}

func TestComparatorDisarm( t *testing.T ) {
	h := newTestHandler( 1 )
	b := newBus( h )
	c := b.Comparator( 1 )
	var counter counterHandler
	c.Attach( counter.interrupt )
	c.Arm( 100 )
	c.Disarm()
	h.devices[1].advance( 200 )
	b.poll()
	if counter.count() != 0 {
		t.Error( "Disarmed comparator fired" )
	}
}

func TestComparatorMasked( t *testing.T ) {
	h := newTestHandler( 1 )
	b := newBus( h )
	c := b.Comparator( 1 )
	var counter counterHandler
	c.Attach( counter.interrupt )
	d := h.devices[1]
	d.mu.Lock()
	d.control = ControlEnable | ControlMask | ControlStatus
	d.mu.Unlock()
	b.poll()
	if counter.count() != 0 {
		t.Error( "Masked comparator fired" )
	}
}

func TestComparatorsShareBus( t *testing.T ) {
	h := newTestHandler( 1, 2 )
	b := newBus( h )
	c1 := b.Comparator( 1 )
	c2 := b.Comparator( 2 )
	var counter1, counter2 counterHandler
	c1.Attach( counter1.interrupt )
	c2.Attach( counter2.interrupt )
	c1.Arm( 10 )
	c2.Arm( 20 )
	h.devices[1].advance( 15 )
	h.devices[2].advance( 15 )
	b.poll()
	if counter1.count() != 1 || counter2.count() != 0 {
		t.Errorf( "Bad interrupt counts %d, %d", counter1.count(), counter2.count() )
	}
}

func TestBusStartStop( t *testing.T ) {
	h := newTestHandler( 1 )
	b := newBus( h )
	c := b.Comparator( 1 )
	if _, err := b.Start( 0, 1 ); err == nil {
		t.Error( "Bad poll interval accepted" )
	}
	if _, err := b.Start( time.Millisecond, -1 ); err == nil {
		t.Error( "Bad error backlog accepted" )
	}
	errChan, err := b.Start( time.Millisecond, 1 )
	if err != nil {
		t.Fatalf( "Unable to start bus: %v", err )
	}
	if _, err := b.Start( time.Millisecond, 1 ); err == nil {
		t.Error( "Bus started twice" )
	}
	fired := make( chan struct{}, 1 )
	c.Attach( func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	} )
	c.Arm( 5 )
	h.devices[1].advance( 5 )
	select {
	case <-fired:
	case <-time.After( 5 * time.Second ):
		t.Fatal( "Comparator not polled" )
	}
	h.devices[1].setFail( true )
	select {
	case err := <-errChan:
		if err == nil {
			t.Error( "Nil error reported" )
		}
	case <-time.After( 5 * time.Second ):
		t.Fatal( "No error reported" )
	}
	b.Stop()
	for range errChan {
	}
	if h.connects != 1 || h.closes != 1 {
		t.Errorf( "Bad handler usage: %d connects, %d closes", h.connects, h.closes )
	}
}

func TestCalloutOnComparator( t *testing.T ) {
	h := newTestHandler( 1 )
	b := newBus( h )
	c := b.Comparator( 1 )
	sys, err := callout.Initialize( []callout.ClockSource{ c } )
	if err != nil {
		t.Fatalf( "Unable to initialize callouts: %v", err )
	}
	fired := 0
	var e callout.CallEntry
	e.Initialize( func( param0, param1 any ) {
		fired++
	}, nil )
	q := sys.Queue( 0 )
	q.Enter( &e, 30 )
	if compare, control := h.devices[1].registers(); compare != 30 || control != ControlEnable {
		t.Fatalf( "Comparator not programmed: compare %d, control %d", compare, control )
	}
	h.devices[1].advance( 29 )
	b.poll()
	if fired != 0 {
		t.Fatal( "Callout fired early" )
	}
	h.devices[1].advance( 1 )
	b.poll()
	if fired != 1 {
		t.Errorf( "Expected callout to fire once, fired %d times", fired )
	}
	if _, control := h.devices[1].registers(); control != 0 {
		t.Errorf( "Comparator left enabled on empty queue, control %d", control )
	}
}
