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

// Package mbclock provides clock sources backed by comparator devices
// on a modbus.
//
// Each device offers a free-running counter and a compare register.
// The bus is polled for expired comparators; an expired comparator is
// acknowledged and its interrupt handler invoked on the polling goroutine.
package mbclock

import(
	"errors"
	"fmt"
	"github.com/goburrow/modbus"
	"log"
	"sync"
	"time"
)

// Bus is a modbus with comparator devices attached.
type Bus struct {
	// handler is the modbus handler.
	handler handler

	// mu serialises requests on the bus
	// and protects errChan.
	mu sync.Mutex

	// comparators are the comparators attached to the bus.
	comparators []*Comparator

	// errChan is a channel used by the bus to report errors.
	errChan chan<- error

	// stopChan is closed to stop polling.
	stopChan chan struct{}

	// waitGroup is used to control poller start/stop.
	waitGroup sync.WaitGroup

	// isRunning indicates whether the bus is currently polled.
	isRunning bool
}

// newBus creates a new bus on handler h.
func newBus( h handler ) *Bus {
	return &Bus{
		handler: h,
	}
}

// NewModbusAsciiBus creates a new modbus ASCII bus.
func NewModbusAsciiBus( addr string, baudRate int, dataBits int, parity string, stopBits int, timeout time.Duration ) *Bus {
	return newBus( newAsciiHandler( addr, baudRate, dataBits, parity, stopBits, timeout ) )
}

// NewModbusRtuBus creates a new modbus RTU bus.
func NewModbusRtuBus( addr string, baudRate int, dataBits int, parity string, stopBits int, timeout time.Duration ) *Bus {
	return newBus( newRtuHandler( addr, baudRate, dataBits, parity, stopBits, timeout ) )
}

// NewModbusTcpBus creates a new modbus TCP bus.
func NewModbusTcpBus( addr string, timeout time.Duration ) *Bus {
	return newBus( newTcpHandler( addr, timeout ) )
}

// Comparator attaches the comparator device with the given slave ID.
// Comparators must be attached before the bus is started.
func ( b *Bus ) Comparator( slaveId byte ) *Comparator {
	result := &Comparator{
		bus: b,
		slaveId: slaveId,
	}
	b.comparators = append( b.comparators, result )

	return result
}

// request runs fn on a client for slaveId with the bus locked.
// Errors returned by fn are reported and passed on.
func ( b *Bus ) request( slaveId byte, fn func( modbus.Client ) error ) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := fn( b.handler.MakeClient( slaveId ) )
	if err != nil {
		err = fmt.Errorf( "Comparator %d: %v", slaveId, err )
		b.reportLocked( err )
	}

	return err
}

// reportLocked reports an error without blocking.
// b.mu must be held.
func ( b *Bus ) reportLocked( err error ) {
	if b.errChan == nil {
		log.Printf( "Modbus clock error: %v", err )
		return
	}
	select {
	case b.errChan <- err:

	default:
		log.Printf( "Modbus clock error backlog full, dropping: %v", err )
	}
}

// poll polls all comparators once.
func ( b *Bus ) poll() {
	for _, c := range b.comparators {
		c.poll()
	}
}

// run polls the bus until stopChan is closed.
// This is meant to be called as a new goroutine.
func ( b *Bus ) run( pollInterval time.Duration, stopChan <-chan struct{} ) {
	defer b.waitGroup.Done()
	ticker := time.NewTicker( pollInterval )
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			b.mu.Lock()
			close( b.errChan )
			b.errChan = nil
			b.mu.Unlock()
			return

		case <-ticker.C:
			b.poll()
		}
	}
}

// Start connects to the bus and starts polling the comparators.
// A channel reporting bus errors is returned.
// The buffer size of this channel is given by error backlog.
// On success, the second return value is nil.
// Otherwise, it is an appropriate error message.
func ( b *Bus ) Start( pollInterval time.Duration, errorBacklog int ) ( <-chan error, error ) {
	if b.isRunning {
		return nil, errors.New( "Bus already running" )
	}
	if errorBacklog < 0 {
		return nil, fmt.Errorf( "Bad error backlog: %d", errorBacklog )
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf( "Bad poll interval: %v", pollInterval )
	}
	if err := b.handler.Connect(); err != nil {
		return nil, fmt.Errorf( "Unable to connect to modbus: %v", err )
	}
	errChan := make( chan error, errorBacklog )
	b.mu.Lock()
	b.errChan = errChan
	b.mu.Unlock()
	b.stopChan = make( chan struct{} )
	b.waitGroup = sync.WaitGroup{}
	b.waitGroup.Add( 1 )
	go b.run( pollInterval, b.stopChan )
	b.isRunning = true

	return errChan, nil
}

// SignalStop signals the poller to stop,
// but does not wait for it to actually stop.
// Use the WaitStop method for that.
func ( b *Bus ) SignalStop() {
	if b.isRunning {
		close( b.stopChan )
	}
}

// WaitStop waits for the poller to stop
// after a call to SignalStop and closes the bus.
// Without a call to SignalStop,
// WaitStop will wait forever.
func ( b *Bus ) WaitStop() {
	if b.isRunning {
		b.waitGroup.Wait()
		b.isRunning = false
		if err := b.handler.Close(); err != nil {
			log.Printf( "Unable to close modbus: %v", err )
		}
	}
}

// Stop stops the poller.
// It combines SignalStop and WaitStop into one method.
func ( b *Bus ) Stop() {
	b.SignalStop()
	b.WaitStop()
}

// Comparator is a clock source backed by a comparator device.
// Ticks are counter increments of the device.
type Comparator struct {
	// bus is the bus the device is attached to.
	bus *Bus

	// slaveId is the device's slave ID.
	slaveId byte

	// mu protects the fields below.
	mu sync.Mutex

	// last is the latest counter value read.
	last uint64

	// handler is the interrupt handler.
	handler func()
}

// SlaveId returns the device's slave ID.
func ( c *Comparator ) SlaveId() byte {
	return c.slaveId
}

// Now reads the device counter.
// If the device cannot be read, the latest successfully read value is
// returned, so time never moves backwards.
func ( c *Comparator ) Now() uint64 {
	var now uint64
	err := c.bus.request( c.slaveId, func( client modbus.Client ) error {
		var err error
		now, err = readCounter( client )
		return err
	} )
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil && now > c.last {
		c.last = now
	}

	return c.last
}

// Arm programs the compare value and enables the comparator.
func ( c *Comparator ) Arm( deadline uint64 ) {
	c.bus.request( c.slaveId, func( client modbus.Client ) error {
		if err := writeCompare( client, deadline ); err != nil {
			return err
		}
		return writeControl( client, ControlEnable )
	} )
}

// Disarm disables the comparator.
func ( c *Comparator ) Disarm() {
	c.bus.request( c.slaveId, func( client modbus.Client ) error {
		return writeControl( client, 0 )
	} )
}

// Attach installs the interrupt handler.
func ( c *Comparator ) Attach( handler func() ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// poll checks whether the comparator has expired.
// An expired comparator is disabled, which acknowledges the expiry,
// and the interrupt handler runs.
func ( c *Comparator ) poll() {
	expired := false
	c.bus.request( c.slaveId, func( client modbus.Client ) error {
		control, err := readControl( client )
		if err != nil {
			return err
		}
		if control & ControlEnable == 0 || control & ControlMask != 0 || control & ControlStatus == 0 {
			return nil
		}
		if err := writeControl( client, 0 ); err != nil {
			return err
		}
		expired = true
		return nil
	} )
	if !expired {
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler()
	}
}
