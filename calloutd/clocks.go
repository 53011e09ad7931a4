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
	"fmt"
	"github.com/TheCount/callout/callout"
	"github.com/TheCount/callout/clock"
	"github.com/TheCount/callout/mbclock"
	"log"
	"time"
)

// configuration keys
const (
	kAddress = "address"
	kBaudRate = "baudrate"
	kClock = "clock"
	kDataBits = "databits"
	kParity = "parity"
	kPollInterval = "pollinterval"
	kSlaveId = "slaveid"
	kStopBits = "stopbits"
	kTimeout = "timeout"
	kType = "type"
)

// configuration values
const (
	vClockTimeout = 5 * time.Second
	vErrorBacklog = 5
	vModbusAscii = "ModbusASCII"
	vModbusRTU = "ModbusRTU"
	vModbusTCP = "ModbusTCP"
	vPollInterval = time.Millisecond
	vSlaveId = 1
	vSystem = "System"
)

// clocks are the clock sources of all processors.
type clocks struct {
	// sources holds one clock source per processor.
	sources []callout.ClockSource

	// bus is the modbus the comparators are attached to,
	// or nil for system clocks.
	bus *mbclock.Bus

	// system holds the system clocks, if any.
	system []*clock.System
}

// getAddrTimeoutConf gets configuration common to
// all modbus types.
func getAddrTimeoutConf( conf config ) ( string, time.Duration, error ) {
	addr, err := conf.GetString( kAddress )
	if err != nil {
		return "<error>", 0, fmt.Errorf( "Unable to read modbus address: %v", err )
	}
	timeout, err := conf.GetDurationOrDefault( kTimeout, vClockTimeout )
	if err != nil {
		return "<error>", 0, fmt.Errorf( "Unable to read modbus timeout: %v", err )
	}

	return addr, timeout, nil
}

// getSerialConf gets configuration for the
// serial modbus types.
func getSerialConf( conf config ) ( int, int, string, int, error ) {
	baudRate, err := conf.GetInt( kBaudRate )
	if err != nil {
		return 0, 0, "<error>", 0, fmt.Errorf( "Unable to read baud rate: %v", err )
	}
	dataBits, err := conf.GetInt( kDataBits )
	if err != nil {
		return 0, 0, "<error>", 0, fmt.Errorf( "Unable to read data bits: %v", err )
	}
	parity, err := conf.GetString( kParity )
	if err != nil {
		return 0, 0, "<error>", 0, fmt.Errorf( "Unable to read parity: %v", err )
	}
	stopBits, err := conf.GetInt( kStopBits )
	if err != nil {
		return 0, 0, "<error>", 0, fmt.Errorf( "Unable to read stop bits: %v", err )
	}

	return baudRate, dataBits, parity, stopBits, nil
}

// newBus creates a modbus according to a configuration.
func newBus( conf config, busType string ) ( *mbclock.Bus, error ) {
	addr, timeout, err := getAddrTimeoutConf( conf )
	if err != nil {
		return nil, err
	}
	if busType == vModbusTCP {
		return mbclock.NewModbusTcpBus( addr, timeout ), nil
	}
	baudRate, dataBits, parity, stopBits, err := getSerialConf( conf )
	if err != nil {
		return nil, err
	}
	if busType == vModbusAscii {
		return mbclock.NewModbusAsciiBus( addr, baudRate, dataBits, parity, stopBits, timeout ), nil
	}

	return mbclock.NewModbusRtuBus( addr, baudRate, dataBits, parity, stopBits, timeout ), nil
}

// buildClocks creates n clock sources according to a configuration.
// Comparators are assigned consecutive slave IDs,
// starting with the configured slave ID.
func buildClocks( conf config, n int ) ( *clocks, error ) {
	clockType, err := conf.GetStringOrDefault( kType, vSystem )
	if err != nil {
		return nil, fmt.Errorf( "Unable to read clock type: %v", err )
	}
	result := &clocks{}
	switch ( clockType ) {
	case vSystem:
		for i := 0; i < n; i++ {
			source := clock.NewSystem()
			result.system = append( result.system, source )
			result.sources = append( result.sources, source )
		}
	case vModbusAscii, vModbusRTU, vModbusTCP:
		slaveId, err := conf.GetUInt8OrDefault( kSlaveId, vSlaveId )
		if err != nil {
			return nil, fmt.Errorf( "Unable to read slave ID: %v", err )
		}
		if int( slaveId ) + n - 1 > 247 {
			return nil, fmt.Errorf( "Slave IDs %d through %d out of range", slaveId, int( slaveId ) + n - 1 )
		}
		if result.bus, err = newBus( conf, clockType ); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			result.sources = append( result.sources, result.bus.Comparator( slaveId + byte( i ) ) )
		}
	default:
		return nil, fmt.Errorf( "Unknown clock type: %s", clockType )
	}

	return result, nil
}

// start starts polling the modbus, if any.
func ( c *clocks ) start( conf config ) error {
	if c.bus == nil {
		return nil
	}
	pollInterval, err := conf.GetDurationOrDefault( kPollInterval, vPollInterval )
	if err != nil {
		return fmt.Errorf( "Unable to read poll interval: %v", err )
	}
	errChan, err := c.bus.Start( pollInterval, vErrorBacklog )
	if err != nil {
		return fmt.Errorf( "Error starting modbus clock: %v", err )
	}
	go watchClockErrors( errChan )

	return nil
}

// stop stops all clocks.
func ( c *clocks ) stop() {
	if c.bus != nil {
		c.bus.Stop()
	}
	for _, source := range c.system {
		source.Stop()
	}
}

// watchClockErrors logs clock errors
// and exits the program if too many errors occur in too short a time.
func watchClockErrors( errchan <-chan error ) {
	const timeout = 5 * time.Minute
	const maxErrCount = 5
	lastCountReset := time.Now()
	errCount := 0
	for err := range errchan {
		log.Printf( "Clock error: %v", err )
		now := time.Now()
		if now.Sub( lastCountReset ) > timeout {
			errCount = 1
			lastCountReset = now
		} else {
			errCount++
		}
		if errCount > maxErrCount {
			log.Fatal( "Too many clock errors in too short a time" )
		}
	}
}
