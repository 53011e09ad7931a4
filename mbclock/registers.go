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
	"fmt"
	"github.com/goburrow/modbus"
)

// Register map of a comparator device.
// The layout follows the ARM generic timer:
// a free-running counter, a compare value and a control register.
const(
	// counterAddress is the first of four input registers
	// holding the big-endian 64-bit counter.
	counterAddress = 0

	// compareAddress is the first of four holding registers
	// holding the big-endian 64-bit compare value.
	compareAddress = 0

	// controlAddress is the holding register controlling the comparator.
	controlAddress = 4

	// wordsPerTick is the number of registers making up a tick value.
	wordsPerTick = 4
)

// Control register bits.
const(
	// ControlEnable enables the comparator.
	ControlEnable = 1 << 0

	// ControlMask masks the comparator interrupt.
	ControlMask = 1 << 1

	// ControlStatus is set by the device once the counter has reached
	// the compare value while the comparator is enabled.
	ControlStatus = 1 << 2
)

// readCounter reads the device's free-running counter.
func readCounter( client modbus.Client ) ( uint64, error ) {
	result, err := client.ReadInputRegisters( counterAddress, wordsPerTick )
	if err != nil {
		return 0, fmt.Errorf( "Unable to read counter: %v", err )
	}
	if len( result ) != 2 * wordsPerTick {
		return 0, fmt.Errorf( "Counter read returned %d bytes, expected %d", len( result ), 2 * wordsPerTick )
	}

	return binary.BigEndian.Uint64( result ), nil
}

// writeCompare writes the device's compare value.
func writeCompare( client modbus.Client, deadline uint64 ) error {
	var values [2 * wordsPerTick]byte
	binary.BigEndian.PutUint64( values[:], deadline )
	if _, err := client.WriteMultipleRegisters( compareAddress, wordsPerTick, values[:] ); err != nil {
		return fmt.Errorf( "Unable to write compare value %d: %v", deadline, err )
	}

	return nil
}

// readControl reads the device's control register.
func readControl( client modbus.Client ) ( uint16, error ) {
	result, err := client.ReadHoldingRegisters( controlAddress, 1 )
	if err != nil {
		return 0, fmt.Errorf( "Unable to read control register: %v", err )
	}
	if len( result ) != 2 {
		return 0, fmt.Errorf( "Control read returned %d bytes, expected 2", len( result ) )
	}

	return binary.BigEndian.Uint16( result ), nil
}

// writeControl writes the device's control register.
func writeControl( client modbus.Client, value uint16 ) error {
	if _, err := client.WriteSingleRegister( controlAddress, value ); err != nil {
		return fmt.Errorf( "Unable to write control register: %v", err )
	}

	return nil
}
