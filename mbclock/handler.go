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
	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"time"
)

// handler gives the comparators on a bus access to the shared
// modbus connection.
type handler interface {
	// MakeClient addresses the next request to slaveId
	// and returns an appropriate client.
	// The returned client is only good until the next call to
	// MakeClient() as the modbus is a shared resource.
	MakeClient( slaveId byte ) modbus.Client

	// Connect connects to the modbus.
	Connect() error

	// Close closes the connection to the modbus.
	Close() error
}

// transport is a modbus client handler with an explicit connection.
type transport interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// busHandler is a handler on top of one of the modbus client handlers.
type busHandler struct {
	transport

	// slaveId points to the slave ID field of the transport.
	slaveId *byte
}

// MakeClient returns a client for the busHandler.
func ( h *busHandler ) MakeClient( slaveId byte ) modbus.Client {
	*h.slaveId = slaveId
	return modbus.NewClient( h.transport )
}

// serialConfig builds the serial line configuration.
func serialConfig( addr string, baudRate int, dataBits int, parity string, stopBits int, timeout time.Duration ) serial.Config {
	return serial.Config{
		Address: addr,
		BaudRate: baudRate,
		DataBits: dataBits,
		StopBits: stopBits,
		Parity: parity,
		Timeout: timeout,
	}
}

// newAsciiHandler creates a new modbus ASCII handler.
func newAsciiHandler( addr string, baudRate int, dataBits int, parity string, stopBits int, timeout time.Duration ) *busHandler {
	h := modbus.NewASCIIClientHandler( addr )
	h.Config = serialConfig( addr, baudRate, dataBits, parity, stopBits, timeout )

	return &busHandler{ h, &h.SlaveId }
}

// newRtuHandler creates a new modbus RTU handler.
func newRtuHandler( addr string, baudRate int, dataBits int, parity string, stopBits int, timeout time.Duration ) *busHandler {
	h := modbus.NewRTUClientHandler( addr )
	h.Config = serialConfig( addr, baudRate, dataBits, parity, stopBits, timeout )

	return &busHandler{ h, &h.SlaveId }
}

// newTcpHandler creates a new modbus TCP handler.
func newTcpHandler( addr string, timeout time.Duration ) *busHandler {
	h := modbus.NewTCPClientHandler( addr )
	h.Timeout = timeout

	return &busHandler{ h, &h.SlaveId }
}
