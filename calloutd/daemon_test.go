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
	"encoding/json"
	"github.com/TheCount/callout/callout"
	"github.com/TheCount/callout/clock"
	"github.com/TheCount/callout/mbclock"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBuildSystemClocks( t *testing.T ) {
	c, err := buildClocks( config{}, 2 )
	if err != nil {
		t.Fatalf( "Unable to build system clocks: %v", err )
	}
	defer c.stop()
	if len( c.sources ) != 2 || len( c.system ) != 2 || c.bus != nil {
		t.Errorf( "Bad system clocks: %d sources, %d system clocks", len( c.sources ), len( c.system ) )
	}
	if err = c.start( config{} ); err != nil {
		t.Errorf( "Unable to start system clocks: %v", err )
	}
}

func TestBuildModbusClocks( t *testing.T ) {
	conf := config{
		kType: vModbusTCP,
		kAddress: "localhost:502",
		kSlaveId: 3,
	}
	c, err := buildClocks( conf, 2 )
	if err != nil {
		t.Fatalf( "Unable to build modbus clocks: %v", err )
	}
	if c.bus == nil || len( c.sources ) != 2 {
		t.Fatalf( "Bad modbus clocks: %d sources", len( c.sources ) )
	}
	for i, source := range c.sources {
		comparator, ok := source.( *mbclock.Comparator )
		if !ok {
			t.Fatalf( "Clock source %d is not a comparator", i )
		}
		if comparator.SlaveId() != byte( 3 + i ) {
			t.Errorf( "Comparator %d has slave ID %d", i, comparator.SlaveId() )
		}
	}
}

func TestBuildClocksErrors( t *testing.T ) {
	if _, err := buildClocks( config{ kType: "Sundial" }, 1 ); err == nil {
		t.Error( "Unknown clock type accepted" )
	}
	if _, err := buildClocks( config{ kType: vModbusTCP }, 1 ); err == nil {
		t.Error( "Modbus clock without address accepted" )
	}
	if _, err := buildClocks( config{ kType: vModbusRTU, kAddress: "/dev/ttyS0" }, 1 ); err == nil {
		t.Error( "Serial modbus clock without serial configuration accepted" )
	}
	if _, err := buildClocks( config{ kType: vModbusTCP, kAddress: "localhost:502", kSlaveId: 247 }, 2 ); err == nil {
		t.Error( "Slave IDs out of range accepted" )
	}
}

// newSimulatedSystem creates a callout system on n simulated clocks.
func newSimulatedSystem( t *testing.T, n int ) ( *callout.System, []*clock.Simulated ) {
	var sims []*clock.Simulated
	var sources []callout.ClockSource
	for i := 0; i < n; i++ {
		sim := clock.NewSimulated( 0 )
		sims = append( sims, sim )
		sources = append( sources, sim )
	}
	sys, err := callout.Initialize( sources )
	if err != nil {
		t.Fatalf( "Unable to initialize callouts: %v", err )
	}

	return sys, sims
}

func TestQuanta( t *testing.T ) {
	sys, sims := newSimulatedSystem( t, 2 )
	q, err := startQuanta( config{ kQuantum: map[string]interface{}{ kTicks: 10 } }, sys )
	if err != nil {
		t.Fatalf( "Unable to start quanta: %v", err )
	}
	for i, sim := range sims {
		if deadline, armed := sim.Deadline(); !armed || deadline != 10 {
			t.Errorf( "Clock %d not armed for first quantum: %d, %v", i, deadline, armed )
		}
	}
	sims[0].Advance( 10 )
	if q.expiries.Load( 0 ) != 1 || q.expiries.Load( 1 ) != 0 {
		t.Errorf( "Bad quantum expiries %d, %d", q.expiries.Load( 0 ), q.expiries.Load( 1 ) )
	}
	if pending := sys.Queue( 0 ).Pending(); len( pending ) != 1 || pending[0] != 20 {
		t.Errorf( "Quantum not re-armed: %v", pending )
	}
	sims[0].Advance( 25 )
	if q.expiries.Load( 0 ) != 2 {
		t.Errorf( "Expected two quantum expiries, got %d", q.expiries.Load( 0 ) )
	}
	if pending := sys.Queue( 0 ).Pending(); len( pending ) != 1 || pending[0] != 45 {
		t.Errorf( "Quantum not re-armed relative to now: %v", pending )
	}
	q.stop()
	for i := 0; i < sys.NumCPU(); i++ {
		if sys.Queue( i ).Len() != 0 {
			t.Errorf( "Quantum of processor %d not cancelled", i )
		}
	}
}

func TestQuantaBadConfig( t *testing.T ) {
	sys, _ := newSimulatedSystem( t, 1 )
	if _, err := startQuanta( config{ kQuantum: map[string]interface{}{ kTicks: 0 } }, sys ); err == nil {
		t.Error( "Zero quantum accepted" )
	}
	if _, err := startQuanta( config{ kQuantum: map[string]interface{}{ kTicks: "long" } }, sys ); err == nil {
		t.Error( "Bad quantum accepted" )
	}
}

func TestQuantumSaturates( t *testing.T ) {
	sys, sims := newSimulatedSystem( t, 1 )
	sims[0].Set( callout.EndOfAllTime - 5 )
	if _, err := startQuanta( config{ kQuantum: map[string]interface{}{ kTicks: 10 } }, sys ); err != nil {
		t.Fatalf( "Unable to start quanta: %v", err )
	}
	if pending := sys.Queue( 0 ).Pending(); len( pending ) != 1 || pending[0] != callout.EndOfAllTime - 1 {
		t.Errorf( "Quantum deadline not saturated: %v", pending )
	}
}

func TestHttpHandlers( t *testing.T ) {
	sys, sims := newSimulatedSystem( t, 2 )
	q, err := startQuanta( config{ kQuantum: map[string]interface{}{ kTicks: 10 } }, sys )
	if err != nil {
		t.Fatalf( "Unable to start quanta: %v", err )
	}
	sims[1].Advance( 12 )
	mux := newMux( sys, q )

	rec := httptest.NewRecorder()
	mux.ServeHTTP( rec, httptest.NewRequest( http.MethodGet, pStats, nil ) )
	if rec.Code != http.StatusOK {
		t.Fatalf( "Bad stats status %d", rec.Code )
	}
	var stats statsResponse
	if err := json.Unmarshal( rec.Body.Bytes(), &stats ); err != nil {
		t.Fatalf( "Unable to decode stats: %v", err )
	}
	if stats.Total.Fired != 1 || stats.QuantumExpiries != 1 || len( stats.CPUs ) != 2 {
		t.Errorf( "Bad stats: %+v", stats )
	}
	if stats.CPUs[1].LateTicks != 2 || stats.CPUs[0].Fired != 0 {
		t.Errorf( "Bad per-processor stats: %+v", stats.CPUs )
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP( rec, httptest.NewRequest( http.MethodGet, pQueues, nil ) )
	if rec.Code != http.StatusOK {
		t.Fatalf( "Bad queues status %d", rec.Code )
	}
	var queues []queueResponse
	if err := json.Unmarshal( rec.Body.Bytes(), &queues ); err != nil {
		t.Fatalf( "Unable to decode queues: %v", err )
	}
	if len( queues ) != 2 {
		t.Fatalf( "Expected two queues, got %d", len( queues ) )
	}
	if !queues[0].Register.IsSet || queues[0].Register.Deadline != 10 || len( queues[0].Pending ) != 1 {
		t.Errorf( "Bad queue 0: %+v", queues[0] )
	}
	if queues[1].Register.Deadline != 22 || queues[1].QuantumExpiries != 1 {
		t.Errorf( "Bad queue 1: %+v", queues[1] )
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP( rec, httptest.NewRequest( http.MethodPost, pStats, nil ) )
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf( "POST accepted with status %d", rec.Code )
	}
}

func TestStartDaemon( t *testing.T ) {
	d, err := startDaemon( config{ kCPUs: 2 } )
	if err != nil {
		t.Fatalf( "Unable to start daemon: %v", err )
	}
	if d.sys.NumCPU() != 2 {
		t.Errorf( "Expected two processors, got %d", d.sys.NumCPU() )
	}
	d.stop()
	if _, err := startDaemon( config{ kCPUs: 0 } ); err == nil {
		t.Error( "Zero processors accepted" )
	}
}
