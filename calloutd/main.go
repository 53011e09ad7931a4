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

// Command calloutd runs a callout system with scheduler quantum timers
// on every processor and reports its queues and statistics over HTTP.
//
// Usage:
//
//	calloutd config.yaml
package main

import(
	"errors"
	"fmt"
	"github.com/TheCount/callout/callout"
	"log"
	"os"
	"runtime"
)

const(
	kCPUs = "cpus"
)

// daemon is a running callout system.
type daemon struct {
	clocks *clocks
	sys *callout.System
	quanta *quanta
}

// startDaemon boots the callout system according to a configuration.
func startDaemon( conf config ) ( *daemon, error ) {
	cpus, err := conf.GetIntOrDefault( kCPUs, runtime.NumCPU() )
	if err != nil {
		return nil, fmt.Errorf( "Unable to read number of processors: %v", err )
	}
	if cpus <= 0 {
		return nil, fmt.Errorf( "Bad number of processors: %d", cpus )
	}
	clockConf, err := conf.GetSubConfig( kClock )
	if err != nil {
		clockConf = config{}
	}
	result := &daemon{}
	if result.clocks, err = buildClocks( clockConf, cpus ); err != nil {
		return nil, fmt.Errorf( "Unable to build clocks: %v", err )
	}
	if result.sys, err = callout.Initialize( result.clocks.sources ); err != nil {
		result.clocks.stop()
		return nil, fmt.Errorf( "Unable to initialize callouts: %v", err )
	}
	if err = result.clocks.start( clockConf ); err != nil {
		result.clocks.stop()
		return nil, err
	}
	if result.quanta, err = startQuanta( conf, result.sys ); err != nil {
		result.clocks.stop()
		return nil, err
	}

	return result, nil
}

// stop stops the daemon.
func ( d *daemon ) stop() {
	d.quanta.stop()
	d.clocks.stop()
}

func run() error {
	if len( os.Args ) <= 1 {
		return errors.New( "Please provide a config file name on the command line" )
	}
	conf, err := getConfig( os.Args[1] )
	if err != nil {
		return err
	}
	d, err := startDaemon( conf )
	if err != nil {
		return err
	}
	defer d.stop()
	log.Printf( "Callout system running on %d processors", d.sys.NumCPU() )

	return runHttpd( conf, d.sys, d.quanta )
}

func main() {
	if err := run(); err != nil {
		log.Fatal( err )
	}
}
