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
	"errors"
	"fmt"
	"github.com/TheCount/callout/callout"
	"log"
	"net/http"
	"time"
)

const(
	dHttpTimeout = 10 * time.Second
	dMaxHeaderBytes = 1024
	dMaxTries = 5
	dTryDuration = time.Minute
	kAddresses = "listenAddresses"
	kHttpd = "httpd"
	kHttpTimeout = "timeout"
	pQueues = "/queues"
	pStats = "/stats"
)

// statsResponse is the response to a statistics request.
type statsResponse struct {
	Total callout.Stats `json:"total"`
	QuantumExpiries uint64 `json:"quantumExpiries"`
	CPUs []callout.Stats `json:"cpus"`
}

// queueResponse describes the timer queue of one processor.
type queueResponse struct {
	CPU int `json:"cpu"`
	Register callout.Register `json:"register"`
	Pending []uint64 `json:"pending"`
	QuantumExpiries uint64 `json:"quantumExpiries"`
}

// handler is a generic handler for HTTP requests
type handler struct {
	sys *callout.System
	quanta *quanta
}

// writeJSON writes obj as JSON response.
func writeJSON( w http.ResponseWriter, obj interface{} ) {
	blob, err := json.Marshal( obj )
	if err != nil {
		w.WriteHeader( http.StatusInternalServerError )
		log.Printf( "Error marshalling JSON (this should not happen): %v", err )
		return
	}
	w.Header().Set( "Content-Type", "application/json" )
	_, err = w.Write( blob )
	if err != nil {
		log.Printf( "Error writing JSON data to client: %v", err )
	}
}

// statsHandler is a handler for HTTP requests for callout statistics
type statsHandler handler

// ServeHTTP reports callout statistics
func ( h statsHandler ) ServeHTTP( w http.ResponseWriter, r *http.Request ) {
	if r.Method != http.MethodGet {
		w.WriteHeader( http.StatusMethodNotAllowed )
		return
	}
	response := statsResponse{
		Total: h.sys.Stats(),
		QuantumExpiries: h.quanta.expiries.Sum(),
	}
	for i := 0; i < h.sys.NumCPU(); i++ {
		response.CPUs = append( response.CPUs, h.sys.CPUStats( i ) )
	}
	writeJSON( w, response )
}

// queuesHandler is a handler for HTTP requests for the timer queues
type queuesHandler handler

// ServeHTTP reports the timer queues
func ( h queuesHandler ) ServeHTTP( w http.ResponseWriter, r *http.Request ) {
	if r.Method != http.MethodGet {
		w.WriteHeader( http.StatusMethodNotAllowed )
		return
	}
	response := make( []queueResponse, 0, h.sys.NumCPU() )
	for i := 0; i < h.sys.NumCPU(); i++ {
		q := h.sys.Queue( i )
		response = append( response, queueResponse{
			CPU: i,
			Register: q.Register(),
			Pending: q.Pending(),
			QuantumExpiries: h.quanta.expiries.Load( i ),
		} )
	}
	writeJSON( w, response )
}

// newMux creates the request multiplexer
func newMux( sys *callout.System, q *quanta ) *http.ServeMux {
	h := handler{ sys, q }
	result := http.NewServeMux()
	result.Handle( pStats, statsHandler( h ) )
	result.Handle( pQueues, queuesHandler( h ) )

	return result
}

// runServer starts one HTTP server
func runServer( addr string, timeout time.Duration, mux http.Handler, errchan chan<- error ) {
	server := http.Server{
		Addr: addr,
		Handler: mux,
		ReadTimeout: timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout: timeout,
		IdleTimeout: timeout,
		MaxHeaderBytes: dMaxHeaderBytes,
	}
	relevantTime := time.Now()
	relevantFailures := 0
	for relevantFailures < dMaxTries {
		relevantFailures++
		log.Printf( "HTTP server '%s' error %d of %d: %v", addr, relevantFailures, dMaxTries, server.ListenAndServe() )
		now := time.Now()
		if now.Sub( relevantTime ) > dTryDuration {
			log.Printf( "HTTP: resetting failure counter for server '%s'", addr )
			relevantTime = now
			relevantFailures = 0
		}
		time.Sleep( time.Second )
	}

	errchan <- fmt.Errorf( "Server '%s' had too many failures in too little time", addr )
}

// runHttpd starts all HTTP server(s)
// and returns once one of them has failed for good.
func runHttpd( conf config, sys *callout.System, q *quanta ) error {
	httpConf, err := conf.GetSubConfig( kHttpd )
	if err != nil {
		return fmt.Errorf( "Unable to obtain httpd configuration: %v", err )
	}
	addrList, err := httpConf.GetList( kAddresses )
	if err != nil {
		return fmt.Errorf( "Unable to obtain HTTP server address list: %v", err )
	}
	if len( addrList ) == 0 {
		return errors.New( "No HTTP server addresses configured" )
	}
	timeout, err := httpConf.GetDurationOrDefault( kHttpTimeout, dHttpTimeout )
	if err != nil {
		return fmt.Errorf( "Unable to obtain HTTP timeout: %v", err )
	}
	mux := newMux( sys, q )
	errchan := make( chan error )
	for _, addr := range addrList {
		go runServer( addr, timeout, mux, errchan )
	}

	return <-errchan
}
