// Copyright (C) 2018 Rob Caelers <rob.caelers@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package dfu

import (
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// router couples one outstanding control-point request to the next inbound
// notification. At most one request may be outstanding at a time: request
// registers a single-item rendezvous slot before writing, and the
// notification handler fulfils it. A notification that arrives with no
// slot registered is discarded with a warning, never buffered.
//
// The notification handler runs on whatever goroutine the transport invokes
// it from (the underlying BLE stack's event loop), concurrently with
// request's own goroutine, so slot access is guarded by mu.
type router struct {
	transport Transport
	timeout   time.Duration

	mu   sync.Mutex
	slot chan []byte
}

// newRouter wires a router to transport and subscribes it to control-point
// notifications for the lifetime of the engine.
func newRouter(transport Transport, timeout time.Duration) (*router, error) {
	if timeout <= 0 {
		timeout = DefaultControlPointTimeout
	}

	r := &router{
		transport: transport,
		timeout:   timeout,
	}

	err := transport.SubscribeControlPoint(func(data []byte) {
		r.deliver(data)
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// deliver is the notification handler. It fulfils the outstanding slot if
// one is registered, or discards the notification with a warning.
func (r *router) deliver(data []byte) {
	r.mu.Lock()
	slot := r.slot
	r.slot = nil
	r.mu.Unlock()

	if slot == nil {
		jww.WARN.Printf("dfu: discarding notification with no outstanding request: % x", data)
		return
	}
	slot <- data
}

// request writes a control-point request and returns the raw notification
// bytes that answer it, or a *TimeoutError if none arrives within the
// router's deadline. Exactly one request may be outstanding at a time; request
// must not be called again before a prior call returns.
func (r *router) request(opcode Opcode, args []byte) ([]byte, error) {
	slot := make(chan []byte, 1)
	r.mu.Lock()
	r.slot = slot
	r.mu.Unlock()

	frame := encodeRequest(opcode, args)
	if err := r.transport.WriteControlPoint(frame); err != nil {
		r.mu.Lock()
		r.slot = nil
		r.mu.Unlock()
		return nil, err
	}

	select {
	case data := <-slot:
		return data, nil
	case <-time.After(r.timeout):
		r.mu.Lock()
		r.slot = nil
		r.mu.Unlock()
		return nil, &TimeoutError{Opcode: opcode}
	}
}

// close tears down the control-point subscription.
func (r *router) close() error {
	return r.transport.UnsubscribeControlPoint()
}
