// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package uaconnect

import (
	"sync"
	"time"
)

// ReadCallback receives the outcome of an asynchronous read. Exactly
// one of Success or Failure is invoked, on the worker goroutine.
type ReadCallback interface {
	Success(value DataValue)
	Failure(status StatusCode)
}

// WriteCallback receives the outcome of an asynchronous write. Exactly
// one of Success or Failure is invoked, on the worker goroutine.
type WriteCallback interface {
	Success()
	Failure(status StatusCode)
}

// MonitoredItemCallback receives data changes for a monitored item.
// Notify is invoked once per data change in delivery order. Failure is
// invoked when the item could not be activated, or when an active item
// is lost because the session died; after a failure the connection
// keeps the registration and re-activates it on the next successful
// reconnect.
//
// Callbacks are compared by identity: registering the same
// (subscription, node, callback) triple twice is a no-op. A callback
// must not call back into the connection synchronously; enqueueing
// async work is safe.
type MonitoredItemCallback interface {
	Notify(node NodeID, value DataValue)
	Failure(status StatusCode)
}

// request is the closed set of commands processed by the worker.
type request interface {
	isRequest()
}

type readRequest struct {
	node NodeID
	cb   ReadCallback
}

type writeRequest struct {
	node  NodeID
	value Variant
	cb    WriteCallback
}

type addItemRequest struct {
	subscription string
	node         NodeID
	cb           MonitoredItemCallback
	params       MonitoredItemParams
}

type removeItemRequest struct {
	subscription string
	node         NodeID
	cb           MonitoredItemCallback
}

func (readRequest) isRequest()       {}
func (writeRequest) isRequest()      {}
func (addItemRequest) isRequest()    {}
func (removeItemRequest) isRequest() {}

// requestQueue is a FIFO queue of pending requests. It has its own
// lock so producers never contend with the session lock, and a wake
// channel so the worker can block while the queue is empty.
type requestQueue struct {
	mu     sync.Mutex
	items  []request
	wake   chan struct{}
	closed bool
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		wake: make(chan struct{}, 1),
	}
}

// push appends a request and wakes the worker. It returns false if the
// queue has been closed.
func (q *requestQueue) push(r request) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// pop removes and returns the oldest request, or nil if the queue is
// empty.
func (q *requestQueue) pop() request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	r := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return r
}

// popWait removes and returns the oldest request, blocking up to
// timeout when the queue is empty. It returns nil on timeout or after
// close.
func (q *requestQueue) popWait(timeout time.Duration) request {
	if r := q.pop(); r != nil {
		return r
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.wake:
		return q.pop()
	case <-timer.C:
		return nil
	}
}

// len returns the number of pending requests.
func (q *requestQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close marks the queue closed and drops all pending requests. Their
// callbacks are never invoked; shutdown abandons queued work.
func (q *requestQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}
