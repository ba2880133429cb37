// Package dispatch drives the server's main tick: accept, authenticate,
// receive, drain the send queue, heartbeat, console input, sleep.
package dispatch

import (
	"sync"

	"github.com/ocx/drawserver/internal/session"
)

// outboundMessage is one queued (handle, already-encoded frame) pair.
type outboundMessage struct {
	handle session.Handle
	frame  []byte
}

// SendQueue is a multi-producer/single-consumer queue: request handlers
// enqueue responses, and the tick goroutine alone drains them. Its mutex
// makes Enqueue and Broadcast safe to call from any goroutine.
type SendQueue struct {
	mu    sync.Mutex
	items []outboundMessage
}

// NewSendQueue returns an empty queue.
func NewSendQueue() *SendQueue {
	return &SendQueue{}
}

// Enqueue appends one message addressed to handle.
func (q *SendQueue) Enqueue(handle session.Handle, frame []byte) {
	q.mu.Lock()
	q.items = append(q.items, outboundMessage{handle: handle, frame: frame})
	q.mu.Unlock()
}

// Broadcast enqueues the same frame to every handle in handles.
func (q *SendQueue) Broadcast(handles []session.Handle, frame []byte) {
	q.mu.Lock()
	for _, h := range handles {
		q.items = append(q.items, outboundMessage{handle: h, frame: frame})
	}
	q.mu.Unlock()
}

// Drain empties the queue, invoking send(handle, frame) for each item in
// FIFO order. send is called outside the queue's lock so a slow send
// cannot block producers.
func (q *SendQueue) Drain(send func(handle session.Handle, frame []byte)) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, item := range items {
		send(item.handle, item.frame)
	}
}

// Len reports how many messages are currently queued, for metrics.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
