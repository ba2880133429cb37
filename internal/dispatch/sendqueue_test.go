package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/drawserver/internal/session"
)

func TestSendQueueDrainsFIFO(t *testing.T) {
	q := NewSendQueue()
	q.Enqueue(1, []byte("a"))
	q.Enqueue(2, []byte("b"))
	q.Enqueue(1, []byte("c"))

	require.Equal(t, 3, q.Len())

	var got []string
	q.Drain(func(h session.Handle, frame []byte) {
		got = append(got, string(frame))
	})

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestSendQueueBroadcastFansOutToEveryHandle(t *testing.T) {
	q := NewSendQueue()
	q.Broadcast([]session.Handle{1, 2, 3}, []byte("hello"))

	var handles []session.Handle
	q.Drain(func(h session.Handle, frame []byte) {
		handles = append(handles, h)
		assert.Equal(t, "hello", string(frame))
	})

	assert.Equal(t, []session.Handle{1, 2, 3}, handles)
}

func TestSendQueueDrainIsIdempotentWhenEmpty(t *testing.T) {
	q := NewSendQueue()
	called := false
	q.Drain(func(session.Handle, []byte) { called = true })
	assert.False(t, called)
}

func TestSendQueueDrainSeesEnqueuesMadeDuringPriorDrain(t *testing.T) {
	q := NewSendQueue()
	q.Enqueue(1, []byte("first"))

	q.Drain(func(h session.Handle, frame []byte) {
		q.Enqueue(2, []byte("second"))
	})

	assert.Equal(t, 1, q.Len())
	var got []string
	q.Drain(func(h session.Handle, frame []byte) {
		got = append(got, string(frame))
	})
	assert.Equal(t, []string{"second"}, got)
}
