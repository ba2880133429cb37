package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateHandleStartsAtOne(t *testing.T) {
	assert.Equal(t, Handle(1), AllocateHandle(nil))
}

func TestAllocateHandleNeverZero(t *testing.T) {
	assert.NotEqual(t, Handle(0), AllocateHandle([]Handle{1, 2, 3}))
}

func TestAllocateHandleFillsGap(t *testing.T) {
	assert.Equal(t, Handle(2), AllocateHandle([]Handle{1, 3, 4}))
}

func TestAllocateHandleAppendsWhenDense(t *testing.T) {
	assert.Equal(t, Handle(4), AllocateHandle([]Handle{1, 2, 3}))
}

func TestAllocateHandleIgnoresOrder(t *testing.T) {
	assert.Equal(t, Handle(3), AllocateHandle([]Handle{4, 1, 2}))
}
