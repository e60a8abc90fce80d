package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBuffer_AddConsume(t *testing.T) {
	var b ReadBuffer
	b.Add([]byte("hello"))
	require.Equal(t, 5, b.Size())

	dst := make([]byte, 3)
	n := b.Consume(dst)
	assert.Equal(t, 3, n)
	assert.Equal(t, "hel", string(dst))
	assert.Equal(t, 2, b.Size())

	dst2 := make([]byte, 10)
	n2 := b.Consume(dst2)
	assert.Equal(t, 2, n2)
	assert.Equal(t, "lo", string(dst2[:n2]))
	assert.True(t, b.Empty())
}

func TestReadBuffer_ConsumeEmpty(t *testing.T) {
	var b ReadBuffer
	dst := make([]byte, 4)
	assert.Equal(t, 0, b.Consume(dst))
}

func TestReadBuffer_AddAndConsume_DirectPath(t *testing.T) {
	var b ReadBuffer
	dst := make([]byte, 3)
	n := b.AddAndConsume([]byte("abcde"), dst)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", string(dst))
	// remainder parked in the buffer
	assert.Equal(t, 2, b.Size())

	dst2 := make([]byte, 2)
	n2 := b.Consume(dst2)
	assert.Equal(t, 2, n2)
	assert.Equal(t, "de", string(dst2))
}

func TestReadBuffer_AddAndConsume_BufferedPath(t *testing.T) {
	var b ReadBuffer
	b.Add([]byte("xy"))

	dst := make([]byte, 3)
	n := b.AddAndConsume([]byte("z"), dst)
	assert.Equal(t, 3, n)
	assert.Equal(t, "xyz", string(dst))
	assert.True(t, b.Empty())
}

func TestReadBuffer_Clear(t *testing.T) {
	var b ReadBuffer
	b.Add([]byte("data"))
	b.Clear()
	assert.True(t, b.Empty())
	assert.Equal(t, 0, b.Size())
}
