package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncFire(cb WriteCallback, n int, err error) {
	if cb != nil {
		cb(n, err)
	}
}

func TestWriteQueue_CanEnqueue(t *testing.T) {
	q := NewWriteQueue(10)
	assert.True(t, q.CanEnqueue(10))
	assert.False(t, q.CanEnqueue(11))

	q.Enqueue([]byte("12345"), false, nil)
	assert.True(t, q.CanEnqueue(5))
	assert.False(t, q.CanEnqueue(6))
}

func TestWriteQueue_DequeueRespectsCredit(t *testing.T) {
	q := NewWriteQueue(100)
	q.Enqueue([]byte("hello world"), false, nil)

	data, some, credit := q.Dequeue(5)
	require.Equal(t, "hello", string(data))
	assert.False(t, some)
	assert.Equal(t, 0, credit)

	data2, _, credit2 := q.Dequeue(20)
	assert.Equal(t, " world", string(data2))
	assert.Equal(t, 14, credit2)

	// exhausted
	data3, _, _ := q.Dequeue(5)
	assert.Nil(t, data3)
}

func TestWriteQueue_DequeueZeroCredit(t *testing.T) {
	q := NewWriteQueue(100)
	q.Enqueue([]byte("abc"), false, nil)
	data, _, credit := q.Dequeue(0)
	assert.Nil(t, data)
	assert.Equal(t, 0, credit)
}

func TestWriteQueue_AckFullEntry(t *testing.T) {
	q := NewWriteQueue(100)
	var got int
	var gotErr error
	q.Enqueue([]byte("abc"), false, func(n int, err error) {
		got = n
		gotErr = err
	})

	q.Dequeue(3)
	ok := q.Ack(3, syncFire)
	require.True(t, ok)
	assert.Equal(t, 3, got)
	assert.NoError(t, gotErr)
	assert.True(t, q.Empty())
}

func TestWriteQueue_AckSomeFiresOnFirstByte(t *testing.T) {
	q := NewWriteQueue(100)
	fired := 0
	var n int
	q.Enqueue([]byte("abcdef"), true, func(bytes int, err error) {
		fired++
		n = bytes
	})

	q.Dequeue(6)
	ok := q.Ack(2, syncFire)
	require.True(t, ok)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 2, n)

	// further acks on the same entry must not re-fire
	ok2 := q.Ack(4, syncFire)
	require.True(t, ok2)
	assert.Equal(t, 1, fired)
	assert.True(t, q.Empty())
}

func TestWriteQueue_AckAcrossMultipleEntries(t *testing.T) {
	q := NewWriteQueue(100)
	var order []int
	q.Enqueue([]byte("aa"), false, func(n int, err error) { order = append(order, 1) })
	q.Enqueue([]byte("bb"), false, func(n int, err error) { order = append(order, 2) })

	// Dequeue hands out one entry's bytes per call; spend the leftover
	// credit on the second entry.
	_, _, credit := q.Dequeue(4)
	q.Dequeue(credit)
	ok := q.Ack(4, syncFire)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, order)
}

func TestWriteQueue_AckRejectsOverAccounting(t *testing.T) {
	q := NewWriteQueue(100)
	q.Enqueue([]byte("abc"), false, nil)
	q.Dequeue(2)
	assert.False(t, q.Ack(3, syncFire))
}

func TestWriteQueue_BroadcastSkipsFired(t *testing.T) {
	q := NewWriteQueue(100)
	var calls []int
	q.Enqueue([]byte("aa"), false, func(n int, err error) { calls = append(calls, 1) })
	q.Enqueue([]byte("bb"), true, func(n int, err error) { calls = append(calls, 2) })

	q.Dequeue(2)
	q.Ack(2, syncFire) // fires entry 1 fully

	q.Broadcast(func(cb WriteCallback) bool {
		cb(0, newErr(KindStreamResetByHost))
		return true
	})

	assert.Equal(t, []int{1, 2}, calls)
}

func TestWriteQueue_ClearDropsEntriesSilently(t *testing.T) {
	q := NewWriteQueue(100)
	called := false
	q.Enqueue([]byte("x"), false, func(n int, err error) { called = true })
	q.Clear()
	assert.True(t, q.Empty())
	assert.False(t, called)
}
