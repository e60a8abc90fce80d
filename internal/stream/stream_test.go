package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStream(t *testing.T, cfg Config) (*Stream, *fakeFeedback) {
	t.Helper()
	fb := &fakeFeedback{}
	s := New(1, fakeConn{}, fb, cfg)
	return s, fb
}

func smallConfig(window uint32) Config {
	return Config{WindowSize: window, MaxWindow: window, WriteQueueLimit: int(window)}
}

// Scenario: simple echo — a pending Read is satisfied by a single
// inbound chunk that exactly fills it.
func TestScenario_SimpleEcho(t *testing.T) {
	s, fb := newTestStream(t, smallConfig(64))

	var gotN int
	var gotErr error
	out := make([]byte, 5)
	s.Read(out, 5, func(n int, err error) { gotN = n; gotErr = err })

	directive := s.OnDataRead([]byte("hello"), false, false)
	assert.Equal(t, Keep, directive)

	fb.Drain()
	require.NoError(t, gotErr)
	assert.Equal(t, 5, gotN)
	assert.Equal(t, "hello", string(out))
	assert.Equal(t, 5, fb.totalAcked())
}

// Scenario: receive-window overflow — unsolicited bytes beyond the
// window with no pending read force a hard reset.
func TestScenario_ReceiveWindowOverflow(t *testing.T) {
	s, _ := newTestStream(t, smallConfig(4))

	directive := s.OnDataRead([]byte("hello"), false, false)
	assert.Equal(t, RemoveAndSendRST, directive)
	assert.True(t, s.IsClosed())
}

// Scenario: half-close local (Close) followed by half-close remote
// (peer FIN) completes the close callback with success.
func TestScenario_HalfCloseLocalThenRemoteFIN(t *testing.T) {
	s, fb := newTestStream(t, smallConfig(64))

	var closeErr error
	closeCalled := false
	s.Close(func(err error) { closeCalled = true; closeErr = err })
	fb.Drain()

	// Local write-half closed: FIN must have gone out, but read-half is
	// still open so the close callback has not fired yet.
	require.Len(t, fb.closed, 1)
	assert.False(t, closeCalled)
	assert.True(t, s.IsClosedForWrite())
	assert.False(t, s.IsClosedForRead())

	directive := s.OnDataRead(nil, true, false)
	assert.Equal(t, Remove, directive)

	fb.Drain()
	require.True(t, closeCalled)
	assert.NoError(t, closeErr)
	assert.True(t, s.IsClosed())
}

// Scenario: RST from the peer while a read is pending must fail that
// read with the reset error, not leave it hanging.
func TestScenario_RSTWithPendingRead(t *testing.T) {
	s, fb := newTestStream(t, smallConfig(64))

	var gotErr error
	readReturned := false
	out := make([]byte, 5)
	s.Read(out, 5, func(n int, err error) { readReturned = true; gotErr = err })

	directive := s.OnDataRead(nil, false, true)
	assert.Equal(t, Remove, directive)

	fb.Drain()
	require.True(t, readReturned)
	require.Error(t, gotErr)
	assert.True(t, Is(gotErr, KindStreamResetByPeer))
	assert.Len(t, fb.reset, 0) // RST was received, not re-emitted
}

// Scenario: write backpressure — a write larger than the queue's
// remaining capacity is rejected with KindStreamWriteBufferOverflow.
func TestScenario_WriteBackpressure(t *testing.T) {
	s, fb := newTestStream(t, smallConfig(8))

	s.Write([]byte("12345678"), 8, func(n int, err error) {})
	fb.Drain()
	require.Len(t, fb.written, 1)
	assert.Equal(t, "12345678", string(fb.written[0]))

	var err2 error
	called2 := false
	s.Write([]byte("x"), 1, func(n int, err error) { called2 = true; err2 = err })
	fb.Drain()
	require.True(t, called2)
	assert.True(t, Is(err2, KindStreamWriteBufferOverflow))
}

// Scenario: send-window gating — a write larger than the current send
// window is only partly drained until a window update arrives.
func TestScenario_SendWindowGating(t *testing.T) {
	s, fb := newTestStream(t, Config{WindowSize: 4, MaxWindow: 8, WriteQueueLimit: 8})

	var n int
	var err error
	done := false
	s.Write([]byte("12345678"), 8, func(bytes int, e error) { done = true; n = bytes; err = e })

	// Only 4 bytes (the initial send window) should have gone out.
	require.Len(t, fb.written, 1)
	assert.Equal(t, "1234", string(fb.written[0]))
	assert.False(t, done)

	s.OnDataWritten(4)
	s.IncreaseSendWindow(4)

	require.Len(t, fb.written, 2)
	assert.Equal(t, "5678", string(fb.written[1]))

	s.OnDataWritten(4)
	fb.Drain()
	require.True(t, done)
	assert.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestReadSome_CompletesOnPartialBuffer(t *testing.T) {
	s, fb := newTestStream(t, smallConfig(64))

	var n int
	out := make([]byte, 10)
	s.ReadSome(out, 10, func(bytes int, err error) { n = bytes })

	s.OnDataRead([]byte("abc"), false, false)
	fb.Drain()
	assert.Equal(t, 3, n)
}

func TestRead_RejectsConcurrentPendingRead(t *testing.T) {
	s, fb := newTestStream(t, smallConfig(64))

	out1 := make([]byte, 5)
	s.Read(out1, 5, func(n int, err error) {})

	var err2 error
	out2 := make([]byte, 5)
	s.Read(out2, 5, func(n int, err error) { err2 = err })
	fb.Drain()

	require.Error(t, err2)
	assert.True(t, Is(err2, KindStreamIsReading))
}

func TestWrite_RejectsAfterCloseForWrite(t *testing.T) {
	s, fb := newTestStream(t, smallConfig(64))
	s.Close(nil)
	fb.Drain()

	var err error
	s.Write([]byte("x"), 1, func(n int, e error) { err = e })
	fb.Drain()

	require.Error(t, err)
	assert.True(t, Is(err, KindStreamNotWritable))
}

func TestAdjustWindowSize_RejectsBelowCurrent(t *testing.T) {
	s, fb := newTestStream(t, smallConfig(64))

	var err error
	s.AdjustWindowSize(1, func(e error) { err = e })
	fb.Drain()

	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidWindowSize))
}

func TestReset_SuppressesAllFurtherCallbacks(t *testing.T) {
	s, fb := newTestStream(t, smallConfig(64))

	readFired := false
	out := make([]byte, 5)
	s.Read(out, 5, func(n int, err error) { readFired = true })

	s.Reset()
	fb.Drain()

	assert.False(t, readFired)
	require.Len(t, fb.reset, 1)
	assert.True(t, s.IsClosed())
}
