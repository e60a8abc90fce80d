package stream

// fakeConn is a minimal Connection stub for tests that don't exercise
// identity/address queries.
type fakeConn struct{}

func (fakeConn) RemotePeerID() (string, error)    { return "peer", nil }
func (fakeConn) IsInitiator() (bool, error)       { return true, nil }
func (fakeConn) LocalMultiaddr() (string, error)  { return "/ip4/127.0.0.1/tcp/1", nil }
func (fakeConn) RemoteMultiaddr() (string, error) { return "/ip4/127.0.0.1/tcp/2", nil }

// fakeFeedback records every call a Stream makes on its muxer, and
// queues DeferCall thunks for the test to drain explicitly, modeling the
// single-threaded event loop described in spec §5.
type fakeFeedback struct {
	written     [][]byte
	writtenSome []bool
	acked       []int
	closed      []uint32
	reset       []uint32
	deferred    []func()
}

func (f *fakeFeedback) WriteStreamData(streamID uint32, data []byte, some bool) {
	cp := append([]byte(nil), data...)
	f.written = append(f.written, cp)
	f.writtenSome = append(f.writtenSome, some)
}

func (f *fakeFeedback) AckReceivedBytes(streamID uint32, n int) {
	f.acked = append(f.acked, n)
}

func (f *fakeFeedback) StreamClosed(streamID uint32) {
	f.closed = append(f.closed, streamID)
}

func (f *fakeFeedback) ResetStream(streamID uint32) {
	f.reset = append(f.reset, streamID)
}

func (f *fakeFeedback) DeferCall(thunk func()) {
	f.deferred = append(f.deferred, thunk)
}

// Drain runs every currently queued deferred call, including any that
// get scheduled by the calls it runs, until none remain.
func (f *fakeFeedback) Drain() {
	for len(f.deferred) > 0 {
		next := f.deferred[0]
		f.deferred = f.deferred[1:]
		next()
	}
}

func (f *fakeFeedback) totalAcked() int {
	total := 0
	for _, n := range f.acked {
		total += n
	}
	return total
}
