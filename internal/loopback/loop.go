// Package loopback wires two Stream state machines back to back over an
// in-process event loop, standing in for a real muxer session so the
// core state machine can be exercised, benchmarked, and demoed without a
// socket. The stream table and atomic id counter follow the pattern of
// this repository's yamux muxer wrapper.
package loopback

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dep2p/go-yamux-stream/internal/logger"
	"github.com/dep2p/go-yamux-stream/internal/metrics"
	streamcore "github.com/dep2p/go-yamux-stream/internal/stream"
)

var log = logger.Logger("loopback")

// ErrLoopClosed names a Loop's closed state. No Loop method returns it:
// DeferCall (and so Pipe.Submit) silently drops work scheduled after Close.
var ErrLoopClosed = errors.New("loopback: loop closed")

// Loop is a minimal single-threaded execution context: a queue drained
// by one dedicated goroutine, giving every Stream method call and every
// deferred callback a total order, per the concurrency model the state
// machine requires.
type Loop struct {
	tasks  chan func()
	done   chan struct{}
	closed int32 // atomic
}

// NewLoop starts the loop's worker goroutine. Callers must call Close
// when finished to release it.
func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.done:
			// drain whatever is left without blocking forever
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// DeferCall implements stream.Feedback's scheduling primitive by
// enqueueing thunk onto the loop.
func (l *Loop) DeferCall(thunk func()) {
	if atomic.LoadInt32(&l.closed) != 0 {
		return
	}
	select {
	case l.tasks <- thunk:
	case <-l.done:
	}
}

// Close stops the worker goroutine after draining pending tasks.
func (l *Loop) Close() {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return
	}
	close(l.done)
}

// Pipe connects two Streams so that one's outbound frames become the
// other's inbound frames, and vice versa. It implements stream.Feedback
// once per side.
type Pipe struct {
	loop *Loop

	mu      sync.RWMutex
	streams map[uint32]*streamcore.Stream // this side's id -> Stream
	peer    *Pipe

	nextID uint32 // atomic

	metrics *metrics.Collectors
}

// NewPipe allocates one unconnected half of a loopback pair.
func NewPipe(loop *Loop) *Pipe {
	return &Pipe{
		loop:    loop,
		streams: make(map[uint32]*streamcore.Stream),
	}
}

// SetMetrics attaches a Collectors instance that OpenStream, eviction,
// and every wire operation on this pipe will report into.
func (p *Pipe) SetMetrics(m *metrics.Collectors) { p.metrics = m }

// Submit runs fn on the loop goroutine that owns every Stream this pipe
// and its peer deal in. Every user-facing Stream method (Read, Write,
// Close, Reset, AdjustWindowSize) must be called only from inside a
// Submit callback: Stream keeps no locks of its own and assumes the
// single-threaded execution context spec §5 describes, the same
// contract this loop's ingress and deferred callbacks already run
// under. Calling a Stream method directly from another goroutine races
// with that ingress.
func (p *Pipe) Submit(fn func()) { p.loop.DeferCall(fn) }

// Connect links two pipes so frames written into one arrive on the
// other. Must be called once, before any stream is opened.
func Connect(a, b *Pipe) {
	a.peer = b
	b.peer = a
}

// endpointConn is the stream.Connection this pipe hands every stream it
// opens; loopback streams have no real transport address or peer
// identity.
type endpointConn struct {
	local, remote string
}

func (c endpointConn) RemotePeerID() (string, error)   { return c.remote, nil }
func (c endpointConn) IsInitiator() (bool, error)      { return true, nil }
func (c endpointConn) LocalMultiaddr() (string, error) { return c.local, nil }
func (c endpointConn) RemoteMultiaddr() (string, error) { return c.remote, nil }

// OpenStream creates a new stream on this side of the pipe and its
// mirror-image counterpart on the peer side, both sharing the same
// stream id.
func (p *Pipe) OpenStream(cfg streamcore.Config) (*streamcore.Stream, *streamcore.Stream) {
	id := atomic.AddUint32(&p.nextID, 1)
	local := uuid.NewString()
	remote := uuid.NewString()

	s1 := streamcore.New(id, endpointConn{local: local, remote: remote}, p, cfg)
	s2 := streamcore.New(id, endpointConn{local: remote, remote: local}, p.peer, cfg)

	p.mu.Lock()
	p.streams[id] = s1
	p.mu.Unlock()

	p.peer.mu.Lock()
	p.peer.streams[id] = s2
	p.peer.mu.Unlock()

	log.Debug("opened stream pair", "stream_id", id)

	if p.metrics != nil {
		p.metrics.ActiveStreams.Inc()
	}
	if p.peer.metrics != nil {
		p.peer.metrics.ActiveStreams.Inc()
	}

	return s1, s2
}

func (p *Pipe) lookup(id uint32) (*streamcore.Stream, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.streams[id]
	return s, ok
}

func (p *Pipe) evict(id uint32) {
	p.mu.Lock()
	_, existed := p.streams[id]
	delete(p.streams, id)
	p.mu.Unlock()
	if !existed {
		return
	}
	log.Debug("evicted stream", "stream_id", id)
	if p.metrics != nil {
		p.metrics.ActiveStreams.Dec()
	}
}

// WriteStreamData delivers data to the peer stream of the same id on the
// loop, then reports the write's departure back to the sender.
func (p *Pipe) WriteStreamData(streamID uint32, data []byte, some bool) {
	cp := append([]byte(nil), data...)
	n := len(cp)
	if p.metrics != nil {
		id := idLabel(streamID)
		p.metrics.BytesWritten.WithLabelValues(id).Add(float64(n))
		if s, ok := p.lookup(streamID); ok {
			p.metrics.SendWindow.WithLabelValues(id).Set(float64(s.SendWindow()))
		}
	}
	p.loop.DeferCall(func() {
		if peerStream, ok := p.peer.lookup(streamID); ok {
			directive := peerStream.OnDataRead(cp, false, false)
			p.peer.applyDirective(streamID, directive)
		}
		if s, ok := p.lookup(streamID); ok {
			s.OnDataWritten(n)
		}
	})
}

// AckReceivedBytes forwards a WINDOW_UPDATE to the peer's send window.
func (p *Pipe) AckReceivedBytes(streamID uint32, n int) {
	if p.metrics != nil {
		id := idLabel(streamID)
		p.metrics.BytesAcked.WithLabelValues(id).Add(float64(n))
		if s, ok := p.lookup(streamID); ok {
			p.metrics.ReceiveWindow.WithLabelValues(id).Set(float64(s.ReceiveWindow()))
		}
	}
	p.loop.DeferCall(func() {
		if peerStream, ok := p.peer.lookup(streamID); ok {
			peerStream.IncreaseSendWindow(uint32(n))
		}
	})
}

// StreamClosed emits FIN to the peer.
func (p *Pipe) StreamClosed(streamID uint32) {
	p.loop.DeferCall(func() {
		if peerStream, ok := p.peer.lookup(streamID); ok {
			directive := peerStream.OnDataRead(nil, true, false)
			p.peer.applyDirective(streamID, directive)
		}
	})
}

// ResetStream emits RST to the peer and evicts the local half.
func (p *Pipe) ResetStream(streamID uint32) {
	log.Warn("stream reset", "stream_id", streamID)
	p.evict(streamID)
	if p.metrics != nil {
		p.metrics.StreamsReset.Inc()
	}
	p.loop.DeferCall(func() {
		if peerStream, ok := p.peer.lookup(streamID); ok {
			// Every directive an RST can yield means eviction; count the
			// peer half as reset, not as cleanly finished.
			peerStream.OnDataRead(nil, false, true)
			p.peer.evict(streamID)
			if p.peer.metrics != nil {
				p.peer.metrics.StreamsReset.Inc()
			}
		}
	})
}

// DeferCall schedules thunk on the shared loop.
func (p *Pipe) DeferCall(thunk func()) { p.loop.DeferCall(thunk) }

func (p *Pipe) applyDirective(streamID uint32, d streamcore.Directive) {
	switch d {
	case streamcore.Remove:
		p.evict(streamID)
		if p.metrics != nil {
			p.metrics.StreamsFinished.Inc()
		}
	case streamcore.RemoveAndSendRST:
		p.evict(streamID)
	}
}

func idLabel(streamID uint32) string {
	return strconv.FormatUint(uint64(streamID), 10)
}

var _ streamcore.Feedback = (*Pipe)(nil)
var _ streamcore.Connection = endpointConn{}
