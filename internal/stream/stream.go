// Package stream implements the per-stream state machine of a
// yamux-style multiplexer: a half-close-aware read/write engine that
// enforces a per-direction flow-control window and defers every
// user-facing callback through the muxer's deferred-call primitive.
//
// Frame parsing, the muxer's stream table, and the secure-connection
// primitive are external collaborators, reached only through the
// Feedback and Connection interfaces this package defines.
package stream

import (
	"log/slog"

	"github.com/dep2p/go-yamux-stream/internal/logger"
)

var log = logger.Logger("stream")

// Stream is one logical bidirectional byte channel multiplexed on a
// shared secure connection. All fields are owned exclusively by the
// stream and mutated only from the single-threaded execution context
// described in spec §5 — there are no locks.
type Stream struct {
	id         uint32
	connection Connection
	feedback   Feedback

	sendWindow    uint32
	receiveWindow uint32
	maxWindow     uint32

	isReadable bool
	isWritable bool

	closeReason     *Error
	noMoreCallbacks bool

	isReading       bool
	readBuf         ReadBuffer
	externalBuf     []byte
	readCB          ReadCallback
	readMessageSize int
	readingSome     bool

	writeQueue *WriteQueue

	closeCB VoidCallback

	windowAdjustTarget uint32
	windowAdjustCB     VoidCallback

	log *slog.Logger
}

// New creates a stream with positive id, both half-closes open, and the
// given flow-control configuration. WriteQueueLimit must be at least
// MaxWindow.
func New(id uint32, connection Connection, feedback Feedback, cfg Config) *Stream {
	if id == 0 {
		panic("stream: id must be positive")
	}
	if connection == nil || feedback == nil {
		panic("stream: connection and feedback are required")
	}
	if cfg.WindowSize > cfg.MaxWindow {
		panic("stream: window size exceeds max window")
	}
	if cfg.WriteQueueLimit < int(cfg.MaxWindow) {
		panic("stream: write queue limit must be >= max window")
	}

	return &Stream{
		id:            id,
		connection:    connection,
		feedback:      feedback,
		sendWindow:    cfg.WindowSize,
		receiveWindow: cfg.WindowSize,
		maxWindow:     cfg.MaxWindow,
		isReadable:    true,
		isWritable:    true,
		writeQueue:    NewWriteQueue(cfg.WriteQueueLimit),
		log:           log.With("stream_id", id),
	}
}

// ID returns the stream's identifier, unique within its connection.
func (s *Stream) ID() uint32 { return s.id }

// ---------------------------------------------------------------------
// Deferred callback trampolines
// ---------------------------------------------------------------------

// deferReadCallback schedules cb through the feedback's deferred-call
// primitive. It is a silent no-op once no_more_callbacks has been set by
// Reset, checked both now and again at fire time, since the two may be
// separated by an arbitrary number of scheduler ticks.
func (s *Stream) deferReadCallback(n int, err error, cb ReadCallback) {
	if cb == nil || s.noMoreCallbacks {
		return
	}
	s.feedback.DeferCall(func() {
		if !s.noMoreCallbacks {
			cb(n, err)
		}
	})
}

func (s *Stream) deferWriteCallback(n int, err error, cb WriteCallback) {
	if cb == nil || s.noMoreCallbacks {
		return
	}
	s.feedback.DeferCall(func() {
		if !s.noMoreCallbacks {
			cb(n, err)
		}
	})
}

func (s *Stream) deferVoidCallback(err error, cb VoidCallback) {
	if cb == nil || s.noMoreCallbacks {
		return
	}
	s.feedback.DeferCall(func() {
		if !s.noMoreCallbacks {
			cb(err)
		}
	})
}

// ---------------------------------------------------------------------
// Public read/write/close API
// ---------------------------------------------------------------------

// Read succeeds only once exactly n bytes have been delivered.
func (s *Stream) Read(out []byte, n int, cb ReadCallback) {
	s.doRead(out, n, cb, false)
}

// ReadSome succeeds once at least one byte has been delivered.
func (s *Stream) ReadSome(out []byte, n int, cb ReadCallback) {
	s.doRead(out, n, cb, true)
}

func (s *Stream) doRead(out []byte, n int, cb ReadCallback, some bool) {
	if cb == nil || n <= 0 || len(out) < n {
		s.deferReadCallback(0, newErr(KindInvalidArgument), cb)
		return
	}

	bytesAvailable := s.readBuf.Size()
	if bytesAvailable >= n || (some && bytesAvailable > 0) {
		dst := out[:n]
		consumed := s.readBuf.Consume(dst)
		if s.isReadable {
			s.feedback.AckReceivedBytes(s.id, consumed)
		}
		s.deferReadCallback(consumed, nil, cb)
		return
	}

	if s.closeReason != nil {
		s.deferReadCallback(0, s.closeReason, cb)
		return
	}

	if s.isReading {
		s.deferReadCallback(0, newErr(KindStreamIsReading), cb)
		return
	}

	if !s.isReadable {
		// The original C++ source passes the *previously stored* read
		// callback into this rejection, which looks like a latent bug
		// (spec §9). We defer the caller's new callback instead.
		s.deferReadCallback(0, newErr(KindStreamNotReadable), cb)
		return
	}

	s.isReading = true
	s.readCB = cb
	s.externalBuf = out[:n]
	s.readMessageSize = n
	s.readingSome = some

	if bytesAvailable > 0 {
		consumed := s.readBuf.Consume(s.externalBuf)
		s.externalBuf = s.externalBuf[consumed:]
		if s.isReadable {
			s.feedback.AckReceivedBytes(s.id, consumed)
		}
	}
}

// Write succeeds only once all n bytes have been accepted onto the wire.
func (s *Stream) Write(in []byte, n int, cb WriteCallback) {
	s.doWriteRequest(in, n, cb, false)
}

// WriteSome succeeds once at least one byte has been accepted.
func (s *Stream) WriteSome(in []byte, n int, cb WriteCallback) {
	s.doWriteRequest(in, n, cb, true)
}

func (s *Stream) doWriteRequest(in []byte, n int, cb WriteCallback, some bool) {
	if cb == nil || n <= 0 || len(in) < n {
		s.deferWriteCallback(0, newErr(KindInvalidArgument), cb)
		return
	}
	if !s.isWritable {
		s.deferWriteCallback(0, newErr(KindStreamNotWritable), cb)
		return
	}
	if s.closeReason != nil {
		s.deferWriteCallback(0, s.closeReason, cb)
		return
	}
	if !s.writeQueue.CanEnqueue(n) {
		s.deferWriteCallback(0, newErr(KindStreamWriteBufferOverflow), cb)
		return
	}

	s.writeQueue.Enqueue(in[:n], some, cb)
	s.doWrite()
}

// Close half-closes the stream for writes once the write queue drains,
// emitting FIN. Calling Close a second time installs the new callback
// and fires it once the stream reaches a fully-closed state.
func (s *Stream) Close(cb VoidCallback) {
	s.closeCB = cb

	if s.closeReason != nil {
		s.feedback.DeferCall(s.completeClose)
		return
	}

	if s.isWritable {
		s.isWritable = false
		s.doWrite()
	}
}

func (s *Stream) completeClose() {
	if s.noMoreCallbacks {
		return
	}
	if s.closeReason == nil {
		s.closeReason = newErr(KindStreamClosedByHost)
	}
	if s.closeCB == nil {
		return
	}
	cb := s.closeCB
	s.closeCB = nil
	if s.closeReason.Kind == KindStreamClosedByHost {
		cb(nil)
	} else {
		cb(s.closeReason)
	}
}

// Reset terminates the stream unilaterally: both halves become
// unreadable/unwritable, no further callback ever fires, buffers are
// dropped, and the muxer is told to emit RST.
func (s *Stream) Reset() {
	s.isReadable = false
	s.isWritable = false
	s.noMoreCallbacks = true
	s.closeReason = newErr(KindStreamResetByHost)

	s.writeQueue.Clear()
	s.readBuf.Clear()
	s.readCB = nil
	s.isReading = false
	s.externalBuf = nil
	s.windowAdjustCB = nil
	s.closeCB = nil

	s.feedback.ResetStream(s.id)
}

// AdjustWindowSize grows the receive window up to newSize, ACKing the
// delta to the peer immediately. cb latches until receiveWindow catches
// up to newSize (or the stream closes) and is replaced, not stacked, by
// a later call — the original source appears to override silently on
// concurrent calls; we preserve that (flagged as an open question in
// spec §9).
func (s *Stream) AdjustWindowSize(newSize uint32, cb VoidCallback) {
	if s.closeReason != nil || newSize > s.maxWindow || newSize < s.receiveWindow {
		reason := s.closeReason
		s.deferVoidCallback(firstNonNil(reason, newErr(KindInvalidWindowSize)), cb)
		return
	}

	delta := newSize - s.receiveWindow
	s.feedback.AckReceivedBytes(s.id, int(delta))

	if cb != nil {
		s.windowAdjustTarget = newSize
		s.windowAdjustCB = cb
		s.checkWindowAdjust()
	}
}

func firstNonNil(err *Error, fallback *Error) error {
	if err != nil {
		return err
	}
	return fallback
}

func (s *Stream) checkWindowAdjust() {
	if s.windowAdjustCB == nil {
		return
	}
	if s.closeReason != nil {
		cb := s.windowAdjustCB
		s.windowAdjustCB = nil
		s.deferVoidCallback(s.closeReason, cb)
		return
	}
	if s.receiveWindow >= s.windowAdjustTarget {
		cb := s.windowAdjustCB
		s.windowAdjustCB = nil
		s.deferVoidCallback(nil, cb)
	}
}

// ---------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------

func (s *Stream) IsClosed() bool         { return s.closeReason != nil }
func (s *Stream) IsClosedForRead() bool  { return !s.isReadable }
func (s *Stream) IsClosedForWrite() bool { return !s.isWritable }

// SendWindow returns the number of bytes the stream may currently hand
// to the wire before blocking on peer credit.
func (s *Stream) SendWindow() uint32 { return s.sendWindow }

// ReceiveWindow returns the number of bytes of peer send credit this
// stream has currently advertised.
func (s *Stream) ReceiveWindow() uint32 { return s.receiveWindow }

func (s *Stream) RemotePeerID() (string, error)   { return s.connection.RemotePeerID() }
func (s *Stream) IsInitiator() (bool, error)      { return s.connection.IsInitiator() }
func (s *Stream) LocalMultiaddr() (string, error) { return s.connection.LocalMultiaddr() }
func (s *Stream) RemoteMultiaddr() (string, error) { return s.connection.RemoteMultiaddr() }

// ---------------------------------------------------------------------
// Ingress contract (muxer side)
// ---------------------------------------------------------------------

// OnDataRead delivers inbound bytes (and/or FIN/RST markers) into the
// stream and returns the directive telling the muxer what to do next.
func (s *Stream) OnDataRead(data []byte, fin, rst bool) Directive {
	bytesConsumed := 0

	if len(data) > 0 {
		if s.isReading {
			consumed := s.readBuf.AddAndConsume(data, s.externalBuf)
			bytesConsumed = consumed
			s.externalBuf = s.externalBuf[consumed:]

			completed := len(s.externalBuf) == 0
			finalSize := s.readMessageSize
			if s.readingSome {
				completed = true
				finalSize = consumed
			}
			if completed {
				s.completeRead(finalSize)
			}
		} else {
			s.readBuf.Add(data)
		}
	}

	externalRemaining := 0
	if s.isReading {
		externalRemaining = len(s.externalBuf)
	}
	overflow := len(data) > 0 && int(s.receiveWindow) < s.readBuf.Size()+externalRemaining

	if s.closeReason != nil {
		return RemoveAndSendRST
	}

	if rst {
		// A reset aborts any read that is still waiting on bytes that will
		// now never arrive, so it must be notified here, not merely on
		// full teardown.
		s.doClose(newErr(KindStreamResetByPeer), true)
		return Remove
	}

	if fin {
		s.isReadable = false
		if s.isReading {
			// No further bytes can ever arrive for this read; fail it
			// immediately rather than leaving it stuck.
			s.failPendingRead(newErr(KindStreamNotReadable))
		}
		if !s.isWritable {
			s.doClose(newErr(KindStreamClosedByHost), false)
			return Remove
		}
		return Keep
	}

	if overflow {
		s.doClose(newErr(KindReceiveWindowOverflow), true)
		return RemoveAndSendRST
	}

	if bytesConsumed > 0 {
		s.feedback.AckReceivedBytes(s.id, bytesConsumed)
		s.receiveWindow += uint32(bytesConsumed)
		s.checkWindowAdjust()
	}

	return Keep
}

func (s *Stream) completeRead(n int) {
	if !s.isReading {
		return
	}
	s.isReading = false
	cb := s.readCB
	s.readCB = nil
	s.externalBuf = nil
	s.readMessageSize = 0
	s.readingSome = false
	s.deferReadCallback(n, nil, cb)
}

// failPendingRead cancels a pending read with err, a no-op if none is
// pending.
func (s *Stream) failPendingRead(err error) {
	if !s.isReading {
		return
	}
	s.isReading = false
	cb := s.readCB
	s.readCB = nil
	s.externalBuf = nil
	s.readMessageSize = 0
	s.readingSome = false
	s.deferReadCallback(0, err, cb)
}

// OnDataWritten reports that n bytes previously dequeued were framed and
// handed to the wire.
func (s *Stream) OnDataWritten(n int) {
	fire := func(cb WriteCallback, bytes int, err error) { s.deferWriteCallback(bytes, err, cb) }
	if !s.writeQueue.Ack(n, fire) {
		s.log.Error("write queue ack failed, resetting stream", "bytes", n)
		s.feedback.ResetStream(s.id)
		s.doClose(newErr(KindInternalError), true)
	}
}

// IncreaseSendWindow applies a peer WINDOW_UPDATE and resumes draining.
func (s *Stream) IncreaseSendWindow(delta uint32) {
	s.sendWindow += delta
	s.doWrite()
}

// ClosedByConnection reports that the owning session is dying.
func (s *Stream) ClosedByConnection(cause error) {
	if cause == nil {
		cause = newErr(KindInternalError)
	}
	se, ok := cause.(*Error)
	if !ok {
		se = wrapErr(KindInternalError, cause)
	}
	s.doClose(se, true)
}

// ---------------------------------------------------------------------
// Internal drains
// ---------------------------------------------------------------------

func (s *Stream) doWrite() {
	for s.closeReason == nil {
		data, some, newCredit := s.writeQueue.Dequeue(int(s.sendWindow))
		s.sendWindow = uint32(newCredit)
		if len(data) == 0 {
			break
		}
		s.feedback.WriteStreamData(s.id, data, some)
	}

	if !s.isWritable && s.closeReason == nil && s.sendWindow > 0 {
		s.feedback.StreamClosed(s.id)

		if !s.isReadable {
			s.doClose(newErr(KindStreamClosedByHost), false)
		} else {
			s.receiveWindow = s.maxWindow
			s.checkWindowAdjust()
		}
	}
}

func (s *Stream) doClose(reason *Error, notifyReadCallback bool) {
	s.closeReason = reason
	s.isReadable = false
	s.isWritable = false

	if notifyReadCallback {
		s.readBuf.Clear()
		s.failPendingRead(reason)
	}

	s.checkWindowAdjust()

	if s.closeCB != nil {
		s.feedback.DeferCall(s.completeClose)
	}

	if !s.noMoreCallbacks {
		s.writeQueue.Broadcast(func(cb WriteCallback) bool {
			s.deferWriteCallback(0, reason, cb)
			return true
		})
		s.writeQueue.Clear()
	}
}
