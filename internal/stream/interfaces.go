package stream

// Feedback is the muxer's callback surface, called by a Stream to hand
// data to the wire, acknowledge received bytes, emit control frames, and
// schedule deferred user callbacks. Implementations live outside this
// package — the muxer's frame router, session state, and stream table are
// out of scope for the state machine itself (see spec §1/§6).
type Feedback interface {
	// WriteStreamData hands a chunk to the framer. The muxer must later
	// report its departure to the wire via Stream.OnDataWritten.
	WriteStreamData(streamID uint32, data []byte, some bool)

	// AckReceivedBytes schedules a WINDOW_UPDATE advancing the peer's send
	// window by n bytes.
	AckReceivedBytes(streamID uint32, n int)

	// StreamClosed emits a FIN frame for streamID.
	StreamClosed(streamID uint32)

	// ResetStream emits a RST frame for streamID and evicts it.
	ResetStream(streamID uint32)

	// DeferCall schedules thunk to run in a future tick of the same
	// single-threaded execution context. Never invoked synchronously by a
	// Stream method — see spec §5.
	DeferCall(thunk func())
}

// Connection is the secure-connection primitive a Stream delegates
// identity and address queries to. Every method may fail with a
// context-specific error instead of returning a value.
type Connection interface {
	RemotePeerID() (string, error)
	IsInitiator() (bool, error)
	LocalMultiaddr() (string, error)
	RemoteMultiaddr() (string, error)
}

// Directive tells the muxer what to do with a stream after an ingress
// call, and whether to notify the peer.
type Directive int

const (
	// Keep leaves the stream in the muxer's table.
	Keep Directive = iota
	// Remove evicts the stream without sending anything further.
	Remove
	// RemoveAndSendRST evicts the stream and emits a RST frame.
	RemoveAndSendRST
)

func (d Directive) String() string {
	switch d {
	case Keep:
		return "keep"
	case Remove:
		return "remove"
	case RemoveAndSendRST:
		return "remove_and_send_rst"
	default:
		return "unknown"
	}
}

// ReadCallback receives the number of bytes delivered, or an error.
type ReadCallback func(n int, err error)

// WriteCallback receives the number of bytes accepted, or an error.
type WriteCallback func(n int, err error)

// VoidCallback receives nil on success, or the failure reason.
type VoidCallback func(err error)
