package stream

// wqEntry is one enqueued outbound chunk. dequeued counts bytes already
// handed to the muxer; acked counts bytes the muxer has confirmed left
// the wire. Invariant: acked <= dequeued <= len(data).
type wqEntry struct {
	data     []byte
	some     bool
	cb       WriteCallback
	dequeued int
	acked    int
	fired    bool
}

// WriteQueue is a bounded FIFO of outbound byte chunks. Every enqueued
// byte eventually produces exactly one callback invocation, whether via
// Ack (success) or Broadcast (failure).
type WriteQueue struct {
	entries    []*wqEntry
	dequeueIdx int
	limit      int
}

// NewWriteQueue creates a queue bounded to limit pending bytes.
func NewWriteQueue(limit int) *WriteQueue {
	return &WriteQueue{limit: limit}
}

// pendingBytes returns the total bytes enqueued but not yet acked.
func (q *WriteQueue) pendingBytes() int {
	total := 0
	for _, e := range q.entries {
		total += len(e.data) - e.acked
	}
	return total
}

// CanEnqueue reports whether n more bytes would keep total pending within
// the limit.
func (q *WriteQueue) CanEnqueue(n int) bool {
	return q.pendingBytes()+n <= q.limit
}

// Enqueue appends a new entry. Callers must have checked CanEnqueue.
func (q *WriteQueue) Enqueue(data []byte, some bool, cb WriteCallback) {
	q.entries = append(q.entries, &wqEntry{data: data, some: some, cb: cb})
}

// Dequeue returns the next sliceable prefix of the head-in-progress
// entry, at most credit bytes, plus that entry's some flag and the
// remaining credit. Returns a nil slice once no entry has bytes left to
// give within credit.
func (q *WriteQueue) Dequeue(credit int) ([]byte, bool, int) {
	for q.dequeueIdx < len(q.entries) {
		e := q.entries[q.dequeueIdx]
		remaining := len(e.data) - e.dequeued
		if remaining == 0 {
			q.dequeueIdx++
			continue
		}
		if credit == 0 {
			return nil, false, credit
		}
		take := remaining
		if take > credit {
			take = credit
		}
		out := e.data[e.dequeued : e.dequeued+take]
		e.dequeued += take
		credit -= take
		if e.dequeued == len(e.data) {
			q.dequeueIdx++
		}
		return out, e.some, credit
	}
	return nil, false, credit
}

// Ack accounts n bytes as wire-committed, completing callbacks whose
// bytes are now fully covered (or, for "some" entries, whose first byte
// has been covered) in FIFO order, via fire — never directly, so the
// caller can route every completion through its deferred-call
// primitive. Returns false iff n exceeds the bytes outstanding between
// Dequeue and Ack — an accounting error the caller must treat as fatal
// for the stream.
func (q *WriteQueue) Ack(n int, fire func(cb WriteCallback, n int, err error)) bool {
	outstanding := 0
	for _, e := range q.entries {
		outstanding += e.dequeued - e.acked
	}
	if n > outstanding {
		return false
	}

	remaining := n
	for remaining > 0 && len(q.entries) > 0 {
		e := q.entries[0]
		avail := e.dequeued - e.acked
		take := avail
		if take > remaining {
			take = remaining
		}
		e.acked += take
		remaining -= take

		if e.some && !e.fired && e.acked > 0 {
			fire(e.cb, e.acked, nil)
			e.fired = true
		}

		if e.acked == len(e.data) {
			if !e.fired {
				fire(e.cb, e.acked, nil)
				e.fired = true
			}
			q.entries = q.entries[1:]
			if q.dequeueIdx > 0 {
				q.dequeueIdx--
			}
		}
	}
	return true
}

// Broadcast invokes fn(entry.cb) for each still-pending, not-yet-fired
// entry in FIFO order, continuing while fn returns true. It does not
// remove entries — call Clear afterward.
func (q *WriteQueue) Broadcast(fn func(cb WriteCallback) bool) {
	for _, e := range q.entries {
		if e.fired {
			continue
		}
		e.fired = true
		if !fn(e.cb) {
			return
		}
	}
}

// Clear discards all entries without invoking callbacks.
func (q *WriteQueue) Clear() {
	q.entries = nil
	q.dequeueIdx = 0
}

// Empty reports whether the queue holds no entries.
func (q *WriteQueue) Empty() bool { return len(q.entries) == 0 }
