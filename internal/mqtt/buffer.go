package mqtt

// pending is a serialized message waiting for the broker.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds the newest messages published while offline. When full
// the oldest message is overwritten. Not safe for concurrent use.
type ringBuffer struct {
	buf     []pending
	head    int // next write position
	count   int
	dropped int // overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]pending, capacity)}
}

// push stores msg and reports whether an older message was discarded.
func (r *ringBuffer) push(msg pending) bool {
	full := r.count == len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if full {
		r.dropped++
		return true
	}
	r.count++
	return false
}

// drain returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []pending {
	if r.count == 0 {
		return nil
	}
	out := make([]pending, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.head, r.count, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int { return r.count }
