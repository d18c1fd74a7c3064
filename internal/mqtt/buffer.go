package mqtt

import "log/slog"

// defaultBufferSize bounds how many messages are held while the broker is
// unreachable. A phone produces a handful of events per call.
const defaultBufferSize = 256

// pendingMessage is a serialized message waiting for the broker.
type pendingMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineBuffer is a fixed-capacity FIFO that keeps the newest messages
// while disconnected, dropping the oldest when full.
// Not safe for concurrent use; the caller must synchronize.
type offlineBuffer struct {
	msgs     []pendingMessage
	head     int // next write position
	count    int
	overflow bool // a message was dropped since the last drain
}

func newOfflineBuffer(capacity int) *offlineBuffer {
	return &offlineBuffer{msgs: make([]pendingMessage, capacity)}
}

func (b *offlineBuffer) push(msg pendingMessage) {
	size := len(b.msgs)
	b.msgs[b.head] = msg
	b.head = (b.head + 1) % size
	if b.count < size {
		b.count++
		return
	}
	// Full: the write above replaced the oldest message.
	if !b.overflow {
		slog.Warn("mqtt: offline buffer full, dropping oldest", "capacity", size)
		b.overflow = true
	}
}

// drain returns buffered messages oldest first and empties the buffer.
func (b *offlineBuffer) drain() []pendingMessage {
	if b.count == 0 {
		return nil
	}

	size := len(b.msgs)
	out := make([]pendingMessage, b.count)
	start := (b.head - b.count + size) % size
	for i := range out {
		out[i] = b.msgs[(start+i)%size]
	}

	b.head = 0
	b.count = 0
	b.overflow = false
	return out
}

func (b *offlineBuffer) len() int {
	return b.count
}
