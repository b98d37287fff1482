package reliability

import "sync"

// DefaultBufferSize matches the reference implementation's retransmission
// buffer size.
const DefaultBufferSize = 32

// RetransmitBuffer holds the most recently sent frame bytes by sequence
// number so a NAK can trigger a resend without replaying the whole
// connection. When full, the oldest (lowest) sequence is evicted, mirroring
// the reference's RetransmissionBuffer.
type RetransmitBuffer struct {
	mu       sync.Mutex
	size     int
	byFrames map[uint32][]byte
}

// NewRetransmitBuffer constructs a buffer holding up to size frames; 0 uses
// DefaultBufferSize.
func NewRetransmitBuffer(size int) *RetransmitBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RetransmitBuffer{
		size:     size,
		byFrames: make(map[uint32][]byte, size),
	}
}

// Store saves raw for seq, evicting the oldest entry if the buffer is full.
func (b *RetransmitBuffer) Store(seq uint32, raw []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byFrames[seq]; !exists && len(b.byFrames) >= b.size {
		var oldest uint32
		first := true
		for s := range b.byFrames {
			if first || s < oldest {
				oldest = s
				first = false
			}
		}
		delete(b.byFrames, oldest)
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	b.byFrames[seq] = cp
}

// Get returns the raw bytes previously stored for seq, if still buffered.
func (b *RetransmitBuffer) Get(seq uint32) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.byFrames[seq]
	return raw, ok
}

// Ack prunes seq and everything older than it, since the peer has
// acknowledged receipt through that sequence.
func (b *RetransmitBuffer) Ack(seq uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.byFrames {
		if s <= seq {
			delete(b.byFrames, s)
		}
	}
}
