package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring used to decouple device-paced PCM
// writes from interval-paced chunk reads. One slot is kept free to
// disambiguate full from empty.
type RingBuffer struct {
	buf   []byte
	size  int
	read  int
	write int
	mu    sync.RWMutex
}

// NewRingBuffer creates a ring buffer holding up to size-1 bytes.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buf:  make([]byte, size),
		size: size,
	}
}

// Write copies data into the buffer and returns the number of bytes accepted.
// When the buffer fills, the remainder is discarded rather than overwriting
// unread audio.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for len(data) > 0 {
		space := rb.spaceLocked()
		if space == 0 {
			break
		}
		n := len(data)
		if n > space {
			n = space
		}
		// Copy up to the physical end of the backing slice, then wrap.
		tail := rb.size - rb.write
		if n > tail {
			n = tail
		}
		copy(rb.buf[rb.write:], data[:n])
		rb.write = (rb.write + n) % rb.size
		data = data[n:]
		written += n
	}
	return written
}

// Read copies up to len(data) buffered bytes into data and returns the count.
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for len(data) > 0 {
		avail := rb.availableLocked()
		if avail == 0 {
			break
		}
		n := len(data)
		if n > avail {
			n = avail
		}
		tail := rb.size - rb.read
		if n > tail {
			n = tail
		}
		copy(data[:n], rb.buf[rb.read:rb.read+n])
		rb.read = (rb.read + n) % rb.size
		data = data[n:]
		read += n
	}
	return read
}

// Available returns the number of buffered bytes ready to read.
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.availableLocked()
}

// Space returns the number of bytes that can be written without dropping.
func (rb *RingBuffer) Space() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.spaceLocked()
}

// Clear discards all buffered bytes.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read = 0
	rb.write = 0
}

// IsEmpty reports whether no bytes are buffered.
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}

// IsFull reports whether the next write would drop bytes.
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.spaceLocked() == 0
}

func (rb *RingBuffer) availableLocked() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

func (rb *RingBuffer) spaceLocked() int {
	return rb.size - rb.availableLocked() - 1
}
