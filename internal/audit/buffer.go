package audit

import "sync"

// ringBuffer is a bounded, thread-safe buffer for pending audit records.
// When full, the oldest records are dropped to make room for new ones; drops
// are counted so the trail can escalate them.
type ringBuffer struct {
	mu       sync.Mutex
	records  []Record
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &ringBuffer{
		records:  make([]Record, capacity),
		capacity: capacity,
	}
}

// enqueue adds a record, dropping the oldest if necessary.
func (b *ringBuffer) enqueue(record Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
	}

	b.records[b.head] = record
	b.head = (b.head + 1) % b.capacity
	b.count++
}

// dequeueBatch removes up to n records from the buffer.
func (b *ringBuffer) dequeueBatch(n int) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]Record, n)
	for i := 0; i < n; i++ {
		result[i] = b.records[b.tail]
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n

	return result
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *ringBuffer) droppedCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
