// Package queue buffers outbound payloads while the link has no usable
// transport.
//
// Queue is a fixed-capacity ring. When full, Enqueue evicts the oldest
// entry so the most recent writes are kept.
package queue

import "sync"

// DefaultCapacity is the default number of payloads held.
const DefaultCapacity = 100

// Item is a queued payload with its enqueue sequence number.
type Item struct {
	Seq     uint64
	Payload []byte
}

// Queue is a thread-safe bounded FIFO with drop-oldest eviction.
type Queue struct {
	mu       sync.Mutex
	buf      []Item
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	nextSeq  uint64

	// Stats
	totalEnqueued int64
	totalFlushed  int64
	totalEvicted  int64
}

// New creates a queue holding at most capacity items.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		buf:      make([]Item, capacity),
		capacity: capacity,
	}
}

// Enqueue appends payload. If the queue is full the oldest item is
// evicted first and returned with evicted set to true.
func (q *Queue) Enqueue(payload []byte) (dropped Item, evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.capacity {
		dropped = q.popFront()
		evicted = true
		q.totalEvicted++
	}

	q.nextSeq++
	q.buf[q.tail] = Item{Seq: q.nextSeq, Payload: payload}
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalEnqueued++

	return dropped, evicted
}

// Flush hands items to sink in enqueue order. On the first sink error
// the failed item is put back at the front, flushing stops and the error
// is returned. Returns the number of items handed off successfully.
func (q *Queue) Flush(sink func(payload []byte) error) (int, error) {
	flushed := 0
	for {
		q.mu.Lock()
		if q.count == 0 {
			q.mu.Unlock()
			return flushed, nil
		}
		item := q.popFront()
		q.mu.Unlock()

		if err := sink(item.Payload); err != nil {
			q.mu.Lock()
			q.pushFront(item)
			q.mu.Unlock()
			return flushed, err
		}

		q.mu.Lock()
		q.totalFlushed++
		q.mu.Unlock()
		flushed++
	}
}

// Clear drops all items.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	for i := range q.buf {
		q.buf[i] = Item{}
	}
	q.head = 0
	q.tail = 0
	q.count = 0
	return n
}

// Len returns the current number of items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Items returns a copy of the queued items, oldest first.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, q.count)
	for i := 0; i < q.count; i++ {
		out[i] = q.buf[(q.head+i)%q.capacity]
	}
	return out
}

// Stats returns queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:         q.count,
		Capacity:      q.capacity,
		TotalEnqueued: q.totalEnqueued,
		TotalFlushed:  q.totalFlushed,
		TotalEvicted:  q.totalEvicted,
	}
}

// Stats contains queue statistics.
type Stats struct {
	Count         int
	Capacity      int
	TotalEnqueued int64
	TotalFlushed  int64
	TotalEvicted  int64
}

// popFront removes the oldest item. Must be called with lock held and count > 0.
func (q *Queue) popFront() Item {
	item := q.buf[q.head]
	q.buf[q.head] = Item{} // Clear reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	return item
}

// pushFront re-inserts item as the oldest entry. Must be called with lock held.
// If a concurrent Enqueue filled the queue meanwhile, item is itself the
// oldest entry and is evicted instead.
func (q *Queue) pushFront(item Item) {
	if q.count == q.capacity {
		q.totalEvicted++
		return
	}
	q.head = (q.head - 1 + q.capacity) % q.capacity
	q.buf[q.head] = item
	q.count++
}
