package pipeline

import "sync/atomic"

// DefaultQueueSize is the ring's fixed capacity, a power of two per
// spec.md §3/§5.
const DefaultQueueSize = 1024

// Queue is the fixed-capacity single-producer/single-consumer ring of
// Jobs described in spec.md §3/§4.3/§5: exactly one ingress goroutine
// writes via Reserve/Publish, exactly one worker goroutine reads via
// Peek/Consume. head/tail use acquire/release atomics so neither side
// needs a lock; a full queue makes Reserve return nil (the datagram is
// dropped, per UDP semantics), and an empty queue makes Peek return nil
// (the worker backs off — see workers.go).
type Queue struct {
	jobs []Job
	mask uint32

	head uint32 // published count, atomic: producer writes (release), consumer reads (acquire)
	tail uint32 // consumed count, atomic: consumer writes (release), producer reads (acquire)

	reservedPos uint32 // producer-private copy of head: position of the slot Reserve hands out next
	consumePos  uint32 // consumer-private: mirrors tail, owned solely by the consumer

	shutdown int32 // atomic bool
}

// NewQueue builds a Queue with the given capacity, which must be a power
// of two. Capacities that aren't are rounded up to the next one.
func NewQueue(capacity int) *Queue {
	capacity = nextPowerOfTwo(capacity)
	return &Queue{
		jobs: make([]Job, capacity),
		mask: uint32(capacity - 1),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Reserve returns a pointer to the next writable slot, or nil if the
// queue is full. The caller (ingress) fills the slot's fields directly,
// then must call Publish to make it visible to the worker. Ingress reads
// each datagram into its own buffer first and copies it into the slot's
// Buffer; datagrams are not received straight into the slot. Reserve must
// only ever be called from the single producer goroutine.
func (q *Queue) Reserve() *Job {
	tail := atomic.LoadUint32(&q.tail) // acquire: see every Consume so far
	if q.reservedPos-tail >= uint32(len(q.jobs)) {
		return nil
	}
	slot := &q.jobs[q.reservedPos&q.mask]
	slot.reset()
	return slot
}

// Publish makes the most recently Reserve'd slot visible to the consumer.
// Must be called at most once per successful Reserve, from the producer
// goroutine only.
func (q *Queue) Publish() {
	q.reservedPos++
	atomic.StoreUint32(&q.head, q.reservedPos) // release
}

// Peek returns the next unread slot without consuming it, or nil if the
// queue is empty. Must only ever be called from the single consumer
// goroutine.
func (q *Queue) Peek() *Job {
	head := atomic.LoadUint32(&q.head) // acquire: see every Publish so far
	if q.consumePos == head {
		return nil
	}
	return &q.jobs[q.consumePos&q.mask]
}

// PeekNext returns the slot after the one Peek would return, for the
// worker loop's one-slot-ahead prefetch (spec.md §4.4 step 2). It returns
// nil if that slot has not been published yet.
func (q *Queue) PeekNext() *Job {
	head := atomic.LoadUint32(&q.head)
	if q.consumePos == head {
		return nil
	}
	next := q.consumePos + 1
	if next == head {
		return nil
	}
	return &q.jobs[next&q.mask]
}

// Consume advances past the slot Peek most recently returned. Must only
// ever be called from the single consumer goroutine, after Peek
// returned non-nil.
func (q *Queue) Consume() {
	q.consumePos++
	atomic.StoreUint32(&q.tail, q.consumePos) // release
}

// Shutdown sets the shutdown flag with release semantics; the worker
// observes it with a relaxed load on the empty path and exits cleanly
// (spec.md §5 "Cancellation").
func (q *Queue) Shutdown() {
	atomic.StoreInt32(&q.shutdown, 1)
}

// ShuttingDown reports the shutdown flag's current value.
func (q *Queue) ShuttingDown() bool {
	return atomic.LoadInt32(&q.shutdown) != 0
}

// Len reports the number of published-but-unconsumed jobs. Used by
// diagnostics and tests only — a racing producer/consumer makes this
// approximate by construction.
func (q *Queue) Len() int {
	head := atomic.LoadUint32(&q.head)
	tail := atomic.LoadUint32(&q.tail)
	return int(head - tail)
}

// Cap reports the queue's fixed capacity.
func (q *Queue) Cap() int { return len(q.jobs) }
