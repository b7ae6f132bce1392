package packet

import "sync"

// Queue is a mutex-guarded FIFO of packets for one track. Every method is
// safe for concurrent use and holds only the queue's own lock, so it can be
// called while holding any other lock.
type Queue struct {
	mu    sync.Mutex
	eof   bool
	count int
	bytes int
	head  *Packet
	tail  *Packet
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends p and takes ownership of it. A push clears EOF: the flag may
// have been set because another track ran out of buffer space, not because
// this one really ended.
func (q *Queue) Push(p *Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p.next = nil
	q.count++
	q.bytes += p.Len()
	if q.tail != nil {
		q.tail.next = p
		q.tail = p
	} else {
		q.head = p
		q.tail = p
	}
	q.eof = false
}

// Pop removes and returns the oldest packet, or nil when the queue is empty.
func (q *Queue) Pop() *Packet {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := q.head
	if p == nil {
		return nil
	}
	q.head = p.next
	p.next = nil
	if q.head == nil {
		q.tail = nil
	}
	q.count--
	q.bytes -= p.Len()
	return p
}

// IsEmpty reports whether no packet is queued.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head == nil
}

// SetEOF sets the EOF flag. It is forced to false while packets remain.
func (q *Queue) SetEOF(eof bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.eof = eof && q.head == nil
}

// IsEOF reports the EOF flag.
func (q *Queue) IsEOF() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.eof
}

// PeekPTS returns the pts of the packet Pop would return, or NoPTS.
func (q *Queue) PeekPTS() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == nil {
		return NoPTS
	}
	return q.head.PTS
}

// Flush releases every queued packet and clears EOF.
func (q *Queue) Flush() {
	q.mu.Lock()
	p := q.head
	q.head = nil
	q.tail = nil
	q.count = 0
	q.bytes = 0
	q.eof = false
	q.mu.Unlock()

	for p != nil {
		next := p.next
		p.Release()
		p = next
	}
}

// Size returns the queued byte total and packet count.
func (q *Queue) Size() (bytes, count int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes, q.count
}
