package eventloop

import "sync"

// queue is a FIFO circular buffer that grows when it is full.
// Entries are never dropped.
type queue struct {
	mut       sync.Mutex
	entries   []any
	head      int // index of the first entry
	size      int // number of entries
	readyChan chan struct{}
}

func newQueue(capacity uint) *queue {
	if capacity == 0 {
		capacity = 1
	}
	return &queue{
		entries:   make([]any, capacity),
		readyChan: make(chan struct{}, 1),
	}
}

func (q *queue) grow() {
	entries := make([]any, 2*len(q.entries))
	n := copy(entries, q.entries[q.head:])
	copy(entries[n:], q.entries[:q.head])
	q.entries = entries
	q.head = 0
}

func (q *queue) push(entry any) {
	q.mut.Lock()
	defer q.mut.Unlock()

	if q.size == len(q.entries) {
		q.grow()
	}
	q.entries[(q.head+q.size)%len(q.entries)] = entry
	q.size++

	select {
	case q.readyChan <- struct{}{}:
	default:
	}
}

func (q *queue) pop() (entry any, ok bool) {
	q.mut.Lock()
	defer q.mut.Unlock()

	if q.size == 0 {
		return nil, false
	}
	entry = q.entries[q.head]
	q.entries[q.head] = nil
	q.head = (q.head + 1) % len(q.entries)
	q.size--
	return entry, true
}

func (q *queue) len() int {
	q.mut.Lock()
	defer q.mut.Unlock()
	return q.size
}

// ready is signalled after a push. A pending signal is kept until it is received.
func (q *queue) ready() <-chan struct{} {
	return q.readyChan
}
