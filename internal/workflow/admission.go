package workflow

import "sync"

// admissionQueue is the FIFO of job ids waiting for a worker. It also counts
// jobs handed to workers so queue length and active count are read together.
type admissionQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ids    []string
	active int
	closed bool
}

func newAdmissionQueue() *admissionQueue {
	q := &admissionQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends id. It returns false once the queue is closed.
func (q *admissionQueue) push(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.ids = append(q.ids, id)
	q.cond.Signal()
	return true
}

// pop blocks until an id is available and marks it active. It returns false
// once the queue is closed, leaving any remaining ids queued.
func (q *admissionQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.ids) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return "", false
	}
	id := q.ids[0]
	q.ids[0] = ""
	q.ids = q.ids[1:]
	q.active++
	return id, true
}

// done releases a slot taken by pop.
func (q *admissionQueue) done() {
	q.mu.Lock()
	q.active--
	q.mu.Unlock()
}

// remove drops a queued id, reporting whether it was found.
func (q *admissionQueue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, queued := range q.ids {
		if queued == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (q *admissionQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *admissionQueue) counts() (queued, active int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids), q.active
}
