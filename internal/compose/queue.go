package compose

import (
	"container/heap"
	"sync"

	"github.com/google/uuid"

	"adapterd/pkg/types"
)

// Priority orders async composition requests. Higher runs first; equal
// priorities run FIFO.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Callback receives the async result exactly once. A non-nil Ref is owned
// by the callback, which must Release it.
type Callback func(requestID string, ref *Ref, err error)

type asyncRequest struct {
	id       string
	ids      []string
	strategy types.Strategy
	priority Priority
	callback Callback
	seq      uint64
	index    int // heap index, -1 once popped or cancelled
}

// ComposeAsync enqueues a composition onto the bounded priority queue and
// returns a request id immediately. The callback fires exactly once with the
// result. A full queue fails fast with a backpressure error.
func (c *Compositor) ComposeAsync(adapterIDs []string, strategy types.Strategy, priority Priority, cb Callback) (string, error) {
	if !types.ValidStrategy(strategy) {
		return "", invalidStrategyError{strategy: string(strategy)}
	}
	rq := &asyncRequest{
		id:       uuid.NewString(),
		ids:      append([]string(nil), adapterIDs...),
		strategy: strategy,
		priority: priority,
		callback: cb,
	}
	if err := c.queue.push(rq); err != nil {
		return "", err
	}
	queueLen.Set(float64(c.queue.len()))
	return rq.id, nil
}

// CancelAsync cancels a queued-but-not-started request by id with no side
// effects: its callback never fires. Returns false when the request is
// unknown or already started.
func (c *Compositor) CancelAsync(requestID string) bool {
	return c.queue.cancel(requestID)
}

// requestQueue is a bounded max-priority queue. Workers block on signal and
// pop the highest-priority oldest request.
type requestQueue struct {
	mu     sync.Mutex
	items  requestHeap
	byID   map[string]*asyncRequest
	seq    uint64
	depth  int
	signal chan struct{}
}

func newRequestQueue(depth int) *requestQueue {
	return &requestQueue{
		byID:   make(map[string]*asyncRequest),
		depth:  depth,
		signal: make(chan struct{}, depth),
	}
}

func (q *requestQueue) push(rq *asyncRequest) error {
	q.mu.Lock()
	if q.items.Len() >= q.depth {
		q.mu.Unlock()
		return backpressureError{key: NewKey(rq.ids, rq.strategy).String()}
	}
	q.seq++
	rq.seq = q.seq
	heap.Push(&q.items, rq)
	q.byID[rq.id] = rq
	q.mu.Unlock()
	q.signal <- struct{}{}
	return nil
}

func (q *requestQueue) pop() *asyncRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil
	}
	rq := heap.Pop(&q.items).(*asyncRequest)
	delete(q.byID, rq.id)
	return rq
}

func (q *requestQueue) cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	rq, ok := q.byID[id]
	if !ok || rq.index < 0 {
		return false
	}
	heap.Remove(&q.items, rq.index)
	delete(q.byID, id)
	// Retire the wakeup token that push sent for this item. Without this,
	// cancelled items leave the channel holding more tokens than queued
	// items, and once it fills a later push blocks on send. When the
	// channel is empty a worker already took the token and will pop nil.
	select {
	case <-q.signal:
	default:
	}
	return true
}

func (q *requestQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *requestQueue) drain(fn func(*asyncRequest)) {
	q.mu.Lock()
	items := make([]*asyncRequest, 0, q.items.Len())
	for q.items.Len() > 0 {
		rq := heap.Pop(&q.items).(*asyncRequest)
		delete(q.byID, rq.id)
		items = append(items, rq)
	}
	q.mu.Unlock()
	for _, rq := range items {
		fn(rq)
	}
}

type requestHeap []*asyncRequest

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requestHeap) Push(x any) {
	rq := x.(*asyncRequest)
	rq.index = len(*h)
	*h = append(*h, rq)
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	rq := old[n-1]
	old[n-1] = nil
	rq.index = -1
	*h = old[:n-1]
	return rq
}
