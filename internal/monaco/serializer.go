package monaco

import "sync"

// serializerQueueSize bounds each fixture's pending task queue. Submit blocks
// once a fixture falls this far behind, which throttles the stream handlers
// instead of growing memory.
const serializerQueueSize = 128

// UpdateSerializer runs tasks of the same fixture strictly in submission order
// while different fixtures proceed in parallel. Workers are created lazily,
// one goroutine per fixture seen.
type UpdateSerializer struct {
	mu      sync.Mutex
	queues  map[int64]chan func()
	stopped bool

	submits sync.WaitGroup // in-flight Submit sends
	wg      sync.WaitGroup // worker goroutines
}

func NewUpdateSerializer() *UpdateSerializer {
	return &UpdateSerializer{queues: make(map[int64]chan func())}
}

// Submit enqueues a task on the fixture's chain. Tasks submitted after Stop
// are silently discarded.
func (s *UpdateSerializer) Submit(fixtureID int64, task func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	q, ok := s.queues[fixtureID]
	if !ok {
		q = make(chan func(), serializerQueueSize)
		s.queues[fixtureID] = q
		s.wg.Add(1)
		go s.worker(q)
	}
	s.submits.Add(1)
	s.mu.Unlock()

	// Send outside the lock: one fixture's full queue must not stall
	// submissions for every other fixture. Stop waits for in-flight sends
	// before closing the chains, so this send never hits a closed channel.
	q <- task
	s.submits.Done()
}

func (s *UpdateSerializer) worker(q chan func()) {
	defer s.wg.Done()
	for task := range q {
		task()
	}
}

// Stop closes all chains and blocks until every queued task has run.
func (s *UpdateSerializer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.submits.Wait()

	s.mu.Lock()
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
