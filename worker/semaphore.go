package worker

import "sync"

// semaphore is a counting semaphore. Each release permits exactly one
// acquire, so a wake issued before the waiter blocks is never lost.
type semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func (s *semaphore) init() {
	s.cond = sync.NewCond(&s.mu)
}

func (s *semaphore) release() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *semaphore) acquire() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}
