package workqueue

import "sync"

// ConcurrencyStrategy controls how many tasks may run at once. The strategy
// tracks running tasks; the queue asks it before starting each one.
type ConcurrencyStrategy interface {
	// CanStart returns true if another task can start given current state
	CanStart() bool
	// OnStart is called when a task starts
	OnStart()
	// OnComplete is called when a task reaches a terminal state
	OnComplete()
}

// SerializedStrategy runs one task at a time.
type SerializedStrategy struct {
	mu      sync.Mutex
	running bool
}

// NewSerializedStrategy creates a strategy that runs tasks one by one in
// enqueue order.
func NewSerializedStrategy() *SerializedStrategy {
	return &SerializedStrategy{}
}

func (s *SerializedStrategy) CanStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.running
}

func (s *SerializedStrategy) OnStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

func (s *SerializedStrategy) OnComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// ThrottledStrategy runs up to a fixed number of tasks concurrently.
type ThrottledStrategy struct {
	mu            sync.Mutex
	running       int
	maxConcurrent int
}

// NewThrottledStrategy creates a strategy allowing maxConcurrent running
// tasks. Values below 1 are treated as 1.
func NewThrottledStrategy(maxConcurrent int) *ThrottledStrategy {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ThrottledStrategy{maxConcurrent: maxConcurrent}
}

func (s *ThrottledStrategy) CanStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running < s.maxConcurrent
}

func (s *ThrottledStrategy) OnStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running++
}

func (s *ThrottledStrategy) OnComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running > 0 {
		s.running--
	}
}

// Running returns the number of tasks currently running.
func (s *ThrottledStrategy) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
