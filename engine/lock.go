package engine

import "sync"

// InferenceLock serializes native compute across every session sharing a
// process. Backends such as llama.cpp are not reentrant across contexts, so
// hosts construct one lock and pass it to each session they create; the
// sessions hold it only for the duration of a single append or sample step,
// which interleaves long generations fairly instead of running them
// back-to-back.
type InferenceLock struct {
	mu sync.Mutex
}

// NewInferenceLock returns a lock shared by all sessions of one host.
func NewInferenceLock() *InferenceLock {
	return &InferenceLock{}
}

// Lock acquires the lock for one inference step.
func (l *InferenceLock) Lock() { l.mu.Lock() }

// Unlock releases the lock after the step completes.
func (l *InferenceLock) Unlock() { l.mu.Unlock() }
