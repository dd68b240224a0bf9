package tracker

import "sync"

// Status is the user-visible condition of the background machinery: whether
// a refresh or sync is in flight, and the single most recent failure
// message. New failures replace the old one; they are not accumulated.
type Status struct {
	mu        sync.Mutex
	inflight  int
	lastError string
}

// Begin marks one operation in flight.
func (s *Status) Begin() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

// End marks one operation finished.
func (s *Status) End() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

// SetError replaces the last-error message.
func (s *Status) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// ClearError resets the last-error message.
func (s *Status) ClearError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
}

// Snapshot returns the busy flag and the last error message.
func (s *Status) Snapshot() (busy bool, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0, s.lastError
}
