package chatws

import (
	"sync"
	"sync/atomic"
)

// RequestToken is an opaque process-unique value representing "a request
// the caller intends to submit soon". Its mere presence in the owning
// tokenSet forces the socket open (evaluator priority 6).
type RequestToken uint64

var tokenCounter atomic.Uint64

func newRequestToken() RequestToken {
	return RequestToken(tokenCounter.Add(1))
}

// tokenSet tracks unsubmitted request tokens with a short, independent
// critical section, per spec section 5's shared-resource policy.
type tokenSet struct {
	mu   sync.Mutex
	toks map[RequestToken]struct{}
}

func newTokenSet() *tokenSet {
	return &tokenSet{toks: make(map[RequestToken]struct{})}
}

// Make creates and registers a fresh unsubmitted token.
func (s *tokenSet) Make() RequestToken {
	t := newRequestToken()
	s.mu.Lock()
	s.toks[t] = struct{}{}
	s.mu.Unlock()
	return t
}

// Remove deletes a token unconditionally; a no-op if already removed.
func (s *tokenSet) Remove(t RequestToken) {
	s.mu.Lock()
	delete(s.toks, t)
	s.mu.Unlock()
}

// Len reports how many unsubmitted tokens are currently outstanding.
func (s *tokenSet) Len() int {
	s.mu.Lock()
	n := len(s.toks)
	s.mu.Unlock()
	return n
}
