package chatws

import (
	"sync"
	"sync/atomic"
	"time"
)

// requestResult is what a pendingRequest's result channel carries: either a
// successful response body/headers/status, or a terminal error.
type requestResult struct {
	status  uint32
	headers []string
	body    []byte
	err     error
}

// pendingRequest is one outstanding request_id -> completion mapping (spec
// section 3's PendingRequest). Completion is exactly-once: every completion
// path goes through a compare-and-swap on `completed` so only the first
// caller's result is delivered (invariant 4).
type pendingRequest struct {
	requestID uint64
	url       string
	method    string
	startedAt time.Time

	completed atomic.Bool
	resultCh  chan *requestResult
	timer     *time.Timer
}

func newPendingRequest(requestID uint64, method, url string) *pendingRequest {
	return &pendingRequest{
		requestID: requestID,
		url:       url,
		method:    method,
		startedAt: time.Now(),
		resultCh:  make(chan *requestResult, 1),
	}
}

// complete delivers a successful or HTTP-error response, classified by
// status code (spec section 4.B).
func (p *pendingRequest) complete(status uint32, headers []string, body []byte) {
	if !p.completed.CompareAndSwap(false, true) {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	var err error
	if status < 200 || status > 299 {
		err = &HTTPError{URL: p.url, Status: status, Headers: headers, Body: body}
	}
	p.resultCh <- &requestResult{status: status, headers: headers, body: body, err: err}
}

// failNetwork terminates the request with a NetworkFailureError.
func (p *pendingRequest) failNetwork(reason string) {
	if !p.completed.CompareAndSwap(false, true) {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.resultCh <- &requestResult{err: &NetworkFailureError{URL: p.url, Reason: reason}}
}

// failInvalid terminates the request with an InvalidRequestError.
func (p *pendingRequest) failInvalid(reason string) {
	if !p.completed.CompareAndSwap(false, true) {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.resultCh <- &requestResult{err: &InvalidRequestError{URL: p.url, Reason: reason}}
}

// requestRegistry is the per-connection-instance map of outstanding
// request_id -> pendingRequest, with per-request timeout scheduling (spec
// section 4.B). The timeout is defaultRequestTimeout (10s) unless
// overridden for tests.
type requestRegistry struct {
	mu      sync.Mutex
	entries map[uint64]*pendingRequest
	timeout time.Duration
	// onTimeout is invoked (off the registry's own lock) when a request
	// times out, so the caller can cycle the socket per spec section 4.E.
	onTimeout func(requestID uint64)
}

const defaultRequestTimeout = 10 * time.Second

func newRequestRegistry(onTimeout func(requestID uint64)) *requestRegistry {
	return &requestRegistry{
		entries:   make(map[uint64]*pendingRequest),
		timeout:   defaultRequestTimeout,
		onTimeout: onTimeout,
	}
}

// insert registers pr and arms its timeout timer.
func (r *requestRegistry) insert(pr *pendingRequest) {
	r.mu.Lock()
	r.entries[pr.requestID] = pr
	r.mu.Unlock()

	pr.timer = time.AfterFunc(r.timeout, func() {
		r.mu.Lock()
		_, ok := r.entries[pr.requestID]
		delete(r.entries, pr.requestID)
		r.mu.Unlock()
		if !ok {
			return
		}
		pr.failNetwork("timeout")
		if r.onTimeout != nil {
			r.onTimeout(pr.requestID)
		}
	})
}

// pop removes and returns the pending request for requestID, if any. A
// response with an unknown request_id (no entry found) generates no
// completion and no state mutation beyond the caller's own logging.
func (r *requestRegistry) pop(requestID uint64) (*pendingRequest, bool) {
	r.mu.Lock()
	pr, ok := r.entries[requestID]
	if ok {
		delete(r.entries, requestID)
	}
	r.mu.Unlock()
	return pr, ok
}

// drainAll removes every pending request and fails each with
// NetworkFailure, used when a ConnectionInstance is dropped (invariant 5).
func (r *requestRegistry) drainAll(reason string) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uint64]*pendingRequest)
	r.mu.Unlock()

	for _, pr := range entries {
		pr.failNetwork(reason)
	}
}

// count reports the number of currently outstanding requests.
func (r *requestRegistry) count() int {
	r.mu.Lock()
	n := len(r.entries)
	r.mu.Unlock()
	return n
}
