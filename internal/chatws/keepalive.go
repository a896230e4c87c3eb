package chatws

import (
	"sync"
	"time"
)

// BackgroundKeepAliveReason classifies why the socket is being allowed to
// stay open while the app is not in the foreground, each with its fixed
// extension window (spec section 3).
type BackgroundKeepAliveReason int

const (
	DidReceivePush BackgroundKeepAliveReason = iota
	ReceiveMessage
	ReceiveResponse
)

func (r BackgroundKeepAliveReason) window() time.Duration {
	switch r {
	case DidReceivePush:
		return 20 * time.Second
	case ReceiveMessage:
		return 15 * time.Second
	case ReceiveResponse:
		return 5 * time.Second
	default:
		return 0
	}
}

func (r BackgroundKeepAliveReason) String() string {
	switch r {
	case DidReceivePush:
		return "didReceivePush"
	case ReceiveMessage:
		return "receiveMessage"
	case ReceiveResponse:
		return "receiveResponse"
	default:
		return "unknown"
	}
}

// backgroundKeepAlive holds at most one active keep-alive window, extended
// only by a reason whose `until` strictly extends the current one.
type backgroundKeepAlive struct {
	mu    sync.Mutex
	until time.Time // zero value means no active keep-alive
}

// Extend records a keep-alive window ending at now+reason.window(), but
// only if that's strictly later than the currently recorded `until`.
func (k *backgroundKeepAlive) Extend(reason BackgroundKeepAliveReason, now time.Time) {
	candidate := now.Add(reason.window())
	k.mu.Lock()
	if candidate.After(k.until) {
		k.until = candidate
	}
	k.mu.Unlock()
}

// Active reports whether the keep-alive window is still open at `now`.
func (k *backgroundKeepAlive) Active(now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return !k.until.IsZero() && now.Before(k.until)
}

// Reset clears any active keep-alive window.
func (k *backgroundKeepAlive) Reset() {
	k.mu.Lock()
	k.until = time.Time{}
	k.mu.Unlock()
}
