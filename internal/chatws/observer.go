package chatws

import (
	"context"
	"sync"
)

// StateObserver tracks the current VisibleState, publishes change
// notifications, and supports AwaitOpen with cancellation (spec section
// 4.G). The waiters map is the one data structure in this package touched
// under a lock that may be held briefly from an awaiting context (spec
// section 5) — registration/removal is atomic with respect to state
// changes so a transition to Open can never race past a waiter that hasn't
// registered yet.
type StateObserver struct {
	mu      sync.Mutex
	state   VisibleState
	waiters map[uint64]chan struct{}
	nextID  uint64

	// onChange is the notification sink — posted asynchronously on every
	// transition, standing in for the source's ChatConnectionStateDidChange
	// broadcast (spec section 6).
	onChange func(VisibleState)
}

// NewStateObserver returns an observer starting in Closed.
func NewStateObserver(onChange func(VisibleState)) *StateObserver {
	return &StateObserver{
		waiters:  make(map[uint64]chan struct{}),
		onChange: onChange,
	}
}

func (o *StateObserver) State() VisibleState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetState records a new VisibleState. If it actually changed, every
// registered AwaitOpen waiter is resumed (when the new state is Open) and a
// notification is posted asynchronously.
func (o *StateObserver) SetState(s VisibleState) {
	o.mu.Lock()
	changed := o.state != s
	o.state = s
	var toResume []chan struct{}
	if changed && s == Open {
		toResume = make([]chan struct{}, 0, len(o.waiters))
		for id, ch := range o.waiters {
			toResume = append(toResume, ch)
			delete(o.waiters, id)
		}
	}
	o.mu.Unlock()

	for _, ch := range toResume {
		close(ch)
	}
	if changed && o.onChange != nil {
		go o.onChange(s)
	}
}

// AwaitOpen blocks until the connection is Open, or ctx is cancelled first
// (returning CancelledError), or immediately succeeds if already Open.
func (o *StateObserver) AwaitOpen(ctx context.Context) error {
	o.mu.Lock()
	if o.state == Open {
		o.mu.Unlock()
		return nil
	}
	id := o.nextID
	o.nextID++
	ch := make(chan struct{})
	o.waiters[id] = ch
	o.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		o.mu.Lock()
		delete(o.waiters, id)
		o.mu.Unlock()
		return &CancelledError{}
	}
}
