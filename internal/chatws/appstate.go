package chatws

import "sync"

// AppState holds the app-lifecycle flags the desired-state evaluator reads
// (spec section 4.D, inputs 1/3/4/8). It is written from outside (app
// lifecycle callbacks, registration/config change events) and read by the
// evaluator on every reconcile; a short independent critical section is
// enough, per spec section 5's shared-resource policy — this never needs to
// serialize with the controller's own work queue.
type AppState struct {
	mu               sync.RWMutex
	ready            bool
	registered       bool
	expired          bool
	canUseSockets    bool
	active           bool
	transportBuildOK bool
}

// NewAppState returns an AppState with the common "everything is fine"
// defaults; callers flip flags as real lifecycle events arrive.
func NewAppState() *AppState {
	return &AppState{
		ready:            true,
		registered:       true,
		canUseSockets:    true,
		transportBuildOK: true,
	}
}

func (s *AppState) SetReady(v bool)            { s.set(func(s *AppState) { s.ready = v }) }
func (s *AppState) SetRegistered(v bool)       { s.set(func(s *AppState) { s.registered = v }) }
func (s *AppState) SetExpired(v bool)          { s.set(func(s *AppState) { s.expired = v }) }
func (s *AppState) SetCanUseSockets(v bool)    { s.set(func(s *AppState) { s.canUseSockets = v }) }
func (s *AppState) SetActive(v bool)           { s.set(func(s *AppState) { s.active = v }) }
func (s *AppState) SetTransportBuildOK(v bool) { s.set(func(s *AppState) { s.transportBuildOK = v }) }

func (s *AppState) set(mutate func(*AppState)) {
	s.mu.Lock()
	mutate(s)
	s.mu.Unlock()
}

// Snapshot is an immutable read of every flag at one instant, passed to the
// evaluator so its decision is a pure function of one consistent view.
type Snapshot struct {
	Ready            bool
	Registered       bool
	Expired          bool
	CanUseSockets    bool
	Active           bool
	TransportBuildOK bool
}

func (s *AppState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Ready:            s.ready,
		Registered:       s.registered,
		Expired:          s.expired,
		CanUseSockets:    s.canUseSockets,
		Active:           s.active,
		TransportBuildOK: s.transportBuildOK,
	}
}
