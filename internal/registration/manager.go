// Package registration is the minimal concrete RegistrationManager the
// chatws controller consumes: whether the app is currently registered, and
// recording deregistration after an HTTP 403 on the identified socket
// (spec.md section 4.E). The real account/registration subsystem is out of
// scope (spec.md section 1); this just gives the interface somewhere real
// to persist its one bit of state, backed by the same SQLite store the rest
// of the admin layer uses.
package registration

import (
	"sync/atomic"

	"chatconn/internal/chatws"
	"chatconn/internal/store"
)

// Manager implements chatws.RegistrationManager for one ConnectionKind.
type Manager struct {
	kind         string
	store        *store.Store
	deregistered atomic.Bool
}

// New loads the persisted deregistration flag and returns a Manager for kind.
func New(kind chatws.ConnectionKind, s *store.Store) (*Manager, error) {
	name := kind.String()
	m := &Manager{kind: name, store: s}
	deregistered, err := s.IsDeregistered(name)
	if err != nil {
		return nil, err
	}
	m.deregistered.Store(deregistered)
	return m, nil
}

func (m *Manager) IsRegistered() bool { return !m.deregistered.Load() }

func (m *Manager) SetIsDeregistered(v bool) {
	m.deregistered.Store(v)
	if m.store != nil {
		_ = m.store.SetDeregistered(m.kind, v)
	}
}
