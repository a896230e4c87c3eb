// Package chatws is the persistent authenticated WebSocket chat connection
// manager: one logical always-on duplex channel to the chat server per
// ConnectionKind, with RPC-style request/response multiplexing and a
// lifecycle policy deciding when the socket should be open or closed.
package chatws

import "fmt"

// ConnectionKind distinguishes the identified socket (carries login
// credentials) from the unidentified one (sealed-sender traffic, no
// credentials).
type ConnectionKind int

const (
	Identified ConnectionKind = iota
	Unidentified
)

func (k ConnectionKind) String() string {
	switch k {
	case Identified:
		return "identified"
	case Unidentified:
		return "unidentified"
	default:
		return fmt.Sprintf("ConnectionKind(%d)", int(k))
	}
}

// VisibleState is the externally observable connection state. It is
// monotonic only within a single ConnectionInstance — a new instance
// restarts at Connecting.
type VisibleState int

const (
	Closed VisibleState = iota
	Connecting
	Open
)

func (s VisibleState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return fmt.Sprintf("VisibleState(%d)", int(s))
	}
}

// DesiredState is the pure, tagged output of the desired-state evaluator:
// Open(reason) or Closed(reason). Equality is by tag plus reason; reason
// strings are diagnostic only.
type DesiredState struct {
	open   bool
	reason string
}

func OpenState(reason string) DesiredState   { return DesiredState{open: true, reason: reason} }
func ClosedState(reason string) DesiredState { return DesiredState{open: false, reason: reason} }

func (d DesiredState) Open() bool     { return d.open }
func (d DesiredState) Reason() string { return d.reason }

func (d DesiredState) Equal(other DesiredState) bool {
	return d.open == other.open && d.reason == other.reason
}

func (d DesiredState) String() string {
	if d.open {
		return fmt.Sprintf("Open(%s)", d.reason)
	}
	return fmt.Sprintf("Closed(%s)", d.reason)
}
