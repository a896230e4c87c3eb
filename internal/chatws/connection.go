package chatws

import (
	"context"
	"log"
)

// Connection is the public handle for one ConnectionKind's persistent
// socket: construct one per kind with NewConnection (which also starts it),
// and call MakeRequest/AwaitOpen from anywhere. It is a thin public facade over Controller so callers
// outside this package never reach into controller internals directly.
type Connection struct {
	kind       ConnectionKind
	controller *Controller
}

// NewConnection builds and starts a Connection for one kind.
func NewConnection(
	ctx context.Context,
	kind ConnectionKind,
	transportFactory TransportFactory,
	registration RegistrationManager,
	processor MessageProcessor,
	outage OutageDetector,
	logger *log.Logger,
) *Connection {
	ctrl := NewController(kind, transportFactory, registration, processor, outage, logger)
	ctrl.Start(ctx)
	return &Connection{kind: kind, controller: ctrl}
}

func (c *Connection) Kind() ConnectionKind { return c.kind }

// MakeRequest submits req and waits for its result (spec section 4.F).
func (c *Connection) MakeRequest(ctx context.Context, req OutboundRequest) ([]byte, error) {
	return c.controller.MakeRequest(ctx, req)
}

// AwaitOpen blocks until the socket is Open or ctx is cancelled.
func (c *Connection) AwaitOpen(ctx context.Context) error {
	return c.controller.Observer().AwaitOpen(ctx)
}

// State reports the current VisibleState.
func (c *Connection) State() VisibleState { return c.controller.CurrentState() }

// Deregistered reports whether the last drop was caused by an HTTP 403.
func (c *Connection) Deregistered() bool { return c.controller.Deregistered() }

// PendingCount reports outstanding in-flight requests on the current instance.
func (c *Connection) PendingCount() int { return c.controller.PendingCount() }

// HasEmptiedInitialQueue reports whether the current instance has seen its
// initial-queue-empty signal.
func (c *Connection) HasEmptiedInitialQueue() bool { return c.controller.HasEmptiedInitialQueue() }

// Cycle forces the socket closed and immediately re-reconciled.
func (c *Connection) Cycle(ctx context.Context) { c.controller.Cycle(ctx) }

// SetAppActive/SetAppReady/... forward app-lifecycle events into the
// evaluator's inputs (spec section 4.D).
func (c *Connection) SetAppActive(ctx context.Context, v bool)        { c.controller.SetAppActive(ctx, v) }
func (c *Connection) SetAppReady(ctx context.Context, v bool)         { c.controller.SetAppReady(ctx, v) }
func (c *Connection) SetAppExpired(ctx context.Context, v bool)       { c.controller.SetAppExpired(ctx, v) }
func (c *Connection) SetAppRegistered(ctx context.Context, v bool)    { c.controller.SetAppRegistered(ctx, v) }
func (c *Connection) SetCanUseSockets(ctx context.Context, v bool)    { c.controller.SetCanUseSockets(ctx, v) }
func (c *Connection) SetTransportBuildOK(ctx context.Context, v bool) { c.controller.SetTransportBuildOK(ctx, v) }

// Stop tears the connection down.
func (c *Connection) Stop() { c.controller.Stop() }
