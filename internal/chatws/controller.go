package chatws

import (
	"context"
	"log"
	"time"

	"chatconn/internal/wsproto"
)

const (
	// connectWatchdog bounds how long an instance may sit in Connecting
	// before the controller gives up on it and tries again (spec section
	// 4.E.2).
	connectWatchdog = 30 * time.Second

	// reconnectDelay is the fixed wait before recreating a dropped instance
	// that the evaluator still wants open. Kept constant rather than
	// exponential-backed-off per the recorded open-question decision in
	// SPEC_FULL.md section E.1 — this is a foreground interactive socket,
	// not the supervisory process-level retry the teacher's watchdog does.
	reconnectDelay = 5 * time.Second

	// backgroundKeepAliveTick is the rate of the background keep-alive
	// ticker (spec section 5's timer table, and the literal "background 1
	// Hz timer" of the backgrounded-decay scenario): the only input whose
	// expiry alone, with no other event, must still trigger a reconcile.
	// Only runs while it could actually matter — see syncKeepAliveTicker.
	backgroundKeepAliveTick = 1 * time.Second
)

// xSignalTimestampHeader carries the server-delivery timestamp alongside a
// PUT /api/v1/message envelope (spec section 6).
const xSignalTimestampHeader = "x-signal-timestamp"

// Controller is the single-threaded lifecycle owner for one ConnectionKind
// (spec section 4.E): it owns the current ConnectionInstance (if any),
// reconciles it against the desired-state evaluator's output on every
// relevant event, and answers server-originated requests. Every mutation of
// its own state happens inside a closure run on its work queue, so nothing
// here needs its own mutex.
type Controller struct {
	kind ConnectionKind

	appState  *AppState
	tokens    *tokenSet
	keepAlive *backgroundKeepAlive
	observer  *StateObserver

	transportFactory TransportFactory
	registration     RegistrationManager
	processor        MessageProcessor
	outage           OutageDetector
	logger           *log.Logger

	queue chan func()
	done  chan struct{}

	current         *ConnectionInstance
	desired         DesiredState
	watchdog        *time.Timer
	reconnect       *time.Timer
	keepAliveTicker chan struct{} // non-nil while the background keep-alive ticker goroutine is running
	deregistered    bool
}

// NewController builds a Controller for one ConnectionKind. transportFactory
// is called fresh for every connection attempt so that per-attempt headers
// (auth, etc.) can be computed at dial time.
func NewController(
	kind ConnectionKind,
	transportFactory TransportFactory,
	registration RegistrationManager,
	processor MessageProcessor,
	outage OutageDetector,
	logger *log.Logger,
) *Controller {
	c := &Controller{
		kind:             kind,
		appState:         NewAppState(),
		tokens:           newTokenSet(),
		keepAlive:        &backgroundKeepAlive{},
		transportFactory: transportFactory,
		registration:     registration,
		processor:        processor,
		outage:           outage,
		logger:           logger,
		queue:            make(chan func(), 64),
		done:             make(chan struct{}),
		desired:          ClosedState("initial"),
	}
	c.observer = NewStateObserver(func(s VisibleState) {
		if c.logger != nil {
			c.logger.Printf("chatws[%s]: visible state -> %s", c.kind, s)
		}
	})
	return c
}

// Start launches the queue-processing goroutine. Call once.
func (c *Controller) Start(ctx context.Context) {
	go c.run(ctx)
	c.enqueue(func() { c.reconcile(ctx) })
}

// Stop tears down the controller's background goroutines and drops any live
// instance.
func (c *Controller) Stop() {
	cleaned := make(chan struct{})
	c.enqueue(func() {
		if c.current != nil {
			c.current.Drop()
			c.current = nil
		}
		c.cancelWatchdog()
		c.cancelReconnect()
		c.cancelKeepAliveTicker()
		close(cleaned)
	})
	<-cleaned
	close(c.done)
}

func (c *Controller) run(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.queue:
			fn()
		}
	}
}

// enqueue posts fn to run serially on the controller's own goroutine. The
// queue is generously buffered; when it is full, enqueue blocks until there
// is room. Once the controller is stopped, fn may be discarded instead.
func (c *Controller) enqueue(fn func()) {
	select {
	case c.queue <- fn:
	case <-c.done:
	}
}

// Observer exposes the state observer so the top-level facade can offer
// AwaitOpen and subscribe to change notifications.
func (c *Controller) Observer() *StateObserver { return c.observer }

// --- app lifecycle inputs (spec section 4.D inputs) ---

func (c *Controller) SetAppReady(ctx context.Context, v bool) {
	c.appState.SetReady(v)
	c.enqueue(func() { c.reconcile(ctx) })
}

func (c *Controller) SetAppRegistered(ctx context.Context, v bool) {
	c.appState.SetRegistered(v)
	c.enqueue(func() { c.reconcile(ctx) })
}

func (c *Controller) SetAppExpired(ctx context.Context, v bool) {
	c.appState.SetExpired(v)
	c.enqueue(func() { c.reconcile(ctx) })
}

func (c *Controller) SetCanUseSockets(ctx context.Context, v bool) {
	c.appState.SetCanUseSockets(v)
	c.enqueue(func() { c.reconcile(ctx) })
}

func (c *Controller) SetAppActive(ctx context.Context, v bool) {
	c.appState.SetActive(v)
	c.enqueue(func() { c.reconcile(ctx) })
}

func (c *Controller) SetTransportBuildOK(ctx context.Context, v bool) {
	c.appState.SetTransportBuildOK(v)
	c.enqueue(func() { c.reconcile(ctx) })
}

// MakeToken registers a fresh unsubmitted-request token and immediately
// reconciles, since its mere presence forces the socket open (evaluator
// priority 6).
func (c *Controller) MakeToken(ctx context.Context) RequestToken {
	t := c.tokens.Make()
	c.enqueue(func() { c.reconcile(ctx) })
	return t
}

// ReleaseToken removes a token unconditionally, per the dispatcher's
// documented no-cancel-on-cancellation contract (spec section 4.F) — the
// token always comes out exactly once, win or lose.
func (c *Controller) ReleaseToken(ctx context.Context, t RequestToken) {
	c.tokens.Remove(t)
	c.enqueue(func() { c.reconcile(ctx) })
}

// --- reconciliation ---

func (c *Controller) hasPendingRequests() bool {
	return c.current != nil && c.current.PendingCount() > 0
}

// evaluate recomputes the desired state from the controller's own fields,
// without touching c.current. Must only be called from the queue goroutine.
func (c *Controller) evaluate() DesiredState {
	app := c.appState.Snapshot()
	if c.registration != nil && !c.registration.IsRegistered() {
		app.Registered = false
	}
	return Evaluate(evaluatorInputs{
		app:                 app,
		hasPendingRequests:  c.hasPendingRequests(),
		unsubmittedTokens:   c.tokens.Len(),
		backgroundKeepAlive: c.keepAlive.Active(time.Now()),
		now:                 time.Now(),
	})
}

// reconcile recomputes the desired state and brings the current instance in
// line with it (spec section 4.D/4.E's apply_desired_state). Must only be
// called from the queue goroutine.
func (c *Controller) reconcile(ctx context.Context) {
	next := c.evaluate()
	c.desired = next

	switch {
	case next.Open() && (c.current == nil || c.current.State() == Closed):
		c.openInstance(ctx)
	case !next.Open() && c.current != nil:
		c.closeInstance()
	}

	c.syncKeepAliveTicker(ctx, next)
}

func (c *Controller) openInstance(ctx context.Context) {
	c.cancelReconnect()
	transport, err := c.transportFactory(c.kind)
	if err != nil {
		// Cannot build a transport at all: no instance is created and no
		// reconnect is armed. This does not change
		// appState.TransportBuildOK, so the desired state stays Open; the
		// next reconcile, from any other input, calls the factory again.
		if c.logger != nil {
			c.logger.Printf("chatws[%s]: transport build failed: %v", c.kind, err)
		}
		return
	}

	inst := newConnectionInstance(c.kind, transport, instanceCallbacks{
		onConnected:      c.onConnected(ctx),
		onDisconnected:   c.onDisconnected(ctx),
		onServerRequest:  c.onServerRequest(ctx),
		onResponse:       c.onResponse(ctx),
		onRequestTimeout: c.onRequestTimeout(ctx),
		onHeartbeatTick:  c.onHeartbeatTick(ctx),
	})
	c.current = inst
	c.observer.SetState(Connecting)

	c.armWatchdog(ctx, inst)

	go func() {
		if err := inst.Connect(ctx); err != nil {
			c.enqueue(func() { c.handleConnectFailure(ctx, inst, err) })
		}
	}()
}

func (c *Controller) closeInstance() {
	c.cancelWatchdog()
	c.cancelReconnect()
	c.cancelKeepAliveTicker()
	if c.current != nil {
		c.current.Drop()
		c.current = nil
	}
	c.observer.SetState(Closed)
}

func (c *Controller) armWatchdog(ctx context.Context, inst *ConnectionInstance) {
	c.cancelWatchdog()
	c.watchdog = time.AfterFunc(connectWatchdog, func() {
		c.enqueue(func() {
			if c.current != inst || inst.State() != Connecting {
				return
			}
			if c.logger != nil {
				c.logger.Printf("chatws[%s]: connect watchdog fired, dropping stuck instance", c.kind)
			}
			inst.Drop()
			c.current = nil
			c.observer.SetState(Closed)
			if c.outage != nil {
				c.outage.ReportConnectionFailure(c.kind, &NetworkFailureError{Reason: "connect watchdog"})
			}
			c.scheduleReconnect(ctx)
		})
	})
}

func (c *Controller) cancelWatchdog() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

func (c *Controller) scheduleReconnect(ctx context.Context) {
	c.cancelReconnect()
	c.reconnect = time.AfterFunc(reconnectDelay, func() {
		c.enqueue(func() { c.reconcile(ctx) })
	})
}

func (c *Controller) cancelReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// syncKeepAliveTicker starts or stops the background keep-alive ticker to
// match whether it's needed right now: only while the desired state is Open
// and the app is backgrounded (spec section 5's timer table) does the
// keep-alive window's silent expiry need a poll to notice it — every other
// reason to be open ends via its own event, and while foregrounded the
// window doesn't matter at all. Must only be called from the queue
// goroutine, after the instance has already been opened/closed for `next`.
func (c *Controller) syncKeepAliveTicker(ctx context.Context, next DesiredState) {
	needed := next.Open() && !c.appState.Snapshot().Active
	running := c.keepAliveTicker != nil
	if needed == running {
		return
	}
	if !needed {
		c.cancelKeepAliveTicker()
		return
	}
	stop := make(chan struct{})
	c.keepAliveTicker = stop
	go func() {
		ticker := time.NewTicker(backgroundKeepAliveTick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.done:
				return
			case <-ticker.C:
				c.enqueue(func() { c.reconcile(ctx) })
			}
		}
	}()
}

func (c *Controller) cancelKeepAliveTicker() {
	if c.keepAliveTicker != nil {
		close(c.keepAliveTicker)
		c.keepAliveTicker = nil
	}
}

// maybeMarkDeregistered applies the identified-socket 403 rule (spec section
// 4.E): a 403 on the identified kind means the app's registration has been
// revoked server-side, so the registration flag flips and the evaluator
// stops wanting this socket open on its own (priority 2, "!registered").
func (c *Controller) maybeMarkDeregistered(err error) {
	httpErr, ok := err.(*HTTPError)
	if !ok || httpErr.Status != 403 || c.kind != Identified {
		return
	}
	c.deregistered = true
	if c.registration != nil {
		c.registration.SetIsDeregistered(true)
	}
	c.appState.SetRegistered(false)
}

// reconnectOrReconcile is the shared "what happens after a socket goes
// away" decision (spec section 4.E): if the evaluator still wants the
// socket open, arm the fixed reconnect delay; otherwise just reconcile so
// whatever newly closed the desired state (e.g. a 403 deregistration) is
// honored immediately, with no pointless reconnect attempt.
func (c *Controller) reconnectOrReconcile(ctx context.Context) {
	if c.evaluate().Open() {
		c.scheduleReconnect(ctx)
	} else {
		c.reconcile(ctx)
	}
}

func (c *Controller) handleConnectFailure(ctx context.Context, inst *ConnectionInstance, err error) {
	if c.current != inst {
		return
	}
	c.cancelWatchdog()
	c.current = nil
	c.observer.SetState(Closed)
	c.maybeMarkDeregistered(err)
	if c.outage != nil {
		c.outage.ReportConnectionFailure(c.kind, err)
	}
	c.reconnectOrReconcile(ctx)
}

// --- instance callbacks ---

func (c *Controller) onConnected(ctx context.Context) func(inst *ConnectionInstance) {
	return func(inst *ConnectionInstance) {
		c.enqueue(func() {
			if c.current != inst {
				return
			}
			c.cancelWatchdog()
			c.deregistered = false
			c.observer.SetState(Open)
			if c.outage != nil {
				c.outage.ReportConnectionSuccess(c.kind)
			}
			c.reconcile(ctx)
		})
	}
}

func (c *Controller) onDisconnected(ctx context.Context) func(inst *ConnectionInstance, err error) {
	return func(inst *ConnectionInstance, err error) {
		c.enqueue(func() {
			if c.current != inst {
				return
			}
			c.current = nil
			c.observer.SetState(Closed)
			c.maybeMarkDeregistered(err)
			if c.outage != nil {
				c.outage.ReportConnectionFailure(c.kind, err)
			}
			if c.logger != nil {
				c.logger.Printf("chatws[%s]: disconnected: %v", c.kind, err)
			}
			c.reconnectOrReconcile(ctx)
		})
	}
}

func (c *Controller) onResponse(ctx context.Context) func(inst *ConnectionInstance) {
	return func(inst *ConnectionInstance) {
		c.enqueue(func() {
			c.keepAlive.Extend(ReceiveResponse, time.Now())
			c.reconcile(ctx)
		})
	}
}

func (c *Controller) onRequestTimeout(ctx context.Context) func(inst *ConnectionInstance, requestID uint64) {
	return func(inst *ConnectionInstance, requestID uint64) {
		c.enqueue(func() {
			if c.logger != nil {
				c.logger.Printf("chatws[%s]: request %d timed out, cycling socket", c.kind, requestID)
			}
			if c.current == inst {
				c.current.Drop()
				c.current = nil
				c.observer.SetState(Closed)
			}
			c.reconcile(ctx)
		})
	}
}

func (c *Controller) onHeartbeatTick(ctx context.Context) func(inst *ConnectionInstance) {
	return func(inst *ConnectionInstance) {
		c.enqueue(func() {
			if c.current != inst {
				return
			}
			if !c.evaluate().Open() {
				c.reconcile(ctx)
				return
			}
			go func() {
				if err := inst.Ping(); err != nil && c.logger != nil {
					c.logger.Printf("chatws[%s]: heartbeat ping failed: %v", c.kind, err)
				}
			}()
		})
	}
}

// onServerRequest dispatches one server-originated request per spec section
// 4.E: the message endpoint extends the keep-alive window and hands the
// envelope to the message processor off the queue, acking only once the
// processor decides to; the queue-empty endpoint always acks immediately
// and latches has_emptied_initial_queue; anything else is logged and acked.
func (c *Controller) onServerRequest(ctx context.Context) func(inst *ConnectionInstance, req *wsproto.Request) {
	return func(inst *ConnectionInstance, req *wsproto.Request) {
		isMessage := req.Verb == "PUT" && req.Path == "/api/v1/message"
		c.enqueue(func() {
			if isMessage {
				c.keepAlive.Extend(ReceiveMessage, time.Now())
			}
			c.reconcile(ctx)
		})

		switch {
		case isMessage:
			source := EnvelopeSourceWebsocketIdentified
			if c.kind == Unidentified {
				source = EnvelopeSourceWebsocketUnidentified
			}
			var serverTimestamp uint64
			if v, ok := findHeader(req.Headers, xSignalTimestampHeader); ok {
				serverTimestamp, _ = parseUint64(v)
			}
			go func() {
				var result ProcessResult
				if c.processor != nil {
					result = c.processor.Process(ctx, source, serverTimestamp, req.Body)
				} else {
					result = ProcessResult{ShouldAck: true}
				}
				if result.ShouldAck {
					inst.SendResponse(req.RequestID, 200, "OK")
				}
			}()
		case req.Verb == "GET" && req.Path == "/api/v1/queue/empty":
			inst.MarkInitialQueueEmptied()
			inst.SendResponse(req.RequestID, 200, "OK")
		default:
			if c.logger != nil {
				c.logger.Printf("chatws[%s]: unhandled server request %s %s", c.kind, req.Verb, req.Path)
			}
			inst.SendResponse(req.RequestID, 200, "OK")
		}
	}
}

// --- request submission (used by the dispatcher) ---

// Submit hands a request to the current instance, if any. It does not
// create a new instance — that happens only through reconcile, driven by
// the unsubmitted-token the dispatcher registers before calling Submit.
func (c *Controller) Submit(req OutboundRequest) (*pendingRequest, error) {
	resultCh := make(chan struct {
		pr  *pendingRequest
		err error
	}, 1)
	c.enqueue(func() {
		if c.current == nil || c.current.State() != Open {
			resultCh <- struct {
				pr  *pendingRequest
				err error
			}{nil, &NetworkFailureError{URL: req.URL, Reason: "no open socket"}}
			return
		}
		pr, err := c.current.Send(req)
		resultCh <- struct {
			pr  *pendingRequest
			err error
		}{pr, err}
	})
	res := <-resultCh
	return res.pr, res.err
}

// Deregistered reports whether the identified socket was last dropped by an
// HTTP 403 (spec section 4.E).
func (c *Controller) Deregistered() bool {
	done := make(chan bool, 1)
	c.enqueue(func() { done <- c.deregistered })
	return <-done
}

// CurrentState reports the present VisibleState.
func (c *Controller) CurrentState() VisibleState { return c.observer.State() }

// PendingCount reports outstanding in-flight requests on the current
// instance, or 0 if there is none.
func (c *Controller) PendingCount() int {
	done := make(chan int, 1)
	c.enqueue(func() {
		if c.current == nil {
			done <- 0
			return
		}
		done <- c.current.PendingCount()
	})
	return <-done
}

// HasEmptiedInitialQueue reports whether the current instance has seen its
// GET /api/v1/queue/empty signal, or false if there is no current instance.
func (c *Controller) HasEmptiedInitialQueue() bool {
	done := make(chan bool, 1)
	c.enqueue(func() {
		if c.current == nil {
			done <- false
			return
		}
		done <- c.current.HasEmptiedInitialQueue()
	})
	return <-done
}

// Cycle forces the current instance closed so reconcile rebuilds it fresh
// (spec section 6's administrative "force cycle" operation).
func (c *Controller) Cycle(ctx context.Context) {
	c.enqueue(func() {
		if c.current != nil {
			c.current.Drop()
			c.current = nil
			c.observer.SetState(Closed)
		}
		c.reconcile(ctx)
	})
}
