package chatws

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatconn/internal/wsproto"
)

var instanceCounter atomic.Uint64

// instanceCallbacks are wired by the lifecycle controller into every
// ConnectionInstance it creates, so instance-level events always resume
// work on the controller's single-threaded queue (spec section 4.E.4.a).
type instanceCallbacks struct {
	onConnected     func(inst *ConnectionInstance)
	onDisconnected  func(inst *ConnectionInstance, err error)
	onServerRequest func(inst *ConnectionInstance, req *wsproto.Request)
	onResponse      func(inst *ConnectionInstance)
	onRequestTimeout func(inst *ConnectionInstance, requestID uint64)
	// onHeartbeatTick fires on every heartbeat period; the controller
	// decides (via the evaluator) whether to ping or reconcile-to-close.
	onHeartbeatTick func(inst *ConnectionInstance)
}

const heartbeatPeriod = 30 * time.Second

// ConnectionInstance is one live or connecting socket (spec section 3/4.C).
// Its `id` distinguishes successive instances so that late callbacks from a
// superseded instance are ignored by the controller.
type ConnectionInstance struct {
	id        uint64
	kind      ConnectionKind
	transport Transport
	cb        instanceCallbacks

	state atomic.Int32 // VisibleState

	hasConnected           atomic.Bool
	hasEmptiedInitialQueue atomic.Bool

	registry *requestRegistry

	heartbeatStop chan struct{}
	dropOnce      sync.Once
}

func newConnectionInstance(kind ConnectionKind, transport Transport, cb instanceCallbacks) *ConnectionInstance {
	inst := &ConnectionInstance{
		id:        instanceCounter.Add(1),
		kind:      kind,
		transport: transport,
		cb:        cb,
	}
	inst.state.Store(int32(Connecting))
	inst.registry = newRequestRegistry(func(requestID uint64) {
		if inst.cb.onRequestTimeout != nil {
			inst.cb.onRequestTimeout(inst, requestID)
		}
	})
	return inst
}

func (c *ConnectionInstance) ID() uint64          { return c.id }
func (c *ConnectionInstance) Kind() ConnectionKind { return c.kind }
func (c *ConnectionInstance) State() VisibleState { return VisibleState(c.state.Load()) }
func (c *ConnectionInstance) HasConnected() bool   { return c.hasConnected.Load() }
func (c *ConnectionInstance) HasEmptiedInitialQueue() bool {
	return c.hasEmptiedInitialQueue.Load()
}

// MarkInitialQueueEmptied latches has_emptied_initial_queue. It is a no-op
// past the first call — the flag never reverts true->false (invariant 6).
func (c *ConnectionInstance) MarkInitialQueueEmptied() {
	c.hasEmptiedInitialQueue.Store(true)
}

// PendingCount reports outstanding in-flight requests on this instance.
func (c *ConnectionInstance) PendingCount() int { return c.registry.count() }

// Connect dials the transport and starts the event pump. Errors here mean
// the dial itself failed; once connected, later failures surface as
// TransportDisconnected events through the callbacks.
func (c *ConnectionInstance) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	go c.pumpEvents()
	return nil
}

func (c *ConnectionInstance) pumpEvents() {
	for ev := range c.transport.Events() {
		switch ev.Kind {
		case TransportConnected:
			c.state.Store(int32(Open))
			c.hasConnected.Store(true)
			c.startHeartbeat()
			if c.cb.onConnected != nil {
				c.cb.onConnected(c)
			}
		case TransportFrame:
			c.handleFrame(ev.Frame)
		case TransportDisconnected:
			c.state.Store(int32(Closed))
			if c.cb.onDisconnected != nil {
				c.cb.onDisconnected(c, ev.Err)
			}
			return
		}
	}
}

func (c *ConnectionInstance) handleFrame(data []byte) {
	msg, err := wsproto.Unmarshal(data)
	if err != nil {
		return
	}
	switch msg.Type {
	case wsproto.MessageTypeRequest:
		if msg.Request != nil && c.cb.onServerRequest != nil {
			c.cb.onServerRequest(c, msg.Request)
		}
	case wsproto.MessageTypeResponse:
		if msg.Response == nil {
			return
		}
		pr, ok := c.registry.pop(msg.Response.RequestID)
		if !ok {
			// Unknown request_id: log-and-drop is the caller's concern;
			// no completion, no state mutation (invariant 3).
			return
		}
		pr.complete(msg.Response.Status, msg.Response.Headers, msg.Response.Body)
		if c.cb.onResponse != nil {
			c.cb.onResponse(c)
		}
	}
}

func (c *ConnectionInstance) startHeartbeat() {
	c.heartbeatStop = make(chan struct{})
	stop := c.heartbeatStop
	go func() {
		ticker := time.NewTicker(heartbeatPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if c.cb.onHeartbeatTick != nil {
					c.cb.onHeartbeatTick(c)
				}
			}
		}
	}()
}

// Ping asks the transport to send a WebSocket ping frame.
func (c *ConnectionInstance) Ping() error {
	return c.transport.WritePing()
}

// OutboundRequest is the caller-supplied shape for a request to submit on
// this instance (spec section 4.C).
type OutboundRequest struct {
	Method  string
	URL     string // relative path + query, no scheme/host/leading slash
	Headers map[string]string
	Body    []byte      // preformed body, takes precedence over Params
	Params  interface{} // JSON-serialized if Body is nil
}

// buildFrame turns an OutboundRequest into wire bytes plus the random
// request_id assigned to it (spec section 4.C).
func buildFrame(req OutboundRequest) ([]byte, uint64, error) {
	if req.Method == "" {
		return nil, 0, &InvalidRequestError{URL: req.URL, Reason: "missing method"}
	}
	path := req.URL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if _, err := url.Parse(path); err != nil {
		return nil, 0, &InvalidRequestError{URL: req.URL, Reason: "malformed url"}
	}

	body := req.Body
	headers := map[string]string{}
	for k, v := range req.Headers {
		headers[k] = v
	}
	if body == nil && req.Params != nil {
		encoded, err := json.Marshal(req.Params)
		if err != nil {
			return nil, 0, &InvalidRequestError{URL: req.URL, Reason: "json encode failure: " + err.Error()}
		}
		body = encoded
		// Content-Type is forced to application/json only when the caller
		// didn't already set a (possibly conflicting) one — overwrite=false,
		// per spec section 9's open question.
		if _, exists := headers["Content-Type"]; !exists {
			headers["Content-Type"] = "application/json"
		}
	}
	if _, exists := headers["User-Agent"]; !exists {
		headers["User-Agent"] = "chatconn/1.0"
	}
	if _, exists := headers["Accept-Language"]; !exists {
		headers["Accept-Language"] = "en-US"
	}

	headerLines := make([]string, 0, len(headers))
	for k, v := range headers {
		headerLines = append(headerLines, fmt.Sprintf("%s:%s", k, v))
	}

	requestID := randomRequestID()
	frame := &wsproto.Message{
		Type: wsproto.MessageTypeRequest,
		Request: &wsproto.Request{
			Verb:      req.Method,
			Path:      path,
			Body:      body,
			Headers:   headerLines,
			RequestID: requestID,
		},
	}
	data, err := wsproto.Marshal(frame)
	if err != nil {
		return nil, 0, &InvalidRequestError{URL: req.URL, Reason: "frame encode failure"}
	}
	return data, requestID, nil
}

// randomRequestID draws a CSPRNG 64-bit value (spec section 9): collisions
// within an instance are astronomically unlikely and treated as a response
// to an unknown request (invariant 3).
func randomRequestID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to a timestamp-derived value rather than
		// panicking a live connection.
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(b[:])
}

// Send builds and writes a request frame, registering it in the instance's
// registry so its response (or timeout) resolves it later.
func (c *ConnectionInstance) Send(req OutboundRequest) (*pendingRequest, error) {
	data, requestID, err := buildFrame(req)
	if err != nil {
		return nil, err
	}
	pr := newPendingRequest(requestID, req.Method, req.URL)
	c.registry.insert(pr)
	if err := c.transport.SendBinary(data); err != nil {
		c.registry.pop(requestID)
		return nil, &InvalidRequestError{URL: req.URL, Reason: "transport write failed: " + err.Error()}
	}
	return pr, nil
}

// SendResponse acks a server-originated request with the given status and
// message (spec section 4.E server request handling).
func (c *ConnectionInstance) SendResponse(requestID uint64, status uint32, message string) error {
	frame := &wsproto.Message{
		Type: wsproto.MessageTypeResponse,
		Response: &wsproto.Response{
			RequestID: requestID,
			Status:    status,
			Message:   message,
		},
	}
	data, err := wsproto.Marshal(frame)
	if err != nil {
		return err
	}
	return c.transport.SendBinary(data)
}

// Drop detaches the instance: closes the transport, cancels the heartbeat,
// and drains the registry, failing every outstanding request with
// NetworkFailure (invariant 5). Idempotent.
func (c *ConnectionInstance) Drop() {
	c.dropOnce.Do(func() {
		c.state.Store(int32(Closed))
		if c.heartbeatStop != nil {
			close(c.heartbeatStop)
		}
		c.transport.Close()
		c.registry.drainAll("connection dropped")
	})
}
