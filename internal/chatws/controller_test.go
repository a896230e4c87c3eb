package chatws

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chatconn/internal/wsproto"
)

// fakeTransport is a Transport double driven entirely by the test: Connect
// pushes a Connected event synchronously (like wsTransport does once the
// handshake succeeds), SendBinary records what was sent so a test can
// inspect or reply to it, and the test pushes further events directly onto
// the Events() channel to simulate server frames or a disconnect.
type fakeTransport struct {
	events chan TransportEvent

	mu   sync.Mutex
	sent [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan TransportEvent, 16)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.events <- TransportEvent{Kind: TransportConnected}
	return nil
}

func (f *fakeTransport) SendBinary(data []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) WritePing() error { return nil }

func (f *fakeTransport) Close() {}

func (f *fakeTransport) Events() <-chan TransportEvent { return f.events }

func (f *fakeTransport) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fakeRegistration struct {
	mu           sync.Mutex
	deregistered bool
}

func (r *fakeRegistration) IsRegistered() bool { return true }
func (r *fakeRegistration) SetIsDeregistered(v bool) {
	r.mu.Lock()
	r.deregistered = v
	r.mu.Unlock()
}

type fakeOutage struct{}

func (fakeOutage) ReportConnectionSuccess(ConnectionKind)        {}
func (fakeOutage) ReportConnectionFailure(ConnectionKind, error) {}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestController(t *testing.T, ft *fakeTransport) *Controller {
	t.Helper()
	c := NewController(
		Identified,
		func(ConnectionKind) (Transport, error) { return ft, nil },
		&fakeRegistration{},
		nil,
		fakeOutage{},
		testLogger(),
	)
	ctx := context.Background()
	c.Start(ctx)
	t.Cleanup(c.Stop)
	return c
}

func TestControllerOpensOnUnsubmittedToken(t *testing.T) {
	ft := newFakeTransport()
	c := newTestController(t, ft)
	ctx := context.Background()

	token := c.MakeToken(ctx)
	defer c.ReleaseToken(ctx, token)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Observer().AwaitOpen(waitCtx); err != nil {
		t.Fatalf("AwaitOpen() = %v, want nil", err)
	}
}

func TestControllerStaysClosedWithNoReasonToOpen(t *testing.T) {
	ft := newFakeTransport()
	c := newTestController(t, ft)

	waitCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := c.Observer().AwaitOpen(waitCtx); err == nil {
		t.Fatal("expected AwaitOpen to time out, connection should stay closed")
	}
}

func TestControllerRoundTripsARequest(t *testing.T) {
	ft := newFakeTransport()
	c := newTestController(t, ft)
	ctx := context.Background()

	token := c.MakeToken(ctx)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Observer().AwaitOpen(waitCtx); err != nil {
		t.Fatalf("AwaitOpen() = %v, want nil", err)
	}
	defer c.ReleaseToken(ctx, token)

	resultCh := make(chan struct {
		body []byte
		err  error
	}, 1)
	go func() {
		body, err := c.MakeRequest(ctx, OutboundRequest{Method: "GET", URL: "/api/v1/ping"})
		resultCh <- struct {
			body []byte
			err  error
		}{body, err}
	}()

	var sent []byte
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sent = ft.lastSent(); sent != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	msg, err := wsproto.Unmarshal(sent)
	if err != nil || msg.Request == nil {
		t.Fatalf("failed to decode sent frame: %v", err)
	}

	respFrame, err := wsproto.Marshal(&wsproto.Message{
		Type: wsproto.MessageTypeResponse,
		Response: &wsproto.Response{
			RequestID: msg.Request.RequestID,
			Status:    200,
			Body:      []byte("pong"),
		},
	})
	if err != nil {
		t.Fatalf("failed to encode response frame: %v", err)
	}
	ft.events <- TransportEvent{Kind: TransportFrame, Frame: respFrame}

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("MakeRequest() error = %v", res.err)
		}
		if string(res.body) != "pong" {
			t.Fatalf("body = %q, want %q", res.body, "pong")
		}
	case <-time.After(time.Second):
		t.Fatal("MakeRequest did not complete")
	}
}

// currentInstance reads c.current through the queue goroutine so the test
// never races with it.
func currentInstance(c *Controller) *ConnectionInstance {
	done := make(chan *ConnectionInstance, 1)
	c.enqueue(func() { done <- c.current })
	return <-done
}

func TestControllerRequestTimeoutCyclesSocket(t *testing.T) {
	ft := newFakeTransport()
	c := newTestController(t, ft)
	ctx := context.Background()

	token := c.MakeToken(ctx)
	defer c.ReleaseToken(ctx, token)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Observer().AwaitOpen(waitCtx); err != nil {
		t.Fatalf("AwaitOpen() = %v, want nil", err)
	}

	inst := currentInstance(c)
	if inst == nil {
		t.Fatal("expected a current instance once open")
	}

	// Invoke the timeout callback directly rather than waiting out the
	// registry's real 10s timer.
	c.onRequestTimeout(ctx)(inst, 999)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if next := currentInstance(c); next != nil && next != inst {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("request timeout did not drop the stuck instance for a fresh one")
}

func TestControllerStopsReconnectingAfter403(t *testing.T) {
	ft := newFakeTransport()
	c := newTestController(t, ft)
	ctx := context.Background()

	token := c.MakeToken(ctx)
	defer c.ReleaseToken(ctx, token)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Observer().AwaitOpen(waitCtx); err != nil {
		t.Fatalf("AwaitOpen() = %v, want nil", err)
	}

	ft.events <- TransportEvent{Kind: TransportDisconnected, Err: &HTTPError{Status: 403}}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && c.CurrentState() != Closed {
		time.Sleep(5 * time.Millisecond)
	}
	if c.CurrentState() != Closed {
		t.Fatal("expected socket to close after a 403")
	}
	if !c.Deregistered() {
		t.Fatal("expected Deregistered() to be true after a 403")
	}
	if c.appState.Snapshot().Registered {
		t.Fatal("expected AppState.Registered to be false after a 403")
	}

	// reconnectDelay is 5s; well short of that, the socket must still be
	// closed, since the evaluator now sees !registered and reconcile (not a
	// blind scheduleReconnect) is what onDisconnected calls.
	time.Sleep(200 * time.Millisecond)
	if c.CurrentState() != Closed {
		t.Fatal("expected no reconnect attempt after 403 deregistration")
	}
}

func TestWSTransportDialFailureSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr := NewWSTransport(url, nil)

	err := tr.Connect(context.Background())
	if err == nil {
		t.Fatal("expected Connect to fail against a 403 handshake response")
	}
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("Connect() error = %T(%v), want *HTTPError", err, err)
	}
	if httpErr.Status != http.StatusForbidden {
		t.Fatalf("HTTPError.Status = %d, want %d", httpErr.Status, http.StatusForbidden)
	}
}

func TestOnServerRequestParsesSignalTimestampHeader(t *testing.T) {
	ft := newFakeTransport()

	proc := &fakeProcessor{}
	c := NewController(
		Identified,
		func(ConnectionKind) (Transport, error) { return ft, nil },
		&fakeRegistration{},
		proc,
		fakeOutage{},
		testLogger(),
	)
	ctx := context.Background()
	c.Start(ctx)
	t.Cleanup(c.Stop)

	token := c.MakeToken(ctx)
	defer c.ReleaseToken(ctx, token)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Observer().AwaitOpen(waitCtx); err != nil {
		t.Fatalf("AwaitOpen() = %v, want nil", err)
	}

	reqFrame, err := wsproto.Marshal(&wsproto.Message{
		Type: wsproto.MessageTypeRequest,
		Request: &wsproto.Request{
			Verb:      "PUT",
			Path:      "/api/v1/message",
			Headers:   []string{"x-signal-timestamp:1700000000123"},
			Body:      []byte("envelope"),
			RequestID: 7,
		},
	})
	if err != nil {
		t.Fatalf("failed to encode request frame: %v", err)
	}
	ft.events <- TransportEvent{Kind: TransportFrame, Frame: reqFrame}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if proc.lastTimestamp() != 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := proc.lastTimestamp(); got != 1700000000123 {
		t.Fatalf("serverTimestamp = %d, want %d", got, 1700000000123)
	}
}

type fakeProcessor struct {
	mu   sync.Mutex
	last uint64
}

func (p *fakeProcessor) Process(ctx context.Context, source EnvelopeSource, serverTimestamp uint64, envelope []byte) ProcessResult {
	p.mu.Lock()
	p.last = serverTimestamp
	p.mu.Unlock()
	return ProcessResult{ShouldAck: true}
}

func (p *fakeProcessor) lastTimestamp() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func TestMakeRequestReturnsAbandonedOnCancel(t *testing.T) {
	ft := newFakeTransport()
	c := newTestController(t, ft)
	ctx := context.Background()

	token := c.MakeToken(ctx)
	defer c.ReleaseToken(ctx, token)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Observer().AwaitOpen(waitCtx); err != nil {
		t.Fatalf("AwaitOpen() = %v, want nil", err)
	}

	reqCtx, reqCancel := context.WithCancel(context.Background())
	resultCh := make(chan error, 1)
	go func() {
		_, err := c.MakeRequest(reqCtx, OutboundRequest{Method: "GET", URL: "/api/v1/ping"})
		resultCh <- err
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && ft.lastSent() == nil {
		time.Sleep(5 * time.Millisecond)
	}
	reqCancel()

	select {
	case err := <-resultCh:
		if _, ok := err.(*RequestAbandonedError); !ok {
			t.Fatalf("MakeRequest() error = %T(%v), want *RequestAbandonedError", err, err)
		}
	case <-time.After(time.Second):
		t.Fatal("MakeRequest did not return after cancellation")
	}
}

// tickerRunning reads c.keepAliveTicker through the queue goroutine.
func tickerRunning(c *Controller) bool {
	done := make(chan bool, 1)
	c.enqueue(func() { done <- c.keepAliveTicker != nil })
	return <-done
}

func TestKeepAliveTickerGatedToBackgroundOpen(t *testing.T) {
	ft := newFakeTransport()
	c := newTestController(t, ft)
	ctx := context.Background()

	c.SetAppActive(ctx, true)
	token := c.MakeToken(ctx)
	defer c.ReleaseToken(ctx, token)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Observer().AwaitOpen(waitCtx); err != nil {
		t.Fatalf("AwaitOpen() = %v, want nil", err)
	}

	if tickerRunning(c) {
		t.Fatal("keep-alive ticker should not run while the app is foregrounded")
	}

	c.SetAppActive(ctx, false)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !tickerRunning(c) {
		time.Sleep(5 * time.Millisecond)
	}
	if !tickerRunning(c) {
		t.Fatal("expected keep-alive ticker to start once the app backgrounds while desired=Open")
	}

	c.SetAppActive(ctx, true)
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && tickerRunning(c) {
		time.Sleep(5 * time.Millisecond)
	}
	if tickerRunning(c) {
		t.Fatal("expected keep-alive ticker to stop once the app foregrounds again")
	}
}

func TestControllerServerRequestQueueEmptyAlwaysAcks(t *testing.T) {
	ft := newFakeTransport()
	c := newTestController(t, ft)
	ctx := context.Background()

	token := c.MakeToken(ctx)
	defer c.ReleaseToken(ctx, token)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Observer().AwaitOpen(waitCtx); err != nil {
		t.Fatalf("AwaitOpen() = %v, want nil", err)
	}

	reqFrame, err := wsproto.Marshal(&wsproto.Message{
		Type: wsproto.MessageTypeRequest,
		Request: &wsproto.Request{
			Verb:      "GET",
			Path:      "/api/v1/queue/empty",
			RequestID: 42,
		},
	})
	if err != nil {
		t.Fatalf("failed to encode request frame: %v", err)
	}
	ft.events <- TransportEvent{Kind: TransportFrame, Frame: reqFrame}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if last := ft.lastSent(); last != nil {
			msg, err := wsproto.Unmarshal(last)
			if err == nil && msg.Type == wsproto.MessageTypeResponse && msg.Response.RequestID == 42 {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("controller never acked GET /api/v1/queue/empty")
}
