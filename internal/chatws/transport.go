package chatws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TransportEventKind discriminates the events a Transport delivers.
type TransportEventKind int

const (
	TransportConnected TransportEventKind = iota
	TransportDisconnected
	TransportFrame
)

// TransportEvent is one item in the ordered event stream a Transport
// delivers on a single channel, per spec section 4.A.
type TransportEvent struct {
	Kind  TransportEventKind
	Err   error
	Frame []byte
}

// Transport is the thin adapter over a WebSocket connection the core
// consumes. Events are delivered in order on a single channel so the
// ConnectionInstance reading them never needs its own locking to
// sequence them.
type Transport interface {
	Connect(ctx context.Context) error
	SendBinary(data []byte) error
	WritePing() error
	Close()
	Events() <-chan TransportEvent
}

// TransportFactory builds a Transport for one connection attempt. It
// returns an error when the platform cannot build a socket at all (spec
// section 4.D, evaluator priority 7 — "cannotBuild").
type TransportFactory func(kind ConnectionKind) (Transport, error)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
)

// dialTimeout bounds how long the initial WebSocket handshake may take.
const dialTimeout = 10 * time.Second

// wsTransport is the gorilla/websocket-backed Transport implementation.
type wsTransport struct {
	url     string
	headers http.Header

	writeMu sync.Mutex
	conn    *websocket.Conn

	events    chan TransportEvent
	closeOnce sync.Once
}

// NewWSTransport builds a Transport dialing url with the given extra
// headers (e.g. story-headers, or nothing for an unidentified socket).
func NewWSTransport(url string, headers http.Header) Transport {
	return &wsTransport{
		url:     url,
		headers: headers,
		events:  make(chan TransportEvent, 32),
	}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, t.url, t.headers)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return &HTTPError{URL: t.url, Status: uint32(resp.StatusCode), Body: body}
		}
		return fmt.Errorf("chatws: websocket dial: %w", err)
	}
	t.conn = conn

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	t.events <- TransportEvent{Kind: TransportConnected}
	go t.readLoop()
	return nil
}

func (t *wsTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.events <- TransportEvent{Kind: TransportDisconnected, Err: err}
			close(t.events)
			return
		}
		t.events <- TransportEvent{Kind: TransportFrame, Frame: data}
	}
}

func (t *wsTransport) SendBinary(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return &NetworkFailureError{Reason: "transport not connected"}
	}
	t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *wsTransport) WritePing() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return &NetworkFailureError{Reason: "transport not connected"}
	}
	t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

func (t *wsTransport) Close() {
	t.closeOnce.Do(func() {
		if t.conn != nil {
			t.writeMu.Lock()
			t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			t.writeMu.Unlock()
			t.conn.Close()
		}
	})
}

func (t *wsTransport) Events() <-chan TransportEvent { return t.events }
