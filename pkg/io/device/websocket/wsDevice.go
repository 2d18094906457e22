package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/avatarchat/pkg/io/device"
)

const writeWait = 10 * time.Second

type wsEndpoint struct {
	id         uuid.UUID
	sessionID  string
	client     *websocket.Conn
	writeMu    sync.Mutex
	mu         sync.RWMutex
	lastActive time.Time
	closed     bool
}

func (w *wsEndpoint) ID() device.EndpointID {
	return device.EndpointID(w.id)
}

func (w *wsEndpoint) SessionID() string {
	return w.sessionID
}

func (w *wsEndpoint) Transport() device.Transport {
	return device.TransportWS
}

// SendJSON implements device.Endpoint. gorilla allows one concurrent writer.
func (w *wsEndpoint) SendJSON(v any) error {
	if !w.IsAlive() {
		return device.ErrEndpointClosed
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.client.SetWriteDeadline(time.Now().Add(writeWait))
	return w.client.WriteJSON(v)
}

func (w *wsEndpoint) Touch() {
	w.mu.Lock()
	w.lastActive = time.Now()
	w.mu.Unlock()
}

func (w *wsEndpoint) LastActive() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastActive
}

func (w *wsEndpoint) IsAlive() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.closed
}

// Ping sends a control frame; a failed ping marks the endpoint dead.
func (w *wsEndpoint) Ping() error {
	err := w.client.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
	if err != nil {
		w.markClosed()
	}
	return err
}

func (w *wsEndpoint) Close() error {
	if !w.markClosed() {
		return nil
	}
	w.writeMu.Lock()
	_ = w.client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.client.Close()
}

// CloseWithCode sends a close frame carrying code and reason before closing.
func (w *wsEndpoint) CloseWithCode(code int, reason string) error {
	if !w.markClosed() {
		return nil
	}
	w.writeMu.Lock()
	_ = w.client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.client.Close()
}

func (w *wsEndpoint) markClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.closed = true
	return true
}

// Endpoint is the websocket flavour of device.Endpoint.
type Endpoint interface {
	device.Endpoint
	Ping() error
	CloseWithCode(code int, reason string) error
}

func New(client *websocket.Conn, sessionID string) Endpoint {
	return &wsEndpoint{
		id:         uuid.New(),
		sessionID:  sessionID,
		client:     client,
		lastActive: time.Now(),
	}
}
