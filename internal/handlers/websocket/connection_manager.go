package websocket

import (
	"sync"

	"github.com/xpanvictor/avatarchat/pkg/Logger"
)

// ConnectionManager keeps at most one live connection per chat session.
type ConnectionManager struct {
	logger      *Logger.Logger
	connections map[string]*Connection
	mutex       sync.RWMutex
}

func NewConnectionManager(logger *Logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		logger:      logger,
		connections: make(map[string]*Connection),
	}
}

// Register installs conn for its session. A previous connection for the same
// session is closed.
func (cm *ConnectionManager) Register(conn *Connection) {
	cm.mutex.Lock()
	prev := cm.connections[conn.SessionID()]
	cm.connections[conn.SessionID()] = conn
	cm.mutex.Unlock()

	if prev != nil {
		cm.logger.Infof("Replacing websocket for session %s", conn.SessionID())
		prev.CloseWithCode(closeCodeReplaced, "Replaced by a newer connection")
	}
	cm.logger.Infof("Registered websocket for session %s", conn.SessionID())
}

// Unregister removes conn only if it is still the registered one.
func (cm *ConnectionManager) Unregister(conn *Connection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cur, ok := cm.connections[conn.SessionID()]; ok && cur == conn {
		delete(cm.connections, conn.SessionID())
		cm.logger.Infof("Unregistered websocket for session %s", conn.SessionID())
	}
}

func (cm *ConnectionManager) Get(sessionID string) (*Connection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	c, ok := cm.connections[sessionID]
	return c, ok
}

func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// CloseSession drops the socket of an ended session, if any.
func (cm *ConnectionManager) CloseSession(sessionID string) {
	if c, ok := cm.Get(sessionID); ok {
		c.CloseWithCode(closeCodeSessionMissing, "Session ended")
	}
}

// Close shuts every connection down.
func (cm *ConnectionManager) Close() error {
	cm.mutex.Lock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.connections = make(map[string]*Connection)
	cm.mutex.Unlock()

	for _, c := range conns {
		c.Close()
	}
	cm.logger.Infof("Connection manager closed %d connections", len(conns))
	return nil
}
