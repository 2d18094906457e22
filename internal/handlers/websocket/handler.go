package websocket

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/avatarchat/internal/config"
	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/internal/handlers"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
	pubio "github.com/xpanvictor/avatarchat/pkg/io"
	wsdevice "github.com/xpanvictor/avatarchat/pkg/io/device/websocket"
)

type Config struct {
	SampleRate      int
	RingBufferBytes int
	MaxTextLength   int
	MaxMessageBytes int64
	PingInterval    time.Duration
	AllowedOrigins  []string
}

func ConfigFromSettings(s *config.Settings) Config {
	return Config{
		SampleRate:      s.Audio.SampleRate,
		RingBufferBytes: s.Audio.RingBufferBytes,
		MaxTextLength:   s.Pipeline.MaxTextLength,
		AllowedOrigins:  s.Server.CORSOrigins,
	}
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.RingBufferBytes <= 0 {
		c.RingBufferBytes = 2 << 20
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 16 << 20
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	return c
}

func (c Config) pongWait() time.Duration { return 2 * c.PingInterval }

// WebSocketHandler upgrades /sessions/:id/ws and hands the socket to a Connection.
type WebSocketHandler struct {
	logger            *Logger.Logger
	store             session.Store
	pipeline          handlers.Pipeline
	cfg               Config
	connectionManager *ConnectionManager
	upgrader          websocket.Upgrader
	// base is cancelled by Close so in-flight runs stop.
	base   context.Context
	cancel context.CancelFunc
}

func NewWebSocketHandler(
	logger *Logger.Logger,
	store session.Store,
	p handlers.Pipeline,
	cfg Config,
) *WebSocketHandler {
	cfg = cfg.withDefaults()
	base, cancel := context.WithCancel(context.Background())
	return &WebSocketHandler{
		logger:            logger,
		store:             store,
		pipeline:          p,
		cfg:               cfg,
		connectionManager: NewConnectionManager(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		base:   base,
		cancel: cancel,
	}
}

// originChecker allows requests without an Origin header (non-browser clients).
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// HandleSessionWebSocket serves one realtime connection for an existing session
// @Summary Realtime session socket
// @Tags Sessions
// @Param id path string true "Session ID"
// @Router /sessions/{id}/ws [get]
func (h *WebSocketHandler) HandleSessionWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	sessionID := c.Param("id")
	logger := h.logger.ForSession(sessionID)

	if _, err := h.store.Get(sessionID); err != nil {
		ep := wsdevice.New(conn, sessionID)
		_ = pubio.New(ep, logger).SendError(c.Request.Context(), ErrCodeSessionNotFound, "Session not found")
		ep.CloseWithCode(closeCodeSessionMissing, "Session not found")
		return
	}

	wc := newConnection(h.base, conn, sessionID, h.store, h.pipeline, h.cfg, logger)
	h.connectionManager.Register(wc)
	defer h.connectionManager.Unregister(wc)

	wc.send(MessageTypeConnected, pubio.Event{"message": "Connected to avatar session"})
	logger.Infof("WebSocket connected")
	wc.run()
	logger.Infof("WebSocket disconnected")
}

// CloseSession drops the socket bound to a session that was ended over HTTP.
func (h *WebSocketHandler) CloseSession(sessionID string) {
	h.connectionManager.CloseSession(sessionID)
}

func (h *WebSocketHandler) ConnectionCount() int {
	return h.connectionManager.Count()
}

// Close shuts down the WebSocket handler
func (h *WebSocketHandler) Close() error {
	h.cancel()
	return h.connectionManager.Close()
}
