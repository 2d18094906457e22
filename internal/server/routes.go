package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/avatarchat/internal/app"
	"github.com/xpanvictor/avatarchat/internal/handlers"
	"github.com/xpanvictor/avatarchat/internal/handlers/websocket"
)

// Dependencies holds the application pieces the routes are built from.
type Dependencies struct {
	App *app.App
}

func NewServerDependencies(a *app.App) Dependencies {
	return Dependencies{App: a}
}

// Routes keeps handles the server needs after setup, mainly for shutdown.
type Routes struct {
	Sessions  *handlers.SessionHandler
	Health    *handlers.HealthHandler
	WebSocket *websocket.WebSocketHandler
}

// InitializeRoutes registers the HTTP and websocket surface under the
// configured api prefix. /health is served at the root too, for probes.
func InitializeRoutes(r *gin.Engine, dep Dependencies) *Routes {
	a := dep.App
	cfg := a.Config
	logger := a.Logger.Named("http")

	r.Use(handlers.CORSMiddleware(cfg.Server.CORSOrigins))
	r.Use(handlers.RequestLoggerMiddleware(logger))
	r.Use(handlers.ErrorHandlerMiddleware(logger))

	sh := handlers.NewSessionHandler(a.Store, a.Orchestrator, a.Archive, handlers.Limits{
		MaxTextLength:    cfg.Pipeline.MaxTextLength,
		MaxAudioDuration: cfg.Pipeline.MaxAudioDuration,
		MaxUploadBytes:   cfg.Pipeline.MaxUploadBytes,
		SampleRate:       cfg.Audio.SampleRate,
	}, logger)
	hh := handlers.NewHealthHandler(a.Orchestrator, a.Store, cfg.Version, logger)
	ws := websocket.NewWebSocketHandler(a.Logger.Named("ws"), a.Store, a.Orchestrator, websocket.ConfigFromSettings(cfg))
	sh.OnSessionEnded(ws.CloseSession)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Avatar chat API",
			"version": cfg.Version,
			"docs":    cfg.Server.APIPrefix,
		})
	})
	r.GET("/health", hh.Health)

	api := r.Group(cfg.Server.APIPrefix)
	{
		api.GET("/health", hh.Health)
		api.GET("/pipeline/status", hh.PipelineStatus)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", sh.CreateSession)
			sessions.GET("", sh.ListSessions)
			sessions.GET("/:id", sh.GetSession)
			sessions.DELETE("/:id", sh.EndSession)
			sessions.GET("/:id/history", sh.History)
			sessions.GET("/:id/transcript", sh.Transcript)
			sessions.POST("/:id/text", sh.ProcessText)
			sessions.POST("/:id/audio", sh.ProcessAudio)
			sessions.GET("/:id/ws", ws.HandleSessionWebSocket)
		}
	}

	return &Routes{Sessions: sh, Health: hh, WebSocket: ws}
}
