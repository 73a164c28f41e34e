package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatroom-server/internal/auth"
	"github.com/vovakirdan/chatroom-server/internal/config"
	"github.com/vovakirdan/chatroom-server/internal/core"
	"github.com/vovakirdan/chatroom-server/internal/metrics"
	"github.com/vovakirdan/chatroom-server/internal/store"
)

// NewServer builds the HTTP server with the WebSocket endpoint and REST API.
// st and collector may be nil.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	st store.Store,
	collector *metrics.Collector,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger), MetricsMiddleware(collector))

	router.GET("/health", healthHandler)
	if collector != nil {
		router.GET("/metrics", gin.WrapH(collector.Handler()))
	}
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, cfg, logger)))

	apiHandlers := NewAPIHandlers(authService, logger)
	chatHandlers := NewChatHandlers(hub, st, authService, logger)
	modHandlers := NewModerationHandlers(hub, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)
	api.GET("/users/online", chatHandlers.OnlineUsers)
	api.GET("/messages", chatHandlers.Messages)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))
	protected.GET("/session", modHandlers.Session)
	protected.GET("/users", modHandlers.ListUsers)
	protected.GET("/bans", modHandlers.ListBans)
	protected.PUT("/me/color", chatHandlers.UpdateColor)
	protected.PUT("/me/username", chatHandlers.UpdateUsername)

	moderation := protected.Group("/moderation")
	moderation.POST("/ban", modHandlers.Ban)
	moderation.POST("/unban", modHandlers.Unban)
	moderation.POST("/promote", modHandlers.Promote)
	moderation.POST("/demote", modHandlers.Demote)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
