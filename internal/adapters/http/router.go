// Package http exposes the agent's local control and roster API.
package http

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/app"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware hands anonymous callers a stable guest token.
// The verified identity still comes from config; this only keys local
// browser sessions against the control API.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, coord *app.Coordinator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LiveLinkSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", handleHealth)

	log.Info().Str("module", "adapters.http").Msg("router setup")

	h := &Handlers{Coord: coord}
	api := r.Group("/api")

	api.POST("/streams/:stream/watch", h.StartWatch)
	api.PATCH("/streams/:stream/watch", h.UpdateWatch)
	api.DELETE("/streams/:stream/watch", h.StopWatch)
	api.GET("/streams/:stream/viewers", h.StreamViewers)

	api.POST("/rooms/:room/join", h.JoinRoom)
	api.DELETE("/rooms/:room/join", h.LeaveRoom)
	api.POST("/rooms/:room/live", h.GoLive)
	api.DELETE("/rooms/:room/live", h.StopLive)
	api.GET("/rooms/:room/presence", h.RoomPresence)
	api.GET("/rooms/:room/session", h.SessionState)

	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
