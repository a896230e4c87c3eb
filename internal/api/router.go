package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatconn/internal/applog"
	"chatconn/internal/auth"
	"chatconn/internal/chatws"
	"chatconn/internal/config"
	"chatconn/internal/store"
)

// SetupRouter wires the admin HTTP surface: connection status, forced
// cycle, a test-request control, and log tail, behind JWT auth — the
// teacher's own router shape, retargeted from bot-account administration to
// chat-connection administration.
func SetupRouter(
	cfg *config.Config,
	s *store.Store,
	conns map[chatws.ConnectionKind]*chatws.Connection,
	loggers map[chatws.ConnectionKind]*applog.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetTrustedProxies(nil)

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	byName := make(gatewayConnections, len(conns))
	for kind, conn := range conns {
		byName[kind.String()] = conn
	}
	loggersByName := make(map[string]*applog.Logger, len(loggers))
	for kind, l := range loggers {
		loggersByName[kind.String()] = l
	}

	api := r.Group("/api")
	auth.RegisterRoutes(api.Group("/auth"), cfg, s)

	protected := api.Group("")
	protected.Use(auth.AuthMiddleware(cfg.JWTSecret))
	{
		RegisterConnectionRoutes(protected, byName)
		RegisterLogRoutes(protected, s, loggersByName)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}
