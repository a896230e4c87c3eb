package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chatconn/internal/applog"
	"chatconn/internal/model"
	"chatconn/internal/store"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func RegisterLogRoutes(r *gin.RouterGroup, s *store.Store, loggers map[string]*applog.Logger) {
	// Historical logs for one connection kind.
	r.GET("/logs/:kind", func(c *gin.Context) {
		kind := c.Param("kind")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		beforeID, _ := strconv.ParseInt(c.DefaultQuery("before_id", "0"), 10, 64)

		logs, err := s.GetLogs(kind, limit, beforeID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if logs == nil {
			logs = make([]model.LogEntry, 0)
		}
		c.JSON(http.StatusOK, logs)
	})

	// Real-time log tail over a WebSocket.
	r.GET("/ws/logs", func(c *gin.Context) {
		kind := c.Query("kind")
		logger, ok := loggers[kind]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or unknown kind"})
			return
		}

		conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		logCh := logger.Subscribe()
		defer logger.Unsubscribe(logCh)

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for entry := range logCh {
			data := map[string]interface{}{
				"id":         entry.ID,
				"kind":       entry.Kind,
				"tag":        entry.Tag,
				"message":    entry.Message,
				"level":      entry.Level,
				"created_at": entry.CreatedAt.Format(time.RFC3339),
			}
			if err := conn.WriteJSON(data); err != nil {
				return
			}
		}
	})
}
