package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatconn/internal/chatws"
	"chatconn/internal/model"
)

// gatewayConnections is the tiny registry RegisterConnectionRoutes needs:
// one Connection per kind, keyed by its lowercase String().
type gatewayConnections map[string]*chatws.Connection

func RegisterConnectionRoutes(r *gin.RouterGroup, conns gatewayConnections) {
	r.GET("/connections", func(c *gin.Context) {
		statuses := make([]model.ConnectionStatus, 0, len(conns))
		for name, conn := range conns {
			statuses = append(statuses, statusOf(name, conn))
		}
		c.JSON(http.StatusOK, statuses)
	})

	r.GET("/connections/:kind", func(c *gin.Context) {
		kind := c.Param("kind")
		conn, ok := conns[kind]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown connection kind"})
			return
		}
		c.JSON(http.StatusOK, statusOf(kind, conn))
	})

	r.POST("/connections/:kind/cycle", func(c *gin.Context) {
		kind := c.Param("kind")
		conn, ok := conns[kind]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown connection kind"})
			return
		}
		conn.Cycle(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"message": "cycled"})
	})

	// Submits a synthetic request on the given connection, for operators to
	// confirm the socket actually round-trips before trusting its status.
	r.POST("/connections/:kind/test-request", func(c *gin.Context) {
		kind := c.Param("kind")
		conn, ok := conns[kind]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown connection kind"})
			return
		}

		var req struct {
			Method string `json:"method"`
			URL    string `json:"url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Method == "" {
			req.Method = "GET"
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		body, err := conn.MakeRequest(ctx, chatws.OutboundRequest{Method: req.Method, URL: req.URL})
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/octet-stream", body)
	})
}

func statusOf(kind string, conn *chatws.Connection) model.ConnectionStatus {
	return model.ConnectionStatus{
		Kind:                   kind,
		VisibleState:           conn.State().String(),
		Deregistered:           conn.Deregistered(),
		PendingRequests:        conn.PendingCount(),
		HasEmptiedInitialQueue: conn.HasEmptiedInitialQueue(),
	}
}
