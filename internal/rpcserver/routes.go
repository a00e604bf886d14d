// Package rpcserver is a thin HTTP/WebSocket adapter: it deserializes
// posted Commands onto the sync manager's bounded command channel and
// fans the manager's event channel out to WebSocket subscribers. It is
// explicitly not where this module's tested contracts live — an
// HTTP/RPC surface is a named non-goal of the core wallet engine — so
// this package stays small and sits entirely outside internal/sync,
// internal/planner, and internal/offers, which never import it.
package rpcserver

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/lightwallet-engine/internal/sync"
)

// Server bundles the sync manager with the Gin engine and WebSocket hub
// that expose it.
type Server struct {
	manager *sync.Manager
	hub     *Hub
	engine  *gin.Engine
}

// NewServer builds the router: CORS, bearer auth, a 30 req/min per-IP
// rate limit on the command endpoint, and the two exposed routes.
func NewServer(manager *sync.Manager, hub *Hub) *Server {
	s := &Server{manager: manager, hub: hub, engine: gin.Default()}

	allowedOrigins := os.Getenv("WALLETD_ALLOWED_ORIGINS")
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowedOrigins == "" || allowedOrigins == "*":
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		default:
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	limiter := NewRateLimiter(30, 10)
	v1 := s.engine.Group("/api/v1", AuthMiddleware())
	v1.POST("/commands", limiter.Middleware(), s.postCommand)
	v1.GET("/events", hub.Subscribe)

	return s
}

// Engine exposes the underlying *gin.Engine, e.g. for http.Server.
func (s *Server) Engine() *gin.Engine { return s.engine }

// postCommand decodes the request body into a sync.Command and sends it
// on the sync manager's bounded command channel. The send uses a
// request-scoped timeout rather than blocking the handler goroutine
// forever on backpressure; a full channel after the timeout surfaces as
// 503, not a hang.
func (s *Server) postCommand(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	cmd, err := decodeCommand(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	select {
	case s.manager.Commands() <- cmd:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	case <-ctx.Done():
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "command channel is full"})
	}
}

// PumpEvents relays every event the Sync Manager emits onto the
// WebSocket hub until the manager's event channel closes (on Run's
// context being cancelled) or ctx itself ends. Intended to be run in
// its own goroutine alongside manager.Run(ctx).
func PumpEvents(ctx context.Context, manager *sync.Manager, hub *Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-manager.Events():
			if !ok {
				return
			}
			payload, err := encodeEvent(ev)
			if err != nil {
				continue
			}
			hub.Broadcast(payload)
		}
	}
}
