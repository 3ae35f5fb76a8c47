// Package adminapi implements the optional local admin service (C12):
// inspection, manual triggering, and a live decision stream. It has no
// bearing on C1-C7's correctness — it is a convenience wrapper exercising
// the same production handler code a real alarm event would.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/alarmevent"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/audit"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/lbadapter"
)

// Server is the admin API's HTTP surface.
type Server struct {
	router       *gin.Engine
	lb           *lbadapter.Client
	alarmHandler *alarmevent.Handler
	auditStore   *audit.InMemoryStore
	jwtSecret    string
}

// New builds an admin API Server. jwtSecret verifies the bearer token
// required by POST /admin/trigger.
func New(lb *lbadapter.Client, alarmHandler *alarmevent.Handler, auditStore *audit.InMemoryStore, jwtSecret string) *Server {
	s := &Server{
		router:       gin.Default(),
		lb:           lb,
		alarmHandler: alarmHandler,
		auditStore:   auditStore,
		jwtSecret:    jwtSecret,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	s.router.GET("/admin/listener/:listenerId/weights", s.getListenerWeights)
	s.router.POST("/admin/trigger", s.authMiddleware(), s.postTrigger)
	s.router.GET("/admin/stream", s.streamDecisions)
}

// Start runs the admin API's HTTP server on addr until the context is
// cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(header) < 8 || header[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := jwt.Parse(header[7:], func(t *jwt.Token) (interface{}, error) {
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Next()
	}
}

func (s *Server) getListenerWeights(c *gin.Context) {
	listenerID := c.Param("listenerId")

	rules, err := s.lb.DescribeRules(c.Request.Context(), listenerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"listenerId": listenerID, "rules": rules})
}

func (s *Server) postTrigger(c *gin.Context) {
	var ev alarmevent.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := s.alarmHandler.Handle(c.Request.Context(), ev)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamDecisions upgrades to a WebSocket and writes audit.Records as they
// are appended, for watching an episode unfold live. All connections read
// the store's single notify channel, so with several clients connected each
// record goes to only one of them; records are dropped while that channel's
// buffer is full.
func (s *Server) streamDecisions(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for rec := range s.auditStore.Subscribe() {
		if err := conn.WriteJSON(rec); err != nil {
			return
		}
	}
}
