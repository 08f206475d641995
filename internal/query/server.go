package query

import (
	"context"
	"net/http"
	"time"

	"candlecore/internal/kline"
	"candlecore/internal/logger"

	"github.com/gin-gonic/gin"
)

// Registry is the session-registry half of this package's dependency —
// narrowed to exactly what the facade calls, so tests can fake it without
// standing up a real session.Registry.
type Registry interface {
	Login(name, password string) (int32, kline.UserConfig, error)
	Logout(sessionId int32) error
	UpdateConfig(sessionId int32, cfg kline.UserConfig) error
	PollDetect(sessionId int32) ([]kline.DetectEvent, bool, error)
	ListVenues(sessionId int32) ([]string, error)
	ListKLineIds(sessionId int32, venueId string) ([]kline.InstrumentId, error)
	OnlineUserNames() []string
}

// Server is the Gin-based HTTP query facade.
type Server struct {
	engine    *gin.Engine
	registry  Registry
	log       logger.Logger
	appName   string
	version   string
	startedAt time.Time
}

// NewServer wires every route this service exposes.
func NewServer(registry Registry, log logger.Logger, appName, version string) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(requestLogMiddleware(log))
	e.Use(corsMiddleware())

	s := &Server{
		engine:    e,
		registry:  registry,
		log:       log,
		appName:   appName,
		version:   version,
		startedAt: time.Now(),
	}

	e.GET("/login", s.handleLogin)
	e.OPTIONS("/login", noContent)
	e.GET("/logout", s.handleLogout)
	e.OPTIONS("/logout", noContent)
	e.GET("/config", s.handleConfig)
	e.OPTIONS("/config", noContent)
	e.GET("/detect", s.handleDetect)
	e.OPTIONS("/detect", noContent)
	e.GET("/stockexchanges", s.handleStockExchanges)
	e.OPTIONS("/stockexchanges", noContent)
	e.GET("/klinesidlist", s.handleKLinesIdList)
	e.OPTIONS("/klinesidlist", noContent)
	e.GET("/serverstatus", s.handleServerStatus)
	e.OPTIONS("/serverstatus", noContent)

	e.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, notFound("no such endpoint"))
	})

	return s
}

// Run blocks serving on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Content-Type", "application/json")
		c.Next()
	}
}

func requestLogMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("query request",
			"path", c.FullPath(),
			"remote", c.ClientIP(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}
