// Package adminapi is an HTTP façade over Controller, used by the
// node's own CLI/web operator tooling. It maps one-to-one onto
// Controller's public methods: narrow by design, no business logic of
// its own beyond marshaling and authentication.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/squeaknode/node/internal/controller"
	"github.com/squeaknode/node/internal/logger"
)

// Config controls the admin HTTP server.
type Config struct {
	ListenAddr   string
	JWTSecret    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Server is the admin HTTP façade.
type Server struct {
	cfg    Config
	ctl    *controller.Controller
	log    *logger.Logger
	engine *gin.Engine
	http   *http.Server
}

// New builds a Server. The gin engine always runs in release mode,
// whatever level the logger is configured for.
func New(cfg Config, ctl *controller.Controller, log *logger.Logger) *Server {
	cfg = cfg.withDefaults()
	log = log.Named("adminapi")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(loggerMiddleware(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	engine.Use(cors.New(corsConfig))

	s := &Server{cfg: cfg, ctl: ctl, log: log, engine: engine}
	s.registerRoutes([]byte(cfg.JWTSecret))

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) registerRoutes(jwtSecret []byte) {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.Use(authMiddleware(jwtSecret))
	{
		v1.POST("/items", s.handleSaveItem)
		v1.GET("/items", s.handleLookupItems)
		v1.POST("/items/:hash/buy-offer", s.handleGetBuyOffer)
		v1.POST("/received-offers/:id/pay", s.handlePayOffer)
		v1.POST("/invs/filter-unknown", s.handleFilterUnknown)
		v1.POST("/sync/timeline", s.handleSyncTimeline)
		v1.POST("/sync/share", s.handleShareItems)
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully with a bounded timeout — mirroring
// cmd/order-service/main.go's signal-driven shutdown shape.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
