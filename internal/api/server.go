// Package api exposes batch sending over HTTP for the desktop front end.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"campaignflow/internal/campaign"
	"campaignflow/internal/config"
)

const previewRows = 10

// BatchRunner runs one batch to completion. *campaign.Runner implements it.
type BatchRunner interface {
	Run(ctx context.Context, batch campaign.Batch) (*campaign.Summary, error)
}

type Server struct {
	runner     BatchRunner
	hub        *Hub
	log        logrus.FieldLogger
	cfg        config.ServerConfig
	profileDir string

	// busy is held for the whole of a batch; TryLock failing means one is
	// already running. Drain takes it for good.
	busy sync.Mutex

	// batchCtx parents every batch so Drain can stop them.
	batchCtx      context.Context
	cancelBatches context.CancelFunc

	shutdownOnce sync.Once
	onShutdown   func()
}

type Option func(*Server)

// WithShutdown sets the callback /shutdown triggers. It is called at most once.
func WithShutdown(fn func()) Option { return func(s *Server) { s.onShutdown = fn } }

func New(runner BatchRunner, hub *Hub, cfg *config.Config, log logrus.FieldLogger, opts ...Option) *Server {
	s := &Server{
		runner:     runner,
		hub:        hub,
		log:        log,
		cfg:        cfg.Server,
		profileDir: cfg.Browser.ProfileDir,
		onShutdown: func() {},
	}
	s.batchCtx, s.cancelBatches = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Drain cancels any running batch and waits for its handler to finish
// tearing the browser down. Batches requested afterwards are refused. It
// returns early with an error when ctx ends first.
func (s *Server) Drain(ctx context.Context) error {
	s.cancelBatches()

	done := make(chan struct{})
	go func() {
		s.busy.Lock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch still running: %w", ctx.Err())
	}
}

// acquire takes the batch slot, answering 409 or 503 when it cannot.
func (s *Server) acquire(c *gin.Context) bool {
	if s.batchCtx.Err() != nil {
		abort(c, http.StatusServiceUnavailable, "Server is shutting down")
		return false
	}
	if !s.busy.TryLock() {
		abort(c, http.StatusConflict, "A batch is already running")
		return false
	}
	return true
}

// Handler returns the routed engine wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.limitBody())
	r.MaxMultipartMemory = int64(s.cfg.MaxUploadMB) << 20

	r.GET("/health", s.Health)
	r.POST("/preview-csv", s.PreviewCSV)
	r.POST("/send-messages", s.SendMessages)
	r.POST("/logout", s.Logout)
	r.POST("/shutdown", s.Shutdown)
	if s.hub != nil {
		r.GET("/events", gin.WrapF(s.hub.ServeWS))
	}

	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Millisecond),
		}).Debug("HTTP request")
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	limit := int64(s.cfg.MaxUploadMB) << 20
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
