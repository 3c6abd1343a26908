package main

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"posterpro/ai"
	"posterpro/common"
	"posterpro/notify"
	"posterpro/pipelines/poster"
	"posterpro/templates"
)

// WorkerPool bounds how many poster pipelines run at once. A request waits
// for a free worker in its own handler; nothing runs in the background.
type WorkerPool struct {
	slots      chan struct{}
	numWorkers int
}

func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		slots:      make(chan struct{}, numWorkers),
		numWorkers: numWorkers,
	}
}

// Do runs fn once a worker is free, or returns the context error
func (p *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()
	return fn()
}

// Busy is the number of pipelines running now
func (p *WorkerPool) Busy() int {
	return len(p.slots)
}

// settings are the values the UI can switch at runtime
type settings struct {
	mu       sync.RWMutex
	useDummy bool
	provider string
}

func (s *settings) get() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.useDummy, s.provider
}

func (s *settings) setDummy(v bool) {
	s.mu.Lock()
	s.useDummy = v
	s.mu.Unlock()
}

func (s *settings) setProvider(p string) {
	s.mu.Lock()
	s.provider = p
	s.mu.Unlock()
}

// Services are the components the HTTP server drives
type Services struct {
	Config    *common.Config
	Requester *ai.Requester
	Library   *templates.Library
	Pipeline  *poster.Pipeline
	Cleaner   *poster.Cleaner
	Notifier  *notify.Notifier
	Metrics   *common.Metrics
	Registry  *prometheus.Registry
	Workers   int
	Logger    zerolog.Logger
}

type Server struct {
	cfg       *common.Config
	requester *ai.Requester
	library   *templates.Library
	pipeline  *poster.Pipeline
	cleaner   *poster.Cleaner
	notifier  *notify.Notifier
	metrics   *common.Metrics
	registry  *prometheus.Registry
	pool      *WorkerPool
	settings  *settings
	engine    *gin.Engine
	log       zerolog.Logger
	now       func() time.Time
}

func NewServer(svc Services) *Server {
	if svc.Metrics == nil {
		svc.Metrics = common.NopMetrics()
	}
	if svc.Registry == nil {
		svc.Registry = prometheus.NewRegistry()
	}
	s := &Server{
		cfg:       svc.Config,
		requester: svc.Requester,
		library:   svc.Library,
		pipeline:  svc.Pipeline,
		cleaner:   svc.Cleaner,
		notifier:  svc.Notifier,
		metrics:   svc.Metrics,
		registry:  svc.Registry,
		pool:      NewWorkerPool(svc.Workers),
		settings:  &settings{useDummy: svc.Config.UseDummyData, provider: svc.Config.DefaultProvider},
		log:       svc.Logger.With().Str("component", "http").Logger(),
		now:       time.Now,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.log))
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	engine.Use(cors.New(corsConfig))
	engine.MaxMultipartMemory = 32 << 20
	s.engine = engine
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.POST("/upload", s.handleUpload)
	r.GET("/download/:filename", s.handleDownload)

	api := r.Group("/api")
	{
		api.GET("/mode", s.handleGetMode)
		api.POST("/mode", s.handleSetMode)
		api.GET("/provider", s.handleGetProvider)
		api.POST("/provider", s.handleSetProvider)
		api.GET("/dummy-data-status", s.handleDummyStatus)

		lib := api.Group("/template-library")
		lib.GET("", s.handleListTemplates)
		lib.POST("/upload", s.handleUploadTemplate)
		lib.POST("/delete", s.handleArchiveTemplate)
		lib.DELETE("/:filename", s.handleDeleteTemplate)
		lib.GET("/preview/:filename", s.handleTemplatePreview)
		lib.GET("/shapes/:filename", s.handleTemplateShapes)

		api.GET("/premium-templates", s.handlePremiumTemplates)
		api.POST("/premium-templates", s.handleAddPremium())
		api.DELETE("/premium-templates", s.handleRemovePremium())
		api.GET("/coming-soon-templates", s.handleComingSoonTemplates)
		api.POST("/coming-soon-templates", s.handleAddComingSoon())
		api.DELETE("/coming-soon-templates", s.handleRemoveComingSoon())
		api.GET("/template-descriptions", s.handleDescriptions)
		api.GET("/template-descriptions/:name", s.handleDescription)

		api.GET("/upload-limits", s.handleUploadLimits)
		api.POST("/cleanup", s.handleCleanup)
		api.GET("/cleanup-status", s.handleCleanupStatus)
		api.POST("/subscribe", s.handleSubscribe)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      10 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Int("workers", s.pool.numWorkers).Msg("server starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}

// statusFor maps error kinds onto HTTP status codes
func statusFor(err error) int {
	switch common.KindOf(err) {
	case common.KindValidation:
		return http.StatusBadRequest
	case common.KindTemplate:
		if errors.Is(err, common.ErrTemplateNotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case common.KindExtraction:
		return http.StatusBadGateway
	case common.KindConfig:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"timestamp":    s.now().Format(time.RFC3339),
		"workers":      s.pool.numWorkers,
		"busy_workers": s.pool.Busy(),
		"goroutines":   runtime.NumGoroutine(),
	})
}
