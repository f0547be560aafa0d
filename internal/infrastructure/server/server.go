package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/apphost/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader/fetch"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/plugins"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/plugins/preload"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
)

// Server wraps the admin HTTP server and the host it exposes
type Server struct {
	config    *config.Config
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	host      *host.Host
	preloader *preload.Preloader
	router    *gin.Engine

	runOptions host.Options
	startOnce  sync.Once
	startErr   error

	httpServer *http.Server
}

// NewServer creates a server whose host registers apps when started
func NewServer(cfg *config.Config, apps []app.Info) (*Server, error) {
	return newServer(cfg, apps, host.DefaultContextRegistry())
}

func newServer(cfg *config.Config, apps []app.Info, reg *host.ContextRegistry) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing apphost server",
		zap.String("port", cfg.Server.Port),
		zap.String("basename", cfg.Host.Basename),
		zap.Int("apps", len(apps)),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("apphost", logger)

	client := fetch.NewClient(fetch.Config{
		Timeout:      cfg.Loader.Timeout,
		Retries:      cfg.Loader.Retries,
		RetryWaitMin: fetch.DefaultConfig().RetryWaitMin,
		RetryWaitMax: fetch.DefaultConfig().RetryWaitMax,
		RPS:          cfg.Loader.RPS,
		UserAgent:    cfg.Loader.UserAgent,
	})

	engine := sandbox.NewEngine(sandbox.NewEnvironment(), sandbox.EngineOptions{
		ExecTimeout:  cfg.Sandbox.ExecTimeout,
		MaxCallStack: cfg.Sandbox.MaxCallStack,
		Logger:       logger,
		Metrics:      metrics,
	})

	preloadCfg := preload.DefaultConfig()
	preloadCfg.RPS = cfg.Host.PreloadRPS
	preloadCfg.Timeout = cfg.Loader.Timeout
	pluginList, preloader := plugins.Defaults(plugins.Config{
		Dev:              cfg.Logging.Development,
		SnapshotFallback: cfg.Sandbox.SnapshotFallback,
		DisablePreload:   cfg.Host.DisablePreload,
		Preload:          preloadCfg,
	})

	h, err := host.CreateContext(reg, host.Options{
		Basename:          cfg.Host.Basename,
		DisablePreloadApp: cfg.Host.DisablePreload,
	}, host.Deps{
		Loader:  loader.New(client, logger, metrics),
		Engine:  engine,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limit := middleware.DefaultRateLimitConfig()
		limit.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limit.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limit))
	}

	apihttp.NewHandlers(h, metrics, tracer, logger).Register(router)

	logger.Info("Server initialized successfully")

	return &Server{
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		host:      h,
		preloader: preloader,
		router:    router,
		httpServer: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
		runOptions: host.Options{
			Apps:    apps,
			Plugins: pluginList,
		},
	}, nil
}

// Host returns the host the server exposes
func (s *Server) Host() *host.Host { return s.host }

// Handler returns the admin API handler
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the host once: plugins are installed, apps registered and
// preloading scheduled.
func (s *Server) Start() error {
	s.startOnce.Do(func() {
		s.startErr = s.host.Run(s.runOptions)
	})
	return s.startErr
}

// Run starts the host and serves the admin API until Shutdown
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start host: %w", err)
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels preloading and flushes
// traces and logs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}
	if s.preloader != nil {
		s.preloader.Close()
	}
	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()
	return err
}
