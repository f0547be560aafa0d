// Package preload warms the loader cache with the entries of registered
// apps once the host is running, so a later load finds its resources
// already fetched.
package preload

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Name is the plugin name
const Name = "apphost-preload"

// Config configures the preloader
type Config struct {
	// RPS bounds preload fetches per second; 0 means unlimited
	RPS   float64
	Burst int
	// Timeout bounds one app's prefetch
	Timeout time.Duration
}

// DefaultConfig returns the defaults used by the host binary
func DefaultConfig() Config {
	return Config{RPS: 2, Burst: 1, Timeout: 30 * time.Second}
}

// Preloader prefetches registered apps in the background
type Preloader struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	host     *host.Host
	enabled  bool
	seen     map[string]bool
	failures map[string]error
}

// New creates a preloader
func New(cfg Config) *Preloader {
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Preloader{
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		logger:   logging.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
		seen:     make(map[string]bool),
		failures: make(map[string]error),
	}
}

// Plugin returns the host plugin driving this preloader
func (p *Preloader) Plugin() *host.Plugin {
	return &host.Plugin{
		Name:        Name,
		Version:     host.Version,
		Setup:       p.setup,
		Bootstrap:   p.bootstrap,
		RegisterApp: p.registerApp,
	}
}

func (p *Preloader) setup(h *host.Host) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.host = h
	p.logger = h.Logger().Named("preload")
}

func (p *Preloader) bootstrap(opts *host.Options) {
	if opts.DisablePreloadApp {
		p.logger.Debug("preload disabled")
		return
	}
	p.mu.Lock()
	p.enabled = true
	h := p.host
	p.mu.Unlock()

	if h != nil {
		p.schedule(h.AppNames())
	}
}

// registerApp preloads apps registered after bootstrap
func (p *Preloader) registerApp(infos map[string]*app.Info) {
	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()
	if !enabled {
		return
	}

	names := make([]string, 0, len(infos))
	for name := range infos {
		names = append(names, name)
	}
	p.schedule(names)
}

func (p *Preloader) schedule(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, name := range names {
		if p.seen[name] {
			continue
		}
		p.seen[name] = true
		p.wg.Add(1)
		go p.prefetch(p.host, name)
	}
}

func (p *Preloader) prefetch(h *host.Host, name string) {
	defer p.wg.Done()

	if err := p.limiter.Wait(p.ctx); err != nil {
		return
	}

	ctx := p.ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := h.Prefetch(ctx, name)
	if err != nil {
		p.mu.Lock()
		p.failures[name] = err
		p.mu.Unlock()
		p.logger.DevWarn("preload failed", zap.String("app", name), zap.Error(err))
		return
	}
	p.logger.Debug("app preloaded", zap.String("app", name), zap.Duration("took", time.Since(start)))
}

// Failures returns the apps whose prefetch failed
func (p *Preloader) Failures() map[string]error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]error, len(p.failures))
	for k, v := range p.failures {
		out[k] = v
	}
	return out
}

// Wait blocks until every scheduled prefetch has finished
func (p *Preloader) Wait() {
	p.wg.Wait()
}

// Close stops pending prefetches and waits for running ones
func (p *Preloader) Close() {
	p.cancel()
	p.wg.Wait()
}
