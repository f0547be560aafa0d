package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
)

// Handlers serves the admin API of one host
type Handlers struct {
	host    *host.Host
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	logger  *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(h *host.Host, metrics *monitoring.Metrics, tracer *tracing.Tracer, logger *logging.Logger) *Handlers {
	return &Handlers{
		host:    h,
		metrics: metrics,
		tracer:  tracer,
		logger:  logging.OrNop(logger).Named("api"),
	}
}

// Register mounts every route on router
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	router.GET("/apps", h.ListApps)
	router.POST("/apps", h.RegisterApps)
	router.POST("/apps/:name/load", h.LoadApp)
	router.POST("/apps/:name/mount", h.MountApp)
	router.POST("/apps/:name/unmount", h.UnmountApp)
	router.POST("/apps/:name/exec", h.ExecScript)
	router.DELETE("/apps/:name/cache", h.InvalidateCache)

	router.GET("/globals", h.Globals)

	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	router.GET("/metrics/json", h.MetricsJSON)
}

// Root handles the liveness probe
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "apphost",
		"version": h.host.Version,
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": h.host.Version,
		"running": h.host.Running(),
		"apps": gin.H{
			"registered": len(h.host.AppNames()),
			"mounted":    len(h.host.ActiveApps()),
		},
		"plugins": h.host.Plugins(),
		"loader":  h.host.Loader().Stats(),
		"metrics": h.metrics.Snapshot(),
	})
}

// AppView is the API rendering of one registered application
type AppView struct {
	Name    string `json:"name"`
	Entry   string `json:"entry"`
	Cached  bool   `json:"cached"`
	Mounted bool   `json:"mounted"`
}

// ListApps lists registered applications
func (h *Handlers) ListApps(c *gin.Context) {
	active := h.host.ActiveApps()
	infos := h.host.AppInfos()

	views := make([]AppView, 0, len(infos))
	for _, name := range h.host.AppNames() {
		_, mounted := active[name]
		views = append(views, AppView{
			Name:    name,
			Entry:   infos[name].Entry,
			Cached:  h.host.CachedApp(name) != nil,
			Mounted: mounted,
		})
	}

	c.JSON(http.StatusOK, gin.H{"apps": views})
}

type registerRequest struct {
	Apps []app.Info `json:"apps"`
}

// RegisterApps registers descriptors. The body is either {"apps": [...]}
// or a single descriptor.
func (h *Handlers) RegisterApps(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var list []app.Info
	var req registerRequest
	if err := sonic.Unmarshal(body, &req); err == nil && len(req.Apps) > 0 {
		list = req.Apps
	} else {
		var single app.Info
		if err := sonic.Unmarshal(body, &single); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid descriptor: " + err.Error()})
			return
		}
		list = []app.Info{single}
	}

	if err := h.host.RegisterApp(list...); err != nil {
		h.fail(c, err)
		return
	}

	names := make([]string, 0, len(list))
	for _, info := range list {
		names = append(names, info.Name)
	}
	c.JSON(http.StatusCreated, gin.H{"registered": names})
}

type loadRequest struct {
	Entry string         `json:"entry"`
	Cache *bool          `json:"cache"`
	Props map[string]any `json:"props"`
}

func (r *loadRequest) info(name string) *app.Info {
	if r == nil || (r.Entry == "" && r.Cache == nil && r.Props == nil) {
		return nil
	}
	return &app.Info{Name: name, Entry: r.Entry, Cache: r.Cache, Props: r.Props}
}

// bindOptional decodes an optional JSON body
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// LoadApp loads an application without mounting it
func (h *Handlers) LoadApp(c *gin.Context) {
	name := c.Param("name")
	var req loadRequest
	if !bindOptional(c, &req) {
		return
	}

	ctx, finish := h.span(c.Request.Context(), "host.load", name)
	start := time.Now()
	inst, err := h.host.LoadApp(ctx, name, req.info(name))
	if err == nil && inst == nil {
		err = host.ErrNotLoaded
	}
	finish(err)

	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"app":      h.instanceView(inst),
		"duration": time.Since(start).String(),
	})
}

// MountApp loads if needed and mounts an application
func (h *Handlers) MountApp(c *gin.Context) {
	name := c.Param("name")
	var req loadRequest
	if !bindOptional(c, &req) {
		return
	}

	ctx, finish := h.span(c.Request.Context(), "host.mount", name)
	inst, err := h.host.MountApp(ctx, name, req.info(name))
	finish(err)
	if err != nil {
		h.fail(c, err)
		return
	}

	view := h.instanceView(inst)
	view["html"] = ""
	if node := inst.HTMLNode(); node != nil {
		view["html"] = node.HTML()
	}
	c.JSON(http.StatusOK, gin.H{"app": view})
}

// UnmountApp unmounts an active application
func (h *Handlers) UnmountApp(c *gin.Context) {
	name := c.Param("name")

	ctx, finish := h.span(c.Request.Context(), "host.unmount", name)
	err := h.host.UnmountApp(ctx, name)
	finish(err)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": name, "mounted": false})
}

type execRequest struct {
	Code string `json:"code" binding:"required"`
	URL  string `json:"url"`
}

// ExecScript runs code in an application's scope, loading it first when
// no cached instance exists.
func (h *Handlers) ExecScript(c *gin.Context) {
	name := c.Param("name")
	var req execRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, finish := h.span(c.Request.Context(), "app.exec", name)
	result, err := h.exec(ctx, name, req)
	finish(err)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"value":       renderValue(result.Value),
		"console":     result.Console,
		"dom_changes": result.DOMChanges,
		"strategy":    result.Strategy.String(),
		"duration":    result.Duration.String(),
	})
}

func (h *Handlers) exec(ctx context.Context, name string, req execRequest) (*sandbox.Result, error) {
	inst := h.host.CachedApp(name)
	if inst == nil {
		var err error
		if inst, err = h.host.LoadApp(ctx, name, nil); err != nil {
			return nil, err
		}
		if inst == nil {
			return nil, host.ErrNotLoaded
		}
	}
	return inst.ExecScript(ctx, req.Code, nil, req.URL, sandbox.ExecOptions{Inline: req.URL == ""})
}

// InvalidateCache drops the cached instance of an application
func (h *Handlers) InvalidateCache(c *gin.Context) {
	name := c.Param("name")
	c.JSON(http.StatusOK, gin.H{
		"name":    name,
		"evicted": h.host.InvalidateCache(name),
	})
}

// Globals renders the shared environment
func (h *Handlers) Globals(c *gin.Context) {
	snapshot := h.host.Engine().Snapshot()
	out := make(map[string]any, len(snapshot))
	for key, value := range snapshot {
		out[key] = renderValue(value)
	}
	c.JSON(http.StatusOK, gin.H{"globals": out})
}

// MetricsJSON returns the metric counters as JSON
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": h.metrics.UptimeSeconds(),
		"counters":       h.metrics.Snapshot(),
		"loader":         h.host.Loader().Stats(),
	})
}

func (h *Handlers) instanceView(inst *app.App) gin.H {
	return gin.H{
		"id":         inst.ID,
		"name":       inst.Name,
		"entry":      inst.Info.Entry,
		"html_mode":  inst.IsHTMLMode,
		"scripts":    len(inst.Resources.JS),
		"styles":     len(inst.Resources.Link),
		"container":  inst.ContainerID(),
		"mounted":    inst.Mounted(),
		"created_at": inst.CreatedAt,
	}
}

// span starts a child span of the request span and returns its finisher
func (h *Handlers) span(ctx context.Context, name, appName string) (context.Context, func(error)) {
	if h.tracer == nil {
		return ctx, func(error) {}
	}
	span, ctx := h.tracer.StartSpan(ctx, name)
	span.SetTag("app", appName)
	return ctx, func(err error) {
		if err != nil {
			span.SetError(err)
		}
		h.tracer.End(span)
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("app", c.Param("name")),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	var scriptErr *sandbox.ScriptError
	switch {
	case errors.Is(err, host.ErrNotRegistered), errors.Is(err, host.ErrNotMounted):
		return http.StatusNotFound
	case errors.Is(err, host.ErrMissingName), errors.Is(err, host.ErrMissingEntry):
		return http.StatusBadRequest
	case errors.Is(err, host.ErrRunning):
		return http.StatusConflict
	case errors.Is(err, host.ErrNotLoaded):
		return http.StatusBadGateway
	case errors.Is(err, sandbox.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &scriptErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// renderValue keeps JSON-encodable values and names the rest by type
func renderValue(v any) any {
	if v == nil {
		return nil
	}
	if _, err := sonic.Marshal(v); err != nil {
		return fmt.Sprintf("[%T]", v)
	}
	return v
}
