package host

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/hooks"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/resource"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox/dom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LoadApp resolves name into an assembled instance.
//
// Concurrent calls for the same name share one load sequence unless opts
// sets Cache to false. Only configuration errors are returned: a load
// cancelled by a BeforeLoad callback, or one that failed while fetching
// or assembling, yields a nil instance and a nil error. Failures are
// reported through ErrorLoadApp.
func (h *Host) LoadApp(ctx context.Context, name string, opts *app.Info) (*app.App, error) {
	info, err := h.resolveInfo(name, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if !info.CacheEnabled() {
		h.loading.Forget(name)
	}

	ran := false
	v, _, _ := h.loading.Do(name, func() (interface{}, error) {
		ran = true
		return h.loadProcess(context.WithoutCancel(ctx), info, start), nil
	})

	inst, _ := v.(*app.App)
	if !ran {
		h.metrics.RecordAppLoad(name, monitoring.OutcomeJoined, time.Since(start))
	}
	return inst, nil
}

// LoadAppURL loads name from entry, mounting into a detached container
// unless the registered descriptor names its own target.
func (h *Host) LoadAppURL(ctx context.Context, name, entry string) (*app.App, error) {
	opts := &app.Info{Entry: entry}
	if registered, ok := h.AppInfo(name); !ok || registered.DOMGetter == nil {
		container := dom.NewElement("div")
		opts.DOMGetter = func() *dom.Element { return container }
	}
	return h.LoadApp(ctx, name, opts)
}

// Prefetch warms the loader cache with the entry of a registered app and
// its sub-resources without building an instance.
func (h *Host) Prefetch(ctx context.Context, name string) error {
	info, err := h.resolveInfo(name, nil)
	if err != nil {
		return err
	}
	_, _, _, err = h.collect(ctx, info)
	return err
}

// resolveInfo merges process defaults, the registered descriptor and the
// call-site options, in increasing precedence.
func (h *Host) resolveInfo(name string, opts *app.Info) (*app.Info, error) {
	if name == "" {
		return nil, ErrMissingName
	}

	h.mu.RLock()
	defaults := h.options.defaults()
	registered, ok := h.appInfos[name]
	info := Merge(defaults, registered)
	h.mu.RUnlock()

	if !ok && (opts == nil || opts.Entry == "") {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	info = Merge(info, opts)
	info.Name = name
	if info.Entry == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntry, name)
	}
	return info, nil
}

func (h *Host) loadProcess(ctx context.Context, info *app.Info, start time.Time) (inst *app.App) {
	name := info.Name
	logger := h.logger.With(zap.String("app", name))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while loading app",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			inst = h.loadFailed(info, fmt.Errorf("load %s: panic: %v", name, r), start)
		}
	}()

	outcome, err := h.Lifecycle.BeforeLoad.Promise(ctx, info)
	if err != nil {
		return h.loadFailed(info, fmt.Errorf("load %s: before load: %w", name, err), start)
	}
	if outcome == hooks.Stop {
		logger.Warn("load cancelled by a before load callback")
		h.metrics.RecordAppLoad(name, monitoring.OutcomeAborted, time.Since(start))
		return nil
	}

	if info.CacheEnabled() {
		if cached := h.CachedApp(name); cached != nil {
			logger.Debug("reusing cached instance", zap.String("instance", string(cached.ID)))
			h.Lifecycle.AfterLoad.Call(app.Event{Info: info, App: cached})
			h.metrics.RecordAppLoad(name, monitoring.OutcomeCached, time.Since(start))
			return cached
		}
	}

	entry, resources, htmlMode, err := h.collect(ctx, info)
	if err != nil {
		return h.loadFailed(info, fmt.Errorf("load %s: %w", name, err), start)
	}

	h.Lifecycle.ProcessResource.Call(ResourceEvent{Info: info, Entry: entry, Resources: &resources})

	inst = app.New(app.Deps{
		Engine:    h.engine,
		Lifecycle: h.Lifecycle.Lifecycle,
		Externals: h.Externals,
		Logger:    h.logger,
	}, info, entry, resources, htmlMode)

	h.mu.Lock()
	h.cacheApps[name] = inst
	registered, cached := len(h.appInfos), len(h.cacheApps)
	h.mu.Unlock()
	h.metrics.SetAppCounts(registered, cached)

	logger.Info("app loaded",
		zap.String("instance", string(inst.ID)),
		zap.Int("scripts", len(resources.JS)),
		zap.Int("styles", len(resources.Link)),
		zap.Duration("took", time.Since(start)))

	h.Lifecycle.AfterLoad.Call(app.Event{Info: info, App: inst})
	h.metrics.RecordAppLoad(name, monitoring.OutcomeLoaded, time.Since(start))
	return inst
}

func (h *Host) loadFailed(info *app.Info, err error, start time.Time) *app.App {
	h.logger.DevWarn("app failed to load", zap.String("app", info.Name), zap.Error(err))
	h.Lifecycle.ErrorLoadApp.Call(app.Event{Info: info, Err: err})
	h.metrics.RecordAppLoad(info.Name, monitoring.OutcomeFailed, time.Since(start))
	return nil
}

// collect fetches the entry and, for markup entries, every referenced
// script and stylesheet.
func (h *Host) collect(ctx context.Context, info *app.Info) (*resource.TemplateManager, app.Resources, bool, error) {
	h.mu.RLock()
	base := h.options.BaseURL
	h.mu.RUnlock()

	entryURL := resource.ResolveURL(base, info.Entry)
	if entryURL == "" {
		return nil, app.Resources{}, false, fmt.Errorf("%w: %q", ErrUnsupportedEntry, info.Entry)
	}

	m, err := h.loader.Load(ctx, info.Name, entryURL)
	if err != nil {
		return nil, app.Resources{}, false, err
	}

	switch entry := m.(type) {
	case *resource.TemplateManager:
		resources, err := h.fetchSubresources(ctx, info.Name, entry)
		if err != nil {
			return nil, app.Resources{}, false, err
		}
		return entry, resources, true, nil
	case *resource.ScriptManager:
		tpl, err := resource.ScriptEntryTemplate(entry.URL())
		if err != nil {
			return nil, app.Resources{}, false, err
		}
		return tpl, app.Resources{JS: []*resource.ScriptManager{entry}}, false, nil
	default:
		return nil, app.Resources{}, false, fmt.Errorf("%w: %s is %s", ErrUnsupportedEntry, entryURL, m.Kind())
	}
}

// fetchSubresources fetches every external reference of entry together and
// returns once all have settled. Lists keep document order.
func (h *Host) fetchSubresources(ctx context.Context, scope string, entry *resource.TemplateManager) (app.Resources, error) {
	scriptNodes := entry.FindAllJSNodes()
	linkNodes := entry.FindAllLinkNodes()

	scripts := make([]*resource.ScriptManager, len(scriptNodes))
	styles := make([]*resource.StyleManager, len(linkNodes))

	var g errgroup.Group
	for i, node := range scriptNodes {
		mimeType := entry.FindAttributeValue(node, "type")
		async := entry.HasAttribute(node, "async")

		if !entry.HasAttribute(node, "src") {
			code := entry.InlineScriptText(node)
			if code == "" {
				continue
			}
			scripts[i] = resource.NewScript(code, "").WithMimeType(mimeType).WithAsync(async)
			continue
		}

		src := resource.ResolveURL(entry.URL(), entry.FindAttributeValue(node, "src"))
		if src == "" {
			continue
		}
		g.Go(func() error {
			m, err := h.loader.Load(ctx, scope, src)
			if err != nil {
				return err
			}
			script, ok := m.(*resource.ScriptManager)
			if !ok {
				return fmt.Errorf("%w: %s is %s, want script", ErrUnexpectedResource, src, m.Kind())
			}
			scripts[i] = script.WithMimeType(mimeType).WithAsync(async)
			return nil
		})
	}

	for i, node := range linkNodes {
		if !entry.IsCSSLinkNode(node) {
			continue
		}
		href := resource.ResolveURL(entry.URL(), entry.FindAttributeValue(node, "href"))
		if href == "" {
			continue
		}
		g.Go(func() error {
			m, err := h.loader.Load(ctx, scope, href)
			if err != nil {
				return err
			}
			style, ok := m.(*resource.StyleManager)
			if !ok {
				return fmt.Errorf("%w: %s is %s, want style", ErrUnexpectedResource, href, m.Kind())
			}
			styles[i] = style
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return app.Resources{}, err
	}
	return app.Resources{JS: compact(scripts), Link: compact(styles)}, nil
}

func compact[T any](list []*T) []*T {
	out := make([]*T, 0, len(list))
	for _, v := range list {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}
