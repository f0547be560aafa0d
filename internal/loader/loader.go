package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/hooks"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader/fetch"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/resource"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Fetcher performs the network round trip
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Response, error)
}

// Request identifies one Load call
type Request struct {
	Scope string
	URL   string
}

// LoadedData is threaded through the Loaded hook
type LoadedData struct {
	Scope       string
	URL         string
	RequestURL  string
	Code        string
	Kind        resource.Kind
	ContentType string
	// IsComponent marks payloads that must not be classified
	IsComponent bool
	// Value is the typed manager produced by a Loaded callback
	Value resource.Manager
}

// Lifecycle holds the loader interception points
type Lifecycle struct {
	BeforeLoad *hooks.SyncHook[Request]
	Loaded     *hooks.WaterfallHook[LoadedData]
}

// NewLifecycle creates empty loader hooks
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		BeforeLoad: hooks.NewSyncHook[Request]("loader.beforeLoad"),
		Loaded:     hooks.NewWaterfallHook[LoadedData]("loader.loaded"),
	}
}

// Stats describes the cache
type Stats struct {
	Entries int   `json:"entries"`
	Aliases int   `json:"aliases"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Joined  int64 `json:"joined"`
}

// Loader fetches, classifies and caches resources
type Loader struct {
	Lifecycle *Lifecycle

	fetcher Fetcher
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	cache   map[string]resource.Manager
	aliases map[string]string

	hits   atomic.Int64
	misses atomic.Int64
	joined atomic.Int64

	group singleflight.Group
}

// New creates a loader over fetcher
func New(fetcher Fetcher, logger *logging.Logger, metrics *monitoring.Metrics) *Loader {
	return &Loader{
		Lifecycle: NewLifecycle(),
		fetcher:   fetcher,
		logger:    logging.OrNop(logger).Named("loader"),
		metrics:   metrics,
		cache:     make(map[string]resource.Manager),
		aliases:   make(map[string]string),
	}
}

// Load returns the manager for url, fetching it at most once.
func (l *Loader) Load(ctx context.Context, scope, url string) (resource.Manager, error) {
	l.Lifecycle.BeforeLoad.Call(Request{Scope: scope, URL: url})

	if m, ok := l.lookup(url); ok {
		l.recordCache("hit")
		l.logger.Debug("cache hit", zap.String("scope", scope), zap.String("url", url))
		return m, nil
	}

	// The shared fetch outlives any one caller; the client timeout bounds it.
	flight := context.WithoutCancel(ctx)
	ch := l.group.DoChan(url, func() (interface{}, error) {
		return l.fetchAndClassify(flight, scope, url)
	})

	select {
	case <-ctx.Done():
		l.logger.Debug("caller gave up on shared fetch", zap.String("scope", scope), zap.String("url", url))
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			l.recordCache("joined")
		} else {
			l.recordCache("miss")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(resource.Manager), nil
	}
}

// LoadRaw fetches url and passes it through the Loaded hook flagged as a
// component, without classification or caching.
func (l *Loader) LoadRaw(ctx context.Context, scope, url string) (LoadedData, error) {
	l.Lifecycle.BeforeLoad.Call(Request{Scope: scope, URL: url})

	resp, err := l.fetch(ctx, url)
	if err != nil {
		return LoadedData{}, err
	}
	data := LoadedData{
		Scope:       scope,
		URL:         resp.URL,
		RequestURL:  url,
		Code:        resource.Decode(resp.Body, resp.ContentType),
		Kind:        DetectKind(resp.ContentType, resp.Body, resp.URL),
		ContentType: resp.ContentType,
		IsComponent: true,
	}
	return l.Lifecycle.Loaded.Emit(ctx, data)
}

func (l *Loader) fetchAndClassify(ctx context.Context, scope, url string) (resource.Manager, error) {
	resp, err := l.fetch(ctx, url)
	if err != nil {
		l.metrics.RecordFetch(resource.KindUnknown.String(), monitoring.FetchStatus(statusOf(err), err), 0)
		return nil, err
	}

	kind := DetectKind(resp.ContentType, resp.Body, resp.URL)
	l.metrics.RecordFetch(kind.String(), monitoring.FetchStatus(resp.StatusCode, nil), resp.Duration)

	// Another request URL may already have produced this final URL
	if m, ok := l.lookup(resp.URL); ok {
		l.alias(url, resp.URL)
		return m, nil
	}

	data := LoadedData{
		Scope:       scope,
		URL:         resp.URL,
		RequestURL:  url,
		Code:        resource.Decode(resp.Body, resp.ContentType),
		Kind:        kind,
		ContentType: resp.ContentType,
	}

	data, err = l.Lifecycle.Loaded.Emit(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", url, err)
	}
	if data.Value == nil {
		return nil, fmt.Errorf("%w: %s (%s, %q)", ErrUnsupportedKind, url, kind, resp.ContentType)
	}

	l.store(url, resp.URL, data.Value)
	l.logger.Debug("resource loaded",
		zap.String("scope", scope),
		zap.String("url", resp.URL),
		zap.String("kind", data.Value.Kind().String()),
		zap.Duration("duration", resp.Duration))
	return data.Value, nil
}

func (l *Loader) fetch(ctx context.Context, url string) (*fetch.Response, error) {
	start := time.Now()
	resp, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		l.logger.Debug("fetch failed", zap.String("url", url), zap.Duration("after", time.Since(start)), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}
	if resp.URL == "" {
		resp.URL = url
	}
	return resp, nil
}

func statusOf(err error) int {
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func (l *Loader) lookup(url string) (resource.Manager, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if final, ok := l.aliases[url]; ok {
		url = final
	}
	m, ok := l.cache[url]
	return m, ok
}

func (l *Loader) alias(requestURL, finalURL string) {
	if requestURL == finalURL {
		return
	}
	l.mu.Lock()
	l.aliases[requestURL] = finalURL
	l.mu.Unlock()
}

func (l *Loader) store(requestURL, finalURL string, m resource.Manager) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache[finalURL] = m
	if requestURL != finalURL {
		l.aliases[requestURL] = finalURL
	}
}

// Clear drops url from the cache, whether it is a request or final URL.
func (l *Loader) Clear(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	final := url
	if target, ok := l.aliases[url]; ok {
		final = target
	}
	delete(l.cache, final)
	for alias, target := range l.aliases {
		if target == final {
			delete(l.aliases, alias)
		}
	}
}

// ClearAll empties the cache
func (l *Loader) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]resource.Manager)
	l.aliases = make(map[string]string)
}

// Cached reports whether url resolves to a cached manager
func (l *Loader) Cached(url string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if final, ok := l.aliases[url]; ok {
		url = final
	}
	_, ok := l.cache[url]
	return ok
}

// Stats returns cache statistics
func (l *Loader) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		Entries: len(l.cache),
		Aliases: len(l.aliases),
		Hits:    l.hits.Load(),
		Misses:  l.misses.Load(),
		Joined:  l.joined.Load(),
	}
}

func (l *Loader) recordCache(result string) {
	switch result {
	case "hit":
		l.hits.Add(1)
	case "miss":
		l.misses.Add(1)
	case "joined":
		l.joined.Add(1)
	}
	l.metrics.RecordLoaderCache(result)
}
