package app

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/resource"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox/dom"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Mount renders the entry markup into a new container under the
// descriptor's DOM target and runs the scripts in document order. Module
// scripts are skipped. A failing script fires ErrorMountApp, removes the
// container, resets the isolation handle and is returned.
func (a *App) Mount(ctx context.Context) error {
	a.mountMu.Lock()
	defer a.mountMu.Unlock()

	if a.Mounted() {
		return nil
	}

	lc := a.deps.Lifecycle
	lc.BeforeMount.Call(Event{Info: a.Info, App: a})

	container, err := a.render()
	if err != nil {
		return a.mountFailed(err)
	}
	a.parent().AppendChild(container)

	a.mu.Lock()
	a.htmlNode = container
	a.mu.Unlock()

	for _, js := range a.Resources.JS {
		if js.IsModule() {
			a.logger.DevWarn("module scripts are not supported, skipping", zap.String("url", js.URL()))
			continue
		}
		_, err := a.ExecScript(ctx, js.Code(), nil, js.URL(), sandbox.ExecOptions{
			Inline: js.Inline(),
			Async:  js.Async(),
		})
		if err != nil {
			container.Remove()
			a.mu.Lock()
			a.htmlNode = nil
			a.mu.Unlock()
			return a.mountFailed(err)
		}
	}

	a.mu.Lock()
	a.mounted = true
	a.mu.Unlock()

	a.logger.Debug("mounted", zap.Int("scripts", len(a.Resources.JS)))
	lc.AfterMount.Call(Event{Info: a.Info, App: a})
	return nil
}

func (a *App) mountFailed(err error) error {
	// values written by the scripts that did run must not survive a retry
	if sb := a.Executor(); sb != nil {
		sb.Reset()
	}
	err = fmt.Errorf("mount %s: %w", a.Name, err)
	a.logger.Error("mount failed", zap.Error(err))
	a.deps.Lifecycle.ErrorMountApp.Call(Event{Info: a.Info, App: a, Err: err})
	return err
}

// Unmount detaches the container. Unmounting an unmounted instance is a
// no-op.
func (a *App) Unmount(_ context.Context) error {
	a.mountMu.Lock()
	defer a.mountMu.Unlock()

	if !a.Mounted() {
		return nil
	}

	lc := a.deps.Lifecycle
	lc.BeforeUnmount.Call(Event{Info: a.Info, App: a})

	a.mu.Lock()
	node := a.htmlNode
	a.htmlNode = nil
	a.mounted = false
	a.mu.Unlock()

	if node != nil {
		node.Remove()
	}

	a.logger.Debug("unmounted")
	lc.AfterUnmount.Call(Event{Info: a.Info, App: a})
	return nil
}

func (a *App) parent() *dom.Element {
	if a.Info.DOMGetter != nil {
		if el := a.Info.DOMGetter(); el != nil {
			return el
		}
	}
	return a.deps.Engine.Document()
}

// ContainerID returns the id attribute of the mount container
func (a *App) ContainerID() string {
	return fmt.Sprintf("apphost_app_%s_%s", a.Name, a.ID)
}

// render builds the container: scripts removed, stylesheet links replaced
// by inline style elements.
func (a *App) render() (*dom.Element, error) {
	var markup string
	if a.EntryManager != nil && a.IsHTMLMode {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(a.EntryManager.Code()))
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		doc.Find("script").Remove()
		a.inlineStyles(doc)

		head, _ := doc.Find("head").Html()
		body, _ := doc.Find("body").Html()
		markup = head + body
	}

	container, err := dom.Parse("div", markup)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	container.SetAttribute("id", a.ContainerID())
	container.SetAttribute("data-app", a.Name)
	return container, nil
}

func (a *App) inlineStyles(doc *goquery.Document) {
	byURL := make(map[string]*resource.StyleManager, len(a.Resources.Link))
	for _, link := range a.Resources.Link {
		byURL[link.URL()] = link
	}

	entry := a.EntryManager
	position := 0
	doc.Find("link").Each(func(_ int, s *goquery.Selection) {
		if !entry.IsCSSLinkNode(s.Get(0)) {
			return
		}
		href := resource.ResolveURL(entry.URL(), s.AttrOr("href", ""))
		if href == "" {
			return
		}

		style, ok := byURL[href]
		if !ok && position < len(a.Resources.Link) {
			// redirected stylesheets keep their document position
			style = a.Resources.Link[position]
		}
		position++
		if style == nil {
			return
		}
		s.ReplaceWithHtml(fmt.Sprintf(`<style data-href="%s">%s</style>`, html.EscapeString(href), style.Code()))
	})
}
