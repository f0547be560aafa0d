package resource

import (
	"fmt"
	"html"
	"strings"

	"github.com/antchfx/htmlquery"
	xhtml "golang.org/x/net/html"
)

const (
	scriptXPath = "//script"
	linkXPath   = "//link"
)

// TemplateManager is a parsed markup document.
type TemplateManager struct {
	url  string
	code string
	root *xhtml.Node
}

// NewTemplate parses markup fetched from url.
func NewTemplate(code, url string) (*TemplateManager, error) {
	root, err := htmlquery.Parse(strings.NewReader(code))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", url, err)
	}
	return &TemplateManager{url: url, code: code, root: root}, nil
}

// ScriptEntryTemplate synthesizes the one-node wrapper used when an
// application entry resolves directly to a script.
func ScriptEntryTemplate(scriptURL string) (*TemplateManager, error) {
	code := fmt.Sprintf(`<script src="%s"></script>`, html.EscapeString(scriptURL))
	return NewTemplate(code, scriptURL)
}

func (t *TemplateManager) URL() string  { return t.url }
func (t *TemplateManager) Kind() Kind   { return KindTemplate }
func (t *TemplateManager) Code() string { return t.code }

// Root returns the document node. Callers must not mutate it.
func (t *TemplateManager) Root() *xhtml.Node { return t.root }

// FindAllJSNodes returns every script element in document order.
func (t *TemplateManager) FindAllJSNodes() []*xhtml.Node {
	return htmlquery.Find(t.root, scriptXPath)
}

// FindAllLinkNodes returns every link element in document order.
func (t *TemplateManager) FindAllLinkNodes() []*xhtml.Node {
	return htmlquery.Find(t.root, linkXPath)
}

// FindAttributeValue reads an attribute, "" when absent.
func (t *TemplateManager) FindAttributeValue(node *xhtml.Node, name string) string {
	return htmlquery.SelectAttr(node, name)
}

// HasAttribute reports whether the attribute is present at all.
func (t *TemplateManager) HasAttribute(node *xhtml.Node, name string) bool {
	for _, attr := range node.Attr {
		if attr.Key == name {
			return true
		}
	}
	return false
}

// IsCSSLinkNode reports whether a link element references a stylesheet.
func (t *TemplateManager) IsCSSLinkNode(node *xhtml.Node) bool {
	if node == nil || node.Data != "link" {
		return false
	}
	rel := strings.ToLower(strings.TrimSpace(t.FindAttributeValue(node, "rel")))
	if rel != "" {
		for _, token := range strings.Fields(rel) {
			if token == "stylesheet" {
				return true
			}
		}
		return false
	}
	href := strings.ToLower(t.FindAttributeValue(node, "href"))
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	return strings.HasSuffix(href, ".css")
}

// InlineScriptText returns the text of a script element without src.
func (t *TemplateManager) InlineScriptText(node *xhtml.Node) string {
	return htmlquery.InnerText(node)
}

// Title returns the document title, "" when missing.
func (t *TemplateManager) Title() string {
	node := htmlquery.FindOne(t.root, "//title")
	if node == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(node))
}
