// Package dom is a small element tree standing in for a host page. It is
// enough for applications to render into a container, look nodes up and
// append their own nodes, and for the host to remove those nodes again.
package dom

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is one node of the tree. Text nodes have TagName "#text".
type Element struct {
	TagName     string
	ID          string
	ClassName   string
	TextContent string
	Attributes  map[string]string
	Children    []*Element
	Parent      *Element
}

// treeMu guards every tree; mutations are rare and short
var treeMu sync.RWMutex

// TextTag is the tag name of text nodes
const TextTag = "#text"

// NewDocument creates a root element
func NewDocument() *Element {
	return &Element{
		TagName:    "document",
		Attributes: make(map[string]string),
	}
}

// NewElement creates a detached element
func NewElement(tag string) *Element {
	return &Element{
		TagName:    strings.ToLower(tag),
		Attributes: make(map[string]string),
	}
}

// GetAttribute retrieves attribute value
func (e *Element) GetAttribute(name string) string {
	treeMu.RLock()
	defer treeMu.RUnlock()
	return e.Attributes[name]
}

// Attr returns an attribute and whether it is present
func (e *Element) Attr(name string) (string, bool) {
	treeMu.RLock()
	defer treeMu.RUnlock()
	v, ok := e.Attributes[name]
	return v, ok
}

// SetAttribute sets an attribute, keeping ID and ClassName in sync
func (e *Element) SetAttribute(name, value string) {
	treeMu.Lock()
	defer treeMu.Unlock()
	e.setAttr(name, value)
}

func (e *Element) setAttr(name, value string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[name] = value
	switch name {
	case "id":
		e.ID = value
	case "class":
		e.ClassName = value
	}
}

// AppendChild attaches child as the last child, detaching it first
func (e *Element) AppendChild(child *Element) {
	if child == nil || child == e {
		return
	}

	treeMu.Lock()
	defer treeMu.Unlock()
	child.detach()
	child.Parent = e
	e.Children = append(e.Children, child)
}

// Remove detaches the element from its parent
func (e *Element) Remove() {
	treeMu.Lock()
	defer treeMu.Unlock()
	e.detach()
}

func (e *Element) detach() {
	parent := e.Parent
	if parent == nil {
		return
	}
	children := make([]*Element, 0, len(parent.Children))
	for _, child := range parent.Children {
		if child != e {
			children = append(children, child)
		}
	}
	parent.Children = children
	e.Parent = nil
}

// Attached reports whether the element is reachable from root
func (e *Element) Attached(root *Element) bool {
	treeMu.RLock()
	defer treeMu.RUnlock()
	for n := e; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// Query finds elements by a simple selector: #id, .class or tag.
func (e *Element) Query(selector string) []*Element {
	treeMu.RLock()
	defer treeMu.RUnlock()

	selector = strings.TrimSpace(selector)
	var match func(*Element) bool
	switch {
	case selector == "":
		return nil
	case strings.HasPrefix(selector, "#"):
		id := selector[1:]
		match = func(el *Element) bool { return el.ID == id }
	case strings.HasPrefix(selector, "."):
		class := selector[1:]
		match = func(el *Element) bool {
			for _, c := range strings.Fields(el.ClassName) {
				if c == class {
					return true
				}
			}
			return false
		}
	default:
		match = func(el *Element) bool { return strings.EqualFold(el.TagName, selector) }
	}

	var result []*Element
	var walk func(*Element)
	walk = func(el *Element) {
		for _, child := range el.Children {
			if match(child) {
				result = append(result, child)
			}
			walk(child)
		}
	}
	walk(e)
	return result
}

// First returns the first match of selector or nil
func (e *Element) First(selector string) *Element {
	if found := e.Query(selector); len(found) > 0 {
		return found[0]
	}
	return nil
}

// Len returns the number of children
func (e *Element) Len() int {
	treeMu.RLock()
	defer treeMu.RUnlock()
	return len(e.Children)
}

// Text returns the concatenated text of the subtree
func (e *Element) Text() string {
	treeMu.RLock()
	defer treeMu.RUnlock()

	var sb strings.Builder
	var walk func(*Element)
	walk = func(el *Element) {
		if el.TagName == TextTag {
			sb.WriteString(el.TextContent)
			return
		}
		for _, child := range el.Children {
			walk(child)
		}
	}
	walk(e)
	return sb.String()
}

// SetText replaces the children with a single text node
func (e *Element) SetText(text string) {
	treeMu.Lock()
	defer treeMu.Unlock()
	for _, child := range e.Children {
		child.Parent = nil
	}
	e.Children = []*Element{{TagName: TextTag, TextContent: text, Parent: e}}
	e.TextContent = text
}

// Parse parses markup as children of a new element with the given tag.
func Parse(tag, markup string) (*Element, error) {
	container := NewElement(tag)
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if el := convert(n); el != nil {
			el.Parent = container
			container.Children = append(container.Children, el)
		}
	}
	return container, nil
}

func convert(n *html.Node) *Element {
	switch n.Type {
	case html.TextNode:
		return &Element{TagName: TextTag, TextContent: n.Data}
	case html.ElementNode:
		el := &Element{TagName: n.Data, Attributes: make(map[string]string, len(n.Attr))}
		for _, attr := range n.Attr {
			el.setAttr(attr.Key, attr.Val)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if child := convert(c); child != nil {
				child.Parent = el
				el.Children = append(el.Children, child)
			}
		}
		return el
	}
	return nil
}

// HTML renders the children of e as markup
func (e *Element) HTML() string {
	treeMu.RLock()
	defer treeMu.RUnlock()

	var sb strings.Builder
	for _, child := range e.Children {
		render(&sb, child)
	}
	return sb.String()
}

func render(sb *strings.Builder, el *Element) {
	if el.TagName == TextTag {
		if el.Parent != nil && (el.Parent.TagName == "style" || el.Parent.TagName == "script") {
			sb.WriteString(el.TextContent)
		} else {
			sb.WriteString(html.EscapeString(el.TextContent))
		}
		return
	}

	sb.WriteString("<" + el.TagName)
	for _, key := range sortedKeys(el.Attributes) {
		sb.WriteString(" " + key + `="` + html.EscapeString(el.Attributes[key]) + `"`)
	}
	sb.WriteString(">")
	for _, child := range el.Children {
		render(sb, child)
	}
	sb.WriteString("</" + el.TagName + ">")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
