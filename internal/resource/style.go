package resource

import (
	"regexp"
	"strings"
)

var cssURLPattern = regexp.MustCompile(`url\(\s*(['"]?)([^'")]+)(['"]?)\s*\)`)

// StyleManager is stylesheet text with url() references made absolute.
type StyleManager struct {
	url  string
	code string
}

// NewStyle rewrites relative url() references in code against url.
func NewStyle(code, url string) *StyleManager {
	return &StyleManager{url: url, code: rewriteCSSURLs(code, url)}
}

func (s *StyleManager) URL() string  { return s.url }
func (s *StyleManager) Kind() Kind   { return KindStyle }
func (s *StyleManager) Code() string { return s.code }

func rewriteCSSURLs(code, base string) string {
	if base == "" {
		return code
	}
	return cssURLPattern.ReplaceAllStringFunc(code, func(match string) string {
		parts := cssURLPattern.FindStringSubmatch(match)
		ref := strings.TrimSpace(parts[2])
		if ref == "" || strings.HasPrefix(ref, "#") {
			return match
		}
		resolved := ResolveURL(base, ref)
		if resolved == "" || resolved == ref {
			return match
		}
		return "url(" + parts[1] + resolved + parts[3] + ")"
	})
}
