package resource

import (
	"net/url"
	"strings"
)

// Kind classifies a fetched resource
type Kind int

const (
	KindUnknown Kind = iota
	KindTemplate
	KindStyle
	KindScript
)

// String returns the kind name used in logs and metric labels
func (k Kind) String() string {
	switch k {
	case KindTemplate:
		return "template"
	case KindStyle:
		return "style"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// Manager is one parsed resource.
type Manager interface {
	// URL is the canonical (post-redirect) location, empty for inline code.
	URL() string
	Kind() Kind
	Code() string
}

// ResolveURL resolves ref against base. It returns "" for references that
// cannot be fetched (javascript:, mailto: and similar) or fail to parse.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	lower := strings.ToLower(ref)
	for _, scheme := range []string{"javascript:", "vbscript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:") {
		return ref
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == "" {
		return parsed.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return parsed.String()
	}
	return baseURL.ResolveReference(parsed).String()
}
