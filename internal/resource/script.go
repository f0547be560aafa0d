package resource

import "strings"

// ScriptManager is one script, external or inline.
type ScriptManager struct {
	url      string
	code     string
	mimeType string
	async    bool
}

// NewScript wraps script source fetched from url. Inline scripts pass "".
func NewScript(code, url string) *ScriptManager {
	return &ScriptManager{url: url, code: code}
}

func (s *ScriptManager) URL() string  { return s.url }
func (s *ScriptManager) Kind() Kind   { return KindScript }
func (s *ScriptManager) Code() string { return s.code }

// MimeType is the declared type attribute, "" when the markup had none.
func (s *ScriptManager) MimeType() string { return s.mimeType }

// Async reports whether the markup marked the script async.
func (s *ScriptManager) Async() bool { return s.async }

// Inline reports whether the code came from markup rather than a fetch.
func (s *ScriptManager) Inline() bool { return s.url == "" }

// IsModule reports whether the script is an ES module.
func (s *ScriptManager) IsModule() bool {
	return strings.EqualFold(strings.TrimSpace(s.mimeType), "module")
}

// WithMimeType returns a copy carrying the given type.
func (s *ScriptManager) WithMimeType(mimeType string) *ScriptManager {
	clone := *s
	clone.mimeType = mimeType
	return &clone
}

// WithAsync returns a copy with the async flag set.
func (s *ScriptManager) WithAsync(async bool) *ScriptManager {
	clone := *s
	clone.async = async
	return &clone
}
