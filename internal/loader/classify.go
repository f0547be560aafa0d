package loader

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/resource"
	"github.com/gabriel-vasile/mimetype"
)

var scriptMediaTypes = map[string]bool{
	"application/javascript":   true,
	"application/x-javascript": true,
	"application/ecmascript":   true,
	"text/javascript":          true,
	"text/ecmascript":          true,
	"text/jsx":                 true,
}

// DetectKind classifies a payload: declared content type first, then the
// sniffed MIME type, then the URL extension.
func DetectKind(contentType string, body []byte, rawURL string) resource.Kind {
	if kind := kindFromMediaType(contentType); kind != resource.KindUnknown {
		return kind
	}
	if len(body) > 0 {
		if kind := kindFromMediaType(mimetype.Detect(body).String()); kind != resource.KindUnknown {
			return kind
		}
	}
	return kindFromExtension(rawURL)
}

func kindFromMediaType(contentType string) resource.Kind {
	if contentType == "" {
		return resource.KindUnknown
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return resource.KindUnknown
	}

	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return resource.KindTemplate
	case mediaType == "text/css":
		return resource.KindStyle
	case scriptMediaTypes[mediaType]:
		return resource.KindScript
	}
	return resource.KindUnknown
}

func kindFromExtension(rawURL string) resource.Kind {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}

	switch strings.ToLower(path.Ext(p)) {
	case ".html", ".htm", ".xhtml":
		return resource.KindTemplate
	case ".css":
		return resource.KindStyle
	case ".js", ".mjs", ".cjs", ".jsx":
		return resource.KindScript
	}
	return resource.KindUnknown
}

// Classify is the default Loaded callback: it builds the typed manager for
// the detected kind. Component payloads and data that already carries a
// manager pass through unchanged.
func Classify(_ context.Context, data LoadedData) (LoadedData, error) {
	if data.IsComponent || data.Value != nil {
		return data, nil
	}

	switch data.Kind {
	case resource.KindTemplate:
		if strings.TrimSpace(data.Code) == "" {
			return data, fmt.Errorf("%w: %s", ErrEmptyBody, data.URL)
		}
		tpl, err := resource.NewTemplate(data.Code, data.URL)
		if err != nil {
			return data, err
		}
		data.Value = tpl
	case resource.KindStyle:
		data.Value = resource.NewStyle(data.Code, data.URL)
	case resource.KindScript:
		data.Value = resource.NewScript(data.Code, data.URL)
	}
	return data, nil
}
