package host

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format names a descriptor file encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

type descriptorFile struct {
	Apps []app.Info `json:"apps" yaml:"apps" toml:"apps"`
}

// FormatOf picks the format from a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// LoadDescriptors reads a file holding an apps list
func LoadDescriptors(path string) ([]app.Info, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}
	infos, err := ParseDescriptors(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return infos, nil
}

// ParseDescriptors decodes an apps list and validates every entry
func ParseDescriptors(data []byte, format Format) ([]app.Info, error) {
	var file descriptorFile
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &file)
	case FormatTOML:
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&file)
	case FormatJSON:
		err = sonic.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s descriptors: %w", format, err)
	}

	for i := range file.Apps {
		if err := file.Apps[i].Validate(); err != nil {
			return nil, fmt.Errorf("app %d: %w", i, err)
		}
	}
	return file.Apps, nil
}
