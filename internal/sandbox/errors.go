package sandbox

import (
	"errors"
	"fmt"
)

var (
	ErrClosed      = errors.New("sandbox has been reset")
	ErrUnsupported = errors.New("live isolation is not supported by this runtime")
	ErrTimeout     = errors.New("script execution interrupted")
)

// ScriptError tags a script failure with the URL it came from
type ScriptError struct {
	URL string
	Err error
}

func (e *ScriptError) Error() string {
	url := e.URL
	if url == "" {
		url = "<inline>"
	}
	return fmt.Sprintf("script %s: %v", url, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }
