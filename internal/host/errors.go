package host

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
)

var (
	ErrNotRegistered      = errors.New("app is not registered and no entry was given")
	ErrMissingName        = app.ErrMissingName
	ErrMissingEntry       = app.ErrMissingEntry
	ErrRunning            = errors.New("host is running, options can no longer be set")
	ErrUnsupportedEntry   = errors.New("entry must resolve to markup or a script")
	ErrUnexpectedResource = errors.New("resource resolved to an unexpected kind")
	ErrNotLoaded          = errors.New("app failed to load")
	ErrNotMounted         = errors.New("app is not mounted")
	ErrUnknownFormat      = errors.New("unknown descriptor file format")
)
