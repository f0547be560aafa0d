package loader

import "errors"

var (
	// ErrFetch wraps every transport failure
	ErrFetch = errors.New("resource fetch failed")
	// ErrEmptyBody is returned for an empty markup document
	ErrEmptyBody = errors.New("empty resource body")
	// ErrUnsupportedKind is returned when no hook produced a manager
	ErrUnsupportedKind = errors.New("unsupported resource kind")
)
