package monitoring

import (
	"context"
	"errors"
	"strconv"
)

// FetchStatus turns a fetch result into a bounded status label.
func FetchStatus(code int, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case code > 0:
		return strconv.Itoa(code/100) + "xx"
	case err != nil:
		return "error"
	default:
		return "ok"
	}
}
