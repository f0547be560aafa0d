package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route pattern keeps app names out of the label set
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start))
	}
}

// Timer measures one script execution
type Timer struct {
	start    time.Time
	metrics  *Metrics
	strategy string
}

// NewTimer starts a timer for an execution under the given strategy
func NewTimer(metrics *Metrics, strategy string) *Timer {
	return &Timer{
		start:    time.Now(),
		metrics:  metrics,
		strategy: strategy,
	}
}

// Stop records the elapsed time with the execution result
func (t *Timer) Stop(err error) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordExecution(t.strategy, err, duration)
	return duration
}
