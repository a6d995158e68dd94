package middleware

import (
	"context"

	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling attaches route and company labels to CPU profiles taken while
// the request runs. Place it after JWTAuth. Health probes are not labelled.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		labels := map[string]string{
			"method": c.Request.Method,
		}
		if route := c.FullPath(); route != "" {
			labels[telemetry.LabelRoute] = route
		}
		if companyID := c.GetString(logger.GinCompanyIDKey); companyID != "" {
			labels[telemetry.LabelCompanyID] = companyID
		}

		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
