// Package endpoint holds the operational endpoints mounted next to the API.
package endpoint

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// Check probes one dependency. A nil error means healthy; a nil Probe
// always reports healthy.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// CheckResult is the reported outcome of a Check.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health reports service health. Any failing check makes the response 503.
func Health(serviceName, version string, checks ...Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := "healthy"
		results := make([]CheckResult, 0, len(checks))
		for _, ch := range checks {
			r := CheckResult{Name: ch.Name, Status: "healthy"}
			if ch.Probe == nil {
				results = append(results, r)
				continue
			}
			if err := ch.Probe(ctx); err != nil {
				r.Status = "unhealthy"
				r.Error = err.Error()
				status = "unhealthy"
			}
			results = append(results, r)
		}

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":     status,
			"service":    serviceName,
			"version":    version,
			"go_version": runtime.Version(),
			"uptime":     time.Since(startTime).Round(time.Second).String(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": results,
		})
	}
}
