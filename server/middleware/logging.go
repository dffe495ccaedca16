package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/scribe/logger"
)

// RequestLogger logs each request with its status and duration. Health
// checks and the event stream are skipped.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			status := rec.Status()

			fields := logger.MergeWithDuration(map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": status,
			}, time.Since(start))
			if id := r.Header.Get(HeaderRequestID); id != "" {
				fields["request_id"] = id
			}

			switch {
			case status >= 500:
				log.Error("request completed", fields)
			case status >= 400:
				log.Warn("request completed", fields)
			default:
				log.Debug("request completed", fields)
			}
		})
	}
}

func quietPath(path string) bool {
	return path == "/health" || strings.HasSuffix(path, "/events")
}
