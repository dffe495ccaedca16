package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
)

// Recovery converts a panic into a 500 INTERNAL_ERROR response and logs
// the stack.
func Recovery(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("panic recovered", map[string]interface{}{
					logger.FieldError: fmt.Sprintf("%v", rec),
					"stack":           string(debug.Stack()),
					"path":            r.URL.Path,
					"method":          r.Method,
				})
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(errors.Internal(fmt.Errorf("%v", rec)).ToResponse())
			}()
			next.ServeHTTP(w, r)
		})
	}
}
