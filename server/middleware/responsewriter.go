package middleware

import "net/http"

// responseRecorder remembers the first status written through it. Flush
// and Unwrap reach the wrapped writer so event streams keep working.
type responseRecorder struct {
	http.ResponseWriter
	code int // 0 until the header is written
}

// Status returns the written status, 200 when the handler never set one.
func (rr *responseRecorder) Status() int {
	if rr.code == 0 {
		return http.StatusOK
	}
	return rr.code
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.code == 0 {
		rr.code = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.code == 0 {
		rr.code = http.StatusOK
	}
	return rr.ResponseWriter.Write(b)
}

func (rr *responseRecorder) Flush() {
	http.NewResponseController(rr.ResponseWriter).Flush() //nolint:errcheck // not every writer flushes
}

func (rr *responseRecorder) Unwrap() http.ResponseWriter { return rr.ResponseWriter }
