package logger

import (
	"net/http"
	"time"
)

// HTTPLogger logs one line per request served by next.
func HTTPLogger(l Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			l.Debugf(r.Context(), "HTTP request method=%s path=%s status=%d duration_ms=%d remote_addr=%s",
				r.Method,
				r.URL.Path,
				ww.statusCode,
				time.Since(start).Milliseconds(),
				r.RemoteAddr,
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
