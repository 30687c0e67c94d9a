package observability

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/rappel/kit"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// RequestLog returns middleware that records every request in the
// http_request_logs table. Insert failures are slog-ed and never surface to
// the client.
func RequestLog(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			_, err := db.Exec(`
				INSERT INTO http_request_logs (
					method, path, status_code, duration_ms, trace_id, ip_address, user_agent
				) VALUES (?,?,?,?,?,?,?)`,
				r.Method, r.URL.Path, rec.status, time.Since(start).Milliseconds(),
				kit.GetTraceID(r.Context()), r.RemoteAddr, r.UserAgent())
			if err != nil {
				slog.Error("http request log failed", "error", err, "path", r.URL.Path)
			}
		})
	}
}
