package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/dipscan/pkg/metrics"
)

// MetricsMiddleware records request count, latency and error class per endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(time.Since(start).Milliseconds()))
		if class, failed := errorClass(rec.status); failed {
			metrics.RecordErrorByComponent("http", class)
		}
	}
}

// errorClass names the failure behind an error status.
func errorClass(status int) (string, bool) {
	switch {
	case status < http.StatusBadRequest:
		return "", false
	case status >= http.StatusInternalServerError:
		return "server_error", true
	case status == http.StatusConflict:
		return "busy", true
	case status == http.StatusPreconditionFailed:
		return "precondition", true
	case status == http.StatusUnprocessableEntity:
		return "schema", true
	case status == http.StatusNotFound:
		return "not_found", true
	default:
		return "client_error", true
	}
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
