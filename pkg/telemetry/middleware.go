package telemetry

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stewones/borda-sub001/pkg/logger"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borda_http_requests_total",
		Help: "Cumulative number of HTTP requests served.",
	}, []string{"method", "status"})
	HTTPRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "borda_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	})
)

// slowRequestThreshold is the latency above which a request is logged.
const slowRequestThreshold = time.Second

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// Middleware wraps the handler and records request count and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		dur := time.Since(start)

		HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(srw.status)).Inc()
		HTTPRequestDuration.Observe(dur.Seconds())
		if dur > slowRequestThreshold {
			logger.Warn("slow_request", "method", r.Method, "path", r.URL.Path, "status", srw.status, "duration_ms", dur.Milliseconds())
		}
	})
}
