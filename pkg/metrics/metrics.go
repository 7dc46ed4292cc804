package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amoylab/tokenbridge/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Token issue outcomes
const (
	OutcomeMinted   = "minted"
	OutcomeReused   = "reused"
	OutcomeRotated  = "rotated"
	OutcomeRelinked = "relinked"
	OutcomeGrace    = "grace"
)

// Metrics is safe to use as a nil pointer, every recorder is then a no-op
type Metrics struct {
	registry    *prometheus.Registry
	namespace   string
	httpReqCnt  *prometheus.CounterVec
	httpDur     *prometheus.HistogramVec
	httpInfl    *prometheus.GaugeVec
	tokenCnt    *prometheus.CounterVec
	grantErrCnt *prometheus.CounterVec
	reuseCnt    prometheus.Counter
	socialCnt   *prometheus.CounterVec
	socialDur   *prometheus.HistogramVec
	socialInfl  *prometheus.GaugeVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	tokenCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "tokens_issued_total"}, []string{"grant_type", "outcome"})
	grantErrCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "grant_errors_total"}, []string{"grant_type", "error"})
	reuseCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "refresh_token_reuse_detected_total"})
	r.MustRegister(tokenCnt, grantErrCnt, reuseCnt)

	socialCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "social_auth_total"}, []string{"backend", "status"})
	socialDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "social_auth_duration_seconds", Buckets: cfg.Buckets}, []string{"backend", "status"})
	socialInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "social_auth_inflight"}, []string{"backend"})
	r.MustRegister(socialCnt, socialDur, socialInfl)

	return &Metrics{
		registry:    r,
		namespace:   ns,
		httpReqCnt:  httpReqCnt,
		httpDur:     httpDur,
		httpInfl:    httpInfl,
		tokenCnt:    tokenCnt,
		grantErrCnt: grantErrCnt,
		reuseCnt:    reuseCnt,
		socialCnt:   socialCnt,
		socialDur:   socialDur,
		socialInfl:  socialInfl,
	}
}

func (m *Metrics) TokenIssued(grantType, outcome string) {
	if m == nil {
		return
	}
	m.tokenCnt.WithLabelValues(grantType, outcome).Inc()
}

func (m *Metrics) GrantFailed(grantType, errorType string) {
	if m == nil {
		return
	}
	m.grantErrCnt.WithLabelValues(grantType, errorType).Inc()
}

func (m *Metrics) ReuseDetected() {
	if m == nil {
		return
	}
	m.reuseCnt.Inc()
}

func (m *Metrics) SocialAuthStart(backend string) {
	if m == nil {
		return
	}
	m.socialInfl.WithLabelValues(backend).Inc()
}

func (m *Metrics) SocialAuthDone(backend string, since time.Time, status string) {
	if m == nil {
		return
	}
	m.socialCnt.WithLabelValues(backend, status).Inc()
	m.socialDur.WithLabelValues(backend, status).Observe(time.Since(since).Seconds())
	m.socialInfl.WithLabelValues(backend).Dec()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = routeFromURL(c.Request.URL.Path)
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := httpStatus(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// routeFromURL labels requests that matched no route, trailing slash redirects included
func routeFromURL(path string) string {
	if strings.HasSuffix(path, "/") {
		return "redirect"
	}
	return "unmatched"
}

func httpStatus(code int) string { return strconv.Itoa(code) }
