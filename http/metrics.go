package httpx

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route outcomes recorded in spaserver_http_requests_total.
const (
	RouteStatic    = "static"
	RouteIndex     = "index"
	RouteRedirect  = "redirect"
	RouteForbidden = "forbidden"
	RouteNotFound  = "not_found"
	RouteError     = "error"
)

type Metrics struct {
	gatherer prometheus.Gatherer
	requests *prometheus.CounterVec
}

// NewMetrics registers the request counters on reg. When reg is also a
// prometheus.Gatherer, Handler exposes it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spaserver_http_requests_total",
			Help: "HTTP requests served, by the route that answered them.",
		}, []string{"route"}),
	}
	reg.MustRegister(m.requests)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *Metrics) observe(route string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	g := prometheus.DefaultGatherer
	if m.gatherer != nil {
		g = m.gatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}
