package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "teamdraft"

// NewRegistry creates the registry for application metrics. Go runtime and process
// collectors stay on the default registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler serves the application registry merged with the default one, which carries the
// runtime collectors and package-level promauto metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{prometheus.DefaultGatherer, reg}, promhttp.HandlerOpts{})
}
