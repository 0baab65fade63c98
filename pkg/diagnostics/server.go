package diagnostics

import (
	"net/http"

	"github.com/cuemby/meridian/pkg/metrics"
)

// Mux builds the standard diagnostics/metrics HTTP surface a node serves
// alongside its main listener: /metrics, /health, /ready, /live.
func Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", HealthHandler())
	mux.Handle("/ready", ReadyHandler())
	mux.Handle("/live", LivenessHandler())
	return mux
}
