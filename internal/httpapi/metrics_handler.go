package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler exposes the engine's registry in the standard prometheus
// text exposition format.
func metricsHandler(deps Deps) gin.HandlerFunc {
	h := promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
