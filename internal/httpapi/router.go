// Package httpapi exposes the engine over HTTP: the WebSocket streaming
// upgrade, the non-streaming transcription POST endpoint (SPEC_FULL.md
// §C.1, recovered from the original implementation's handle_query), and a
// prometheus metrics exposition route. Grounded on the teacher repo's
// gin-gonic/gin + gin-contrib/cors usage.
package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rapidaai/streamasr/internal/audio/codec"
	"github.com/rapidaai/streamasr/internal/engine"
	"github.com/rapidaai/streamasr/internal/session"
	"github.com/rapidaai/streamasr/pkg/logging"
	"github.com/rapidaai/streamasr/pkg/ratelimit"
)

// Deps bundles everything the router's handlers need, constructed once in
// cmd/asr-server/main.go and threaded through.
type Deps struct {
	Engine       *engine.Engine
	SessionCfg   session.Config
	Verifier     session.Verifier
	Limiter      ratelimit.Limiter
	DecoderFn    func() (codec.Decoder, error)
	Registry     *prometheus.Registry
	Logger       logging.Logger
	AuthSkip     bool
}

// NewRouter builds the gin engine with CORS, the WebSocket upgrade route,
// the transcription POST route, and /metrics mounted.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/v1/asr/stream", wsHandler(deps))
	r.POST("/v1/asr/transcribe", transcribeHandler(deps))
	r.GET("/metrics", metricsHandler(deps))
	r.GET("/healthz", func(c *gin.Context) { c.Status(200) })

	return r
}
