package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rapidaai/streamasr/internal/audio/codec"
	"github.com/rapidaai/streamasr/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsHandler upgrades the request to a WebSocket and hands it to a
// session.Session. Credential verification happens AFTER the upgrade, not
// before: spec.md §4.2 step 1 requires a failed check to close with a real
// WebSocket AuthenticationFailed(4001) frame, not an HTTP status, mirroring
// main.rs's streaming_t, which always completes ws.on_upgrade and only then
// matches on the precomputed auth result to decide whether to
// close_with_reason(AuthenticationFailed) or proceed. Rate limiting still
// runs pre-upgrade: the request never needs a socket to be rejected there.
func wsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var authErr error
		if !deps.AuthSkip {
			token := session.ExtractCredential(c.Request)
			authErr = deps.Verifier.Verify(token)
		}

		if deps.Limiter != nil {
			ok, err := deps.Limiter.Allow(c.Request.Context(), clientKey(c.Request))
			if err != nil {
				deps.Logger.Warnw("rate limiter error, failing open", "error", err)
			} else if !ok {
				c.AbortWithStatus(http.StatusTooManyRequests)
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			if deps.Engine.Metrics() != nil {
				deps.Engine.Metrics().ConnectionErrors.Inc()
			}
			return
		}

		if authErr != nil {
			if deps.Engine.Metrics() != nil {
				deps.Engine.Metrics().AuthErrors.Inc()
			}
			deps.Logger.Warnw("websocket auth failed, closing with 4001", "error", authErr)
			session.RejectWithClose(conn, session.CloseAuthenticationFailed, "authentication failed")
			return
		}

		var decoder codec.Decoder
		if deps.DecoderFn != nil {
			d, err := deps.DecoderFn()
			if err != nil {
				deps.Logger.Warnw("construct opus decoder failed", "error", err)
			} else {
				decoder = d
			}
		}

		sess := session.New(deps.SessionCfg, conn, deps.Engine, decoder, deps.Logger)
		sess.Run(c.Request.Context())
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
