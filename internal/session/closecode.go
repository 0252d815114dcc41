// Package session implements the Session Endpoint (spec.md §4.2): socket
// framing and admission, cascaded inactivity/lifetime timeouts, the
// msgpack-based wire protocol, and the close-code vocabulary clients use to
// distinguish retryable from terminal disconnects. It is grounded on
// _examples/original_source/server/rust/moshi/moshi-server/src/asr.rs's
// handle_socket (recv_loop/send_loop structure) and on the teacher repo's
// channel streamer lifecycle (internal/channel/webrtc/streamer.go).
package session

// CloseCode is a WebSocket close code as defined by spec.md §4.2. The
// original source's protocol.rs only carried a stub at retrieval time, so
// the numeric values below are taken directly from the specification's
// close-code table rather than translated from Rust source.
type CloseCode int

const (
	CloseNormal               CloseCode = 1000
	CloseServerAtCapacity     CloseCode = 4000
	CloseAuthenticationFailed CloseCode = 4001
	CloseSessionTimeout       CloseCode = 4002
	CloseInvalidMessage       CloseCode = 4003
	CloseRateLimited          CloseCode = 4004
	CloseResourceUnavailable  CloseCode = 4005
	CloseClientTimeout        CloseCode = 4006

	// CloseTryAgainLater and CloseServiceRestart are standard WebSocket
	// codes (IANA-registered, outside the 4000-4999 private-use range the
	// codes above sit in) that also appear in the retryable set.
	CloseTryAgainLater  CloseCode = 1013
	CloseServiceRestart CloseCode = 1012
)

// retryableCodes is the set of close codes that tell a well-behaved client
// it may reconnect and expect to succeed, as opposed to a terminal
// rejection like AuthenticationFailed or InvalidMessage.
var retryableCodes = map[CloseCode]bool{
	CloseServerAtCapacity:    true,
	CloseRateLimited:         true,
	CloseResourceUnavailable: true,
	CloseClientTimeout:       true,
	CloseServiceRestart:      true,
	CloseTryAgainLater:       true,
}

// Retryable reports whether a client disconnected with this code should
// back off and retry rather than treat the close as terminal (spec.md §4.2
// "retryable set").
func (c CloseCode) Retryable() bool { return retryableCodes[c] }

// String gives a short machine-stable name, used as the prometheus label
// value in engine.Metrics.RecordWSClose and in log lines.
func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal"
	case CloseServerAtCapacity:
		return "server_at_capacity"
	case CloseAuthenticationFailed:
		return "authentication_failed"
	case CloseSessionTimeout:
		return "session_timeout"
	case CloseInvalidMessage:
		return "invalid_message"
	case CloseRateLimited:
		return "rate_limited"
	case CloseResourceUnavailable:
		return "resource_unavailable"
	case CloseClientTimeout:
		return "client_timeout"
	case CloseTryAgainLater:
		return "try_again_later"
	case CloseServiceRestart:
		return "service_restart"
	default:
		return "unknown"
	}
}
