package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/streamasr/internal/audio/codec"
	"github.com/rapidaai/streamasr/internal/engine"
	"github.com/rapidaai/streamasr/pkg/logging"
)

// Config holds the Session Endpoint's timing and buffering knobs (spec.md
// §4.2). The cascaded short/long timeout pairing and the 10s send-loop
// ping interval are taken directly from the original implementation's
// handle_socket (asr.rs): a short per-message inactivity timeout prevents a
// connection that stops sending from holding a slot forever, while the long
// timeout bounds total session lifetime regardless of activity.
type Config struct {
	ShortInactivityTimeout time.Duration
	LongSessionTimeout     time.Duration
	SendPingInterval       time.Duration
	InputChannelSize       int
	OutputChannelSize      int
}

// DefaultConfig returns the values spec.md §4.2 names: 30s inactivity, 120s
// session lifetime, 10s send-loop ping.
func DefaultConfig() Config {
	return Config{
		ShortInactivityTimeout: 30 * time.Second,
		LongSessionTimeout:     120 * time.Second,
		SendPingInterval:       10 * time.Second,
		InputChannelSize:       256,
		OutputChannelSize:      256,
	}
}

// Conn is the subset of *websocket.Conn the session endpoint drives,
// narrowed for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Session drives one admitted connection end to end: decoding inbound
// frames onto the engine's per-slot input channel, and encoding engine
// output back onto the socket, until either side closes or a timeout fires.
// Grounded on asr.rs's handle_socket recv_loop/send_loop pair, translated
// from tokio::select!-driven tasks into two goroutines synchronized by the
// lease's channels and a done channel.
type Session struct {
	cfg     Config
	conn    Conn
	eng     *engine.Engine
	decoder codec.Decoder
	logger  logging.Logger
}

// New builds a session bound to an already-upgraded connection. decoder may
// be nil if the client is only expected to send raw Audio frames (no
// OggOpus).
func New(cfg Config, conn Conn, eng *engine.Engine, decoder codec.Decoder, logger logging.Logger) *Session {
	return &Session{cfg: cfg, conn: conn, eng: eng, decoder: decoder, logger: logger}
}

// Run admits the connection, drives it until completion, and returns the
// close code that was sent on the socket.
func (s *Session) Run(ctx context.Context) CloseCode {
	lease, err := s.eng.Acquire(s.cfg.InputChannelSize, s.cfg.OutputChannelSize)
	if err != nil {
		s.sendError("server at capacity - no free channels available")
		s.closeWithReason(CloseServerAtCapacity, "server at capacity")
		return CloseServerAtCapacity
	}
	defer s.eng.Release(lease)

	// Forward an Init to the pipeline so the client always receives a Ready
	// echo on bind, even if it never sends its own Init message (spec.md
	// §4.2 admission step 3).
	select {
	case lease.InCh <- engine.InInit{}:
	case <-ctx.Done():
	}

	sessionCtx, cancel := context.WithTimeout(ctx, s.cfg.LongSessionTimeout)
	defer cancel()

	recvDone := make(chan CloseCode, 1)
	sendDone := make(chan struct{})

	go func() { recvDone <- s.recvLoop(sessionCtx, lease) }()
	go func() { s.sendLoop(sessionCtx, lease); close(sendDone) }()

	var code CloseCode
	select {
	case code = <-recvDone:
	case <-sessionCtx.Done():
		if errors.Is(sessionCtx.Err(), context.DeadlineExceeded) {
			code = CloseSessionTimeout
		} else {
			// The parent context was cancelled for a reason other than this
			// session's own deadline — a server-initiated shutdown (spec.md
			// §4.2 "retryable set" includes 1012 for exactly this case,
			// since the client should reconnect elsewhere).
			code = CloseServiceRestart
		}
	}
	cancel()
	<-sendDone

	s.closeWithReason(code, code.String())
	if s.eng.Metrics() != nil {
		s.eng.Metrics().RecordWSClose(fmt.Sprintf("%d", code))
	}
	return code
}

// recvLoop reads inbound frames and forwards them onto the slot's input
// channel, applying the cascaded timeout: every successful read resets the
// short inactivity deadline, but the outer sessionCtx (bounded by
// LongSessionTimeout) caps total lifetime regardless of activity.
func (s *Session) recvLoop(ctx context.Context, lease engine.Lease) CloseCode {
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ShortInactivityTimeout))
		msgType, data, err := s.conn.ReadMessage()
		if err == nil && s.eng.Metrics() != nil {
			s.eng.Metrics().RecordStreamIn(len(data))
		}
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.flushAndWait(ctx, lease)
				return CloseNormal
			}
			// Any other read failure — inactivity deadline exceeded, abrupt
			// disconnect, reset connection — is treated as the client having
			// gone silent, which is retryable (spec.md §4.2 "ClientTimeout").
			return CloseClientTimeout
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		in, err := DecodeIn(data)
		if err != nil {
			// Unrecognized or malformed messages are skipped with a warning;
			// they never tear down the session (spec.md §4.2, §7).
			s.logger.Warnw("invalid inbound frame, skipping", "error", err)
			continue
		}

		if og, ok := in.(engine.InOggOpus); ok {
			if s.decoder == nil {
				s.logger.Warnw("ogg/opus frame received with no decoder configured, skipping")
				continue
			}
			pcm, err := s.decoder.Decode(og.Bytes)
			if err != nil {
				s.logger.Warnw("opus decode failed, skipping", "error", err)
				continue
			}
			in = engine.InAudio{PCM: pcm}
		}

		select {
		case lease.InCh <- in:
		case <-ctx.Done():
			return CloseNormal
		}
	}
}

// flushAndWait is the shutdown-flush path (spec.md §9 Open Questions): on a
// graceful client close, a reserved marker is injected so the pipeline
// drains the slot's residue buffer through the encoder and LM before the
// slot is released, instead of dropping buffered audio on the floor.
func (s *Session) flushAndWait(ctx context.Context, lease engine.Lease) {
	select {
	case lease.InCh <- engine.InMarker{ID: engine.ShutdownFlushMarkerID}:
	case <-ctx.Done():
		return
	case <-time.After(time.Second):
		return
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case out, ok := <-lease.OutCh:
			if !ok {
				return
			}
			if m, ok := out.(engine.OutMarker); ok && m.ID == engine.ShutdownFlushMarkerID {
				return
			}
		case <-ctx.Done():
			return
		case <-deadline:
			return
		}
	}
}

// sendLoop relays engine output to the socket, substituting a ping when
// nothing has been produced within SendPingInterval so that a silent but
// healthy connection is not mistaken for a dead one by intermediaries
// (spec.md §4.2).
func (s *Session) sendLoop(ctx context.Context, lease engine.Lease) {
	ticker := time.NewTicker(s.cfg.SendPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-lease.OutCh:
			if !ok {
				return
			}
			data, err := EncodeOut(out)
			if err != nil {
				s.logger.Warnw("encode outbound frame failed", "error", err)
				continue
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
			if s.eng.Metrics() != nil {
				s.eng.Metrics().RecordStreamOut(len(data))
			}
			ticker.Reset(s.cfg.SendPingInterval)
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// sendError writes a binary-encoded OutError frame directly to the socket,
// used for rejections that happen before (or without) a bound slot, where
// there's no lease.OutCh for the send loop to relay through.
func (s *Session) sendError(message string) {
	data, err := EncodeOut(engine.OutError{Message: message})
	if err != nil {
		if s.logger != nil {
			s.logger.Warnw("encode error frame failed", "error", err)
		}
		return
	}
	_ = s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *Session) closeWithReason(code CloseCode, reason string) {
	msg := websocket.FormatCloseMessage(int(code), reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = s.conn.Close()
}

// RejectWithClose closes an already-upgraded connection with code/reason
// without ever constructing a Session, for admission failures that must be
// expressed as a WebSocket close frame rather than an HTTP status — notably
// AuthenticationFailed(4001), which spec.md §4.2 step 1 requires as "an
// early auth-phase close", matching the original's streaming_t handler
// (main.rs), which always completes the upgrade and closes with 4001 from
// inside the on_upgrade callback rather than rejecting the HTTP request.
func RejectWithClose(conn Conn, code CloseCode, reason string) {
	msg := websocket.FormatCloseMessage(int(code), reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
