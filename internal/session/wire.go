package session

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rapidaai/streamasr/internal/engine"
)

// No MessagePack/self-describing binary codec exists anywhere in the
// retrieved example pack, so this wiring uses vmihailenco/msgpack/v5, a
// real ecosystem library, in place of the original implementation's
// rmp_serde — the same wire family (self-describing tagged binary
// messages), just a different binding (SPEC_FULL.md §B).

// wireFrame is the tagged-union-on-the-wire shape for both directions:
// "type" discriminates which engine.InMessage/OutMessage it carries, and
// every other field is optional depending on that tag (spec.md §6).
type wireFrame struct {
	Type string `msgpack:"type"`

	PCM   []float32 `msgpack:"pcm,omitempty"`
	Bytes []byte    `msgpack:"bytes,omitempty"`
	ID    int64     `msgpack:"id,omitempty"`

	Text        string    `msgpack:"text,omitempty"`
	StartTime   float64   `msgpack:"start_time,omitempty"`
	StopTime    float64   `msgpack:"stop_time,omitempty"`
	StepIdx     uint64    `msgpack:"step_idx,omitempty"`
	Probs       []float32 `msgpack:"prs,omitempty"`
	BufferedPCM int       `msgpack:"buffered_pcm,omitempty"`
	Message     string    `msgpack:"message,omitempty"`
}

func (f *wireFrame) marshal() ([]byte, error) {
	return msgpack.Marshal(f)
}

func (f *wireFrame) unmarshal(data []byte) error {
	return msgpack.Unmarshal(data, f)
}

// EncodeOut serializes an engine.OutMessage into a wire frame (spec.md §6
// Outbound table).
func EncodeOut(msg engine.OutMessage) ([]byte, error) {
	var f wireFrame
	switch m := msg.(type) {
	case engine.OutReady:
		f.Type = "Ready"
	case engine.OutWord:
		f.Type = "Word"
		f.Text = m.Text
		f.StartTime = m.StartTime
	case engine.OutEndWord:
		f.Type = "EndWord"
		f.StopTime = m.StopTime
	case engine.OutStep:
		f.Type = "Step"
		f.StepIdx = m.StepIdx
		f.Probs = m.Probs
		f.BufferedPCM = m.BufferedPCM
	case engine.OutMarker:
		f.Type = "Marker"
		f.ID = m.ID
	case engine.OutError:
		f.Type = "Error"
		f.Message = m.Message
	default:
		return nil, fmt.Errorf("session: unknown outbound message type %T", msg)
	}
	return f.marshal()
}

// DecodeIn parses a wire frame into an engine.InMessage (spec.md §6 Inbound
// table).
func DecodeIn(data []byte) (engine.InMessage, error) {
	var f wireFrame
	if err := f.unmarshal(data); err != nil {
		return nil, fmt.Errorf("session: decode frame: %w", err)
	}
	switch f.Type {
	case "Init":
		return engine.InInit{}, nil
	case "Audio":
		return engine.InAudio{PCM: f.PCM}, nil
	case "OggOpus":
		return engine.InOggOpus{Bytes: f.Bytes}, nil
	case "Marker":
		return engine.InMarker{ID: f.ID}, nil
	case "Ping":
		return engine.InPing{}, nil
	default:
		return nil, fmt.Errorf("session: unknown inbound message type %q", f.Type)
	}
}
