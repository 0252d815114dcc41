// Package engine implements the batched streaming ASR core: the fixed-
// capacity slot scheduler, the three-stage pre-process/encode/post-process
// pipeline, and the marker engine described in spec.md §3-§4. It is grounded
// on _examples/original_source/server/rust/moshi/moshi-server/src/
// {asr.rs,batched_asr.rs}, the Rust implementation this spec was distilled
// from, translated into Go's goroutine/channel idiom in the style of the
// teacher repo's channel streamers (internal/channel/webrtc/streamer.go).
package engine

// InMessage is any message a client may send inbound on its slot. These
// mirror the Rust InMsg enum one for one (asr.rs) and spec.md §6's Inbound
// table.
type InMessage interface{ isInMessage() }

// InInit requests a fresh Ready after admission (spec.md §6 "Init").
type InInit struct{}

// InAudio carries raw 24kHz mono float32 PCM, appended to the slot's
// residue buffer regardless of length.
type InAudio struct{ PCM []float32 }

// InOggOpus carries an OggOpus-encoded chunk; the session endpoint decodes
// it to PCM before it ever reaches the pipeline (spec.md §4.2), so this
// variant should not normally appear inside the engine; it is retained in
// the message set for symmetry with the wire protocol, and the pipeline
// answers one that does arrive with an OutError.
type InOggOpus struct{ Bytes []byte }

// InMarker injects an ordered sentinel (spec.md §3 "Marker").
type InMarker struct{ ID int64 }

// InPing is a keepalive with no engine-visible effect.
type InPing struct{}

func (InInit) isInMessage()    {}
func (InAudio) isInMessage()   {}
func (InOggOpus) isInMessage() {}
func (InMarker) isInMessage()  {}
func (InPing) isInMessage()    {}

// OutMessage is any message the engine emits on a slot's output queue
// (spec.md §3 "Text event", §6 Outbound table).
type OutMessage interface{ isOutMessage() }

// OutReady acknowledges that a slot is bound and the pipeline has seen Init.
type OutReady struct{}

// OutWord carries one recognized word and the PCM-relative time its audio
// began.
type OutWord struct {
	Text      string
	StartTime float64
}

// OutEndWord marks the time the previous word's audio ended.
type OutEndWord struct {
	StopTime float64
}

// OutStep carries per-tick diagnostic state: the pipeline step index, the
// LM's emission probabilities for this slot, and how much PCM is still
// buffered in residue.
type OutStep struct {
	StepIdx      uint64
	Probs        []float32
	BufferedPCM  int
}

// OutMarker echoes a drained marker back to its owning slot.
type OutMarker struct{ ID int64 }

// OutError is a client-visible engine error, normally followed by a close
// frame at the session layer.
type OutError struct{ Message string }

func (OutReady) isOutMessage()   {}
func (OutWord) isOutMessage()    {}
func (OutEndWord) isOutMessage() {}
func (OutStep) isOutMessage()    {}
func (OutMarker) isOutMessage()  {}
func (OutError) isOutMessage()   {}

// ShutdownFlushMarkerID is the reserved sentinel id the session endpoint
// injects on graceful client close to drive the residue buffer through the
// encoder and LM before tearing the slot down (spec.md §4.2, §9 Open
// Questions). Chosen as minimum signed 64-bit integer plus one so it can
// never be produced by a client incrementing or decrementing a legal id.
const ShutdownFlushMarkerID int64 = -9223372036854775807 // math.MinInt64 + 1
