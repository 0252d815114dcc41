// Package codec provides the default binding to the external audio codec
// collaborator named in spec.md §1 ("the actual... audio codec library" is
// out of scope for the engine core; this package is where a concrete one is
// plugged in). The session endpoint decodes inbound OggOpus payloads to PCM
// through the Decoder interface before handing them to the engine as Audio
// messages, exactly as spec.md §4.2 and §6 describe.
package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// Decoder turns a single OggOpus-framed payload into mono float32 PCM at
// audio.SampleRateHz. Implementations are not required to be safe for
// concurrent use by more than one goroutine; the session endpoint owns one
// decoder per connection.
type Decoder interface {
	Decode(oggOpus []byte) ([]float32, error)
}

// opusStreamDecoder decodes a sequence of Opus packets extracted from an Ogg
// container into PCM, maintaining decoder state (e.g. packet-loss
// concealment) across calls for a single stream.
type opusStreamDecoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
	frameSize  int
	demux      *oggDemuxer
}

// NewOpusDecoder constructs a decoder bound to a single session's Ogg/Opus
// stream. frameSize is the maximum number of samples decoded per packet
// (20ms at 24kHz is typical for the streams this engine accepts).
func NewOpusDecoder(sampleRate, frameSize int) (Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("codec: create opus decoder: %w", err)
	}
	return &opusStreamDecoder{
		dec:        dec,
		sampleRate: sampleRate,
		channels:   1,
		frameSize:  frameSize,
		demux:      newOggDemuxer(),
	}, nil
}

// Decode appends oggOpus bytes to the stream demuxer and decodes every
// complete Opus packet it yields, returning the concatenated PCM. A payload
// spanning fewer than one page is buffered internally and contributes no
// samples until the page completes.
func (d *opusStreamDecoder) Decode(oggOpus []byte) ([]float32, error) {
	packets, err := d.demux.Feed(oggOpus)
	if err != nil {
		return nil, fmt.Errorf("codec: demux ogg: %w", err)
	}

	out := make([]float32, 0, len(packets)*d.frameSize)
	pcm := make([]float32, d.frameSize)
	for _, pkt := range packets {
		n, err := d.dec.DecodeFloat32(pkt, pcm)
		if err != nil {
			return nil, fmt.Errorf("codec: decode opus packet: %w", err)
		}
		out = append(out, pcm[:n]...)
	}
	return out, nil
}
