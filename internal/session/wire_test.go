package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/streamasr/internal/engine"
)

func TestDecodeInRoundTripsEveryVariant(t *testing.T) {
	cases := []struct {
		name string
		in   engine.InMessage
	}{
		{"Init", engine.InInit{}},
		{"Audio", engine.InAudio{PCM: []float32{0.1, -0.2, 0.3}}},
		{"OggOpus", engine.InOggOpus{Bytes: []byte{1, 2, 3}}},
		{"Marker", engine.InMarker{ID: 42}},
		{"Ping", engine.InPing{}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var frame wireFrame
			frame.Type = c.name
			switch m := c.in.(type) {
			case engine.InAudio:
				frame.PCM = m.PCM
			case engine.InOggOpus:
				frame.Bytes = m.Bytes
			case engine.InMarker:
				frame.ID = m.ID
			}
			data, err := frame.marshal()
			require.NoError(t, err)

			got, err := DecodeIn(data)
			require.NoError(t, err)
			assert.Equal(t, c.in, got)
		})
	}
}

func TestEncodeOutRoundTripsEveryVariant(t *testing.T) {
	cases := []struct {
		msg  engine.OutMessage
		want wireFrame
	}{
		{engine.OutReady{}, wireFrame{Type: "Ready"}},
		{engine.OutWord{Text: "hello", StartTime: 1.5}, wireFrame{Type: "Word", Text: "hello", StartTime: 1.5}},
		{engine.OutEndWord{StopTime: 2.5}, wireFrame{Type: "EndWord", StopTime: 2.5}},
		{engine.OutStep{StepIdx: 3, Probs: []float32{0.1, 0.2}, BufferedPCM: 10}, wireFrame{Type: "Step", StepIdx: 3, Probs: []float32{0.1, 0.2}, BufferedPCM: 10}},
		{engine.OutMarker{ID: 7}, wireFrame{Type: "Marker", ID: 7}},
		{engine.OutError{Message: "boom"}, wireFrame{Type: "Error", Message: "boom"}},
	}

	for _, c := range cases {
		data, err := EncodeOut(c.msg)
		require.NoError(t, err)

		var f wireFrame
		require.NoError(t, f.unmarshal(data))
		assert.Equal(t, c.want, f)
	}
}

func TestDecodeInRejectsUnknownType(t *testing.T) {
	f := wireFrame{Type: "Bogus"}
	data, err := f.marshal()
	require.NoError(t, err)

	_, err = DecodeIn(data)
	assert.Error(t, err)
}
