package httpapi

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rapidaai/streamasr/internal/audio"
	"github.com/rapidaai/streamasr/internal/engine"
)

// transcribePollInterval and transcribeMaxRetries reproduce the original
// implementation's handle_query retry loop (batched_asr.rs): up to 1000
// attempts at 100ms apart, i.e. roughly 100 seconds of patience for a slot
// to free up before giving the caller a definitive 503 (SPEC_FULL.md §C.1).
const (
	transcribePollInterval = 100 * time.Millisecond
	transcribeMaxRetries   = 1000

	// transcribeTrailingSilenceSeconds pads the end of the request with
	// silence so the LM's fixed encode/decode delay has time to flush the
	// last real words out before the completion marker is reached.
	transcribeTrailingSilenceSeconds = 10

	// transcribeCompletionMarkerID is the marker id used to detect when
	// every word of the request has been transcribed and emitted.
	transcribeCompletionMarkerID = 0
)

// transcribeWord is one element of the JSON response body.
type transcribeWord struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
}

type transcribeResponse struct {
	RequestID string           `json:"request_id"`
	Words     []transcribeWord `json:"words"`
}

// transcribeHandler implements the non-streaming POST entry point: the
// request body is raw little-endian float32 PCM at audio.SampleRateHz,
// mono. It pushes the audio plus trailing silence and a completion marker
// into a freshly acquired slot, collects emitted words until the marker
// echoes back, and returns them as one JSON response (SPEC_FULL.md §C.1,
// recovered from the original implementation's handle_query).
func transcribeHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
			return
		}
		pcm, err := decodeFloat32LE(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		lease, err := acquireWithRetry(ctx, deps.Engine)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server at capacity"})
			return
		}
		defer deps.Engine.Release(lease)

		if err := pushTranscribeInput(ctx, lease, pcm); err != nil {
			c.JSON(http.StatusRequestTimeout, gin.H{"error": err.Error()})
			return
		}

		words, err := collectUntilMarker(ctx, lease, transcribeCompletionMarkerID)
		if err != nil {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, transcribeResponse{RequestID: requestID, Words: words})
	}
}

// acquireWithRetry polls the engine for a free slot, matching the original
// implementation's bounded retry-on-Busy behavior instead of failing the
// request on the first capacity rejection.
func acquireWithRetry(ctx context.Context, eng *engine.Engine) (engine.Lease, error) {
	for attempt := 0; attempt < transcribeMaxRetries; attempt++ {
		lease, err := eng.Acquire(256, 256)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, engine.ErrAtCapacity) {
			return engine.Lease{}, err
		}
		select {
		case <-ctx.Done():
			return engine.Lease{}, ctx.Err()
		case <-time.After(transcribePollInterval):
		}
	}
	return engine.Lease{}, engine.ErrAtCapacity
}

// pushTranscribeInput sends the request's PCM, trailing silence, and the
// completion marker onto the slot's input channel.
func pushTranscribeInput(ctx context.Context, lease engine.Lease, pcm []float32) error {
	if err := sendIn(ctx, lease, engine.InInit{}); err != nil {
		return err
	}
	if err := sendIn(ctx, lease, engine.InAudio{PCM: pcm}); err != nil {
		return err
	}
	silence := make([]float32, transcribeTrailingSilenceSeconds*audio.SampleRateHz)
	if err := sendIn(ctx, lease, engine.InAudio{PCM: silence}); err != nil {
		return err
	}
	return sendIn(ctx, lease, engine.InMarker{ID: transcribeCompletionMarkerID})
}

func sendIn(ctx context.Context, lease engine.Lease, msg engine.InMessage) error {
	select {
	case lease.InCh <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collectUntilMarker drains the slot's output channel into a word list
// until markerID echoes back or the channel closes.
func collectUntilMarker(ctx context.Context, lease engine.Lease, markerID int64) ([]transcribeWord, error) {
	var words []transcribeWord
	for {
		select {
		case out, ok := <-lease.OutCh:
			if !ok {
				return words, nil
			}
			switch m := out.(type) {
			case engine.OutWord:
				words = append(words, transcribeWord{Text: m.Text, StartTime: m.StartTime})
			case engine.OutMarker:
				if m.ID == markerID {
					return words, nil
				}
			}
		case <-ctx.Done():
			return words, ctx.Err()
		}
	}
}

func decodeFloat32LE(body []byte) ([]float32, error) {
	if len(body)%4 != 0 {
		return nil, errors.New("body length is not a multiple of 4 bytes")
	}
	out := make([]float32, len(body)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(body[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
