// Package inference provides the default bindings for the engine's model
// collaborators. Model weights and the text-generation/LM subsystem itself
// are named in spec.md §1 as external collaborators out of scope for this
// repository; NoopModel is not a real ASR model — it is a pass-through
// stand-in that satisfies engine.AudioTokenizer/LanguageModel/TextTokenizer
// well enough to exercise warmup, the pipeline's batching/masking/reset
// logic, and the HTTP/WS surfaces end to end without a GPU or model
// checkpoint present. A production deployment replaces this package with a
// real binding, not the engine core.
package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/rapidaai/streamasr/internal/engine"
)

// NoopModel implements engine.AudioTokenizer, engine.LanguageModel, and
// engine.TextTokenizer by treating the audio token for a row as a running
// per-row counter, and never emitting text tokens. It exists purely to give
// the rest of the system a concrete, always-available collaborator.
type NoopModel struct {
	mu      sync.Mutex
	counter map[int]int64
}

// NewNoopModel constructs a stand-in model collaborator.
func NewNoopModel() *NoopModel {
	return &NoopModel{counter: make(map[int]int64)}
}

func (m *NoopModel) EncodeStep(_ context.Context, pcm []float32, active []bool) ([]int64, error) {
	tokens := make([]int64, len(active))
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range active {
		if !a {
			continue
		}
		m.counter[i]++
		tokens[i] = m.counter[i]
	}
	return tokens, nil
}

func (m *NoopModel) Step(_ context.Context, audioTokens []int64, active []bool) ([]engine.StepResult, error) {
	results := make([]engine.StepResult, len(active))
	return results, nil
}

func (m *NoopModel) Reset(row int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter[row] = 0
}

func (m *NoopModel) Warmup(_ context.Context, width, steps int) error {
	if width <= 0 || steps <= 0 {
		return fmt.Errorf("inference: invalid warmup parameters width=%d steps=%d", width, steps)
	}
	return nil
}

func (m *NoopModel) Detokenize(_ int64) (string, error) {
	return "", nil
}
