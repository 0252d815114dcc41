package engine

import "context"

// AudioTokenizer is the external collaborator that turns a batch of PCM
// frames into audio tokens ("model weights... are out of scope" per
// spec.md §1 — this interface is the seam the engine core depends on
// instead of a concrete model). Implementations own whatever device state
// (GPU buffers, KV-cache) a real model needs; the engine only ever calls
// EncodeStep, once per tick, across the whole active batch at once.
type AudioTokenizer interface {
	// EncodeStep consumes one frame per active row of pcm (slot-major,
	// length Width*audio.FrameSamples) gated by active, and returns one
	// audio token per row. Rows where active[i] is false still occupy a
	// slot in the batch tensor (per the universal mask-false-zero-row
	// invariant) but their returned token is ignored by the caller.
	EncodeStep(ctx context.Context, pcm []float32, active []bool) ([]int64, error)
}

// LanguageModel is the external collaborator that steps the streaming LM
// forward by one audio token per active row and returns, for each row, the
// emission decision for this step (spec.md §4.5 "LM/Post-process Stage").
// Like AudioTokenizer, this is a seam: the real model and its weights are
// explicitly out of scope (spec.md §1).
type LanguageModel interface {
	// Step advances every active row's per-slot KV-cache context by one
	// audio token and returns a StepResult per row. Rows where active[i]
	// is false must still be passed through (as a padding token) so batch
	// shape stays fixed, but their StepResult is discarded by the caller.
	Step(ctx context.Context, audioTokens []int64, active []bool) ([]StepResult, error)

	// Reset clears any per-slot context the model keeps for row i, called
	// by the pipeline immediately before a freshly bound occupant's first
	// step so no state leaks across a slot reuse.
	Reset(row int)

	// Warmup runs a fixed number of identity steps over a zero-filled
	// batch to trigger lazy kernel compilation ahead of first real traffic
	// (spec.md §4.8 "Warmup & Health").
	Warmup(ctx context.Context, width, steps int) error
}

// StepResult is one row's LM output for a single step: whether a text token
// was emitted (and which), the word/end-word boundary signals the
// post-process stage turns into OutWord/OutEndWord events, and the
// per-step emission probabilities surfaced in OutStep for diagnostics.
type StepResult struct {
	TextToken    int64
	TokenValid   bool
	WordBoundary bool
	EndOfWord    bool
	Probs        []float32
}

// TextTokenizer detokenizes LM text tokens into the word strings delivered
// to clients (spec.md §4.5). Out of scope as a concrete implementation per
// spec.md §1; the engine depends only on this interface.
type TextTokenizer interface {
	Detokenize(token int64) (string, error)
}
