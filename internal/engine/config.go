package engine

import "fmt"

// Config mirrors the Rust AsrConfig (main.rs) that configures one batched
// engine instance: model selection is left to the caller (it constructs the
// AudioTokenizer/LanguageModel/TextTokenizer collaborators and passes them
// in), but the numeric/behavioral knobs below are the engine's own.
type Config struct {
	// BatchWidth is B, the fixed number of concurrent slots.
	BatchWidth int

	// AsrDelayInTokens is the fixed number of LM steps between a frame of
	// audio entering the encoder and its corresponding text becoming
	// available, used by the marker engine to compute target steps
	// (spec.md §3 "Per-slot position").
	AsrDelayInTokens uint64

	// ConditioningDelay and ConditioningLearntPadding select the
	// conditioning mode. They are mutually exclusive with each other:
	// exactly one of HasConditioningDelay and ConditioningLearntPadding
	// must be true (enforced by Validate, mirroring main.rs's AsrConfig
	// invariants). AsrDelayInTokens is independent of both.
	ConditioningDelay         float64
	ConditioningLearntPadding bool
	HasConditioningDelay      bool

	// Temperature controls LM sampling; zero means greedy decoding.
	Temperature float64

	// LogFrequencySeconds, if non-zero, enables the periodic token-dump
	// sink (spec.md §4.7). Zero disables it.
	LogFrequencySeconds float64

	// PreProcessChannelSize/PostProcessChannelSize size the bounded
	// hand-off channels between pipeline stages (spec.md §4.3-§4.5);
	// grounded on the Rust implementation's sync_channel(100).
	PreProcessChannelSize  int
	PostProcessChannelSize int
}

// DefaultConfig returns the knob values used throughout spec.md's examples:
// 100-slot bounded hand-off channels and a zero explicit conditioning delay
// (the plain, no-learnt-padding conditioning mode).
func DefaultConfig(batchWidth int, asrDelayInTokens uint64) Config {
	return Config{
		BatchWidth:             batchWidth,
		AsrDelayInTokens:       asrDelayInTokens,
		HasConditioningDelay:   true,
		PreProcessChannelSize:  100,
		PostProcessChannelSize: 100,
	}
}

// Validate checks the invariants spec.md and the original implementation's
// AsrConfig both enforce: batch width must be positive, and exactly one of
// ConditioningDelay/ConditioningLearntPadding must be set — mirroring
// main.rs's (Some(delay), false) / (None, true) as the only valid
// combinations, rejecting both (Some(_), true) and (None, false).
func (c Config) Validate() error {
	if c.BatchWidth <= 0 {
		return fmt.Errorf("engine: batch width must be positive, got %d", c.BatchWidth)
	}
	if c.HasConditioningDelay == c.ConditioningLearntPadding {
		return fmt.Errorf("engine: exactly one of conditioning_delay or conditioning_learnt_padding must be set")
	}
	if c.PreProcessChannelSize <= 0 || c.PostProcessChannelSize <= 0 {
		return fmt.Errorf("engine: pipeline channel sizes must be positive")
	}
	return nil
}
