package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rapidaai/streamasr/pkg/logging"
)

// LogSink periodically dumps the batch's text/audio tokens to disk,
// grounded on the original implementation's Logger (batched_asr.rs), which
// writes a safetensors file on a fixed cadence tagged with the instance
// name and a timestamp. Go has no safetensors-writing library anywhere in
// the retrieved corpus, so this sink dumps the same tensors as plain
// newline-delimited JSON records instead; the side-car parameter file is
// unchanged in spirit (SPEC_FULL.md §C.5).
type LogSink struct {
	mu           sync.Mutex
	dir          string
	instanceName string
	everyN       uint64
	logger       logging.Logger
}

// dumpRecord is one line of the token dump: a single pipeline step's audio
// tokens and per-row LM step results.
type dumpRecord struct {
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
	Step      uint64    `json:"step"`
	Audio     []int64   `json:"audio_tokens"`
	Text      []int64   `json:"text_tokens"`
}

// NewLogSink constructs a sink that writes one record every everyStep
// pipeline ticks into dir/<instanceName>.jsonl, plus a one-time
// <instanceName>.params.json side-car describing the run. everyStep must be
// positive; callers gate sink construction on Config.LogFrequencySeconds
// being non-zero.
func NewLogSink(dir, instanceName string, everyStep uint64, cfg Config, logger logging.Logger) (*LogSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create log dir: %w", err)
	}
	sink := &LogSink{dir: dir, instanceName: instanceName, everyN: everyN(everyStep), logger: logger}

	params := map[string]any{
		"instance_name":       instanceName,
		"batch_width":         cfg.BatchWidth,
		"asr_delay_in_tokens": cfg.AsrDelayInTokens,
		"temperature":         cfg.Temperature,
		"started_at":          time.Now(),
	}
	paramsPath := filepath.Join(dir, instanceName+".params.json")
	f, err := os.Create(paramsPath)
	if err != nil {
		return nil, fmt.Errorf("engine: write params side-car: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(params); err != nil {
		return nil, fmt.Errorf("engine: encode params side-car: %w", err)
	}
	return sink, nil
}

func everyN(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	return n
}

// Record dumps one step's tokens if step is a multiple of the sink's
// cadence. Failures are logged, not returned, since a logging failure must
// never interrupt the pipeline (spec.md §4.7 is purely diagnostic).
func (s *LogSink) Record(step uint64, audioTokens []int64, results []StepResult) {
	if step%s.everyN != 0 {
		return
	}
	text := make([]int64, len(results))
	for i, r := range results {
		if r.TokenValid {
			text[i] = r.TextToken
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, s.instanceName+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		if s.logger != nil {
			s.logger.Warnf("log sink: open %s: %v", path, err)
		}
		return
	}
	defer f.Close()

	rec := dumpRecord{Instance: s.instanceName, Timestamp: time.Now(), Step: step, Audio: audioTokens, Text: text}
	if err := json.NewEncoder(f).Encode(rec); err != nil && s.logger != nil {
		s.logger.Warnf("log sink: encode record: %v", err)
	}
}
