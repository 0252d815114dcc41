package engine

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rapidaai/streamasr/pkg/logging"
)

// Engine is the top-level batched ASR core: a fixed-capacity slot
// scheduler, a shared marker queue, and the pre-process/encode/post-process
// pipeline, all bound to one set of model collaborators. It is the Go
// counterpart of the original implementation's BatchedAsr (batched_asr.rs),
// exposing the same acquire/release and capacity surface that the session
// and HTTP layers drive.
type Engine struct {
	cfg       Config
	scheduler *Scheduler
	markers   *MarkerQueue
	pipeline  *Pipeline
	metrics   *Metrics
	lm        LanguageModel
	logger    logging.Logger
}

// New constructs an Engine. reg receives the engine's prometheus series;
// logSink may be nil to disable the periodic token dump.
func New(cfg Config, audioTok AudioTokenizer, lm LanguageModel, textTok TextTokenizer, reg prometheus.Registerer, logSink *LogSink, logger logging.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics := NewMetrics(reg)
	markers := NewMarkerQueue()
	scheduler := NewScheduler(cfg.BatchWidth, markers)
	pipeline := NewPipeline(cfg, scheduler, markers, audioTok, lm, textTok, metrics, logSink, logger)

	return &Engine{
		cfg:       cfg,
		scheduler: scheduler,
		markers:   markers,
		pipeline:  pipeline,
		metrics:   metrics,
		lm:        lm,
		logger:    logger,
	}, nil
}

// Run starts the pipeline and blocks until ctx is cancelled or a stage
// collaborator reports a fatal error. Intended to run in its own goroutine
// for the lifetime of the process.
func (e *Engine) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		e.pipeline.Run(ctx, errCh)
		close(done)
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("engine: pipeline stage error: %w", err)
	case <-done:
		return ctx.Err()
	}
}

// Capacity returns the fixed batch width B.
func (e *Engine) Capacity() int { return e.scheduler.Capacity() }

// UsedSlots returns how many slots are currently occupied.
func (e *Engine) UsedSlots() int { return e.scheduler.UsedSlots() }

// Acquire admits a new connection, returning ErrAtCapacity if every slot is
// occupied (spec.md §4.1, §4.2 "ServerAtCapacity"). inSize/outSize size the
// new occupant's message channels.
func (e *Engine) Acquire(inSize, outSize int) (Lease, error) {
	lease, err := e.scheduler.Acquire(inSize, outSize)
	if err == nil && e.metrics != nil {
		e.metrics.Connects.Inc()
		e.metrics.OpenChannels.Set(float64(e.scheduler.UsedSlots()))
	}
	return lease, err
}

// Release tears a lease down and returns its slot to the free list.
func (e *Engine) Release(lease Lease) {
	if e.metrics != nil {
		steps := lease.Slot.outputStepsEmittedFor(lease.StreamID)
		e.metrics.ConnNumSteps.Observe(float64(steps))
	}
	e.scheduler.Release(lease.Slot.Index, lease.StreamID)
	if e.metrics != nil {
		e.metrics.OpenChannels.Set(float64(e.scheduler.UsedSlots()))
	}
}

// Warmup runs warmupSteps identity steps before traffic is admitted
// (spec.md §4.8). Non-fatal on failure.
func (e *Engine) Warmup(ctx context.Context) {
	Warmup(ctx, e.cfg.BatchWidth, e.lm, e.metrics, e.logger)
}

// Metrics exposes the engine's prometheus series for the HTTP layer to
// register an exposition handler against, and for tests to assert on.
func (e *Engine) Metrics() *Metrics { return e.metrics }
