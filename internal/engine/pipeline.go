package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rapidaai/streamasr/internal/audio"
	"github.com/rapidaai/streamasr/pkg/logging"
)

// preProcessOutput is what the pre-process stage hands to the encode stage:
// one tick's batch frame plus the per-row bookkeeping the later stages need
// to address their output back to the right occupant (spec.md §4.3-§4.5).
type preProcessOutput struct {
	step     uint64
	batch    *audio.BatchFrame
	streamID []StreamID // indexed by slot/row
}

// encodeOutput adds the encoder's audio tokens to a preProcessOutput,
// unchanged otherwise, ready for the LM/post-process stage.
type encodeOutput struct {
	preProcessOutput
	audioTokens []int64
}

// Pipeline is the three-stage pre-process/encode/post-process engine core
// (spec.md §4.3-§4.6), grounded on batched_asr.rs's encoder_loop /
// model_loop / post_process_loop connected by std::sync::mpsc::sync_channel,
// translated into three goroutines connected by bounded Go channels.
type Pipeline struct {
	cfg       Config
	scheduler *Scheduler
	markers   *MarkerQueue
	audioTok  AudioTokenizer
	lm        LanguageModel
	textTok   TextTokenizer
	metrics   *Metrics
	logSink   *LogSink
	logger    logging.Logger

	preCh chan preProcessOutput
	encCh chan encodeOutput

	stepCounter uint64

	wg sync.WaitGroup
}

// NewPipeline wires a pipeline against an already-constructed scheduler and
// marker queue, plus the three model collaborators. logSink may be nil to
// disable periodic token dumps (spec.md §4.7).
func NewPipeline(cfg Config, scheduler *Scheduler, markers *MarkerQueue, audioTok AudioTokenizer, lm LanguageModel, textTok TextTokenizer, metrics *Metrics, logSink *LogSink, logger logging.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		scheduler: scheduler,
		markers:   markers,
		audioTok:  audioTok,
		lm:        lm,
		textTok:   textTok,
		metrics:   metrics,
		logSink:   logSink,
		logger:    logger,
		preCh:     make(chan preProcessOutput, cfg.PreProcessChannelSize),
		encCh:     make(chan encodeOutput, cfg.PostProcessChannelSize),
	}
}

// Run starts the three stage goroutines and the tick timer, blocking until
// ctx is cancelled. Each stage reports a fatal error (e.g. the model
// collaborator returning an error) to errCh rather than panicking, letting
// the caller decide whether to tear the whole engine down.
func (p *Pipeline) Run(ctx context.Context, errCh chan<- error) {
	p.wg.Add(3)
	go p.preProcessLoop(ctx, errCh)
	go p.encodeLoop(ctx, errCh)
	go p.postProcessLoop(ctx, errCh)
	p.wg.Wait()
}

func (p *Pipeline) preProcessLoop(ctx context.Context, errCh chan<- error) {
	defer p.wg.Done()
	ticker := time.NewTicker(audio.FrameDurationMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out := p.preProcessTick()
			select {
			case p.preCh <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

// preProcessTick snapshots the active slot set, drains each active slot's
// inbound queue without blocking, folds Init/Marker/Audio/Ping messages into
// slot state, assembles this tick's batch frame, and returns it for the
// encode stage. Free/inactive rows are left zeroed, satisfying the
// universal "mask false implies zero row" invariant (spec.md §8).
func (p *Pipeline) preProcessTick() preProcessOutput {
	step := p.stepCounter
	p.stepCounter++

	width := p.scheduler.Capacity()
	batch := audio.NewBatchFrame(width)
	streamIDs := make([]StreamID, width)

	active := p.scheduler.ActiveIndices()

	for _, idx := range active {
		slot := p.scheduler.SlotAt(idx)
		ref := slot.StreamID()
		if ref == 0 {
			continue
		}
		streamIDs[idx] = ref

		for _, msg := range slot.drainInbound(ref) {
			p.applyInbound(slot, idx, ref, step, msg)
		}

		if slot.needsReset(ref) {
			p.lm.Reset(idx)
			slot.clearNeedsReset(ref)
		}

		row := batch.Row(idx)
		if slot.drainResidue(ref, row) {
			batch.Active[idx] = true
		} else {
			batch.ZeroRow(idx)
		}
	}

	if p.metrics != nil {
		p.metrics.OpenChannels.Set(float64(p.scheduler.UsedSlots()))
	}

	return preProcessOutput{step: step, batch: batch, streamID: streamIDs}
}

// applyInbound handles one queued InMessage for slot idx/ref during a
// pre-process tick (spec.md §6 Inbound table). step is the pipeline's
// current global tick counter, the same scale drainMarkers compares
// against — a marker target must never be computed from a per-occupant
// counter, since that starts at 0 on bind and would fire immediately
// against the global counter for any occupant bound after startup.
func (p *Pipeline) applyInbound(slot *Slot, idx int, ref StreamID, step uint64, msg InMessage) {
	switch m := msg.(type) {
	case InInit:
		slot.Send(ref, OutReady{})
		slot.scheduleReset(ref)
	case InAudio:
		slot.appendResidue(ref, m.PCM)
	case InOggOpus:
		// Decoding happens at the session layer before Audio messages are
		// constructed; receiving raw Ogg/Opus bytes here means the caller
		// skipped that step.
		slot.Send(ref, OutError{Message: "ogg/opus payload reached the engine undecoded"})
	case InMarker:
		target := step + p.cfg.AsrDelayInTokens + uint64(slot.pendingResidueFrames(ref))
		p.markers.Push(Marker{ID: m.ID, SlotIndex: idx, StreamID: ref, TargetStep: target})
	case InPing:
		// No engine-visible effect; the session endpoint owns keepalive
		// bookkeeping (spec.md §4.2).
	}
}

func (p *Pipeline) encodeLoop(ctx context.Context, errCh chan<- error) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-p.preCh:
			if !ok {
				return
			}
			tokens, err := p.audioTok.EncodeStep(ctx, in.batch.PCM, in.batch.Active)
			if err != nil {
				if p.logger != nil {
					p.logger.Errorw("encode step failed", "step", in.step, "error", err)
				}
				select {
				case errCh <- err:
				default:
				}
				continue
			}
			out := encodeOutput{preProcessOutput: in, audioTokens: tokens}
			select {
			case p.encCh <- out:
				if p.metrics != nil {
					p.metrics.LMQueueDepth.Set(float64(len(p.encCh)))
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) postProcessLoop(ctx context.Context, errCh chan<- error) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-p.encCh:
			if !ok {
				return
			}
			start := time.Now()
			results, err := p.lm.Step(ctx, in.audioTokens, in.batch.Active)
			if err != nil {
				if p.logger != nil {
					p.logger.Errorw("lm step failed", "step", in.step, "error", err)
				}
				select {
				case errCh <- err:
				default:
				}
				continue
			}
			if p.metrics != nil {
				elapsed := time.Since(start).Seconds()
				p.metrics.ModelStepSecs.Observe(elapsed)
				p.metrics.LMStepSeconds.Observe(elapsed)
				active, validTokens := countActiveAndValid(in.batch.Active, results)
				p.metrics.LMBatchUtilization.Observe(float64(active) / float64(len(in.batch.Active)))
				if elapsed > 0 {
					p.metrics.LMTokensPerSecond.Set(float64(validTokens) / elapsed)
				}
			}
			p.dispatch(in, results)
			p.drainMarkers(in.step, in.streamID)
			if p.logSink != nil {
				p.logSink.Record(in.step, in.audioTokens, results)
			}
		}
	}
}

// countActiveAndValid reports how many batch rows were active this tick and
// how many of those produced a valid text token, feeding the batch
// utilization and tokens-per-second gauges.
func countActiveAndValid(active []bool, results []StepResult) (activeCount, validTokens int) {
	for i, a := range active {
		if !a {
			continue
		}
		activeCount++
		if i < len(results) && results[i].TokenValid {
			validTokens++
		}
	}
	return activeCount, validTokens
}

// dispatch turns each active row's StepResult into Word/EndWord/Step
// OutMessages addressed to that row's current occupant (spec.md §4.5).
// Word/EndWord timestamps are PCM-relative seconds, derived from the
// occupant's own emitted-step count rather than the shared tick counter, so
// they stay meaningful across reconnects and slot reuse.
func (p *Pipeline) dispatch(in encodeOutput, results []StepResult) {
	for idx, active := range in.batch.Active {
		ref := in.streamID[idx]
		if ref == 0 {
			continue
		}
		slot := p.scheduler.SlotAt(idx)

		if active {
			stepsEmitted := slot.outputStepsEmittedFor(ref)
			audioTimeSec := float64(stepsEmitted) * (float64(audio.FrameDurationMs) / 1000.0)
			slot.incrementStep(ref)

			r := results[idx]
			if r.TokenValid {
				if text, err := p.textTok.Detokenize(r.TextToken); err == nil && text != "" {
					slot.Send(ref, OutWord{Text: text, StartTime: audioTimeSec})
				}
			}
			if r.EndOfWord {
				slot.Send(ref, OutEndWord{StopTime: audioTimeSec})
			}
			slot.Send(ref, OutStep{
				StepIdx:     in.step,
				Probs:       r.Probs,
				BufferedPCM: slot.bufferedPCM(ref),
			})
		}
	}
}

// drainMarkers pops every marker whose target step has been reached and
// delivers OutMarker to its slot, provided the slot's current occupant
// still matches the marker's stamped stream id (spec.md §4.6).
func (p *Pipeline) drainMarkers(step uint64, streamIDs []StreamID) {
	for _, m := range p.markers.DrainUpTo(step) {
		if m.SlotIndex < 0 || m.SlotIndex >= len(streamIDs) {
			continue
		}
		if streamIDs[m.SlotIndex] != m.StreamID {
			continue // occupant has changed since the marker was injected
		}
		slot := p.scheduler.SlotAt(m.SlotIndex)
		slot.Send(m.StreamID, OutMarker{ID: m.ID})
	}
}
