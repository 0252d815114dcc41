package engine

import (
	"context"
	"time"

	"github.com/rapidaai/streamasr/pkg/logging"
)

// warmupSteps is the number of identity steps run over a zero-filled batch
// before real traffic is admitted, matching the original implementation's
// warmup() in batched_asr.rs.
const warmupSteps = 2

// Warmup runs warmupSteps identity passes through the LM across a full
// batch with every row marked active, to trigger any lazy kernel
// compilation or memory allocation ahead of first real traffic (spec.md
// §4.8 "Warmup & Health"). Failure is logged and counted but never fatal to
// server startup: an un-warmed model simply takes the hit on first real
// request instead.
func Warmup(ctx context.Context, width int, lm LanguageModel, metrics *Metrics, logger logging.Logger) {
	start := time.Now()
	err := lm.Warmup(ctx, width, warmupSteps)
	elapsed := time.Since(start)

	if metrics != nil {
		metrics.WarmupDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		if metrics != nil {
			metrics.WarmupFailure.Inc()
		}
		if logger != nil {
			logger.Warnw("warmup failed, continuing to serve cold", "error", err, "elapsed", elapsed)
		}
		return
	}
	if metrics != nil {
		metrics.WarmupSuccess.Inc()
	}
	if logger != nil {
		logger.Infow("warmup complete", "elapsed", elapsed, "steps", warmupSteps)
	}
}
